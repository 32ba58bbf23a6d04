package twitter

import (
	"encoding/json"
	"fmt"
	"strings"

	"tweetpull/pkg/record"
	"tweetpull/pkg/source"
)

const (
	instructionAddEntries = "TimelineAddEntries"
	instructionPinEntry   = "TimelinePinEntry"
	cursorBottom          = "Bottom"
)

// parseTimeline turns a UserTweets payload into a page. Pinned posts are
// skipped because they break newest-first order. The bottom cursor is kept
// even when the page holds no posts.
func parseTimeline(resp *timelineResponse) (*source.Page, error) {
	tl := resp.Data.User.Result.Timeline
	if tl == nil {
		tl = resp.Data.User.Result.TimelineV2
	}
	if tl == nil {
		return nil, fmt.Errorf("timeline missing from response")
	}

	page := &source.Page{}
	for _, ins := range tl.Timeline.Instructions {
		if ins.Type == instructionPinEntry {
			continue
		}
		entries := ins.Entries
		if ins.Entry != nil && ins.Type != instructionAddEntries {
			entries = append(entries, *ins.Entry)
		}

		for _, e := range entries {
			if e.Content.CursorType == cursorBottom || strings.HasPrefix(e.EntryID, "cursor-bottom-") {
				page.NextCursor = e.Content.Value
				continue
			}

			contents := []*itemContent{e.Content.ItemContent}
			for _, it := range e.Content.Items {
				contents = append(contents, it.Item.ItemContent)
			}
			for _, ic := range contents {
				if ic == nil || len(ic.TweetResults.Result) == 0 {
					continue
				}
				raw, err := tweetToRaw(ic.TweetResults.Result)
				if err != nil {
					return nil, fmt.Errorf("entry %s: %w", e.EntryID, err)
				}
				if raw != nil {
					page.Records = append(page.Records, raw)
				}
			}
		}
	}

	return page, nil
}

// tweetToRaw flattens a tweet node into the keys the record mapping reads.
// Tombstones and other non-tweet nodes yield nil.
func tweetToRaw(data json.RawMessage) (record.Raw, error) {
	var t tweetResult
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	if t.Typename == "TweetWithVisibilityResults" && len(t.Tweet) > 0 {
		return tweetToRaw(t.Tweet)
	}
	if t.Legacy == nil || t.RestID == "" {
		return nil, nil
	}

	raw := record.Raw{}
	for k, v := range t.Legacy {
		raw[k] = v
	}

	raw["id"] = t.RestID
	if text, ok := t.Legacy["full_text"].(string); ok {
		raw["text"] = text
	}
	if note := t.NoteTweet.NoteTweetResults.Result.Text; note != "" {
		raw["full_text"] = note
	}

	if u := t.Core.UserResults.Result; u != nil {
		raw["user"] = map[string]any{
			"id":          u.RestID,
			"screen_name": u.screenName(),
			"name":        u.name(),
		}
	}

	if v, ok := t.Legacy["in_reply_to_status_id_str"]; ok {
		raw["in_reply_to_status_id"] = v
	}
	if v, ok := t.Legacy["conversation_id_str"]; ok {
		raw["conversation_id"] = v
	}
	if ext, ok := t.Legacy["extended_entities"].(map[string]any); ok {
		if media, ok := ext["media"]; ok {
			if entities, ok := raw["entities"].(map[string]any); ok {
				entities["media"] = media
			}
		}
	}

	if t.Views.Count != "" {
		raw["view_count"] = t.Views.Count
	}
	if t.Source != "" {
		raw["source"] = stripTags(t.Source)
	}
	raw["has_card"] = len(t.Card) > 0 && string(t.Card) != "null"
	if t.IsTranslatable != nil {
		raw["is_translatable"] = *t.IsTranslatable
	}
	return raw, nil
}

// stripTags reduces the source anchor to its label
func stripTags(s string) string {
	var b strings.Builder
	in := false
	for _, r := range s {
		switch {
		case r == '<':
			in = true
		case r == '>':
			in = false
		case !in:
			b.WriteRune(r)
		}
	}
	return b.String()
}

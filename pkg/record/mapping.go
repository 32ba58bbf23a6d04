package record

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	errs "tweetpull/pkg/errors"
)

// Group tags optional column families that can be left null by configuration
type Group int

const (
	GroupCore Group = iota
	GroupUser
	GroupEngagement
	GroupMedia
)

// Options controls which optional column groups are populated. The schema
// never changes; disabled groups are written as nulls.
type Options struct {
	OmitEngagement bool
	OmitMedia      bool
}

// Field maps one source path onto one output column
type Field struct {
	Column   string
	Path     string
	Group    Group
	Required bool
	assign   func(r *Record, v any) error
}

// Fields is the mapping table in column order
var Fields = []Field{
	{Column: "id", Path: "id", Required: true, assign: func(r *Record, v any) error {
		s, err := toString(v)
		if err != nil {
			return err
		}
		if s == "" {
			return fmt.Errorf("empty value")
		}
		r.ID = s
		return nil
	}},
	{Column: "text", Path: "text", assign: setString(func(r *Record) **string { return &r.Text })},
	{Column: "full_text", Path: "full_text", assign: setString(func(r *Record) **string { return &r.FullText })},
	{Column: "created_at", Path: "created_at", Required: true, assign: func(r *Record, v any) error {
		t, err := ParseTime(v)
		if err != nil {
			return err
		}
		r.CreatedAt = t
		return nil
	}},
	{Column: "lang", Path: "lang", assign: setString(func(r *Record) **string { return &r.Lang })},

	{Column: "user_id", Path: "user.id", Group: GroupUser, assign: setString(func(r *Record) **string { return &r.UserID })},
	{Column: "user_screen_name", Path: "user.screen_name", Group: GroupUser, assign: setString(func(r *Record) **string { return &r.UserScreenName })},
	{Column: "user_name", Path: "user.name", Group: GroupUser, assign: setString(func(r *Record) **string { return &r.UserName })},

	{Column: "favorite_count", Path: "favorite_count", Group: GroupEngagement, assign: setInt(func(r *Record) **int64 { return &r.FavoriteCount })},
	{Column: "favorited", Path: "favorited", Group: GroupEngagement, assign: setBool(func(r *Record) **bool { return &r.Favorited })},
	{Column: "retweet_count", Path: "retweet_count", Group: GroupEngagement, assign: setInt(func(r *Record) **int64 { return &r.RetweetCount })},
	{Column: "reply_count", Path: "reply_count", Group: GroupEngagement, assign: setInt(func(r *Record) **int64 { return &r.ReplyCount })},
	{Column: "quote_count", Path: "quote_count", Group: GroupEngagement, assign: setInt(func(r *Record) **int64 { return &r.QuoteCount })},
	{Column: "view_count", Path: "view_count", Group: GroupEngagement, assign: setInt(func(r *Record) **int64 { return &r.ViewCount })},
	{Column: "bookmark_count", Path: "bookmark_count", Group: GroupEngagement, assign: setInt(func(r *Record) **int64 { return &r.BookmarkCount })},
	{Column: "bookmarked", Path: "bookmarked", Group: GroupEngagement, assign: setBool(func(r *Record) **bool { return &r.Bookmarked })},

	{Column: "hashtags", Path: "entities.hashtags", assign: func(r *Record, v any) error {
		list, err := toStringList(v, "text")
		r.Hashtags = list
		return err
	}},
	{Column: "urls", Path: "entities.urls", assign: func(r *Record, v any) error {
		list, err := toStringList(v, "expanded_url", "url")
		r.URLs = list
		return err
	}},
	{Column: "media", Path: "entities.media", Group: GroupMedia, assign: setBlob(func(r *Record) **string { return &r.Media })},
	{Column: "has_card", Path: "has_card", Group: GroupMedia, assign: setBool(func(r *Record) **bool { return &r.HasCard })},
	{Column: "is_quote_status", Path: "is_quote_status", assign: setBool(func(r *Record) **bool { return &r.IsQuoteStatus })},
	{Column: "possibly_sensitive", Path: "possibly_sensitive", assign: setBool(func(r *Record) **bool { return &r.PossiblySensitive })},
	{Column: "is_translatable", Path: "is_translatable", assign: setBool(func(r *Record) **bool { return &r.IsTranslatable })},

	{Column: "in_reply_to", Path: "in_reply_to_status_id", assign: setString(func(r *Record) **string { return &r.InReplyTo })},
	{Column: "conversation_id", Path: "conversation_id", assign: setString(func(r *Record) **string { return &r.ConversationID })},

	{Column: "place", Path: "place", assign: setBlob(func(r *Record) **string { return &r.Place })},
	{Column: "source", Path: "source", assign: setString(func(r *Record) **string { return &r.Source })},
}

// Columns returns the output column names in order
func Columns() []string {
	cols := make([]string, len(Fields))
	for i, f := range Fields {
		cols[i] = f.Column
	}
	return cols
}

// Normalize maps a raw source post onto a Record. Source keys not named in
// the mapping table are dropped. A missing required field or a value that
// cannot be coerced to its column type is a SchemaViolation.
func Normalize(raw Raw, opts Options) (Record, error) {
	var r Record

	for _, f := range Fields {
		if (f.Group == GroupEngagement && opts.OmitEngagement) || (f.Group == GroupMedia && opts.OmitMedia) {
			continue
		}

		v, ok := Lookup(raw, f.Path)
		if !ok {
			if f.Required {
				return Record{}, errs.Newf(errs.KindSchemaViolation,
					"post %s: required field %q is missing", describe(raw), f.Path)
			}
			continue
		}

		if err := f.assign(&r, v); err != nil {
			return Record{}, errs.Wrap(errs.KindSchemaViolation, err,
				fmt.Sprintf("post %s: column %q", describe(raw), f.Column))
		}
	}

	if r.FullText == nil && r.Text != nil {
		text := *r.Text
		r.FullText = &text
	}
	return r, nil
}

// Lookup resolves a dotted path through nested maps. Explicit nulls count
// as absent.
func Lookup(raw Raw, path string) (any, bool) {
	var cur any = map[string]any(raw)
	for _, key := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Raw:
		return m, true
	default:
		return nil, false
	}
}

func describe(raw Raw) string {
	if id, ok := raw["id"]; ok && id != nil {
		return fmt.Sprintf("%v", id)
	}
	return "<no id>"
}

func setString(field func(*Record) **string) func(*Record, any) error {
	return func(r *Record, v any) error {
		s, err := toString(v)
		if err != nil {
			return err
		}
		*field(r) = &s
		return nil
	}
}

func setBlob(field func(*Record) **string) func(*Record, any) error {
	return func(r *Record, v any) error {
		if s, ok := v.(string); ok {
			*field(r) = &s
			return nil
		}
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		s := string(data)
		*field(r) = &s
		return nil
	}
}

func setInt(field func(*Record) **int64) func(*Record, any) error {
	return func(r *Record, v any) error {
		n, err := toInt64(v)
		if err != nil {
			return err
		}
		*field(r) = &n
		return nil
	}
}

func setBool(field func(*Record) **bool) func(*Record, any) error {
	return func(r *Record, v any) error {
		b, err := toBool(v)
		if err != nil {
			return err
		}
		*field(r) = &b
		return nil
	}
}

func toString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) {
			return "", fmt.Errorf("cannot use %v as identifier text", x)
		}
		return strconv.FormatFloat(x, 'f', 0, 64), nil
	default:
		return "", fmt.Errorf("expected string, got %T", v)
	}
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int64:
		return x, nil
	case int32:
		return int64(x), nil
	case float64:
		if x != math.Trunc(x) || x > math.MaxInt64 || x < math.MinInt64 {
			return 0, fmt.Errorf("expected integer, got %v", x)
		}
		return int64(x), nil
	case json.Number:
		return x.Int64()
	case string:
		n, err := strconv.ParseInt(strings.ReplaceAll(strings.TrimSpace(x), ",", ""), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("expected integer, got %q", x)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		b, err := strconv.ParseBool(x)
		if err != nil {
			return false, fmt.Errorf("expected boolean, got %q", x)
		}
		return b, nil
	default:
		return false, fmt.Errorf("expected boolean, got %T", v)
	}
}

// toStringList accepts a list of strings or a list of objects, taking the
// first non-empty key from each object
func toStringList(v any, keys ...string) ([]string, error) {
	switch x := v.(type) {
	case []string:
		return x, nil
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			switch it := item.(type) {
			case string:
				out = append(out, it)
			case map[string]any:
				for _, k := range keys {
					if s, ok := it[k].(string); ok && s != "" {
						out = append(out, s)
						break
					}
				}
			default:
				return nil, fmt.Errorf("unexpected list element %T", item)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected list, got %T", v)
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RubyDate, // "Mon Jan 02 15:04:05 -0700 2006", the platform's native format
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ParseTime converts a source timestamp to UTC. Strings in RFC 3339, the
// platform's native layout or "YYYY-MM-DD HH:MM:SS" (taken as UTC) are
// accepted, as are unix seconds.
func ParseTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), nil
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, x); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q", x)
	case float64:
		sec, frac := math.Modf(x)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
	case int64:
		return time.Unix(x, 0).UTC(), nil
	case int:
		return time.Unix(int64(x), 0).UTC(), nil
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(n, 0).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("expected timestamp, got %T", v)
	}
}

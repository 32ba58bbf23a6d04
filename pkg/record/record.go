// Package record defines the fixed shape of an extracted post and the mapping
// that normalizes loosely typed source data into it.
package record

import (
	"time"
)

// Raw is a post as delivered by a tweet source: arbitrarily nested maps,
// slices and scalars decoded from JSON
type Raw map[string]any

// Record is one extracted post. Field order is the column order of the
// output file; pointer fields are nullable columns.
type Record struct {
	ID        string    `parquet:"id" json:"id"`
	Text      *string   `parquet:"text" json:"text"`
	FullText  *string   `parquet:"full_text" json:"full_text"`
	CreatedAt time.Time `parquet:"created_at,timestamp(millisecond)" json:"created_at"`
	Lang      *string   `parquet:"lang" json:"lang"`

	UserID         *string `parquet:"user_id" json:"user_id"`
	UserScreenName *string `parquet:"user_screen_name" json:"user_screen_name"`
	UserName       *string `parquet:"user_name" json:"user_name"`

	FavoriteCount *int64 `parquet:"favorite_count" json:"favorite_count"`
	Favorited     *bool  `parquet:"favorited" json:"favorited"`
	RetweetCount  *int64 `parquet:"retweet_count" json:"retweet_count"`
	ReplyCount    *int64 `parquet:"reply_count" json:"reply_count"`
	QuoteCount    *int64 `parquet:"quote_count" json:"quote_count"`
	ViewCount     *int64 `parquet:"view_count" json:"view_count"`
	BookmarkCount *int64 `parquet:"bookmark_count" json:"bookmark_count"`
	Bookmarked    *bool  `parquet:"bookmarked" json:"bookmarked"`

	Hashtags          []string `parquet:"hashtags,list" json:"hashtags"`
	URLs              []string `parquet:"urls,list" json:"urls"`
	Media             *string  `parquet:"media" json:"media"`
	HasCard           *bool    `parquet:"has_card" json:"has_card"`
	IsQuoteStatus     *bool    `parquet:"is_quote_status" json:"is_quote_status"`
	PossiblySensitive *bool    `parquet:"possibly_sensitive" json:"possibly_sensitive"`
	IsTranslatable    *bool    `parquet:"is_translatable" json:"is_translatable"`

	InReplyTo      *string `parquet:"in_reply_to" json:"in_reply_to"`
	ConversationID *string `parquet:"conversation_id" json:"conversation_id"`

	Place  *string `parquet:"place" json:"place"`
	Source *string `parquet:"source" json:"source"`
}

// fixedOverhead approximates the bytes a Record holds besides its strings
const fixedOverhead = 256

// EstimatedSize approximates the in-memory footprint of r in bytes
func (r *Record) EstimatedSize() int64 {
	size := int64(fixedOverhead + len(r.ID))
	for _, s := range []*string{
		r.Text, r.FullText, r.Lang, r.UserID, r.UserScreenName, r.UserName,
		r.Media, r.InReplyTo, r.ConversationID, r.Place, r.Source,
	} {
		if s != nil {
			size += int64(len(*s))
		}
	}
	for _, list := range [][]string{r.Hashtags, r.URLs} {
		for _, s := range list {
			size += int64(len(s)) + 16
		}
	}
	return size
}

// Body returns the full text when present, falling back to the short text
func (r *Record) Body() string {
	if r.FullText != nil && *r.FullText != "" {
		return *r.FullText
	}
	if r.Text != nil {
		return *r.Text
	}
	return ""
}

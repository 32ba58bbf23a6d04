package twitter

import "encoding/json"

// apiError is one entry of a GraphQL "errors" array
type apiError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// userResponse is the UserByScreenName payload
type userResponse struct {
	Data struct {
		User *struct {
			Result *userResult `json:"result"`
		} `json:"user"`
	} `json:"data"`
	Errors []apiError `json:"errors"`
}

type userResult struct {
	Typename string `json:"__typename"`
	RestID   string `json:"rest_id"`
	Reason   string `json:"reason"`
	Legacy   struct {
		ScreenName string `json:"screen_name"`
		Name       string `json:"name"`
		Protected  bool   `json:"protected"`
	} `json:"legacy"`
	// Core carries the names in newer payloads
	Core struct {
		ScreenName string `json:"screen_name"`
		Name       string `json:"name"`
	} `json:"core"`
	Privacy struct {
		Protected bool `json:"protected"`
	} `json:"privacy"`
}

func (u *userResult) screenName() string {
	if u.Core.ScreenName != "" {
		return u.Core.ScreenName
	}
	return u.Legacy.ScreenName
}

func (u *userResult) name() string {
	if u.Core.Name != "" {
		return u.Core.Name
	}
	return u.Legacy.Name
}

// timelineResponse is the UserTweets payload. Older payloads nest the
// timeline under timeline_v2.
type timelineResponse struct {
	Data struct {
		User struct {
			Result struct {
				Typename   string    `json:"__typename"`
				Timeline   *timeline `json:"timeline"`
				TimelineV2 *timeline `json:"timeline_v2"`
			} `json:"result"`
		} `json:"user"`
	} `json:"data"`
	Errors []apiError `json:"errors"`
}

type timeline struct {
	Timeline struct {
		Instructions []instruction `json:"instructions"`
	} `json:"timeline"`
}

type instruction struct {
	Type    string  `json:"type"`
	Entries []entry `json:"entries"`
	Entry   *entry  `json:"entry"`
}

type entry struct {
	EntryID string       `json:"entryId"`
	Content entryContent `json:"content"`
}

type entryContent struct {
	EntryType   string       `json:"entryType"`
	CursorType  string       `json:"cursorType"`
	Value       string       `json:"value"`
	ItemContent *itemContent `json:"itemContent"`
	Items       []struct {
		Item struct {
			ItemContent *itemContent `json:"itemContent"`
		} `json:"item"`
	} `json:"items"`
}

type itemContent struct {
	ItemType     string `json:"itemType"`
	TweetResults struct {
		Result json.RawMessage `json:"result"`
	} `json:"tweet_results"`
}

// tweetResult is a Tweet or TweetWithVisibilityResults node. Legacy is kept
// loosely typed so every field reaches the record mapping.
type tweetResult struct {
	Typename string          `json:"__typename"`
	RestID   string          `json:"rest_id"`
	Tweet    json.RawMessage `json:"tweet"`
	Core     struct {
		UserResults struct {
			Result *userResult `json:"result"`
		} `json:"user_results"`
	} `json:"core"`
	Legacy map[string]any `json:"legacy"`
	Views  struct {
		Count string `json:"count"`
	} `json:"views"`
	Source         string          `json:"source"`
	Card           json.RawMessage `json:"card"`
	IsTranslatable *bool           `json:"is_translatable"`
	NoteTweet      struct {
		NoteTweetResults struct {
			Result struct {
				Text string `json:"text"`
			} `json:"result"`
		} `json:"note_tweet_results"`
	} `json:"note_tweet"`
}

package twitter

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

const (
	// BaseURL is the GraphQL API root used by the web client
	BaseURL = "https://x.com/i/api"

	// UserByScreenNameQuery resolves a handle to an account
	UserByScreenNameQuery = "xmU6X_CKVnQ5lSrCbAmJsg/UserByScreenName"

	// UserTweetsQuery pages through an account's posts, newest first
	UserTweetsQuery = "V7H0Ap3_Hh2FyS75OCDO3Q/UserTweets"

	// DefaultBearerToken is the public token shipped with the web client
	DefaultBearerToken = "AAAAAAAAAAAAAAAAAAAAANRILgAAAAAAnNwIzUejRCOuH5E6I8xnZz4puTs%3D1Zv7ttfk8LF81IUq16cHjhLTvJu4FA33AGWWjCpTnA"

	// DefaultPageSize is the number of posts requested per page
	DefaultPageSize = 20

	// MaxPageSize is the largest page the API honors
	MaxPageSize = 100
)

// features are the GraphQL feature switches the web client sends. The API
// rejects requests that omit required switches.
var features = map[string]bool{
	"hidden_profile_subscriptions_enabled":                              true,
	"rweb_tipjar_consumption_enabled":                                   true,
	"responsive_web_graphql_exclude_directive_enabled":                  true,
	"verified_phone_label_enabled":                                      false,
	"subscriptions_verification_info_is_identity_verified_enabled":      true,
	"subscriptions_verification_info_verified_since_enabled":            true,
	"highlights_tweets_tab_ui_enabled":                                  true,
	"responsive_web_twitter_article_notes_tab_enabled":                  true,
	"subscriptions_feature_can_gift_premium":                            true,
	"creator_subscriptions_tweet_preview_api_enabled":                   true,
	"responsive_web_graphql_skip_user_profile_image_extensions_enabled": false,
	"responsive_web_graphql_timeline_navigation_enabled":                true,
	"communities_web_enable_tweet_community_results_fetch":              true,
	"c9s_tweet_anatomy_moderator_badge_enabled":                         true,
	"articles_preview_enabled":                                          true,
	"responsive_web_edit_tweet_api_enabled":                             true,
	"graphql_is_translatable_rweb_tweet_is_translatable_enabled":        true,
	"view_counts_everywhere_api_enabled":                                true,
	"longform_notetweets_consumption_enabled":                           true,
	"responsive_web_twitter_article_tweet_consumption_enabled":          true,
	"tweet_awards_web_tipping_enabled":                                  false,
	"freedom_of_speech_not_reach_fetch_enabled":                         true,
	"standardized_nudges_misinfo":                                       true,
	"tweet_with_visibility_results_prefer_gql_limited_actions_policy_enabled": true,
	"longform_notetweets_rich_text_read_enabled":                        true,
	"longform_notetweets_inline_media_enabled":                          true,
	"responsive_web_enhance_cards_enabled":                              false,
}

func encodeJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("twitter: encode query parameter: %v", err))
	}
	return string(b)
}

// UserByScreenNameURL builds the account lookup URL
func UserByScreenNameURL(base, handle string) string {
	params := url.Values{}
	params.Set("variables", encodeJSON(map[string]interface{}{
		"screen_name":              handle,
		"withSafetyModeUserFields": true,
	}))
	params.Set("features", encodeJSON(features))

	return fmt.Sprintf("%s/graphql/%s?%s", strings.TrimRight(base, "/"), UserByScreenNameQuery, params.Encode())
}

// UserTweetsURL builds the timeline URL for one page. An empty cursor asks
// for the newest page.
func UserTweetsURL(base, userID, cursor string, count int) string {
	if count <= 0 {
		count = DefaultPageSize
	} else if count > MaxPageSize {
		count = MaxPageSize
	}

	variables := map[string]interface{}{
		"userId":                                 userID,
		"count":                                  count,
		"includePromotedContent":                 false,
		"withQuickPromoteEligibilityTweetFields": false,
		"withVoice":                              true,
		"withV2Timeline":                         true,
	}
	if cursor != "" {
		variables["cursor"] = cursor
	}

	params := url.Values{}
	params.Set("variables", encodeJSON(variables))
	params.Set("features", encodeJSON(features))

	return fmt.Sprintf("%s/graphql/%s?%s", strings.TrimRight(base, "/"), UserTweetsQuery, params.Encode())
}

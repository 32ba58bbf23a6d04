// Package twitter implements source.TweetSource against the GraphQL API used
// by the x.com web client.
//
// Requests are authenticated with a logged-in browser session: the
// auth_token and ct0 cookies plus the public web bearer token. The ct0 value
// doubles as the x-csrf-token header.
//
// Status handling:
//   - 429 becomes a throttled page (or *source.RateLimitError during account
//     lookup) carrying the x-rate-limit-reset instant
//   - 401 and 403 become source.ErrForbidden
//   - 404 and unknown handles become source.ErrNotFound
//   - suspended or protected accounts (UserUnavailable) become
//     source.ErrForbidden
//   - anything else is returned as a plain error and treated as transient
//
// Usage:
//
//	client := twitter.NewClient(cfg.Twitter, log)
//	client.SetCredentials(authToken, ct0)
//	account, err := client.ResolveAccount(ctx, "NASA")
package twitter

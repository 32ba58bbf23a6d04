package twitter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tweetpull/pkg/config"
	"tweetpull/pkg/logger"
	"tweetpull/pkg/source"
)

// API error codes carried in GraphQL "errors" arrays
const (
	codeRateLimited   = 88
	codeBadToken      = 89
	codeUnauthorized  = 32
	codeSuspended     = 64
	codeLocked        = 326
	codeNotAuthorized = 179
	codeUserNotFound  = 50
)

// Error is an unexpected API response, treated as transient by callers
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("x api error: %s", e.Message)
	}
	return fmt.Sprintf("x api error (status %d): %s", e.Status, e.Message)
}

// Client talks to the x.com GraphQL API
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	baseURL    string
	pageSize   int
	authToken  string
	csrfToken  string
	logger     logger.Logger
}

var _ source.TweetSource = (*Client)(nil)

// NewClient creates a client from the twitter config section
func NewClient(cfg config.TwitterConfig, log logger.Logger) *Client {
	if log == nil {
		log = logger.NewNopLogger()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	base := cfg.BaseURL
	if base == "" {
		base = BaseURL
	}
	bearer := cfg.BearerToken
	if bearer == "" {
		bearer = DefaultBearerToken
	}

	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		headers: map[string]string{
			"Authorization":             "Bearer " + bearer,
			"Accept":                    "*/*",
			"Accept-Language":           "en-US,en;q=0.9",
			"Content-Type":              "application/json",
			"x-twitter-active-user":     "yes",
			"x-twitter-client-language": "en",
		},
		baseURL:  base,
		pageSize: cfg.PageSize,
		logger:   log,
	}
	if cfg.UserAgent != "" {
		c.headers["User-Agent"] = cfg.UserAgent
	}
	c.SetCredentials(cfg.AuthToken, cfg.CSRFToken)
	return c
}

// SetHeader sets a custom header for every request
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// SetCredentials sets the session cookies. ct0 is also sent as the CSRF header.
func (c *Client) SetCredentials(authToken, ct0 string) {
	c.authToken = authToken
	c.csrfToken = ct0
	if authToken != "" {
		c.headers["x-twitter-auth-type"] = "OAuth2Session"
	} else {
		delete(c.headers, "x-twitter-auth-type")
	}
	if ct0 != "" {
		c.headers["x-csrf-token"] = ct0
	} else {
		delete(c.headers, "x-csrf-token")
	}
}

// HasCredentials reports whether session cookies are set
func (c *Client) HasCredentials() bool {
	return c.authToken != "" && c.csrfToken != ""
}

func (c *Client) doRequest(req *http.Request) (*http.Response, error) {
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	if c.authToken != "" {
		req.AddCookie(&http.Cookie{Name: "auth_token", Value: c.authToken})
	}
	if c.csrfToken != "" {
		req.AddCookie(&http.Cookie{Name: "ct0", Value: c.csrfToken})
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		c.logger.WarnWithFields("HTTP request failed", map[string]interface{}{
			"path":     req.URL.Path,
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, err
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"path":      req.URL.Path,
		"status":    resp.StatusCode,
		"duration":  duration,
		"remaining": resp.Header.Get("x-rate-limit-remaining"),
	})
	return resp, nil
}

// getJSON performs a GET and decodes the body into target. Status codes are
// mapped onto source errors.
func (c *Client) getJSON(ctx context.Context, url string, target interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.doRequest(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if err := json.Unmarshal(body, target); err != nil {
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		c.logger.WarnWithFields("failed to parse JSON response", map[string]interface{}{
			"status":       resp.StatusCode,
			"error":        err.Error(),
			"body_preview": preview,
		})
		return &Error{Status: resp.StatusCode, Message: fmt.Sprintf("failed to parse JSON: %v", err)}
	}
	return nil
}

func (c *Client) checkResponseStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		reset := parseReset(resp.Header.Get("x-rate-limit-reset"))
		c.logger.WarnWithFields("rate limit exceeded", map[string]interface{}{
			"reset": reset,
		})
		return &source.RateLimitError{ResetAt: reset}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("status %d: %w", resp.StatusCode, source.ErrForbidden)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("status %d: %w", resp.StatusCode, source.ErrNotFound)
	default:
		return &Error{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
}

// parseReset reads x-rate-limit-reset (unix seconds); zero if absent
func parseReset(v string) time.Time {
	secs, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || secs <= 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}

// classify maps GraphQL-level errors on a 200 response
func classify(errors []apiError) error {
	for _, e := range errors {
		switch e.Code {
		case codeRateLimited:
			return &source.RateLimitError{}
		case codeUnauthorized, codeBadToken, codeNotAuthorized, codeSuspended, codeLocked:
			return fmt.Errorf("%s: %w", e.Message, source.ErrForbidden)
		case codeUserNotFound:
			return fmt.Errorf("%s: %w", e.Message, source.ErrNotFound)
		}
	}
	return &Error{Message: errors[0].Message}
}

// ResolveAccount looks up a handle
func (c *Client) ResolveAccount(ctx context.Context, handle string) (*source.Account, error) {
	c.logger.DebugWithFields("resolving account", map[string]interface{}{
		"handle": handle,
	})

	var resp userResponse
	if err := c.getJSON(ctx, UserByScreenNameURL(c.baseURL, handle), &resp); err != nil {
		return nil, err
	}

	if resp.Data.User == nil || resp.Data.User.Result == nil {
		if len(resp.Errors) > 0 {
			return nil, classify(resp.Errors)
		}
		return nil, fmt.Errorf("@%s: %w", handle, source.ErrNotFound)
	}

	u := resp.Data.User.Result
	if u.Typename == "UserUnavailable" {
		reason := u.Reason
		if reason == "" {
			reason = "unavailable"
		}
		return nil, fmt.Errorf("@%s is %s: %w", handle, strings.ToLower(reason), source.ErrForbidden)
	}
	if u.RestID == "" {
		return nil, fmt.Errorf("@%s: %w", handle, source.ErrNotFound)
	}

	account := &source.Account{ID: u.RestID, ScreenName: u.screenName(), Name: u.name()}
	if account.ScreenName == "" {
		account.ScreenName = handle
	}
	if u.Legacy.Protected || u.Privacy.Protected {
		c.logger.InfoWithFields("account is protected", map[string]interface{}{
			"handle": handle,
		})
	}
	return account, nil
}

// FetchPage returns one page of the account's posts. A 429 yields a
// throttled page rather than an error.
func (c *Client) FetchPage(ctx context.Context, accountID, cursor string) (*source.Page, error) {
	var resp timelineResponse
	err := c.getJSON(ctx, UserTweetsURL(c.baseURL, accountID, cursor, c.pageSize), &resp)
	if rle, ok := err.(*source.RateLimitError); ok {
		return &source.Page{Throttled: &source.Throttle{ResetAt: rle.ResetAt}}, nil
	}
	if err != nil {
		return nil, err
	}

	if resp.Data.User.Result.Timeline == nil && resp.Data.User.Result.TimelineV2 == nil {
		if len(resp.Errors) > 0 {
			err := classify(resp.Errors)
			if rle, ok := err.(*source.RateLimitError); ok {
				return &source.Page{Throttled: &source.Throttle{ResetAt: rle.ResetAt}}, nil
			}
			return nil, err
		}
		if resp.Data.User.Result.Typename == "UserUnavailable" {
			return nil, fmt.Errorf("account %s: %w", accountID, source.ErrForbidden)
		}
	}

	page, err := parseTimeline(&resp)
	if err != nil {
		return nil, &Error{Status: http.StatusOK, Message: err.Error()}
	}

	c.logger.DebugWithFields("timeline page parsed", map[string]interface{}{
		"records":  len(page.Records),
		"has_next": page.NextCursor != "",
	})
	return page, nil
}

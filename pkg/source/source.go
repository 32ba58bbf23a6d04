// Package source defines the contract between the extraction pipeline and
// the platform client that serves an account's posts.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tweetpull/pkg/record"
)

var (
	// ErrNotFound means the account does not exist
	ErrNotFound = errors.New("account not found")
	// ErrForbidden means the account exists but its posts cannot be read
	// (protected, suspended, or the session lacks access)
	ErrForbidden = errors.New("account forbidden")
)

// RateLimitError reports source-side throttling. ResetAt is zero when the
// source gave no reset instant.
type RateLimitError struct {
	ResetAt time.Time
}

func (e *RateLimitError) Error() string {
	if e.ResetAt.IsZero() {
		return "rate limited"
	}
	return fmt.Sprintf("rate limited until %s", e.ResetAt.UTC().Format(time.RFC3339))
}

// Account identifies a resolved account
type Account struct {
	ID         string
	ScreenName string
	Name       string
}

// Throttle signals that a page request was throttled instead of served
type Throttle struct {
	ResetAt time.Time
}

// Page is one page of posts in reverse-chronological order. An empty
// NextCursor means history is exhausted.
type Page struct {
	Records    []record.Raw
	NextCursor string
	Throttled  *Throttle
}

// TweetSource serves an account's posts page by page. Errors other than
// ErrNotFound, ErrForbidden and *RateLimitError are treated as transient.
type TweetSource interface {
	ResolveAccount(ctx context.Context, handle string) (*Account, error)
	FetchPage(ctx context.Context, accountID, cursor string) (*Page, error)
}

// Package walker drives a tweet source page by page and yields the records
// inside the extraction window.
package walker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	errs "tweetpull/pkg/errors"
	"tweetpull/pkg/logger"
	"tweetpull/pkg/ratelimit"
	"tweetpull/pkg/record"
	"tweetpull/pkg/source"
)

// State is a position in the walk
type State int

const (
	Start State = iota
	Fetching
	Filtering
	// Stopped means a record older than the cutoff was reached
	Stopped
	// Exhausted means the source ran out of history
	Exhausted
	Failed
)

func (s State) String() string {
	switch s {
	case Start:
		return "start"
	case Fetching:
		return "fetching"
	case Filtering:
		return "filtering"
	case Stopped:
		return "stopped"
	case Exhausted:
		return "exhausted"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Governor gates every source request
type Governor interface {
	BeforeRequest(ctx context.Context) error
	OnResult(outcome ratelimit.Outcome) error
}

// Options configures a walk
type Options struct {
	Handle string
	// Cutoff is inclusive: records created at or after it are yielded
	Cutoff time.Time
	// ResumeAfter is the id of the last record already persisted
	ResumeAfter string
	Record      record.Options
	// MaxEmptyPages bounds a run of consecutive pages without records that
	// still carry a continuation token. Zero means DefaultMaxEmptyPages.
	MaxEmptyPages int
	Logger        logger.Logger
}

// DefaultMaxEmptyPages is used when Options.MaxEmptyPages is zero
const DefaultMaxEmptyPages = 5

// Stats counts what the walk has seen
type Stats struct {
	Pages   int
	Yielded int
	Skipped int
}

// Walker is a pull iterator over an account's posts, newest first
type Walker struct {
	src  source.TweetSource
	gov  Governor
	opts Options
	log  logger.Logger

	state   State
	err     error
	account *source.Account
	cursor  string
	next    string
	buf     []record.Raw

	emptyPages     int
	boundaryPassed bool
	prevCreated    time.Time
	warnedOrder    bool
	stats          Stats
}

// New creates a walker in the Start state
func New(src source.TweetSource, gov Governor, opts Options) *Walker {
	log := opts.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}
	if opts.MaxEmptyPages <= 0 {
		opts.MaxEmptyPages = DefaultMaxEmptyPages
	}
	return &Walker{
		src:            src,
		gov:            gov,
		opts:           opts,
		log:            log.WithField("account", opts.Handle),
		boundaryPassed: opts.ResumeAfter == "",
	}
}

// State returns the current state
func (w *Walker) State() State { return w.state }

// Account returns the resolved account, nil before resolution
func (w *Walker) Account() *source.Account { return w.account }

// Stats returns counters for the walk so far
func (w *Walker) Stats() Stats { return w.stats }

// Err returns the error that moved the walker to Failed
func (w *Walker) Err() error { return w.err }

// Next returns the next record in the window. It returns io.EOF once the
// walk is Stopped or Exhausted, and the failure cause once it is Failed.
func (w *Walker) Next(ctx context.Context) (record.Record, error) {
	for {
		switch w.state {
		case Start:
			account, err := w.resolve(ctx)
			if err != nil {
				return record.Record{}, w.fail(err)
			}
			w.account = account
			w.log.InfoWithFields("Account resolved", map[string]interface{}{
				"account_id": account.ID,
				"cutoff":     w.opts.Cutoff,
			})
			w.state = Fetching

		case Fetching:
			page, err := w.fetch(ctx)
			if err != nil {
				return record.Record{}, w.fail(err)
			}
			w.stats.Pages++
			w.buf = page.Records
			w.next = page.NextCursor
			w.warnedOrder = false
			w.log.DebugWithFields("Page fetched", map[string]interface{}{
				"page":     w.stats.Pages,
				"records":  len(page.Records),
				"has_next": page.NextCursor != "",
			})
			if len(page.Records) == 0 {
				w.emptyPages++
				w.advance()
				continue
			}
			w.emptyPages = 0
			w.state = Filtering

		case Filtering:
			if len(w.buf) == 0 {
				w.advance()
				continue
			}

			raw := w.buf[0]
			w.buf = w.buf[1:]

			rec, err := record.Normalize(raw, w.opts.Record)
			if err != nil {
				return record.Record{}, w.fail(err)
			}

			if rec.CreatedAt.Before(w.opts.Cutoff) {
				w.buf = nil
				w.finish(Stopped)
				continue
			}

			w.checkOrder(rec)

			if !w.boundaryPassed && !w.passBoundary(rec.ID) {
				w.stats.Skipped++
				continue
			}

			w.stats.Yielded++
			return rec, nil

		case Stopped, Exhausted:
			return record.Record{}, io.EOF

		case Failed:
			return record.Record{}, w.err
		}
	}
}

// advance follows the continuation token of the page just consumed. Only a
// missing token is a natural end of history; a token the source hands back
// unchanged, or too many empty pages in a row, also end the walk.
func (w *Walker) advance() {
	switch {
	case w.next == "":
		w.finish(Exhausted)
	case w.next == w.cursor:
		w.log.WarnWithFields("Source repeated its continuation token, ending walk", map[string]interface{}{
			"cursor": w.next,
			"page":   w.stats.Pages,
		})
		w.finish(Exhausted)
	case w.emptyPages >= w.opts.MaxEmptyPages:
		w.log.WarnWithFields("Too many consecutive empty pages, ending walk", map[string]interface{}{
			"empty_pages": w.emptyPages,
			"page":        w.stats.Pages,
		})
		w.finish(Exhausted)
	default:
		w.cursor = w.next
		w.state = Fetching
	}
}

// passBoundary reports whether id should be yielded while resuming. The
// boundary record itself is skipped; a numeric id below the boundary means
// the boundary record has disappeared and id is new.
func (w *Walker) passBoundary(id string) bool {
	if id == w.opts.ResumeAfter {
		w.boundaryPassed = true
		w.log.InfoWithFields("Resume boundary reached", map[string]interface{}{
			"last_id": id,
			"skipped": w.stats.Skipped + 1,
		})
		return false
	}
	if olderID(id, w.opts.ResumeAfter) {
		w.boundaryPassed = true
		w.log.WarnWithFields("Resume boundary record missing, resuming at first older id", map[string]interface{}{
			"last_id": w.opts.ResumeAfter,
			"id":      id,
		})
		return true
	}
	return false
}

func (w *Walker) checkOrder(rec record.Record) {
	if !w.prevCreated.IsZero() && rec.CreatedAt.After(w.prevCreated) && !w.warnedOrder {
		w.warnedOrder = true
		w.log.WarnWithFields("Source returned records out of chronological order", map[string]interface{}{
			"id":       rec.ID,
			"page":     w.stats.Pages,
			"previous": w.prevCreated,
		})
	}
	w.prevCreated = rec.CreatedAt
}

func (w *Walker) finish(s State) {
	w.state = s
	w.log.InfoWithFields("Walk finished", map[string]interface{}{
		"state":   s.String(),
		"pages":   w.stats.Pages,
		"yielded": w.stats.Yielded,
		"skipped": w.stats.Skipped,
	})
	if s == Exhausted && !w.boundaryPassed {
		w.log.WarnWithFields("History ended before the resume boundary was found", map[string]interface{}{
			"last_id": w.opts.ResumeAfter,
		})
	}
}

func (w *Walker) fail(err error) error {
	w.state = Failed
	w.err = err
	return err
}

func (w *Walker) resolve(ctx context.Context) (*source.Account, error) {
	for {
		if err := w.gov.BeforeRequest(ctx); err != nil {
			return nil, err
		}
		account, err := w.src.ResolveAccount(ctx, w.opts.Handle)
		if err == nil && account == nil {
			err = source.ErrNotFound
		}
		done, outErr := w.settle(ctx, err, nil)
		if done {
			return account, outErr
		}
	}
}

func (w *Walker) fetch(ctx context.Context) (*source.Page, error) {
	for {
		if err := w.gov.BeforeRequest(ctx); err != nil {
			return nil, err
		}
		page, err := w.src.FetchPage(ctx, w.account.ID, w.cursor)
		if err == nil && page == nil {
			page = &source.Page{}
		}
		var throttle *source.Throttle
		if err == nil {
			throttle = page.Throttled
		}
		done, outErr := w.settle(ctx, err, throttle)
		if done {
			if outErr != nil {
				return nil, outErr
			}
			return page, nil
		}
	}
}

// settle reports one attempt to the governor and translates source errors.
// done is false when the attempt should be retried.
func (w *Walker) settle(ctx context.Context, err error, throttle *source.Throttle) (done bool, out error) {
	if err == nil && throttle == nil {
		return true, w.gov.OnResult(ratelimit.Outcome{Kind: ratelimit.Success})
	}

	if err != nil && ctx.Err() != nil {
		return true, ctx.Err()
	}

	var outcome ratelimit.Outcome
	var rle *source.RateLimitError
	switch {
	case err == nil:
		outcome = ratelimit.Outcome{Kind: ratelimit.Throttled, ResetAt: throttle.ResetAt}
	case errors.Is(err, source.ErrNotFound):
		return true, errs.Wrap(errs.KindAccountNotFound, err, w.opts.Handle)
	case errors.Is(err, source.ErrForbidden):
		return true, errs.Wrap(errs.KindAccountForbidden, err, w.opts.Handle)
	case errors.As(err, &rle):
		outcome = ratelimit.Outcome{Kind: ratelimit.Throttled, ResetAt: rle.ResetAt, Err: err}
	default:
		outcome = ratelimit.Outcome{Kind: ratelimit.Transient, Err: err}
	}

	if exhausted := w.gov.OnResult(outcome); exhausted != nil {
		return true, exhausted
	}
	return false, nil
}

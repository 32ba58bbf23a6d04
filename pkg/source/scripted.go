package source

import (
	"context"
	"fmt"
	"sync"

	"tweetpull/pkg/record"
)

// Step is one scripted response
type Step struct {
	Page *Page
	Err  error
}

// Scripted is an in-memory TweetSource that replays canned responses
type Scripted struct {
	mu sync.Mutex

	Account    *Account
	ResolveErr []error
	// Steps are consumed in order by FetchPage regardless of cursor
	Steps []Step

	// Cursors records the cursor passed to every FetchPage call
	Cursors      []string
	// Handles records the handle passed to every ResolveAccount call
	Handles      []string
	ResolveCalls int
}

// NewPaged builds a Scripted source serving pages in order, each linked to
// the next by cursors "c1", "c2", ...
func NewPaged(account *Account, pages ...[]record.Raw) *Scripted {
	s := &Scripted{Account: account}
	for i, recs := range pages {
		p := &Page{Records: recs}
		if i < len(pages)-1 {
			p.NextCursor = fmt.Sprintf("c%d", i+1)
		}
		s.Steps = append(s.Steps, Step{Page: p})
	}
	return s
}

func (s *Scripted) ResolveAccount(ctx context.Context, handle string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.ResolveCalls++
	s.Handles = append(s.Handles, handle)
	if len(s.ResolveErr) > 0 {
		err := s.ResolveErr[0]
		s.ResolveErr = s.ResolveErr[1:]
		if err != nil {
			return nil, err
		}
	}
	if s.Account == nil {
		return nil, ErrNotFound
	}
	return s.Account, nil
}

func (s *Scripted) FetchPage(ctx context.Context, accountID, cursor string) (*Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.Cursors = append(s.Cursors, cursor)
	if len(s.Steps) == 0 {
		return &Page{}, nil
	}
	step := s.Steps[0]
	s.Steps = s.Steps[1:]
	return step.Page, step.Err
}

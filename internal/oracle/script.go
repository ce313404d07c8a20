package oracle

import (
	"context"
	"strings"
	"sync"
)

// Disabled is the no-backend oracle. Every call reports
// ErrUnavailable, which pushes callers onto their deterministic
// fallbacks. Offline tools run with it for full reproducibility.
type Disabled struct{}

func (Disabled) Complete(context.Context, string) (string, error) {
	return "", ErrUnavailable
}

type Rule struct {
	Match string // substring of the prompt
	Reply string
}

// Script is a canned-response oracle for tests: rules are matched in
// order against the prompt, first hit wins, no hit means
// ErrUnavailable.
type Script struct {
	mu    sync.Mutex
	rules []Rule
	calls int
	fail  error
}

func NewScript(rules ...Rule) *Script {
	return &Script{rules: rules}
}

// Fail makes every subsequent call return err until reset with nil.
func (s *Script) Fail(err error) {
	s.mu.Lock()
	s.fail = err
	s.mu.Unlock()
}

func (s *Script) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *Script) Complete(_ context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail != nil {
		return "", s.fail
	}
	for _, r := range s.rules {
		if strings.Contains(prompt, r.Match) {
			return r.Reply, nil
		}
	}
	return "", ErrUnavailable
}

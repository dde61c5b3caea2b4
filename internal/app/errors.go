package app

import (
	"sort"
	"sync"
)

// Domain groups user-facing errors.
type Domain string

const (
	DomainAuth  Domain = "auth"
	DomainLists Domain = "lists"
	DomainTasks Domain = "tasks"
	DomainSync  Domain = "sync"
)

// ErrorBoard keeps the most recent error of each domain until the next
// action in that domain clears it.
type ErrorBoard struct {
	mu   sync.Mutex
	errs map[Domain]error
}

// NewErrorBoard returns an empty board.
func NewErrorBoard() *ErrorBoard {
	return &ErrorBoard{errs: make(map[Domain]error)}
}

// Set records err for d. A nil err clears d.
func (b *ErrorBoard) Set(d Domain, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.errs, d)
		return
	}
	b.errs[d] = err
}

// Clear forgets the error of d.
func (b *ErrorBoard) Clear(d Domain) {
	b.Set(d, nil)
}

// Get returns the error of d, or nil.
func (b *ErrorBoard) Get(d Domain) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.errs[d]
}

// Message returns the error text of d, or "".
func (b *ErrorBoard) Message(d Domain) string {
	if err := b.Get(d); err != nil {
		return err.Error()
	}
	return ""
}

// Domains returns the domains that currently hold an error, sorted.
func (b *ErrorBoard) Domains() []Domain {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Domain, 0, len(b.errs))
	for d := range b.errs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// track clears d, then records the outcome of an action in d.
func (b *ErrorBoard) track(d Domain, fn func() error) error {
	b.Clear(d)
	err := fn()
	if err != nil {
		b.Set(d, err)
	}
	return err
}

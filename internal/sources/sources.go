// Package sources dispatches polls to the adapter registered for a source
// type.
//
// Built-in adapters live in subpackages:
//
//   - gcal: Google Calendar events (type "calendar")
//   - lms: Canvas-style course assignments (type "lms")
//   - filesrc: a local directory of assignment files (type "file")
//
// Adapters are stateless with respect to the engine. Every poll receives the
// source account, and connection details are read from acct.Details.
package sources

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mschirtzinger/tasksync/internal/schema"
)

// ErrUnknownType is returned when no adapter handles a source type.
var ErrUnknownType = errors.New("unknown source type")

// Adapter polls one kind of external source.
type Adapter interface {
	// Type is the source type this adapter handles.
	Type() schema.SourceType

	// Poll returns the assignments currently visible in the source.
	Poll(ctx context.Context, acct schema.SourceAccount) ([]schema.RawAssignment, error)

	// ValidateDetails checks connection details before an account is stored.
	ValidateDetails(details map[string]string) error
}

// Registry maps source types to adapters. It implements the poller used by
// the reconciler.
type Registry struct {
	mu       sync.RWMutex
	adapters map[schema.SourceType]Adapter
}

// NewRegistry creates a registry with the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[schema.SourceType]Adapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces the adapter for a.Type().
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Type()] = a
}

// Lookup returns the adapter for typ.
func (r *Registry) Lookup(typ schema.SourceType) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[typ]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownType, typ)
	}
	return a, nil
}

// Types lists registered source types in sorted order.
func (r *Registry) Types() []schema.SourceType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]schema.SourceType, 0, len(r.adapters))
	for t := range r.adapters {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Poll dispatches to the adapter for acct.Type.
func (r *Registry) Poll(ctx context.Context, acct schema.SourceAccount) ([]schema.RawAssignment, error) {
	a, err := r.Lookup(acct.Type)
	if err != nil {
		return nil, err
	}
	return a.Poll(ctx, acct)
}

// ValidateDetails checks details with the adapter for typ.
func (r *Registry) ValidateDetails(typ schema.SourceType, details map[string]string) error {
	a, err := r.Lookup(typ)
	if err != nil {
		return err
	}
	if err := a.ValidateDetails(details); err != nil {
		return fmt.Errorf("invalid %s details: %w", typ, err)
	}
	return nil
}

// RequireDetails returns an error naming every key that is missing or blank.
func RequireDetails(details map[string]string, keys ...string) error {
	var missing []string
	for _, k := range keys {
		if strings.TrimSpace(details[k]) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required details: %s", strings.Join(missing, ", "))
	}
	return nil
}

package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mschirtzinger/tasksync/internal/reconcile"
	"github.com/mschirtzinger/tasksync/internal/schema"
)

// ConnectSource stores a new source account for the session owner and runs
// its first pass immediately. A failed first pass does not undo the
// connection: the account is returned with its error status and the failure
// is kept on the sync board.
func (s *Session) ConnectSource(ctx context.Context, typ schema.SourceType, name string, details map[string]string) (*schema.SourceAccount, error) {
	var acct *schema.SourceAccount
	err := s.errors.track(DomainSync, func() error {
		if err := s.registry.ValidateDetails(typ, details); err != nil {
			return fmt.Errorf("invalid %s details: %w", typ, err)
		}

		acct = &schema.SourceAccount{
			ID:      uuid.NewString(),
			Owner:   s.owner,
			Type:    typ,
			Name:    strings.TrimSpace(name),
			Details: details,
			Status:  schema.StatusConnected,
		}
		acct.CreatedAt = s.now()
		acct.UpdatedAt = acct.CreatedAt
		if err := acct.Validate(); err != nil {
			return err
		}
		if err := s.db.CreateSource(ctx, acct); err != nil {
			return fmt.Errorf("failed to store source: %w", err)
		}
		s.logger.Info().Str("source", acct.ID).Str("type", string(typ)).Msg("source connected")
		return nil
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.scheduler.SyncNow(ctx, acct.ID); err != nil {
		s.logger.Warn().Err(err).Str("source", acct.ID).Msg("initial sync failed")
		s.errors.Set(DomainSync, fmt.Errorf("connected %s but the first sync failed: %w", acct.Name, err))
	}

	if fresh, err := s.db.GetSource(ctx, acct.ID); err == nil {
		acct = fresh
	}
	return acct, nil
}

// DisconnectSource removes a source account and all of its mappings once no
// pass for it is running. Tasks already created stay.
func (s *Session) DisconnectSource(ctx context.Context, id string) error {
	return s.errors.track(DomainSync, func() error {
		if _, err := s.ownedSource(ctx, id); err != nil {
			return err
		}
		err := s.scheduler.Exclusive(id, func() error {
			return s.db.DeleteSource(ctx, id)
		})
		if err != nil {
			return fmt.Errorf("failed to disconnect %s: %w", id, err)
		}
		s.logger.Info().Str("source", id).Msg("source disconnected")
		return nil
	})
}

// Sources lists the owner's source accounts.
func (s *Session) Sources(ctx context.Context) ([]*schema.SourceAccount, error) {
	var out []*schema.SourceAccount
	err := s.errors.track(DomainSync, func() error {
		var err error
		out, err = s.db.ListSources(ctx, s.owner)
		return err
	})
	return out, err
}

// AssignmentsForSource returns the ids of tasks created from a source.
func (s *Session) AssignmentsForSource(ctx context.Context, id string) ([]string, error) {
	var out []string
	err := s.errors.track(DomainSync, func() error {
		if _, err := s.ownedSource(ctx, id); err != nil {
			return err
		}
		var err error
		out, err = s.db.AssignmentsForSource(ctx, id)
		return err
	})
	return out, err
}

// LookupTask returns the task created for an assignment of a source. ok is
// false when the assignment has not been synced.
func (s *Session) LookupTask(ctx context.Context, sourceID, externalID string) (taskID string, ok bool, err error) {
	err = s.errors.track(DomainSync, func() error {
		if _, err := s.ownedSource(ctx, sourceID); err != nil {
			return err
		}
		var lerr error
		taskID, ok, lerr = s.db.LookupInternalID(ctx, sourceID, externalID)
		return lerr
	})
	return taskID, ok, err
}

// SyncSource runs one pass for a source now. Items that failed inside an
// otherwise complete pass are reported on the sync board but not returned as
// an error.
func (s *Session) SyncSource(ctx context.Context, id string) (*reconcile.Run, error) {
	var run *reconcile.Run
	err := s.errors.track(DomainSync, func() error {
		var err error
		run, err = s.scheduler.SyncNow(ctx, id)
		return err
	})
	if err == nil && run != nil {
		if failed := run.FailedOutcomes(); len(failed) > 0 {
			s.errors.Set(DomainSync, fmt.Errorf("%d of %d assignments failed: %w", len(failed), len(run.Outcomes), failed[0].Err))
		}
	}
	return run, err
}

// SyncAll runs one pass over every source of the owner.
func (s *Session) SyncAll(ctx context.Context) ([]*reconcile.Run, error) {
	var runs []*reconcile.Run
	err := s.errors.track(DomainSync, func() error {
		var err error
		runs, err = s.scheduler.SyncAll(ctx)
		return err
	})
	return runs, err
}

func (s *Session) ownedSource(ctx context.Context, id string) (*schema.SourceAccount, error) {
	acct, err := s.db.GetSource(ctx, id)
	if err != nil {
		return nil, err
	}
	if acct.Owner != s.owner {
		return nil, fmt.Errorf("source %s: %w", id, errNotOwner)
	}
	return acct, nil
}

var errNotOwner = errors.New("belongs to another user")

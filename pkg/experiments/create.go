package experiments

import (
	"context"
	"fmt"

	"github.com/cohorta/cohorta/pkg/experiment"
	"github.com/cohorta/cohorta/pkg/eventlog"
)

// CreateExperiment validates and persists a new experiment, returning its
// minted id. On any failure past the first write, the already committed
// steps are undone in reverse so no trace of the experiment remains
// visible.
func (s *Service) CreateExperiment(ctx context.Context, n *experiment.NewExperiment, user experiment.UserInfo) (string, error) {
	if err := experiment.ValidateNew(n); err != nil {
		return "", err
	}

	unlock := s.locks.lock(createKey(n.ApplicationName, n.Label))
	defer unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	now := s.now()

	// 1. primary row (mints the id)
	id, err := s.primary.CreateExperiment(ctx, n, now)
	if err != nil {
		return "", fmt.Errorf("create experiment: %w", err)
	}

	// Compensation ignores cancellation: once it starts, it finishes.
	comp := context.WithoutCancel(ctx)

	// 2. priority list
	if err := s.priorities.Append(ctx, n.ApplicationName, id); err != nil {
		s.compensate(comp, "append to priority list", func(ctx context.Context) error {
			return s.primary.DeleteExperiment(ctx, n)
		})
		return "", fmt.Errorf("append to priority list: %w", err)
	}

	// 3. mirror row
	if _, err := s.secondary.CreateExperiment(ctx, n, now); err != nil {
		s.compensate(comp, "create mirror row", func(ctx context.Context) error {
			return s.priorities.Remove(ctx, n.ApplicationName, id)
		}, func(ctx context.Context) error {
			return s.primary.DeleteExperiment(ctx, n)
		})
		return "", fmt.Errorf("create mirror row: %w", err)
	}

	// 4. primary lookup indices
	if err := s.primary.CreateIndices(ctx, n); err != nil {
		s.compensate(comp, "create indices", func(ctx context.Context) error {
			return s.priorities.Remove(ctx, n.ApplicationName, id)
		}, func(ctx context.Context) error {
			return s.primary.DeleteExperiment(ctx, n)
		}, func(ctx context.Context) error {
			return s.secondary.DeleteExperiment(ctx, n)
		})
		return "", fmt.Errorf("create indices: %w", err)
	}

	// 5. best-effort event
	s.events.Post(eventlog.ExperimentCreateEvent{User: user, Experiment: n})

	s.logger.Info("experiment created",
		"id", id, "application", n.ApplicationName, "label", n.Label)
	return id, nil
}

// compensate runs undo steps in order, logging failures. A failed undo
// never masks the original error; it leaves an inconsistency for the
// reconciliation job and is logged loudly instead.
func (s *Service) compensate(ctx context.Context, failedStep string, undos ...func(context.Context) error) {
	for _, undo := range undos {
		if err := undo(ctx); err != nil {
			s.logger.Error("compensation step failed",
				"after", failedStep, "error", err)
		}
	}
}

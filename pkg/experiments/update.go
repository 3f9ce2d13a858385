package experiments

import (
	"context"
	"fmt"

	"github.com/cohorta/cohorta/pkg/experiment"
	"github.com/cohorta/cohorta/pkg/eventlog"
	"github.com/cohorta/cohorta/pkg/rules"
)

// UpdateExperiment applies a partial update. Every check runs before the
// first store write; after the primary accepts, a mirror failure reverts
// the primary to the pre-call row. The returned experiment is the stored
// form — for a transition to DELETED that is the tombstone view the caller
// will not be able to read back.
func (s *Service) UpdateExperiment(ctx context.Context, id string, patch *experiment.Patch, user experiment.UserInfo) (*experiment.Experiment, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	now := s.now()

	current, err := s.primary.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.checkStateTransition(ctx, current, patch); err != nil {
		return nil, err
	}
	if err := checkIllegalUpdate(current, patch); err != nil {
		return nil, err
	}
	if err := checkIllegalTerminatedUpdate(current, patch); err != nil {
		return nil, err
	}
	if err := checkIllegalPausedRunningUpdate(current, patch, now); err != nil {
		return nil, err
	}

	updated, changes, dirty := patch.Apply(current)
	if !dirty {
		return current, nil
	}
	updated.ModificationTime = now

	if err := experiment.Validate(updated); err != nil {
		return nil, err
	}

	// Compile before any store write so a bad rule is a pure validation
	// failure. The compiled form is installed only after both stores accept.
	ruleChanged := patch.RuleChanged(current)
	var compiled *rules.CompiledRule
	if ruleChanged && updated.Rule != "" {
		compiled, err = s.compiler.Compile(updated.Rule)
		if err != nil {
			return nil, err
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stored, err := s.primary.UpdateExperiment(ctx, updated)
	if err != nil {
		return nil, fmt.Errorf("update experiment: %w", err)
	}

	if _, err := s.secondary.UpdateExperiment(ctx, updated); err != nil {
		comp := context.WithoutCancel(ctx)
		s.compensate(comp, "update mirror row", func(ctx context.Context) error {
			_, rerr := s.primary.UpdateExperiment(ctx, current)
			return rerr
		})
		return nil, fmt.Errorf("update mirror row: %w", err)
	}

	if updated.ApplicationName != current.ApplicationName {
		if err := s.priorities.Remove(ctx, current.ApplicationName, id); err != nil {
			return nil, fmt.Errorf("move priority entry: %w", err)
		}
		if err := s.priorities.Append(ctx, updated.ApplicationName, id); err != nil {
			return nil, fmt.Errorf("move priority entry: %w", err)
		}
	}

	if ruleChanged {
		s.updateSegmentationRule(id, updated.Rule, compiled)
	}

	// DRAFT edits are not audited.
	if updated.State != experiment.StateDraft {
		if err := s.primary.LogExperimentChanges(ctx, id, changes, now); err != nil {
			return nil, fmt.Errorf("log experiment changes: %w", err)
		}
		for _, c := range changes {
			s.events.Post(eventlog.ExperimentChangeEvent{
				User:          user,
				Experiment:    stored,
				AttributeName: c.AttributeName,
				OldValue:      c.OldValue,
				NewValue:      c.NewValue,
			})
		}
	}

	if updated.State == experiment.StateTerminated || updated.State == experiment.StateDeleted {
		if err := s.priorities.Remove(ctx, updated.ApplicationName, id); err != nil {
			return nil, fmt.Errorf("remove priority entry: %w", err)
		}
		if err := s.pages.ErasePageData(ctx, updated.ApplicationName, id, user); err != nil {
			return nil, fmt.Errorf("erase page data: %w", err)
		}
	}

	return stored, nil
}

// updateSegmentationRule installs or clears the cached rule after both
// stores hold the new expression.
func (s *Service) updateSegmentationRule(id, rule string, compiled *rules.CompiledRule) {
	old := s.ruleCache.Get(id)
	oldSource := ""
	if old != nil {
		oldSource = old.Source()
	}
	if rule != "" {
		s.ruleCache.Set(id, compiled)
		s.logger.Debug("segmentation rule updated",
			"id", id, "old", oldSource, "new", rule)
	} else {
		s.ruleCache.Clear(id)
		s.logger.Debug("segmentation rule cleared", "id", id, "old", oldSource)
	}
}

// checkStateTransition validates the desired transition and, for
// DRAFT -> RUNNING, sanity-checks the bucket list before the experiment
// goes live.
func (s *Service) checkStateTransition(ctx context.Context, current *experiment.Experiment, patch *experiment.Patch) error {
	if patch.State == nil || *patch.State == current.State {
		return nil
	}
	if err := experiment.ValidateStateTransition(current.State, *patch.State); err != nil {
		return err
	}
	if current.State == experiment.StateDraft && *patch.State == experiment.StateRunning {
		list, err := s.buckets.GetBuckets(ctx, current.ID)
		if err != nil {
			return fmt.Errorf("%w: bucket list: %v", experiment.ErrInvalidArgument, err)
		}
		if err := experiment.ValidateBuckets(list); err != nil {
			return err
		}
	}
	return nil
}

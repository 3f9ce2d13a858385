package experiments

import (
	"fmt"
	"time"

	"github.com/cohorta/cohorta/pkg/experiment"
)

// checkIllegalUpdate rejects patches touching the service-owned fields:
// id, creation time and modification time never change through a patch.
func checkIllegalUpdate(current *experiment.Experiment, patch *experiment.Patch) error {
	if patch.ID != nil && *patch.ID != current.ID {
		return fmt.Errorf("%w: experiment id cannot change", experiment.ErrIllegalUpdate)
	}
	if patch.CreationTime != nil && !patch.CreationTime.Equal(current.CreationTime) {
		return fmt.Errorf("%w: creation time cannot change", experiment.ErrIllegalUpdate)
	}
	if patch.ModificationTime != nil && !patch.ModificationTime.Equal(current.ModificationTime) {
		return fmt.Errorf("%w: modification time cannot change", experiment.ErrIllegalUpdate)
	}
	return nil
}

// checkIllegalTerminatedUpdate enforces that a TERMINATED experiment only
// accepts description edits (and the transition to DELETED, which the
// state-machine check has already admitted).
func checkIllegalTerminatedUpdate(current *experiment.Experiment, patch *experiment.Patch) error {
	if current.State != experiment.StateTerminated {
		return nil
	}

	terminated := func(field string) error {
		return fmt.Errorf("%w: cannot change %s in TERMINATED state",
			experiment.ErrIllegalUpdate, field)
	}

	if patch.ApplicationName != nil && *patch.ApplicationName != current.ApplicationName {
		return terminated("application name")
	}
	if patch.Label != nil && *patch.Label != current.Label {
		return terminated("label")
	}
	if patch.StartTime != nil && !patch.StartTime.Equal(current.StartTime) {
		return terminated("start time")
	}
	if patch.EndTime != nil && !patch.EndTime.Equal(current.EndTime) {
		return terminated("end time")
	}
	if patch.SamplingPercent != nil && *patch.SamplingPercent != current.SamplingPercent {
		return terminated("sampling percent")
	}
	if patch.Rule != nil && *patch.Rule != current.Rule {
		return terminated("rule")
	}
	if patch.IsPersonalizationEnabled != nil && *patch.IsPersonalizationEnabled != current.IsPersonalizationEnabled {
		return terminated("personalization")
	}
	if patch.ModelName != nil && *patch.ModelName != current.ModelName {
		return terminated("model name")
	}
	if patch.ModelVersion != nil && *patch.ModelVersion != current.ModelVersion {
		return terminated("model version")
	}
	if patch.IsRapidExperiment != nil && *patch.IsRapidExperiment != current.IsRapidExperiment {
		return terminated("rapid experiment flag")
	}
	if patch.UserCap != nil && *patch.UserCap != current.UserCap {
		return terminated("user cap")
	}
	return nil
}

// checkIllegalPausedRunningUpdate enforces the live-state field locks:
// application name and label are frozen, and the time window may only move
// between future instants.
func checkIllegalPausedRunningUpdate(current *experiment.Experiment, patch *experiment.Patch, now time.Time) error {
	if current.State != experiment.StateRunning && current.State != experiment.StatePaused {
		return nil
	}

	if patch.ApplicationName != nil && *patch.ApplicationName != current.ApplicationName {
		return fmt.Errorf("%w: cannot change application name outside DRAFT state",
			experiment.ErrIllegalUpdate)
	}
	if patch.Label != nil && *patch.Label != current.Label {
		return fmt.Errorf("%w: cannot change label outside DRAFT state",
			experiment.ErrIllegalUpdate)
	}
	if patch.StartTime != nil && !patch.StartTime.Equal(current.StartTime) {
		if err := checkStartTime(current, patch, now); err != nil {
			return err
		}
	}
	if patch.EndTime != nil && !patch.EndTime.Equal(current.EndTime) {
		if err := checkEndTime(current, patch, now); err != nil {
			return err
		}
	}
	return nil
}

func checkStartTime(current *experiment.Experiment, patch *experiment.Patch, now time.Time) error {
	if patch.StartTime.Before(now) {
		return fmt.Errorf("%w: cannot set the start time to a value in the past",
			experiment.ErrIllegalUpdate)
	}
	if current.StartTime.Before(now) {
		return fmt.Errorf("%w: cannot move a start time that has already passed",
			experiment.ErrIllegalUpdate)
	}
	end := current.EndTime
	if patch.EndTime != nil {
		end = *patch.EndTime
	}
	if patch.StartTime.After(end) {
		return fmt.Errorf("%w: cannot move the start time beyond the end time",
			experiment.ErrIllegalUpdate)
	}
	return nil
}

func checkEndTime(current *experiment.Experiment, patch *experiment.Patch, now time.Time) error {
	if patch.EndTime.Before(now) {
		return fmt.Errorf("%w: cannot set the end time to a value in the past",
			experiment.ErrIllegalUpdate)
	}
	if current.EndTime.Before(now) {
		return fmt.Errorf("%w: cannot move an end time that has already passed",
			experiment.ErrIllegalUpdate)
	}
	start := current.StartTime
	if patch.StartTime != nil {
		start = *patch.StartTime
	}
	if patch.EndTime.Before(start) {
		return fmt.Errorf("%w: cannot move the end time before the start time",
			experiment.ErrIllegalUpdate)
	}
	return nil
}

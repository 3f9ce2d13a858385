package experiment

import "time"

// Patch is a partial update. A nil field means "no change requested"; a
// non-nil field is the desired value. ID, CreationTime and ModificationTime
// are carried only so the service can reject attempts to change them.
type Patch struct {
	State                    *State     `json:"state,omitempty"`
	Description              *string    `json:"description,omitempty"`
	SamplingPercent          *float64   `json:"sampling_percent,omitempty"`
	StartTime                *time.Time `json:"start_time,omitempty"`
	EndTime                  *time.Time `json:"end_time,omitempty"`
	IsPersonalizationEnabled *bool      `json:"is_personalization_enabled,omitempty"`
	ModelName                *string    `json:"model_name,omitempty"`
	ModelVersion             *string    `json:"model_version,omitempty"`
	IsRapidExperiment        *bool      `json:"is_rapid_experiment,omitempty"`
	UserCap                  *int64     `json:"user_cap,omitempty"`
	Rule                     *string    `json:"rule,omitempty"`
	Label                    *string    `json:"label,omitempty"`
	ApplicationName          *string    `json:"application_name,omitempty"`

	ID               *string    `json:"id,omitempty"`
	CreationTime     *time.Time `json:"creation_time,omitempty"`
	ModificationTime *time.Time `json:"modification_time,omitempty"`
}

// Apply overlays the set fields of the patch onto current and collects the
// attribute-level diff. It returns the merged experiment, the audit change
// list, and whether anything changed at all.
//
// Application name and label never enter the change list: they can only move
// in DRAFT and DRAFT changes are not audited. They still mark the patch
// dirty so the stores get updated.
func (p *Patch) Apply(current *Experiment) (*Experiment, []AuditInfo, bool) {
	updated := *current
	var changes []AuditInfo
	dirty := false

	if p.State != nil && *p.State != current.State {
		updated.State = *p.State
		changes = append(changes, AuditInfo{"state", current.State.String(), p.State.String()})
		dirty = true
	}
	if p.Description != nil && *p.Description != current.Description {
		updated.Description = *p.Description
		changes = append(changes, AuditInfo{"description", current.Description, *p.Description})
		dirty = true
	}
	if p.SamplingPercent != nil && *p.SamplingPercent != current.SamplingPercent {
		updated.SamplingPercent = *p.SamplingPercent
		changes = append(changes, AuditInfo{"sampling_percent",
			formatPercent(current.SamplingPercent), formatPercent(*p.SamplingPercent)})
		dirty = true
	}
	if p.StartTime != nil && !p.StartTime.Equal(current.StartTime) {
		updated.StartTime = *p.StartTime
		changes = append(changes, AuditInfo{"start_time",
			formatTime(current.StartTime), formatTime(*p.StartTime)})
		dirty = true
	}
	if p.EndTime != nil && !p.EndTime.Equal(current.EndTime) {
		updated.EndTime = *p.EndTime
		changes = append(changes, AuditInfo{"end_time",
			formatTime(current.EndTime), formatTime(*p.EndTime)})
		dirty = true
	}
	if p.IsPersonalizationEnabled != nil && *p.IsPersonalizationEnabled != current.IsPersonalizationEnabled {
		updated.IsPersonalizationEnabled = *p.IsPersonalizationEnabled
		changes = append(changes, AuditInfo{"isPersonalizationEnabled",
			formatBool(current.IsPersonalizationEnabled), formatBool(*p.IsPersonalizationEnabled)})
		dirty = true
	}
	if p.ModelName != nil && *p.ModelName != current.ModelName {
		updated.ModelName = *p.ModelName
		changes = append(changes, AuditInfo{"modelName", current.ModelName, *p.ModelName})
		dirty = true
	}
	if p.ModelVersion != nil && *p.ModelVersion != current.ModelVersion {
		updated.ModelVersion = *p.ModelVersion
		changes = append(changes, AuditInfo{"modelVersion", current.ModelVersion, *p.ModelVersion})
		dirty = true
	}
	if p.IsRapidExperiment != nil && *p.IsRapidExperiment != current.IsRapidExperiment {
		updated.IsRapidExperiment = *p.IsRapidExperiment
		changes = append(changes, AuditInfo{"isRapidExperiment",
			formatBool(current.IsRapidExperiment), formatBool(*p.IsRapidExperiment)})
		dirty = true
	}
	if p.UserCap != nil && *p.UserCap != current.UserCap {
		updated.UserCap = *p.UserCap
		changes = append(changes, AuditInfo{"userCap",
			formatInt(current.UserCap), formatInt(*p.UserCap)})
		dirty = true
	}
	if p.Rule != nil && *p.Rule != current.Rule {
		updated.Rule = *p.Rule
		changes = append(changes, AuditInfo{"rule", current.Rule, *p.Rule})
		dirty = true
	}

	// Not audited, see above.
	if p.Label != nil && *p.Label != current.Label {
		updated.Label = *p.Label
		dirty = true
	}
	if p.ApplicationName != nil && *p.ApplicationName != current.ApplicationName {
		updated.ApplicationName = *p.ApplicationName
		dirty = true
	}

	return &updated, changes, dirty
}

// RuleChanged reports whether the patch changes the segmentation rule,
// including setting a first rule or clearing an existing one.
func (p *Patch) RuleChanged(current *Experiment) bool {
	return p.Rule != nil && *p.Rule != current.Rule
}

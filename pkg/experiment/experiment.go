package experiment

import (
	"strconv"
	"time"
)

// Experiment is the persisted form of an A/B experiment.
type Experiment struct {
	// Opaque unique id, minted by the primary store on create.
	ID string `json:"id"`

	ApplicationName string `json:"application_name"`
	Label           string `json:"label"`
	Description     string `json:"description"`

	State State `json:"state"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	// Fraction of eligible traffic in [0,1].
	SamplingPercent float64 `json:"sampling_percent"`

	// Segmentation rule expression. Empty means everyone is eligible.
	Rule string `json:"rule,omitempty"`

	IsPersonalizationEnabled bool   `json:"is_personalization_enabled"`
	ModelName                string `json:"model_name,omitempty"`
	ModelVersion             string `json:"model_version,omitempty"`

	IsRapidExperiment bool  `json:"is_rapid_experiment"`
	UserCap           int64 `json:"user_cap,omitempty"`

	// Service-owned; callers cannot set or change these.
	CreationTime     time.Time `json:"creation_time"`
	ModificationTime time.Time `json:"modification_time"`
}

// NewExperiment is the create request. The id is empty until the primary
// store mints one; compensation paths rely on it being filled in afterwards.
type NewExperiment struct {
	ID string `json:"id,omitempty"`

	ApplicationName string `json:"application_name"`
	Label           string `json:"label"`
	Description     string `json:"description"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	SamplingPercent float64 `json:"sampling_percent"`
	Rule            string  `json:"rule,omitempty"`

	IsPersonalizationEnabled bool   `json:"is_personalization_enabled"`
	ModelName                string `json:"model_name,omitempty"`
	ModelVersion             string `json:"model_version,omitempty"`

	IsRapidExperiment bool  `json:"is_rapid_experiment"`
	UserCap           int64 `json:"user_cap,omitempty"`
}

// Experiment builds the stored experiment for a create at the given instant.
// State starts at DRAFT; creation and modification time are both stamped.
func (n *NewExperiment) Experiment(at time.Time) *Experiment {
	return &Experiment{
		ID:                       n.ID,
		ApplicationName:          n.ApplicationName,
		Label:                    n.Label,
		Description:              n.Description,
		State:                    StateDraft,
		StartTime:                n.StartTime,
		EndTime:                  n.EndTime,
		SamplingPercent:          n.SamplingPercent,
		Rule:                     n.Rule,
		IsPersonalizationEnabled: n.IsPersonalizationEnabled,
		ModelName:                n.ModelName,
		ModelVersion:             n.ModelVersion,
		IsRapidExperiment:        n.IsRapidExperiment,
		UserCap:                  n.UserCap,
		CreationTime:             at,
		ModificationTime:         at,
	}
}

// UserInfo identifies the caller for audit and event attribution.
type UserInfo struct {
	Username  string `json:"username"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email,omitempty"`
}

// AuditInfo is one attribute-level change recorded by an update.
type AuditInfo struct {
	AttributeName string `json:"attribute"`
	OldValue      string `json:"old"`
	NewValue      string `json:"new"`
}

// Audit string forms: timestamps as RFC 3339 UTC, booleans lowercase,
// percentages as plain decimals.

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatBool(b bool) string {
	return strconv.FormatBool(b)
}

func formatPercent(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatInt(i int64) string {
	return strconv.FormatInt(i, 10)
}

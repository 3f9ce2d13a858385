package boltstore

import (
	"fmt"
	"time"

	"github.com/hamba/avro/v2"

	"github.com/cohorta/cohorta/pkg/experiment"
)

// Rows are avro-encoded so the stored form is schema-checked on both ends.
// Timestamps are microseconds since epoch.
const rowSchemaJSON = `{
  "type": "record",
  "name": "ExperimentRow",
  "namespace": "cohorta.store",
  "fields": [
    {"name": "id", "type": "string"},
    {"name": "application_name", "type": "string"},
    {"name": "label", "type": "string"},
    {"name": "description", "type": "string"},
    {"name": "state", "type": "string"},
    {"name": "start_micros", "type": "long"},
    {"name": "end_micros", "type": "long"},
    {"name": "sampling_percent", "type": "double"},
    {"name": "rule", "type": "string"},
    {"name": "is_personalization_enabled", "type": "boolean"},
    {"name": "model_name", "type": "string"},
    {"name": "model_version", "type": "string"},
    {"name": "is_rapid_experiment", "type": "boolean"},
    {"name": "user_cap", "type": "long"},
    {"name": "created_micros", "type": "long"},
    {"name": "modified_micros", "type": "long"}
  ]
}`

var rowSchema = avro.MustParse(rowSchemaJSON)

type row struct {
	ID                       string  `avro:"id"`
	ApplicationName          string  `avro:"application_name"`
	Label                    string  `avro:"label"`
	Description              string  `avro:"description"`
	State                    string  `avro:"state"`
	StartMicros              int64   `avro:"start_micros"`
	EndMicros                int64   `avro:"end_micros"`
	SamplingPercent          float64 `avro:"sampling_percent"`
	Rule                     string  `avro:"rule"`
	IsPersonalizationEnabled bool    `avro:"is_personalization_enabled"`
	ModelName                string  `avro:"model_name"`
	ModelVersion             string  `avro:"model_version"`
	IsRapidExperiment        bool    `avro:"is_rapid_experiment"`
	UserCap                  int64   `avro:"user_cap"`
	CreatedMicros            int64   `avro:"created_micros"`
	ModifiedMicros           int64   `avro:"modified_micros"`
}

func encodeRow(e *experiment.Experiment) ([]byte, error) {
	r := row{
		ID:                       e.ID,
		ApplicationName:          e.ApplicationName,
		Label:                    e.Label,
		Description:              e.Description,
		State:                    e.State.String(),
		StartMicros:              e.StartTime.UnixMicro(),
		EndMicros:                e.EndTime.UnixMicro(),
		SamplingPercent:          e.SamplingPercent,
		Rule:                     e.Rule,
		IsPersonalizationEnabled: e.IsPersonalizationEnabled,
		ModelName:                e.ModelName,
		ModelVersion:             e.ModelVersion,
		IsRapidExperiment:        e.IsRapidExperiment,
		UserCap:                  e.UserCap,
		CreatedMicros:            e.CreationTime.UnixMicro(),
		ModifiedMicros:           e.ModificationTime.UnixMicro(),
	}
	data, err := avro.Marshal(rowSchema, r)
	if err != nil {
		return nil, fmt.Errorf("marshal row: %w", err)
	}
	return data, nil
}

func decodeRow(data []byte) (*experiment.Experiment, error) {
	var r row
	if err := avro.Unmarshal(rowSchema, data, &r); err != nil {
		return nil, fmt.Errorf("unmarshal row: %w", err)
	}
	state, err := experiment.ParseState(r.State)
	if err != nil {
		return nil, fmt.Errorf("row state: %w", err)
	}
	return &experiment.Experiment{
		ID:                       r.ID,
		ApplicationName:          r.ApplicationName,
		Label:                    r.Label,
		Description:              r.Description,
		State:                    state,
		StartTime:                time.UnixMicro(r.StartMicros).UTC(),
		EndTime:                  time.UnixMicro(r.EndMicros).UTC(),
		SamplingPercent:          r.SamplingPercent,
		Rule:                     r.Rule,
		IsPersonalizationEnabled: r.IsPersonalizationEnabled,
		ModelName:                r.ModelName,
		ModelVersion:             r.ModelVersion,
		IsRapidExperiment:        r.IsRapidExperiment,
		UserCap:                  r.UserCap,
		CreationTime:             time.UnixMicro(r.CreatedMicros).UTC(),
		ModificationTime:         time.UnixMicro(r.ModifiedMicros).UTC(),
	}, nil
}

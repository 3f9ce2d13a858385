package experiment

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validNew() *NewExperiment {
	return &NewExperiment{
		ApplicationName: "shop",
		Label:           "cart-cta",
		SamplingPercent: 0.5,
		StartTime:       time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC),
		EndTime:         time.Date(2099, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestValidateNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(n *NewExperiment)
		wantErr error
	}{
		{"valid", func(n *NewExperiment) {}, nil},
		{"missing_application", func(n *NewExperiment) { n.ApplicationName = "" }, ErrInvalidArgument},
		{"bad_application", func(n *NewExperiment) { n.ApplicationName = "9shop" }, ErrInvalidIdentifier},
		{"bad_label", func(n *NewExperiment) { n.Label = "cart cta" }, ErrInvalidIdentifier},
		{"empty_label", func(n *NewExperiment) { n.Label = "" }, ErrInvalidIdentifier},
		{"sampling_negative", func(n *NewExperiment) { n.SamplingPercent = -0.1 }, ErrInvalidArgument},
		{"sampling_above_one", func(n *NewExperiment) { n.SamplingPercent = 1.5 }, ErrInvalidArgument},
		{"times_inverted", func(n *NewExperiment) {
			n.StartTime, n.EndTime = n.EndTime, n.StartTime
		}, ErrInvalidArgument},
		{"times_equal", func(n *NewExperiment) { n.EndTime = n.StartTime }, ErrInvalidArgument},
		{"missing_times", func(n *NewExperiment) {
			n.StartTime, n.EndTime = time.Time{}, time.Time{}
		}, ErrInvalidArgument},
		{"personalization_without_model", func(n *NewExperiment) {
			n.IsPersonalizationEnabled = true
		}, ErrInvalidArgument},
		{"rapid_without_cap", func(n *NewExperiment) {
			n.IsRapidExperiment = true
		}, ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := validNew()
			tt.mutate(n)
			err := ValidateNew(n)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v, want %v", err, tt.wantErr)
		})
	}
}

func TestValidate_MergedExperiment(t *testing.T) {
	t.Parallel()

	e := validNew().Experiment(time.Date(2098, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, Validate(e))

	e.SamplingPercent = 2
	err := Validate(e)
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	e = validNew().Experiment(time.Date(2098, 1, 1, 0, 0, 0, 0, time.UTC))
	e.IsPersonalizationEnabled = true
	e.ModelName = "ranker"
	require.NoError(t, Validate(e))
}

func TestValidateBuckets(t *testing.T) {
	t.Parallel()

	control := Bucket{Label: "control", Allocation: 0.5, IsControl: true}
	treat := Bucket{Label: "variant", Allocation: 0.5}

	tests := []struct {
		name    string
		list    BucketList
		wantErr error
	}{
		{"valid_two_arms", BucketList{Buckets: []Bucket{control, treat}}, nil},
		{"valid_epsilon", BucketList{Buckets: []Bucket{
			{Label: "control", Allocation: 1.0 / 3, IsControl: true},
			{Label: "b", Allocation: 1.0 / 3},
			{Label: "c", Allocation: 1.0 / 3},
		}}, nil},
		{"empty", BucketList{}, ErrInvalidArgument},
		{"sum_short", BucketList{Buckets: []Bucket{
			{Label: "control", Allocation: 0.4, IsControl: true},
			{Label: "variant", Allocation: 0.5},
		}}, ErrInvalidArgument},
		{"duplicate_labels", BucketList{Buckets: []Bucket{
			control, {Label: "control", Allocation: 0.5},
		}}, ErrInvalidArgument},
		{"no_control", BucketList{Buckets: []Bucket{
			{Label: "a", Allocation: 0.5}, {Label: "b", Allocation: 0.5},
		}}, ErrInvalidArgument},
		{"two_controls", BucketList{Buckets: []Bucket{
			control, {Label: "variant", Allocation: 0.5, IsControl: true},
		}}, ErrInvalidArgument},
		{"bad_label", BucketList{Buckets: []Bucket{
			{Label: "bad label", Allocation: 1, IsControl: true},
		}}, ErrInvalidIdentifier},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBuckets(tt.list)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

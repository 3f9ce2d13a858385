package experiment

import (
	"fmt"
	"math"
)

// Allocation percentages must sum to 1 within this tolerance.
const allocationEpsilon = 1e-9

// Bucket is one arm of an experiment.
type Bucket struct {
	Label       string  `json:"label"`
	Allocation  float64 `json:"allocation"`
	IsControl   bool    `json:"is_control"`
	Description string  `json:"description,omitempty"`
	Payload     string  `json:"payload,omitempty"`
}

// BucketList is the full set of arms for one experiment.
type BucketList struct {
	Buckets []Bucket `json:"buckets"`
}

// ValidateBuckets is the sanity check run on the DRAFT -> RUNNING
// transition: at least one bucket, unique labels, exactly one control,
// allocations summing to 1.
func ValidateBuckets(list BucketList) error {
	if len(list.Buckets) == 0 {
		return fmt.Errorf("%w: experiment has no buckets", ErrInvalidArgument)
	}

	var sum float64
	controls := 0
	seen := make(map[string]struct{}, len(list.Buckets))
	for _, b := range list.Buckets {
		if !ValidIdentifier(b.Label) {
			return fmt.Errorf("%w: bucket label %q", ErrInvalidIdentifier, b.Label)
		}
		if _, dup := seen[b.Label]; dup {
			return fmt.Errorf("%w: duplicate bucket label %q", ErrInvalidArgument, b.Label)
		}
		seen[b.Label] = struct{}{}
		if b.Allocation < 0 || b.Allocation > 1 {
			return fmt.Errorf("%w: bucket %q allocation %v not in [0,1]",
				ErrInvalidArgument, b.Label, b.Allocation)
		}
		if b.IsControl {
			controls++
		}
		sum += b.Allocation
	}

	if controls != 1 {
		return fmt.Errorf("%w: expected exactly one control bucket, got %d", ErrInvalidArgument, controls)
	}
	if math.Abs(sum-1) > allocationEpsilon {
		return fmt.Errorf("%w: bucket allocations sum to %v, want 1", ErrInvalidArgument, sum)
	}
	return nil
}

package experiments

import (
	"sync"

	"github.com/twmb/murmur3"
)

// lockStripes bounds the lock table. Two different keys may share a stripe;
// that only serializes more than strictly necessary, never less.
const lockStripes = 64

// stripedLocks serializes orchestrations per key. Updates key by
// experiment id, creates by the (application, label) pair, so the
// uniqueness check and the compensation sequence never race a sibling call
// on the same experiment.
type stripedLocks struct {
	stripes [lockStripes]sync.Mutex
}

func (l *stripedLocks) lock(key string) func() {
	m := &l.stripes[murmur3.Sum32([]byte(key))%lockStripes]
	m.Lock()
	return m.Unlock
}

// createKey builds the create-lock key for an (application, label) pair.
// Identifiers cannot contain NUL, so the join is unambiguous.
func createKey(appName, label string) string {
	return appName + "\x00" + label
}

package cohorta

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cohorta/cohorta/pkg/config"
	"github.com/cohorta/cohorta/pkg/store/boltstore"
)

func TestOpen_InvalidConfig(t *testing.T) {
	t.Parallel()

	_, _, err := Open(&config.Config{}, nil)
	assert.True(t, errors.Is(err, config.ErrNoPrimaryPath))

	_, _, err = Open(&config.Config{
		Primary: config.PrimaryConfig{Path: "/tmp/x.db"},
	}, nil)
	assert.True(t, errors.Is(err, config.ErrNoMirrorDSN))
}

// A failure partway through Open must release what was already opened: the
// primary's exclusive file lock is only free again if the error path closed
// the store.
func TestOpen_FailureReleasesOpenedStores(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	primaryPath := filepath.Join(dir, "experiments.db")

	_, _, err := Open(&config.Config{
		Primary: config.PrimaryConfig{Path: primaryPath},
		Mirror:  config.MirrorConfig{DSN: "not-a-dsn"},
		Buckets: config.BucketsConfig{Path: filepath.Join(dir, "buckets.db")},
	}, nil)
	require.Error(t, err)

	primary, err := boltstore.Open(primaryPath)
	require.NoError(t, err, "primary store still locked after failed Open")
	assert.NoError(t, primary.Close())
}

package buckets

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cohorta/cohorta/pkg/experiment"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "buckets.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_PutGetDelete(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	list := experiment.BucketList{Buckets: []experiment.Bucket{
		{Label: "control", Allocation: 0.5, IsControl: true},
		{Label: "variant", Allocation: 0.5},
	}}
	require.NoError(t, s.PutBuckets(ctx, "exp-1", list))

	got, err := s.GetBuckets(ctx, "exp-1")
	require.NoError(t, err)
	assert.Equal(t, list, got)

	// replace
	list.Buckets[1].Allocation = 0.4
	list.Buckets[0].Allocation = 0.6
	require.NoError(t, s.PutBuckets(ctx, "exp-1", list))
	got, err = s.GetBuckets(ctx, "exp-1")
	require.NoError(t, err)
	assert.Equal(t, 0.6, got.Buckets[0].Allocation)

	require.NoError(t, s.DeleteBuckets(ctx, "exp-1"))
	_, err = s.GetBuckets(ctx, "exp-1")
	assert.True(t, errors.Is(err, ErrNoBuckets))
}

func TestStore_GetMissing(t *testing.T) {
	s := openStore(t)

	_, err := s.GetBuckets(context.Background(), "ghost")
	assert.True(t, errors.Is(err, ErrNoBuckets))
}

package pages

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cohorta/cohorta/pkg/experiment"
)

func TestBinder_BindAndErase(t *testing.T) {
	t.Parallel()

	b := NewBinder()
	user := experiment.UserInfo{Username: "admin"}

	b.Bind("shop", "exp-1", []string{"checkout", "cart"})
	b.Bind("shop", "exp-2", []string{"home"})

	assert.Equal(t, []string{"checkout", "cart"}, b.Pages("shop", "exp-1"))

	require.NoError(t, b.ErasePageData(context.Background(), "shop", "exp-1", user))
	assert.Empty(t, b.Pages("shop", "exp-1"))
	assert.Equal(t, []string{"home"}, b.Pages("shop", "exp-2"))

	// erasing again, or erasing an unknown app, is a no-op
	require.NoError(t, b.ErasePageData(context.Background(), "shop", "exp-1", user))
	require.NoError(t, b.ErasePageData(context.Background(), "ghost", "exp-1", user))
}

func TestBinder_RebindReplaces(t *testing.T) {
	t.Parallel()

	b := NewBinder()
	b.Bind("shop", "exp-1", []string{"a"})
	b.Bind("shop", "exp-1", []string{"b", "c"})
	assert.Equal(t, []string{"b", "c"}, b.Pages("shop", "exp-1"))
}

func TestBinder_SnapshotIsolation(t *testing.T) {
	t.Parallel()

	b := NewBinder()
	b.Bind("shop", "exp-1", []string{"a"})
	snap := b.Pages("shop", "exp-1")
	b.Bind("shop", "exp-1", []string{"a", "b"})
	assert.Equal(t, []string{"a"}, snap)
}

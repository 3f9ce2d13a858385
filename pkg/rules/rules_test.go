package rules

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/cel-go/cel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompiler_Compile(t *testing.T) {
	t.Parallel()

	c, err := NewCompiler()
	require.NoError(t, err)

	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{"simple_equality", `country == "US"`, false},
		{"conjunction", `country == "US" && platform == "ios"`, false},
		{"attributes_map", `attributes["plan"] == "premium"`, false},
		{"membership", `country in ["US", "CA"]`, false},
		{"not_boolean", `country`, true},
		{"syntax_error", `country = "US"`, true},
		{"unknown_ident", `tier == "gold"`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := c.Compile(tt.expr)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrParse), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expr, rule.Source())
		})
	}
}

func TestCompiler_WithVariable(t *testing.T) {
	t.Parallel()

	c, err := NewCompiler(WithVariable("tier", cel.StringType))
	require.NoError(t, err)

	rule, err := c.Compile(`tier == "gold"`)
	require.NoError(t, err)

	ok, err := rule.Eligible(map[string]any{"tier": "gold"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCompiledRule_Eligible(t *testing.T) {
	t.Parallel()

	c, err := NewCompiler()
	require.NoError(t, err)

	rule, err := c.Compile(`country == "US" && attributes["plan"] == "premium"`)
	require.NoError(t, err)

	ok, err := rule.Eligible(map[string]any{
		"country":    "US",
		"attributes": map[string]any{"plan": "premium"},
	})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = rule.Eligible(map[string]any{
		"country":    "DE",
		"attributes": map[string]any{"plan": "premium"},
	})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_SetGetClear(t *testing.T) {
	t.Parallel()

	c, err := NewCompiler()
	require.NoError(t, err)
	rule, err := c.Compile(`country == "US"`)
	require.NoError(t, err)

	cache := NewCache()
	assert.Nil(t, cache.Get("exp-1"))

	cache.Set("exp-1", rule)
	assert.Same(t, rule, cache.Get("exp-1"))
	assert.Equal(t, 1, cache.Len())

	cache.Clear("exp-1")
	assert.Nil(t, cache.Get("exp-1"))
	assert.Equal(t, 0, cache.Len())

	// clearing an absent key is fine
	cache.Clear("exp-1")
}

func TestCache_Concurrent(t *testing.T) {
	t.Parallel()

	c, err := NewCompiler()
	require.NoError(t, err)
	rule, err := c.Compile(`logged_in`)
	require.NoError(t, err)

	cache := NewCache()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("exp-%d", i%4)
			for j := 0; j < 200; j++ {
				cache.Set(id, rule)
				_ = cache.Get(id)
				cache.Clear(id)
			}
		}(i)
	}
	wg.Wait()
}

package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildGuardContext(t *testing.T) {
	tests := []struct {
		name  string
		cache map[string]interface{}
	}{
		{
			name:  "extracts cache",
			cache: map[string]interface{}{"x": float64(2)},
		},
		{
			name:  "handles nil cache",
			cache: nil,
		},
		{
			name:  "handles empty cache",
			cache: map[string]interface{}{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := BuildGuardContext(tt.cache)
			_, hasCache := ctx["cache"]
			assert.True(t, hasCache, "cache key should always be present")
		})
	}
}

func TestBuildGuardContext_ValueAccess(t *testing.T) {
	cache := map[string]interface{}{
		"x":           float64(2),
		"retry_count": float64(1),
	}

	ctx := BuildGuardContext(cache)

	nested, ok := ctx["cache"].(map[string]interface{})
	assert.True(t, ok, "cache should be a map")
	assert.Equal(t, float64(2), nested["x"])

	// Flattened to the top level for convenience.
	assert.Equal(t, float64(2), ctx["x"])
	assert.Equal(t, float64(1), ctx["retry_count"])
}

func TestBuildGuardContext_TopLevelDoesNotOverrideCacheKey(t *testing.T) {
	cache := map[string]interface{}{
		"cache": "should not clobber the nested map",
	}

	ctx := BuildGuardContext(cache)

	nested, ok := ctx["cache"].(map[string]interface{})
	assert.True(t, ok, "cache key must remain the nested map, not the flattened value")
	assert.Equal(t, "should not clobber the nested map", nested["cache"])
}

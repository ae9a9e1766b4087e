package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageURL(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		page     int
		expected string
	}{
		{
			name:     "base with existing query",
			base:     "https://www.sahibinden.com/bmw-x5?sorting=date_desc",
			page:     0,
			expected: "https://www.sahibinden.com/bmw-x5?sorting=date_desc&pagingOffset=0",
		},
		{
			name:     "base without query",
			base:     "https://www.sahibinden.com/bmw-x5",
			page:     3,
			expected: "https://www.sahibinden.com/bmw-x5?pagingOffset=60",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := Target{Brand: "bmw", Model: "x5", BaseURL: tt.base}
			assert.Equal(t, tt.expected, target.PageURL(tt.page, 20))
		})
	}
}

func TestLoadDefaultCatalog(t *testing.T) {
	c, err := Load("", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, c.Targets)

	seen := make(map[string]bool)
	for _, target := range c.Targets {
		assert.NotEmpty(t, target.Brand)
		assert.NotEmpty(t, target.Model)
		assert.NotEmpty(t, target.BaseURL)
		assert.False(t, seen[target.Key()], "duplicate target %s", target.Key())
		seen[target.Key()] = true
	}
}

func TestLoadSkipsModels(t *testing.T) {
	c, err := Load("", []string{"model-y", "model-3"})
	require.NoError(t, err)

	for _, target := range c.Targets {
		assert.NotEqual(t, "model-y", target.Model)
		assert.NotEqual(t, "model-3", target.Model)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	data := `[{"brand":"audi","model":"a4","display_name":"A4","url":"https://www.sahibinden.com/audi-a4"}]`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	c, err := Load(path, nil)
	require.NoError(t, err)
	require.Len(t, c.Targets, 1)
	assert.Equal(t, "audi a4", c.Targets[0].Key())
}

func TestLoadRejectsIncompleteTarget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"brand":"audi"}]`), 0o644))

	_, err := Load(path, nil)
	assert.Error(t, err)
}

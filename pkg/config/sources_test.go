package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmaforge/forge/pkg/config"
)

func TestDefaultSources(t *testing.T) {
	sources := config.DefaultSources()
	require.Len(t, sources, 3)

	byID := map[string]config.SourceProfile{}
	for _, s := range sources {
		assert.True(t, s.Enabled, "source %s should default to enabled", s.ID)
		assert.True(t, s.Required, "source %s should default to required", s.ID)
		assert.NotEmpty(t, s.URL)
		byID[s.ID] = s
	}

	assert.Equal(t, "recall", byID["fda_recalls"].Category)
	assert.Equal(t, "shortage", byID["fda_shortages"].Category)
	assert.Equal(t, "warning_letter", byID["fda_warning_letters"].Category)
	assert.NotEmpty(t, byID["fda_recalls"].FallbackURLs)
}

func TestLoadSources_EmptyPathReturnsDefaults(t *testing.T) {
	sources, err := config.LoadSources("")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultSources(), sources)
}

func TestLoadSources_FromFile(t *testing.T) {
	yaml := `
sources:
  - id: fda_recalls
    name: FDA Drug Recalls
    category: recall
    enabled: true
    required: false
    url: https://example.test/enforcement.json
    cache_ttl_seconds: 300
  - id: fda_shortages
    name: FDA Drug Shortages
    category: shortage
    enabled: false
    required: false
    url: https://example.test/shortages.json
    fallback_urls:
      - https://example.test/shortages.html
`
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	sources, err := config.LoadSources(path)
	require.NoError(t, err)
	require.Len(t, sources, 2)

	assert.Equal(t, "fda_recalls", sources[0].ID)
	assert.False(t, sources[0].Required)
	assert.Equal(t, 5*time.Minute, sources[0].CacheTTL())

	assert.False(t, sources[1].Enabled)
	assert.Equal(t, []string{"https://example.test/shortages.html"}, sources[1].FallbackURLs)
	assert.Equal(t, 15*time.Minute, sources[1].CacheTTL(), "unset TTL falls back to 15m")
}

func TestLoadSources_Invalid(t *testing.T) {
	write := func(body string) string {
		path := filepath.Join(t.TempDir(), "sources.yaml")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		return path
	}

	_, err := config.LoadSources(write("sources: []"))
	assert.ErrorContains(t, err, "no sources")

	_, err = config.LoadSources(write("sources:\n  - id: x\n    url: https://e.test\n    category: bulletin"))
	assert.ErrorContains(t, err, "invalid category")

	_, err = config.LoadSources(write("sources:\n  - id: x\n    category: recall"))
	assert.ErrorContains(t, err, "url is required")

	_, err = config.LoadSources(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

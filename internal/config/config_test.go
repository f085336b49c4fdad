package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSystemConfigDefaults(t *testing.T) {
	path := writeTemp(t, "system.yaml", `
retry:
  max_attempts: 3
  base_delay_ms: 100
  max_delay_ms: 5000
  multiplier: 2.0
  retry_on_status: [429, 503]
  respect_retry_after: true
validation:
  strict_mode: true
  quarantine_enabled: true
  max_errors_per_batch: 10
chunking:
  chunk_days: 2
`)
	cfg, err := LoadSystemConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 2, cfg.Chunking.ChunkDays)
	assert.Equal(t, "dlq", cfg.Quarantine.BaseDir)
	assert.Equal(t, 30, cfg.Quarantine.RetentionDays)
	assert.True(t, cfg.Retry.IsRetryableStatus(429))
	assert.False(t, cfg.Retry.IsRetryableStatus(404))
}

func TestLoadSystemConfigInvalidRejected(t *testing.T) {
	path := writeTemp(t, "system.yaml", `
retry:
  max_attempts: 0
`)
	_, err := LoadSystemConfig(path)
	require.Error(t, err)
}

func TestJobSpecToJob(t *testing.T) {
	js := JobSpec{
		Name:       "es-ohlcv",
		Dataset:    "GLBX.MDP3",
		Schema:     "ohlcv",
		Symbols:    []string{"ES.c.0"},
		SymbolType: "continuous",
		StartDate:  "2024-01-15",
		EndDate:    "2024-01-16",
	}
	job, err := js.ToJob(nil)
	require.NoError(t, err)
	assert.Equal(t, 1, job.ChunkDays)
	assert.True(t, job.EndDate.After(job.StartDate))
}

func TestJobSpecRejectsInvertedDates(t *testing.T) {
	js := JobSpec{
		Name: "bad", Dataset: "X", Schema: "ohlcv", Symbols: []string{"A"},
		SymbolType: "native", StartDate: "2024-02-01", EndDate: "2024-01-01",
	}
	_, err := js.ToJob(nil)
	require.Error(t, err)
}

func TestLoadSecretsMissing(t *testing.T) {
	os.Unsetenv("DATABENTO_API_KEY")
	_, err := LoadVendorSecrets()
	require.Error(t, err)

	t.Setenv("DATABENTO_API_KEY", "secret")
	s, err := LoadVendorSecrets()
	require.NoError(t, err)
	assert.Equal(t, "secret", s.APIKey)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, 15, cfg.MaxPages)
	assert.Equal(t, 8000, cfg.SectionCap)
	assert.Equal(t, 120*time.Second, cfg.Ollama.Timeout)
	assert.Equal(t, 1, cfg.Ollama.Retries)
	assert.Equal(t, "research_metadata.json", cfg.Output.Records)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "enricher.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
input_dir: `+dir+`
output_dir: `+dir+`
workers: 4
ollama:
  host: http://gpu-box:11434
  timeout: 90s
  requests_per_second: 0.5
models:
  facts: small
  analysis: large
pricing:
  large:
    input_per_1k: 0.003
    output_per_1k: 0.015
database:
  sqlite_path: mirror.db
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 15, cfg.MaxPages, "unset keys keep defaults")
	assert.Equal(t, "http://gpu-box:11434", cfg.Ollama.Host)
	assert.Equal(t, 90*time.Second, cfg.Ollama.Timeout)
	assert.Equal(t, 0.5, cfg.Ollama.RequestsPerSecond)
	assert.Equal(t, "small", cfg.Models.Facts)
	assert.InDelta(t, 0.015, cfg.Pricing["large"].OutputPer1K, 1e-12)
	assert.Equal(t, "mirror.db", cfg.Database.SQLitePath)
	assert.Equal(t, filepath.Join(dir, "research_metadata.json"), cfg.RecordsPath())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: [1, 2"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Workers = 0
	cfg.SectionCap = -1
	cfg.Ollama.Timeout = 0
	cfg.InputDir = filepath.Join(t.TempDir(), "nope")

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workers must be positive")
	assert.Contains(t, err.Error(), "section_cap must be positive")
	assert.Contains(t, err.Error(), "ollama.timeout must be positive")
	assert.Contains(t, err.Error(), "input_dir")
}

func TestOutputPaths(t *testing.T) {
	cfg := Default()
	cfg.OutputDir = "/data/out"
	cfg.Output.TagsCSV = ""
	cfg.Output.RecordsCSV = "/elsewhere/records.csv"

	assert.Equal(t, filepath.Join("/data/out", "tags_metadata.json"), cfg.TagsPath())
	assert.Equal(t, "", cfg.TagsCSVPath())
	assert.Equal(t, "/elsewhere/records.csv", cfg.RecordsCSVPath())
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
  format: json
input:
  path: /captures/session.pcap
pipeline:
  max_stages: 16
  stop_on_stage_error: true
stages:
  - name: print
    options:
      verbose: true
  - name: write
    options:
      path: /tmp/out.pcap
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "/captures/session.pcap", cfg.Input.Path)
	assert.Equal(t, 16, cfg.Pipeline.MaxStages)
	assert.True(t, cfg.Pipeline.StopOnStageError)

	require.Len(t, cfg.Stages, 2)
	assert.Equal(t, "print", cfg.Stages[0].Name)
	assert.Equal(t, true, cfg.Stages[0].Options["verbose"])
	assert.Equal(t, "write", cfg.Stages[1].Name)
	assert.Equal(t, "/tmp/out.pcap", cfg.Stages[1].Options["path"])
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
input:
  path: /captures/session.pcap
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.NotNil(t, cfg.Log)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 8, cfg.Pipeline.MaxStages)
	assert.False(t, cfg.Pipeline.StopOnStageError)
	assert.Empty(t, cfg.Stages)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	assert.Error(t, err)
}

func TestConfigFixtureIsValidYAML(t *testing.T) {
	raw := `
log:
  level: info
stages:
  - name: hexdump
    options:
      prefix: frame
`
	var doc map[string]interface{}
	require.NoError(t, yaml.Unmarshal([]byte(raw), &doc))

	cfg, err := Load(writeConfig(t, raw))
	require.NoError(t, err)
	require.Len(t, cfg.Stages, 1)
	assert.Equal(t, "frame", cfg.Stages[0].Options["prefix"])
}

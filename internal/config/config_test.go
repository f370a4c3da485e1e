package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distrolab/bully-node/internal/config"
)

func TestInitConfigFallsBackToDefaultsWithoutFile(t *testing.T) {
	cfg, err := config.InitConfig("/nonexistent/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, 1500*time.Millisecond, cfg.TBully)
	assert.Equal(t, 4500*time.Millisecond, cfg.TFollower)
	assert.Equal(t, 750*time.Millisecond, cfg.TConnect)
	assert.Equal(t, 500*time.Millisecond, cfg.ProbeMinInterval)
	assert.Equal(t, 3000*time.Millisecond, cfg.ProbeMaxInterval)
	assert.False(t, cfg.FeignedFailure)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestInitConfigReadsYamlFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.yaml"
	contents := "election:\n  t_bully_ms: 250\nfeigned:\n  enabled: true\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := config.InitConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.TBully)
	assert.True(t, cfg.FeignedFailure)
}

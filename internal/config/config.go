// Package config loads node timeouts and feature toggles from an optional
// config file and environment variables, following the gateway/worker_base
// viper pattern, but tolerant of a missing file since this node is
// normally driven by CLI flags (spec.md's out-of-scope entry point).
package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config holds every tunable the node needs beyond identity/address,
// which arrive from CLI flags (cmd/bullynode).
type Config struct {
	TBully          time.Duration
	TFollower       time.Duration
	TConnect        time.Duration
	ProbeMinInterval time.Duration
	ProbeMaxInterval time.Duration
	FeignedFailure  bool
	LogLevel        string
}

const defaultConfigFile = "./config.yaml"

// InitConfig loads .env (if present) then config.yaml/environment via
// viper, falling back to spec-recommended defaults for anything unset.
func InitConfig(configFile string) (*Config, error) {
	_ = godotenv.Load() // optional; absence is not an error

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("election.t_bully_ms", 1500)
	v.SetDefault("election.t_follower_ms", 4500)
	v.SetDefault("network.t_connect_ms", 750)
	v.SetDefault("detector.probe_min_ms", 500)
	v.SetDefault("detector.probe_max_ms", 3000)
	v.SetDefault("feigned.enabled", false)
	v.SetDefault("log.level", "info")

	if configFile == "" {
		configFile = defaultConfigFile
	}
	if _, statErr := os.Stat(configFile); statErr == nil {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "config: read %s", configFile)
		}
	}
	// No config file: defaults and environment variables still apply.

	return &Config{
		TBully:           time.Duration(v.GetInt("election.t_bully_ms")) * time.Millisecond,
		TFollower:        time.Duration(v.GetInt("election.t_follower_ms")) * time.Millisecond,
		TConnect:         time.Duration(v.GetInt("network.t_connect_ms")) * time.Millisecond,
		ProbeMinInterval: time.Duration(v.GetInt("detector.probe_min_ms")) * time.Millisecond,
		ProbeMaxInterval: time.Duration(v.GetInt("detector.probe_max_ms")) * time.Millisecond,
		FeignedFailure:   v.GetBool("feigned.enabled"),
		LogLevel:         v.GetString("log.level"),
	}, nil
}

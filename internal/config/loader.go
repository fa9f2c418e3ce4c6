package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if BOTSPOT_CONFIG is set
//  3. env (prefix BOTSPOT_)
func Load(ctx context.Context) (*Config, error) {
	_ = ctx // reserved for future remote providers

	base := New()

	k := koanf.New(".")

	if path := os.Getenv("BOTSPOT_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: BOTSPOT_ADDR, BOTSPOT_SESSION_GAP_MS, ...
	// Map env keys like BOTSPOT_SESSION_GAP_MS -> session_gap_ms (flat keys)
	// and preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("BOTSPOT_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "botspot_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate enforces the options that must be sane before processing begins.
// Anything caught here is fatal at startup; per-element failures never are.
func (c *Config) validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.SessionGapMS <= 0:
		return fmt.Errorf("%w: session_gap_ms must be positive", ErrInvalidConfig)
	case c.QuantileCount < 2:
		return fmt.Errorf("%w: quantile_count must be at least 2", ErrInvalidConfig)
	case c.AnomalyBoundary < 0 || c.AnomalyBoundary >= c.QuantileCount:
		return fmt.Errorf("%w: anomaly_boundary %d out of range for %d quantiles",
			ErrInvalidConfig, c.AnomalyBoundary, c.QuantileCount)
	case c.AggregateFanout <= 0:
		return fmt.Errorf("%w: aggregate_fanout must be positive", ErrInvalidConfig)
	case c.AggregateTriggerCount <= 0 && c.AggregateTriggerDelayMS <= 0:
		return fmt.Errorf("%w: at least one aggregate trigger must be enabled", ErrInvalidConfig)
	case c.SaltCount <= 0:
		return fmt.Errorf("%w: salt_count must be positive", ErrInvalidConfig)
	}
	if len(c.KafkaBrokers) > 0 && (c.ScoreTopic == "" || c.PlayTopic == "") {
		return fmt.Errorf("%w: score_topic and play_topic are required with kafka_brokers", ErrInvalidConfig)
	}
	return nil
}

// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Keep fields unexported where possible and use functional options.
// - Provide New() initializer to build a Config with defaults.
// - External errors must be wrapped via this package's error helpers.
package config

import "runtime"

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address for /metrics and /healthz.
	Addr string `koanf:"addr"`

	// SessionGapMS is the session inactivity gap in milliseconds.
	SessionGapMS int `koanf:"session_gap_ms"`

	// AllowedLatenessMS extends the window close boundary for late events.
	AllowedLatenessMS int `koanf:"allowed_lateness_ms"`

	// WatermarkIdleMS advances a silent source's watermark to wall clock
	// after this much inactivity so windows still close without input.
	WatermarkIdleMS int `koanf:"watermark_idle_ms"`

	// QuantileCount is the number of boundary estimates per snapshot.
	QuantileCount int `koanf:"quantile_count"`

	// AggregateFanout distributes partial sketch combines before the final merge.
	AggregateFanout int `koanf:"aggregate_fanout"`

	// AggregateTriggerCount re-fires the global aggregate after this many
	// new latencies. Zero disables the count trigger.
	AggregateTriggerCount int `koanf:"aggregate_trigger_count"`

	// AggregateTriggerDelayMS re-fires the global aggregate this long after
	// the first buffered element of a pane. Zero disables the time trigger.
	AggregateTriggerDelayMS int `koanf:"aggregate_trigger_delay_ms"`

	// AnomalyBoundary is the snapshot boundary index below which a latency
	// is classified as anomalous.
	AnomalyBoundary int `koanf:"anomaly_boundary"`

	// EmitDelayMS is the per-user hold before the single bad-user emission.
	EmitDelayMS int `koanf:"emit_delay_ms"`

	// SaltCount is the size of the synthetic salt key set.
	SaltCount int `koanf:"salt_count"`

	// SpreadDelayMS is the per-salt batch flush delay.
	SpreadDelayMS int `koanf:"spread_delay_ms"`

	// BatchQueueSize bounds the in-memory salted batch queue.
	BatchQueueSize int `koanf:"batch_queue_size"`

	// WorkerCount sets the number of expensive-work batch workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize bounds the transport-id dedup cache.
	DedupeSize int `koanf:"dedupe_size"`

	// KafkaBrokers enables the kafka ingestion sources when non-empty.
	KafkaBrokers []string `koanf:"kafka_brokers"`

	// ScoreTopic and PlayTopic are the two ingestion topics.
	ScoreTopic string `koanf:"score_topic"`
	PlayTopic  string `koanf:"play_topic"`

	// ConsumerGroup is the kafka consumer group id.
	ConsumerGroup string `koanf:"consumer_group"`

	// SinkPath is the sqlite database path for the bad-user table.
	// Empty selects the in-memory sink.
	SinkPath string `koanf:"sink_path"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:                "info",
		Addr:                    ":9090",
		SessionGapMS:            300_000, // 5 minutes
		AllowedLatenessMS:       0,
		WatermarkIdleMS:         30_000,
		QuantileCount:           21,
		AggregateFanout:         16,
		AggregateTriggerCount:   1000,
		AggregateTriggerDelayMS: 30_000,
		AnomalyBoundary:         1,
		EmitDelayMS:             10_000,
		SaltCount:               16,
		SpreadDelayMS:           10_000,
		BatchQueueSize:          100_000,
		WorkerCount:             runtime.NumCPU() * 2,
		ConsumerGroup:           "botspot",
	}
}

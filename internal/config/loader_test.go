package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/botspot/internal/config"
	. "github.com/smartystreets/goconvey/convey"
)

func TestLoad(t *testing.T) {
	ctx := context.Background()

	Convey("Given a clean environment", t, func() {
		t.Setenv("BOTSPOT_CONFIG", "")

		Convey("When no overrides are present", func() {
			cfg, err := config.Load(ctx)

			Convey("Then defaults are returned", func() {
				So(err, ShouldBeNil)
				So(cfg.Addr, ShouldEqual, ":9090")
				So(cfg.SessionGapMS, ShouldEqual, 300_000)
				So(cfg.QuantileCount, ShouldEqual, 21)
				So(cfg.AggregateFanout, ShouldEqual, 16)
				So(cfg.AggregateTriggerCount, ShouldEqual, 1000)
				So(cfg.AnomalyBoundary, ShouldEqual, 1)
				So(cfg.EmitDelayMS, ShouldEqual, 10_000)
				So(cfg.SaltCount, ShouldEqual, 16)
				So(cfg.ConsumerGroup, ShouldEqual, "botspot")
			})
		})

		Convey("When environment variables override fields", func() {
			t.Setenv("BOTSPOT_ADDR", ":8081")
			t.Setenv("BOTSPOT_SESSION_GAP_MS", "60000")
			t.Setenv("BOTSPOT_LOG_LEVEL", "debug")

			cfg, err := config.Load(ctx)

			Convey("Then env wins over defaults", func() {
				So(err, ShouldBeNil)
				So(cfg.Addr, ShouldEqual, ":8081")
				So(cfg.SessionGapMS, ShouldEqual, 60000)
				So(cfg.LogLevel, ShouldEqual, "debug")
			})
		})

		Convey("When a YAML file is provided", func() {
			path := filepath.Join(t.TempDir(), "config.yaml")
			data := []byte("addr: \":7070\"\nsession_gap_ms: 120000\nsalt_count: 8\n")
			So(os.WriteFile(path, data, 0o600), ShouldBeNil)
			t.Setenv("BOTSPOT_CONFIG", path)

			cfg, err := config.Load(ctx)

			Convey("Then file values win over defaults", func() {
				So(err, ShouldBeNil)
				So(cfg.Addr, ShouldEqual, ":7070")
				So(cfg.SessionGapMS, ShouldEqual, 120000)
				So(cfg.SaltCount, ShouldEqual, 8)
			})

			Convey("And env wins over the file", func() {
				t.Setenv("BOTSPOT_ADDR", ":6060")
				cfg, err := config.Load(ctx)
				So(err, ShouldBeNil)
				So(cfg.Addr, ShouldEqual, ":6060")
				So(cfg.SessionGapMS, ShouldEqual, 120000)
			})
		})

		Convey("When the config file does not exist", func() {
			t.Setenv("BOTSPOT_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

			_, err := config.Load(ctx)

			Convey("Then loading fails with the load error", func() {
				So(err, ShouldNotBeNil)
				So(errors.Is(err, config.ErrLoadConfig), ShouldBeTrue)
			})
		})
	})
}

func TestValidate(t *testing.T) {
	ctx := context.Background()

	Convey("Given invalid overrides", t, func() {
		t.Setenv("BOTSPOT_CONFIG", "")

		cases := map[string]string{
			"BOTSPOT_SESSION_GAP_MS":   "0",
			"BOTSPOT_QUANTILE_COUNT":   "1",
			"BOTSPOT_ANOMALY_BOUNDARY": "21",
			"BOTSPOT_AGGREGATE_FANOUT": "0",
			"BOTSPOT_SALT_COUNT":       "0",
		}
		for key, val := range cases {
			Convey("When "+key+" is "+val, func() {
				t.Setenv(key, val)

				_, err := config.Load(ctx)

				Convey("Then validation rejects the config", func() {
					So(err, ShouldNotBeNil)
					So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
				})
			})
		}

		Convey("When both aggregate triggers are disabled", func() {
			t.Setenv("BOTSPOT_AGGREGATE_TRIGGER_COUNT", "0")
			t.Setenv("BOTSPOT_AGGREGATE_TRIGGER_DELAY_MS", "0")

			_, err := config.Load(ctx)

			Convey("Then validation rejects the config", func() {
				So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
			})
		})

		Convey("When brokers are set without topics", func() {
			t.Setenv("BOTSPOT_KAFKA_BROKERS", "localhost:9092")

			_, err := config.Load(ctx)

			Convey("Then validation rejects the config", func() {
				So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
			})
		})
	})
}

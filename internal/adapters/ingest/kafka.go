// Package ingest reads raw event lines from kafka and feeds the pipeline.
//
// Each message carries the event payload as a CSV line, the caller-assigned
// event timestamp in the timestamp_ms header and a transport id in the
// unique_id header used for redelivery dedup. Parse failures are dropped
// and counted, never propagated.
package ingest

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/okian/botspot/internal/domain/dedupe"
	"github.com/okian/botspot/internal/domain/model"
	"github.com/okian/botspot/pkg/logger"
	"github.com/okian/botspot/pkg/metrics"
)

// Header names on the ingestion transport.
const (
	TimestampHeader = "timestamp_ms"
	UniqueIDHeader  = "unique_id"
)

// Pipeline is the ingestion surface of the stream processor.
type Pipeline interface {
	IngestScore(ctx context.Context, ev model.Event)
	IngestAction(ctx context.Context, ev model.Event)
}

// Source consumes one topic of one event kind.
type Source struct {
	reader  *kafka.Reader
	kind    model.EventKind
	sink    Pipeline
	deduper dedupe.Deduper
	logger  logger.Logger
}

// Option applies a configuration option to the Source.
type Option func(*Source)

// WithDeduper sets the transport-id deduper. Nil disables redelivery dedup.
func WithDeduper(d dedupe.Deduper) Option {
	return func(s *Source) {
		s.deduper = d
	}
}

// WithLogger sets a custom logger for the source.
func WithLogger(l logger.Logger) Option {
	return func(s *Source) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSource creates a source for one topic. kind selects the parser.
func NewSource(brokers []string, topic, group string, kind model.EventKind, sink Pipeline, opts ...Option) *Source {
	s := &Source{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  group,
			MinBytes: 1,
			MaxBytes: 10 << 20,
		}),
		kind:   kind,
		sink:   sink,
		logger: logger.Get().Named("ingest"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run consumes until ctx is canceled.
func (s *Source) Run(ctx context.Context) error {
	defer func() {
		if err := s.reader.Close(); err != nil {
			s.logger.Warn(ctx, "closing kafka reader", logger.Error(err))
		}
	}()

	stream := s.kind.String()
	for {
		msg, err := s.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}

		ev, ok := s.parse(msg)
		if !ok {
			metrics.RecordParseError(stream)
			continue
		}
		if s.deduper != nil && ev.DedupID != "" && s.deduper.SeenAndRecord(ctx, ev.DedupID) {
			metrics.RecordEventDuplicate()
			continue
		}

		metrics.RecordEventIngested(stream)
		switch s.kind {
		case model.KindScore:
			s.sink.IngestScore(ctx, ev)
		case model.KindAction:
			s.sink.IngestAction(ctx, ev)
		}
	}
}

func (s *Source) parse(msg kafka.Message) (model.Event, bool) {
	line := string(msg.Value)

	var ev model.Event
	var err error
	switch s.kind {
	case model.KindScore:
		ev, err = model.ParseScoreEvent(line, time.Now())
	case model.KindAction:
		ev, err = model.ParseActionEvent(line, time.Now())
	}
	if err != nil {
		s.logger.Warn(context.Background(), "dropping malformed event",
			logger.String("stream", s.kind.String()),
			logger.Error(err),
		)
		return model.Event{}, false
	}

	for _, h := range msg.Headers {
		switch h.Key {
		case TimestampHeader:
			// The transport timestamp wins over the payload timestamp.
			if ms, perr := strconv.ParseInt(string(h.Value), 10, 64); perr == nil {
				ev.EventTime = time.UnixMilli(ms)
			}
		case UniqueIDHeader:
			ev.DedupID = string(h.Value)
		}
	}
	return ev, true
}

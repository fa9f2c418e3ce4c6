// Package app wires the pipeline stages into one runnable service.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/okian/botspot/internal/adapters/mq/queue"
	"github.com/okian/botspot/internal/adapters/mq/worker"
	"github.com/okian/botspot/internal/adapters/sink"
	"github.com/okian/botspot/internal/domain/model"
	"github.com/okian/botspot/internal/pipeline/emitonce"
	"github.com/okian/botspot/internal/pipeline/filter"
	"github.com/okian/botspot/internal/pipeline/join"
	"github.com/okian/botspot/internal/pipeline/quantile"
	"github.com/okian/botspot/internal/pipeline/session"
	"github.com/okian/botspot/internal/pipeline/sideinput"
	"github.com/okian/botspot/internal/pipeline/spread"
	"github.com/okian/botspot/internal/pipeline/watermark"
	"github.com/okian/botspot/pkg/logger"
	"github.com/okian/botspot/pkg/metrics"
)

// Watermark source names.
const (
	scoreSource  = "score"
	actionSource = "action"
)

// Default service configuration constants.
const (
	defaultAdvanceInterval = time.Second
)

// Service owns the stream pipeline: two session windowers, the keyed join,
// the global quantile aggregate with its side-input cell, the anomaly
// filter, the single-emission stage and the salted expensive-work pool.
type Service struct {
	mu sync.Mutex

	// Configuration
	gap             time.Duration
	lateness        time.Duration
	idle            time.Duration
	quantileCount   int
	fanout          int
	triggerCount    int
	triggerDelay    time.Duration
	boundaryIndex   int
	emitDelay       time.Duration
	saltCount       int
	spreadDelay     time.Duration
	queueSize       int
	workerCount     int
	advanceInterval time.Duration

	// Stages
	scoreWin   *session.Windower
	actionWin  *session.Windower
	joiner     *join.Stage
	cell       *sideinput.Cell
	agg        *quantile.Aggregator
	filter     *filter.Filter
	emitter    *emitonce.Emitter
	spreader   *spread.Spreader
	batchQueue *queue.InMemory[model.SaltedBatch]
	pool       *worker.Pool
	wm         *watermark.Tracker
	out        sink.Sink

	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithSessionGap sets the session inactivity gap.
func WithSessionGap(gap time.Duration) Option {
	return func(s *Service) {
		if gap > 0 {
			s.gap = gap
		}
	}
}

// WithAllowedLateness holds the watermark back to admit late events.
func WithAllowedLateness(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.lateness = d
		}
	}
}

// WithWatermarkIdleTimeout advances silent sources with the wall clock.
func WithWatermarkIdleTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.idle = d
	}
}

// WithQuantileCount sets the number of snapshot boundaries.
func WithQuantileCount(n int) Option {
	return func(s *Service) {
		if n >= 2 {
			s.quantileCount = n
		}
	}
}

// WithAggregateFanout sets the partial-combine fan-out factor.
func WithAggregateFanout(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.fanout = n
		}
	}
}

// WithAggregateTriggers sets the count and delay triggers. Zero disables
// the respective trigger.
func WithAggregateTriggers(count int, delay time.Duration) Option {
	return func(s *Service) {
		s.triggerCount = count
		s.triggerDelay = delay
	}
}

// WithAnomalyBoundary sets the snapshot boundary index for classification.
func WithAnomalyBoundary(i int) Option {
	return func(s *Service) {
		if i > 0 {
			s.boundaryIndex = i
		}
	}
}

// WithEmitDelay sets the per-user hold before the single emission.
func WithEmitDelay(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.emitDelay = d
		}
	}
}

// WithSaltCount sets the synthetic salt key set size.
func WithSaltCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.saltCount = n
		}
	}
}

// WithSpreadDelay sets the per-salt batch flush delay.
func WithSpreadDelay(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.spreadDelay = d
		}
	}
}

// WithBatchQueueSize bounds the salted batch queue.
func WithBatchQueueSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// WithWorkerCount sets the number of batch workers.
func WithWorkerCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workerCount = n
		}
	}
}

// WithAdvanceInterval sets how often the watermark driver runs.
func WithAdvanceInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.advanceInterval = d
		}
	}
}

// WithSink sets the bad-user destination.
func WithSink(out sink.Sink) Option {
	return func(s *Service) {
		if out != nil {
			s.out = out
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		gap:             5 * time.Minute,
		idle:            30 * time.Second,
		quantileCount:   21,
		fanout:          16,
		triggerCount:    1000,
		triggerDelay:    30 * time.Second,
		boundaryIndex:   1,
		emitDelay:       10 * time.Second,
		saltCount:       16,
		spreadDelay:     10 * time.Second,
		queueSize:       100_000,
		workerCount:     0, // pool default
		advanceInterval: defaultAdvanceInterval,
		out:             sink.NewMemory(),
		stopCh:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the stages and begins the watermark driver.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("pipeline")
	}

	s.wm = watermark.NewTracker(
		[]string{scoreSource, actionSource},
		watermark.WithAllowedLateness(s.lateness),
		watermark.WithIdleTimeout(s.idle),
	)
	s.scoreWin = session.NewWindower(
		session.WithGap(s.gap),
		session.WithStream(scoreSource),
	)
	s.actionWin = session.NewWindower(
		session.WithGap(s.gap),
		session.WithStream(actionSource),
	)
	s.joiner = join.NewStage(join.WithGap(s.gap))
	s.cell = sideinput.NewCell()
	s.agg = quantile.NewAggregator(s.cell,
		quantile.WithFanout(s.fanout),
		quantile.WithQuantileCount(s.quantileCount),
		quantile.WithCountTrigger(s.triggerCount),
		quantile.WithDelayTrigger(s.triggerDelay),
	)
	s.filter = filter.New(s.cell, filter.WithBoundaryIndex(s.boundaryIndex))
	s.emitter = emitonce.New(s.writeBadUser, emitonce.WithDelay(s.emitDelay))
	s.batchQueue = queue.NewInMemory[model.SaltedBatch](queue.WithCapacity(s.queueSize))
	s.spreader = spread.New(s.batchQueue,
		spread.WithSaltCount(s.saltCount),
		spread.WithFlushDelay(s.spreadDelay),
	)
	s.pool = worker.NewPool(s.workerCount, s.batchQueue, &auditProcessor{logger: s.logger})
	s.pool.Start(ctx)

	s.wg.Add(1)
	go s.driveWatermark()

	s.started = true
	s.logger.Info(ctx, "pipeline started",
		logger.Any("gap", s.gap.String()),
		logger.Int("quantiles", s.quantileCount),
		logger.Int("fanout", s.fanout),
	)
	return nil
}

// Stop drains and shuts down the pipeline.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	close(s.stopCh)
	s.wg.Wait()

	s.agg.Stop()
	s.emitter.Close()
	s.spreader.FlushAll()
	_ = s.batchQueue.Close()
	s.pool.Stop()
	if err := s.out.Close(); err != nil {
		s.logger.Warn(context.Background(), "closing sink", logger.Error(err))
	}

	s.started = false
	s.logger.Info(context.Background(), "pipeline stopped")
}

// IngestScore feeds one score event into its session windower.
func (s *Service) IngestScore(_ context.Context, ev model.Event) {
	s.wm.Observe(scoreSource, ev.EventTime)
	s.scoreWin.Add(ev)
}

// IngestAction feeds one play-action event into its session windower.
func (s *Service) IngestAction(_ context.Context, ev model.Event) {
	s.wm.Observe(actionSource, ev.EventTime)
	s.actionWin.Add(ev)
}

// AdvanceWatermark forces the pipeline watermark to at least wm and runs
// one close cycle. The periodic driver does the same from source progress;
// this entry point lets the substrate (or a test) push time forward.
func (s *Service) AdvanceWatermark(wm time.Time) {
	s.wm.Observe(scoreSource, wm.Add(s.lateness))
	s.wm.Observe(actionSource, wm.Add(s.lateness))
	s.advance()
}

// driveWatermark periodically closes windows against the current watermark
// so sessions materialize even when no further input arrives.
func (s *Service) driveWatermark() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.advanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			s.advance()
			return
		case <-ticker.C:
			s.advance()
		}
	}
}

// advance runs one watermark cycle: close sessions on both streams, feed
// the join, resolve groups, and route latency records to the aggregate,
// the filter and the spreader.
func (s *Service) advance() {
	wm := s.wm.Current()
	if wm.IsZero() {
		return
	}

	for _, sess := range s.scoreWin.CloseUpTo(wm) {
		s.joiner.AddScoreSession(sess)
	}
	for _, sess := range s.actionWin.CloseUpTo(wm) {
		s.joiner.AddActionSession(sess)
	}
	metrics.UpdateOpenSessions(s.scoreWin.OpenCount() + s.actionWin.OpenCount())

	for _, rec := range s.joiner.CloseUpTo(wm) {
		s.handleLatency(rec)
	}
}

func (s *Service) handleLatency(rec model.LatencyRecord) {
	metrics.RecordLatencyRecord()

	// Monitoring path: fold into the global aggregate and the spreader.
	s.agg.Observe(rec.LatencyMillis)
	s.spreader.Observe(rec)

	// Detection path: classify against the current snapshot.
	if s.filter.Classify(rec) == filter.Anomalous {
		s.emitter.Observe(rec.User)
	}
}

// writeBadUser appends one record to the sink. Runs on an emitter timer.
func (s *Service) writeBadUser(rec model.BadUserRecord) {
	ctx := context.Background()
	if err := s.out.Append(ctx, rec); err != nil {
		metrics.RecordSinkError()
		s.logger.Error(ctx, "sink append failed",
			logger.String("user", rec.User),
			logger.Error(err),
		)
		return
	}
	metrics.RecordBadUserEmitted()
	s.logger.Info(ctx, "bad user flagged", logger.String("user", rec.User))
}

// ResetEpoch starts a new emission epoch: every user may be flagged once more.
func (s *Service) ResetEpoch() {
	s.emitter.ResetEpoch()
}

// Snapshot returns the current quantile snapshot.
func (s *Service) Snapshot() model.QuantileSnapshot {
	return s.cell.Get()
}

// Stats returns pipeline state for monitoring.
func (s *Service) Stats() map[string]any {
	return map[string]any{
		"openSessions": s.scoreWin.OpenCount() + s.actionWin.OpenCount(),
		"pendingJoins": s.joiner.PendingKeys(),
		"trackedUsers": s.emitter.Size(),
		"batchBacklog": s.batchQueue.Len(context.Background()),
		"watermark":    s.wm.Current(),
	}
}

// auditProcessor is the expensive-work stage behind the spreader. It walks
// each batch and records per-salt volume; a real deployment would hang its
// costly enrichment here, off the per-event path.
type auditProcessor struct {
	logger logger.Logger
}

func (p *auditProcessor) Process(ctx context.Context, batch model.SaltedBatch) error {
	var worst int64
	for _, item := range batch.Items {
		if item.LatencyMillis > worst {
			worst = item.LatencyMillis
		}
	}
	p.logger.Debug(ctx, "processed salted batch",
		logger.String("salt", batch.Salt),
		logger.Int("items", len(batch.Items)),
		logger.Any("worstLatencyMs", worst),
	)
	return nil
}

// Package sink implements a buffered, time/size-rotated log shipper. A Sink
// accepts byte writes, accumulates them in memory, and uploads the
// accumulated payload to a named object in an object store, rotating to a
// new object name on a time or size boundary.
//
// Writes never block on uploads and never fail while the sink is open;
// flush failures surface asynchronously on Errors. Until rotation, every
// flush re-uploads the full cumulative epoch payload to the same key
// (objects grow by full replacement, never by append). A failed upload
// restores the buffered state, so no accepted write is lost: the data simply
// rides along in the next flush.
//
// A Sink is an io.Writer, so it can sit directly behind a structured-logging
// handler:
//
//	s, _ := sink.New(cfg, storage)
//	logger := slog.New(slog.NewJSONHandler(s, nil))
package sink

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/logship/s3sink/logging"
	"github.com/logship/s3sink/models"
	"github.com/logship/s3sink/store"
)

var ErrClosed = errors.New("sink: closed")

const errorChannelDepth = 16

type Sink struct {
	cfg     models.SinkConfig
	storage store.ObjectStorage
	logger  logging.Logger
	namer   namer
	clock   func() time.Time
	tracer  trace.Tracer
	metrics *metrics

	errs chan error

	// flightMu serializes flush attempts: at most one commits against the
	// epoch's buffer at a time. Write never takes it.
	flightMu sync.Mutex

	mu             sync.Mutex
	acc            accumulator
	currentKey     string
	epochCreatedAt time.Time
	lastFlushAt    time.Time
	unwritten      int
	timer          *time.Timer
	closed         bool
}

type Option func(*Sink)

func WithLogger(l logging.Logger) Option {
	return func(s *Sink) { s.logger = l }
}

// WithClock overrides the time source. Used by tests to drive the
// elapsed-time thresholds.
func WithClock(clock func() time.Time) Option {
	return func(s *Sink) { s.clock = clock }
}

// WithRegisterer publishes the sink's metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Sink) { s.metrics = newMetrics(reg) }
}

func New(cfg models.SinkConfig, storage store.ObjectStorage, opts ...Option) (*Sink, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Sink{
		cfg:     cfg,
		storage: storage,
		logger:  logging.NewNullLogger(),
		namer:   newNamer(cfg),
		clock:   time.Now,
		tracer:  otel.Tracer("github.com/logship/s3sink/sink"),
		errs:    make(chan error, errorChannelDepth),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = newMetrics(nil)
	}

	now := s.clock()
	s.currentKey = s.namer.Key(now)
	s.epochCreatedAt = now
	s.lastFlushAt = now

	return s, nil
}

// Write accepts p into the buffer and decides the flush schedule: cancel
// any pending delayed flush, then flush immediately when the quiet period
// has already elapsed or the unwritten bytes exceed the buffer threshold,
// otherwise arm a new delayed flush. Write never blocks on the flush itself;
// flush failures are reported on Errors, not here.
func (s *Sink) Write(p []byte) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrClosed
	}

	s.acc.append(p)
	s.unwritten += len(p)
	s.metrics.bufferBytes.Set(float64(s.acc.totalBytes()))

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	now := s.clock()
	immediate := now.Sub(s.lastFlushAt) > s.cfg.UploadDelay || s.unwritten > s.cfg.BufferSize
	if !immediate {
		s.timer = time.AfterFunc(s.cfg.UploadDelay, s.delayedFlush)
	}
	s.mu.Unlock()

	if immediate {
		go func() {
			_ = s.flush(context.Background(), false)
		}()
	}

	return len(p), nil
}

// Errors delivers one error per failed flush attempt. The channel is
// buffered; when no one is draining it, further errors are dropped after
// being logged.
func (s *Sink) Errors() <-chan error {
	return s.errs
}

// Flush forces one non-rotating flush attempt (rotation may still be
// decided by the elapsed-time or size thresholds).
func (s *Sink) Flush(ctx context.Context) error {
	return s.flush(ctx, false)
}

// Rotate forces a flush that rotates to a new object key on success.
func (s *Sink) Rotate(ctx context.Context) error {
	return s.flush(ctx, true)
}

// Close performs the final non-rotating flush and stops the sink. Writes
// after Close fail with ErrClosed.
func (s *Sink) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	return s.flush(ctx, false)
}

// CurrentKey returns the object key of the open epoch.
func (s *Sink) CurrentKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentKey
}

// BufferedBytes is the total size of the buffered chunk sequence.
func (s *Sink) BufferedBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acc.totalBytes()
}

// UnwrittenBytes is the byte count not yet confirmed uploaded. It differs
// from BufferedBytes while a flush is in flight and after a non-rotating
// flush commits.
func (s *Sink) UnwrittenBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unwritten
}

func (s *Sink) delayedFlush() {
	_ = s.flush(context.Background(), false)
}

// flush runs one attempt of the upload state machine: snapshot, decide
// rotation, serialize, put, then commit or roll back. Attempts are
// serialized; a trigger that fires mid-attempt queues behind it and operates
// on whatever state the previous attempt left.
func (s *Sink) flush(ctx context.Context, forceRotate bool) error {
	s.flightMu.Lock()
	defer s.flightMu.Unlock()

	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	now := s.clock()
	s.lastFlushAt = now

	snapshot := s.acc.snapshot()
	if len(snapshot) == 0 {
		s.mu.Unlock()
		return nil
	}

	savedUnwritten := s.unwritten
	s.unwritten = 0
	key := s.currentKey
	rotating := forceRotate ||
		now.Sub(s.epochCreatedAt) > s.cfg.RotateEvery ||
		s.acc.totalBytes() > s.cfg.MaxFileSize
	s.mu.Unlock()

	ctx, span := s.tracer.Start(ctx, "sink.flush", trace.WithAttributes(
		attribute.String("sink.key", key),
		attribute.Int("sink.chunks", len(snapshot)),
		attribute.Bool("sink.rotating", rotating),
	))
	defer span.End()

	payload, err := serialize(snapshot, s.cfg.SaveLogsInJSON, s.cfg.Compress)
	if err != nil {
		return s.rollback(span, key, savedUnwritten, err)
	}

	if err := s.storage.Put(ctx, buildPutRequest(s.cfg, key, payload)); err != nil {
		return s.rollback(span, key, savedUnwritten, &UploadError{Key: key, Err: err})
	}

	s.mu.Lock()
	if rotating {
		s.acc.trim(len(snapshot))
		s.currentKey = s.namer.Key(now)
		s.epochCreatedAt = now
		s.metrics.rotations.Inc()
	}
	s.metrics.bufferBytes.Set(float64(s.acc.totalBytes()))
	s.mu.Unlock()

	s.metrics.flushes.WithLabelValues("success").Inc()
	s.metrics.uploadedBytes.Add(float64(len(payload)))
	s.logger.Info("flushed",
		"key", key,
		"bytes", len(payload),
		"chunks", len(snapshot),
		"rotated", rotating,
	)
	return nil
}

// rollback restores the snapshot taken at the start of the attempt. The
// chunk sequence and key were never touched before a successful put, so
// only the byte counter needs restoring; the decided rotation simply never
// takes effect.
func (s *Sink) rollback(span trace.Span, key string, savedUnwritten int, err error) error {
	s.mu.Lock()
	s.unwritten += savedUnwritten
	s.mu.Unlock()

	span.RecordError(err)
	span.SetStatus(codes.Error, "flush failed")
	s.metrics.flushes.WithLabelValues("failure").Inc()
	s.logger.Error("flush failed, buffer retained", "key", key, "error", err)

	select {
	case s.errs <- err:
	default:
		s.logger.Warn("error channel full, notification dropped")
	}

	return err
}

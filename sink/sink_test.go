package sink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/logship/s3sink/models"
	"github.com/logship/s3sink/store"
)

type fakeStorage struct {
	mu       sync.Mutex
	puts     []store.PutRequest
	failNext int

	putCh chan store.PutRequest
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{putCh: make(chan store.PutRequest, 16)}
}

func (f *fakeStorage) Put(_ context.Context, req store.PutRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failNext > 0 {
		f.failNext--
		return errors.New("service unavailable")
	}

	f.puts = append(f.puts, req)
	f.putCh <- req
	return nil
}

func (f *fakeStorage) IsReady(context.Context) error { return nil }
func (f *fakeStorage) Name() string                  { return "ObjectStorage[fake]" }

func (f *fakeStorage) putCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.puts)
}

func (f *fakeStorage) failOnce() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = 1
}

func waitForPut(t *testing.T, f *fakeStorage) store.PutRequest {
	t.Helper()
	select {
	case req := <-f.putCh:
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for upload")
		return store.PutRequest{}
	}
}

// fakeClock drives the elapsed-time thresholds without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestSink(t *testing.T, cfg models.SinkConfig, storage store.ObjectStorage, opts ...Option) *Sink {
	t.Helper()
	s, err := New(cfg, storage, opts...)
	require.NoError(t, err)
	return s
}

func TestWriteAboveBufferSizeFlushesImmediately(t *testing.T) {
	storage := newFakeStorage()
	s := newTestSink(t, models.SinkConfig{
		Bucket:      "logs",
		BufferSize:  1000,
		UploadDelay: time.Hour,
	}, storage)

	first := make([]byte, 500)
	second := make([]byte, 600)
	for i := range first {
		first[i] = 'a'
	}
	for i := range second {
		second[i] = 'b'
	}

	_, err := s.Write(first)
	require.NoError(t, err)
	require.Equal(t, 0, storage.putCount())

	_, err = s.Write(second)
	require.NoError(t, err)

	req := waitForPut(t, storage)
	require.Len(t, req.Body, 1100)
	require.Equal(t, append(append([]byte{}, first...), second...), req.Body)
}

func TestWriteAtBufferSizeDoesNotFlush(t *testing.T) {
	storage := newFakeStorage()
	s := newTestSink(t, models.SinkConfig{
		Bucket:      "logs",
		BufferSize:  10,
		UploadDelay: time.Hour,
	}, storage)

	_, err := s.Write(make([]byte, 10))
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 0, storage.putCount())

	// One more byte pushes strictly above the threshold.
	_, err = s.Write([]byte{'x'})
	require.NoError(t, err)
	waitForPut(t, storage)
}

func TestDelayedFlushAfterQuietPeriod(t *testing.T) {
	storage := newFakeStorage()
	s := newTestSink(t, models.SinkConfig{
		Bucket:      "logs",
		BufferSize:  1 << 20,
		UploadDelay: 50 * time.Millisecond,
	}, storage)

	_, err := s.Write([]byte("0123456789"))
	require.NoError(t, err)

	req := waitForPut(t, storage)
	require.Equal(t, []byte("0123456789"), req.Body)

	// No further writes: exactly one flush.
	time.Sleep(150 * time.Millisecond)
	require.Equal(t, 1, storage.putCount())
}

func TestWriteCancelsAndReArmsPendingTimer(t *testing.T) {
	storage := newFakeStorage()
	s := newTestSink(t, models.SinkConfig{
		Bucket:      "logs",
		BufferSize:  1 << 20,
		UploadDelay: 80 * time.Millisecond,
	}, storage)

	for i := 0; i < 4; i++ {
		_, err := s.Write([]byte("burst"))
		require.NoError(t, err)
		time.Sleep(30 * time.Millisecond)
	}

	req := waitForPut(t, storage)
	require.Equal(t, []byte("burstburstburstburst"), req.Body)
	require.Equal(t, 1, storage.putCount())
}

func TestElapsedTimeForcesRotation(t *testing.T) {
	storage := newFakeStorage()
	clock := newFakeClock()
	s := newTestSink(t, models.SinkConfig{
		Bucket:      "logs",
		UploadDelay: time.Hour,
		RotateEvery: 100 * time.Millisecond,
	}, storage, WithClock(clock.Now))

	initialKey := s.CurrentKey()

	_, err := s.Write([]byte("data"))
	require.NoError(t, err)

	// Well past rotateEvery, and past the minute resolution of the default
	// name layout so the new epoch gets a distinct key.
	clock.Advance(2 * time.Minute)
	require.NoError(t, s.Flush(context.Background()))

	req := waitForPut(t, storage)
	require.Equal(t, initialKey, req.Key)
	require.NotEqual(t, initialKey, s.CurrentKey())
	require.Equal(t, 0, s.BufferedBytes())
}

func TestMaxFileSizeForcesRotation(t *testing.T) {
	storage := newFakeStorage()
	s := newTestSink(t, models.SinkConfig{
		Bucket:      "logs",
		UploadDelay: time.Hour,
		MaxFileSize: 10,
		NameFormat:  "2006-01-02T15-04-05.000000000",
	}, storage)

	initialKey := s.CurrentKey()

	_, err := s.Write([]byte("well over ten bytes"))
	require.NoError(t, err)
	require.NoError(t, s.Flush(context.Background()))

	waitForPut(t, storage)
	require.NotEqual(t, initialKey, s.CurrentKey())
}

func TestNonRotatingFlushReUploadsCumulativePayload(t *testing.T) {
	storage := newFakeStorage()
	s := newTestSink(t, models.SinkConfig{
		Bucket:      "logs",
		UploadDelay: time.Hour,
	}, storage)

	_, err := s.Write([]byte("first\n"))
	require.NoError(t, err)
	require.NoError(t, s.Flush(context.Background()))
	req := waitForPut(t, storage)
	require.Equal(t, []byte("first\n"), req.Body)

	// Same key is fully overwritten with the cumulative epoch content.
	_, err = s.Write([]byte("second\n"))
	require.NoError(t, err)
	require.NoError(t, s.Flush(context.Background()))
	req2 := waitForPut(t, storage)
	require.Equal(t, req.Key, req2.Key)
	require.Equal(t, []byte("first\nsecond\n"), req2.Body)
}

func TestFailedUploadRestoresState(t *testing.T) {
	storage := newFakeStorage()
	s := newTestSink(t, models.SinkConfig{
		Bucket:      "logs",
		UploadDelay: time.Hour,
	}, storage)

	_, err := s.Write([]byte("precious"))
	require.NoError(t, err)
	before := s.UnwrittenBytes()

	storage.failOnce()
	err = s.Flush(context.Background())
	require.Error(t, err)

	var uploadErr *UploadError
	require.ErrorAs(t, err, &uploadErr)
	require.Equal(t, before, s.UnwrittenBytes())
	require.Equal(t, len("precious"), s.BufferedBytes())

	select {
	case notified := <-s.Errors():
		require.ErrorAs(t, notified, &uploadErr)
	case <-time.After(time.Second):
		t.Fatal("no error notification")
	}
}

func TestFailedRotatingFlushLeavesKeyAndChunks(t *testing.T) {
	storage := newFakeStorage()
	s := newTestSink(t, models.SinkConfig{
		Bucket:      "logs",
		UploadDelay: time.Hour,
	}, storage)

	initialKey := s.CurrentKey()

	_, err := s.Write([]byte("data"))
	require.NoError(t, err)

	storage.failOnce()
	require.Error(t, s.Rotate(context.Background()))

	require.Equal(t, initialKey, s.CurrentKey())
	require.Equal(t, len("data"), s.BufferedBytes())
}

func TestRetriedFlushCarriesFailedAndNewBytes(t *testing.T) {
	storage := newFakeStorage()
	s := newTestSink(t, models.SinkConfig{
		Bucket:      "logs",
		UploadDelay: time.Hour,
	}, storage)

	_, err := s.Write([]byte("failed-once\n"))
	require.NoError(t, err)

	storage.failOnce()
	require.Error(t, s.Flush(context.Background()))

	_, err = s.Write([]byte("written-after\n"))
	require.NoError(t, err)
	require.NoError(t, s.Flush(context.Background()))

	req := waitForPut(t, storage)
	require.Equal(t, []byte("failed-once\nwritten-after\n"), req.Body)
	require.Equal(t, 1, storage.putCount())
}

func TestJSONPackagedPayload(t *testing.T) {
	storage := newFakeStorage()
	s := newTestSink(t, models.SinkConfig{
		Bucket:         "logs",
		UploadDelay:    time.Hour,
		SaveLogsInJSON: true,
	}, storage)

	_, err := s.Write([]byte("not json"))
	require.NoError(t, err)
	_, err = s.Write([]byte(`{"a":1}`))
	require.NoError(t, err)

	require.NoError(t, s.Flush(context.Background()))
	req := waitForPut(t, storage)
	require.JSONEq(t, `["not json", {"a":1}]`, string(req.Body))
}

func TestRotationStartsEmptyEpoch(t *testing.T) {
	storage := newFakeStorage()
	s := newTestSink(t, models.SinkConfig{
		Bucket:      "logs",
		UploadDelay: time.Hour,
		NameFormat:  "2006-01-02T15-04-05.000000000",
	}, storage)

	_, err := s.Write([]byte("old epoch\n"))
	require.NoError(t, err)
	require.NoError(t, s.Rotate(context.Background()))
	first := waitForPut(t, storage)

	_, err = s.Write([]byte("new epoch\n"))
	require.NoError(t, err)
	require.NoError(t, s.Flush(context.Background()))
	second := waitForPut(t, storage)

	require.NotEqual(t, first.Key, second.Key)
	require.Equal(t, []byte("new epoch\n"), second.Body)
}

func TestFlushWithEmptyBufferIsNoOp(t *testing.T) {
	storage := newFakeStorage()
	s := newTestSink(t, models.SinkConfig{Bucket: "logs"}, storage)

	require.NoError(t, s.Flush(context.Background()))
	require.NoError(t, s.Rotate(context.Background()))
	require.Equal(t, 0, storage.putCount())
}

func TestCloseFlushesAndRejectsFurtherWrites(t *testing.T) {
	storage := newFakeStorage()
	s := newTestSink(t, models.SinkConfig{
		Bucket:      "logs",
		UploadDelay: time.Hour,
	}, storage)

	_, err := s.Write([]byte("final\n"))
	require.NoError(t, err)
	require.NoError(t, s.Close(context.Background()))

	req := waitForPut(t, storage)
	require.Equal(t, []byte("final\n"), req.Body)

	_, err = s.Write([]byte("late"))
	require.ErrorIs(t, err, ErrClosed)

	// Closing twice is fine.
	require.NoError(t, s.Close(context.Background()))
}

func TestConcurrentWritesAllLandInSomeFlush(t *testing.T) {
	storage := newFakeStorage()
	s := newTestSink(t, models.SinkConfig{
		Bucket:      "logs",
		UploadDelay: time.Hour,
	}, storage)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Write([]byte("line\n"))
		}()
	}
	wg.Wait()

	require.NoError(t, s.Flush(context.Background()))
	req := waitForPut(t, storage)
	require.Len(t, req.Body, 20*len("line\n"))
}

func TestMetricsRegistered(t *testing.T) {
	storage := newFakeStorage()
	reg := prometheus.NewRegistry()
	s := newTestSink(t, models.SinkConfig{
		Bucket:      "logs",
		UploadDelay: time.Hour,
	}, storage, WithRegisterer(reg))

	_, err := s.Write([]byte("observed\n"))
	require.NoError(t, err)
	require.NoError(t, s.Flush(context.Background()))
	waitForPut(t, storage)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	require.True(t, names["s3sink_flushes_total"])
	require.True(t, names["s3sink_uploaded_bytes_total"])
	require.True(t, names["s3sink_buffer_bytes"])
}

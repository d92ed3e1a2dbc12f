package main

import (
	"context"
	"log"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/logship/s3sink/sink"
	"github.com/logship/s3sink/store"
)

type Services struct {
	Storage *store.S3ObjectStorageImpl
	Sink    *sink.Sink
}

func BuildServices(app *App) (*Services, error) {
	storage := store.NewS3ObjectStorageImpl(app.S3, app.Config.Sink.Bucket, app.Logger)

	logSink, err := sink.New(
		app.Config.SinkConfig(),
		storage,
		sink.WithLogger(app.Logger),
		sink.WithRegisterer(prometheus.DefaultRegisterer),
	)
	if err != nil {
		return nil, err
	}

	return &Services{
		Storage: storage,
		Sink:    logSink,
	}, nil
}

// Shutdown closes the sink, which performs the final non-rotating flush of
// whatever is still buffered.
func (s *Services) Shutdown(ctx context.Context) error {
	log.Println("shutting down services")

	if s.Sink != nil {
		if err := s.Sink.Close(ctx); err != nil {
			log.Printf("sink close error: %v", err)
		}
	}

	log.Println("services shutdown complete")
	return nil
}

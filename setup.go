package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/logship/s3sink/config"
	"github.com/logship/s3sink/logging"
)

// maxLineSize bounds one stdin log line.
const maxLineSize = 1 << 20

type App struct {
	Config    config.Config
	AwsConfig aws.Config
	S3        *s3.Client

	Services       *Services
	TracerProvider *sdktrace.TracerProvider
	Logger         logging.Logger

	metricsServer *http.Server
}

func SetupApp() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	awsCfg, err := initAWS(cfg.AWS)
	if err != nil {
		return nil, err
	}

	appLogger := logging.NewSlogLogger(logging.CreateAppLogger(cfg.Env, cfg.LogLevel))

	app := &App{
		Config:    cfg,
		AwsConfig: awsCfg,
		S3:        initS3(awsCfg, cfg.AWS),
		Logger:    appLogger,
	}

	if cfg.Tracing {
		tp, err := initTracer()
		if err != nil {
			return nil, fmt.Errorf("failed to start tracing: %w", err)
		}
		app.TracerProvider = tp
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		app.metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	}

	app.Services, err = BuildServices(app)
	if err != nil {
		return nil, err
	}
	probeStorage(app)

	return app, nil
}

// Run ships stdin to the sink line by line until EOF. Flush failures arrive
// on the sink's error channel and are logged by a drain goroutine; they are
// not fatal, the data stays buffered for the next flush.
func (a *App) Run() error {
	if a.metricsServer != nil {
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.Logger.Error("metrics server error", "error", err)
			}
		}()
	}

	go func() {
		for err := range a.Services.Sink.Errors() {
			a.Logger.Error("flush failed", "error", err)
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		chunk := make([]byte, 0, len(line)+1)
		chunk = append(chunk, line...)
		chunk = append(chunk, '\n')
		if _, err := a.Services.Sink.Write(chunk); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func initAWS(cfg config.AWSConfig) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

func initS3(awsCfg aws.Config, cfg config.AWSConfig) *s3.Client {
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
}

func initTracer() (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return tp, nil
}

func (a *App) Rotate(ctx context.Context) error {
	return a.Services.Sink.Rotate(ctx)
}

func (a *App) Shutdown(ctx context.Context) error {
	log.Println("starting graceful shutdown")

	if a.Services != nil {
		if err := a.Services.Shutdown(ctx); err != nil {
			log.Printf("services shutdown error: %v", err)
		}
	}

	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			log.Printf("metrics server shutdown error: %v", err)
		}
	}

	if a.TracerProvider != nil {
		if err := a.TracerProvider.Shutdown(ctx); err != nil {
			log.Printf("tracer shutdown error: %v", err)
		}
	}

	log.Println("graceful shutdown complete")
	return nil
}

// probeStorage checks the bucket once at startup. A failure is logged, not
// fatal: the sink keeps buffering and uploads once the bucket is reachable.
func probeStorage(app *App) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	storage := app.Services.Storage
	if err := storage.IsReady(ctx); err != nil {
		app.Logger.Warn("storage not ready", "check", storage.Name(), "error", err)
		return
	}
	app.Logger.Info("storage ready", "check", storage.Name())
}

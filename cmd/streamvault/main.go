package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/your-org/streamvault/internal/api"
	"github.com/your-org/streamvault/internal/asset"
	"github.com/your-org/streamvault/internal/bundle"
	"github.com/your-org/streamvault/internal/ingest"
	"github.com/your-org/streamvault/internal/storage"
	"github.com/your-org/streamvault/internal/stream"
	"github.com/your-org/streamvault/pkg/config"
	"github.com/your-org/streamvault/pkg/kafka"
	"github.com/your-org/streamvault/pkg/logger"
	"github.com/your-org/streamvault/pkg/metrics"
	"github.com/your-org/streamvault/pkg/storage/objectstore"
	"github.com/your-org/streamvault/pkg/tracing"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logr, err := logger.New(cfg.App.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	traceShutdown, err := tracing.Init(ctx, tracing.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
		Attributes:  parseResourceAttributes(cfg.Tracing.ResourceAttr),
		ServiceName: cfg.App.Name,
	})
	if err != nil {
		logr.Fatal("init tracing", zap.Error(err))
	}
	defer traceShutdown(context.Background()) //nolint:errcheck

	store, err := openStore(cfg.Metadata)
	if err != nil {
		logr.Fatal("init metadata store", zap.Error(err))
	}
	defer store.Close() //nolint:errcheck

	layout, err := storage.NewLayout(cfg.Storage.RootDir)
	if err != nil {
		logr.Fatal("init storage layout", zap.Error(err))
	}
	stager, err := storage.NewStager(cfg.Storage.StagingDir, layout)
	if err != nil {
		logr.Fatal("init staging area", zap.Error(err))
	}

	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		Topic:        cfg.Kafka.JobsTopic,
		BatchSize:    cfg.Kafka.BatchSize,
		BatchTimeout: cfg.Kafka.BatchTimeout,
		Compression:  kafka.CompressionFromString(cfg.Kafka.CompressionCodec),
		RequiredAcks: kafkago.RequireAll,
		MaxAttempts:  cfg.Kafka.Retries,
	})

	var mirror objectstore.Client
	if cfg.ObjectStore.Enabled {
		mirror, err = objectstore.New(objectstore.Config{
			Endpoint:  cfg.ObjectStore.Endpoint,
			Region:    cfg.ObjectStore.Region,
			Bucket:    cfg.ObjectStore.Bucket,
			AccessKey: cfg.ObjectStore.AccessKey,
			SecretKey: cfg.ObjectStore.SecretKey,
			UseSSL:    cfg.ObjectStore.UseSSL,
		})
		if err != nil {
			logr.Fatal("init object store mirror", zap.Error(err))
		}
	}

	service := ingest.NewService(ingest.Params{
		Store:  store,
		Layout: layout,
		Stager: stager,
		Validator: &bundle.Validator{
			MaxBundleBytes: cfg.Upload.MaxBundleBytes,
			PlaylistDepth:  cfg.Storage.PlaylistDepth,
		},
		Producer: producer,
		Mirror:   mirror,
		Logger:   logr,
	})

	consumer := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.ResultsTopic,
		GroupID: cfg.Kafka.ResultsGroupID,
	})
	go func() {
		err := consumer.Run(ctx, service.HandleResultMessage, func(err error) {
			logr.Warn("processing result rejected", zap.Error(err))
		})
		if err != nil {
			logr.Error("result consumer stopped", zap.Error(err))
		}
	}()

	m := metrics.New("streamvault")
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil && err != http.ErrServerClosed {
			logr.Error("metrics listener failed", zap.Error(err))
		}
	}()

	handler := api.NewHandler(api.Params{
		Service:        service,
		Streams:        stream.NewServer(store, layout),
		Store:          store,
		Mirror:         mirror,
		Logger:         logr,
		Metrics:        m,
		MaxBundleBytes: cfg.Upload.MaxBundleBytes,
		FormMemBytes:   cfg.Upload.MultipartMemBytes,
		JWTSecret:      []byte(cfg.Auth.JWTSecret),
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler.Router(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logr.Error("http server shutdown failed", zap.Error(err))
		}
		if err := consumer.Close(); err != nil {
			logr.Error("consumer shutdown failed", zap.Error(err))
		}
		if err := producer.Close(shutdownCtx); err != nil {
			logr.Error("producer shutdown failed", zap.Error(err))
		}
	}()

	logr.Info("streamvault starting",
		zap.String("addr", cfg.HTTP.Addr),
		zap.String("storage_root", layout.Root()),
		zap.String("metadata_driver", cfg.Metadata.Driver))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logr.Fatal("http server failed", zap.Error(err))
	}
}

func openStore(cfg config.MetadataConfig) (asset.Store, error) {
	switch cfg.Driver {
	case "postgres":
		return asset.NewPostgresStore(cfg.DSN)
	default:
		return asset.NewSQLiteStore(cfg.DSN)
	}
}

func parseResourceAttributes(raw string) map[string]string {
	attrs := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" || !strings.Contains(pair, "=") {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		attrs[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return attrs
}

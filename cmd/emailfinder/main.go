// Package main wires together the email finder service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcppubsub "cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/passivleads/emailfinder/internal/api"
	"github.com/passivleads/emailfinder/internal/batch"
	"github.com/passivleads/emailfinder/internal/clock/system"
	"github.com/passivleads/emailfinder/internal/config"
	"github.com/passivleads/emailfinder/internal/discovery"
	"github.com/passivleads/emailfinder/internal/discovery/headless"
	"github.com/passivleads/emailfinder/internal/id/uuid"
	"github.com/passivleads/emailfinder/internal/ledger"
	ledgerMemory "github.com/passivleads/emailfinder/internal/ledger/memory"
	ledgerPostgres "github.com/passivleads/emailfinder/internal/ledger/postgres"
	"github.com/passivleads/emailfinder/internal/logging"
	"github.com/passivleads/emailfinder/internal/metrics"
	"github.com/passivleads/emailfinder/internal/policy/ratelimit"
	"github.com/passivleads/emailfinder/internal/progress"
	"github.com/passivleads/emailfinder/internal/progress/sinks"
	pubsubPublisher "github.com/passivleads/emailfinder/internal/publisher/pubsub"
	"github.com/passivleads/emailfinder/internal/storage"
	storageLocal "github.com/passivleads/emailfinder/internal/storage/local"
	storageMemory "github.com/passivleads/emailfinder/internal/storage/memory"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var renderer discovery.Renderer
	if cfg.Discovery.RenderEnabled {
		hl, err := headless.New(headless.Config{
			MaxParallel:       cfg.Discovery.RenderMaxParallel,
			UserAgent:         cfg.Discovery.UserAgent,
			NavigationTimeout: cfg.RenderTimeout(),
		})
		if err != nil {
			logger.Warn("headless renderer init failed", zap.Error(err))
		} else {
			defer hl.Close()
			renderer = hl
		}
	}

	limiter := ratelimit.New(ratelimit.Config{DefaultRPS: cfg.Discovery.RatePerDomain})
	finder := discovery.New(discovery.Config{
		MaxPages:  cfg.Discovery.MaxPages,
		Timeout:   cfg.DiscoveryTimeout(),
		UserAgent: cfg.Discovery.UserAgent,
	}, limiter, renderer, logger.Named("discovery"))

	creditLedger, closeLedger, err := buildLedger(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("ledger init failed", zap.Error(err))
	}
	defer closeLedger()

	store, closeStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("artifact store init failed", zap.Error(err))
	}
	defer closeStore()

	hub, closeHub := buildHub(ctx, cfg, logger)
	defer closeHub()

	apiServer := api.NewServer(api.Deps{
		Crawler: finder,
		Emitter: hub,
		Ledger:  creditLedger,
		Store:   store,
		IDGen:   uuid.New(),
		Clock:   system.New(),
		Logger:  logger.Named("api"),
	}, cfg)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func buildLedger(ctx context.Context, cfg config.Config, logger *zap.Logger) (ledger.Ledger, func(), error) {
	switch cfg.Ledger.Provider {
	case "postgres":
		pg, err := ledgerPostgres.New(ctx, ledgerPostgres.Config{DSN: cfg.Ledger.DSN})
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	case "memory":
		return ledgerMemory.New(nil), func() {}, nil
	default:
		logger.Info("billing disabled, using noop ledger")
		return ledger.Noop{}, func() {}, nil
	}
}

func buildStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (batch.ArtifactStore, func(), error) {
	switch cfg.Storage.Provider {
	case "gcs":
		gcs, err := storage.NewGCSProvider(ctx, cfg.Storage.GCSBucket, cfg.Storage.Prefix, logger.Named("storage"))
		if err != nil {
			return nil, nil, err
		}
		return gcs, func() {
			if err := gcs.Close(); err != nil {
				logger.Warn("close GCS provider failed", zap.Error(err))
			}
		}, nil
	case "local":
		blob, err := storageLocal.New(cfg.Storage.LocalDir, cfg.Storage.Prefix)
		if err != nil {
			return nil, nil, err
		}
		return blob, func() {}, nil
	case "memory":
		return storageMemory.New(), func() {}, nil
	default:
		return storage.NoOpProvider{}, func() {}, nil
	}
}

func buildHub(ctx context.Context, cfg config.Config, logger *zap.Logger) (*progress.Hub, func()) {
	hubSinks := []progress.Sink{sinks.NewLogSink(logger.Named("progress"))}

	if promSink, err := sinks.NewPrometheusSink(nil); err != nil {
		logger.Warn("prometheus sink init failed", zap.Error(err))
	} else {
		hubSinks = append(hubSinks, promSink)
	}

	var closers []func()
	if cfg.PubSub.ProjectID != "" && cfg.PubSub.TopicName != "" {
		client, err := gcppubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Warn("pubsub client init failed", zap.Error(err))
		} else {
			pub := pubsubPublisher.New(client)
			closers = append(closers, func() {
				if err := pub.Close(); err != nil {
					logger.Warn("close pubsub publisher failed", zap.Error(err))
				}
			})
			hubSinks = append(hubSinks, sinks.NewPublishSink(pub, cfg.PubSub.TopicName, logger.Named("publish")))
		}
	}

	// Sinks keep flushing during shutdown, so they get a context that
	// outlives the signal context.
	hub := progress.NewHub(progress.Config{
		BufferSize: cfg.Batch.StreamBuffer,
		Logger:     logger.Named("hub"),
	}, hubSinks...)

	return hub, func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hub.Close(closeCtx); err != nil {
			logger.Warn("hub close failed", zap.Error(err))
		}
		for _, closeFn := range closers {
			closeFn()
		}
	}
}

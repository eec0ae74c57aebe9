// Package app initializes and holds long-lived application services, acting
// as the dependency injection container for the picker.
package app

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/prodfinder/imagepick/internal/api"
	blobgcs "github.com/prodfinder/imagepick/internal/blob/gcs"
	bloblocal "github.com/prodfinder/imagepick/internal/blob/local"
	blobmemory "github.com/prodfinder/imagepick/internal/blob/memory"
	clocksystem "github.com/prodfinder/imagepick/internal/clock/system"
	"github.com/prodfinder/imagepick/internal/config"
	"github.com/prodfinder/imagepick/internal/fetcher/httpimg"
	"github.com/prodfinder/imagepick/internal/logging"
	"github.com/prodfinder/imagepick/internal/metrics"
	"github.com/prodfinder/imagepick/internal/pick"
	"github.com/prodfinder/imagepick/internal/policy/ratelimit"
	"github.com/prodfinder/imagepick/internal/policy/retry"
	"github.com/prodfinder/imagepick/internal/provider/htmlindex"
	"github.com/prodfinder/imagepick/internal/provider/searx"
	pubsubpublisher "github.com/prodfinder/imagepick/internal/publisher/pubsub"
	"github.com/prodfinder/imagepick/internal/scheduler"
	"github.com/prodfinder/imagepick/internal/scorer"
	"github.com/prodfinder/imagepick/internal/selector"
	storememory "github.com/prodfinder/imagepick/internal/store/memory"
	storepostgres "github.com/prodfinder/imagepick/internal/store/postgres"
	"github.com/prodfinder/imagepick/internal/workflow"

	publishermemory "github.com/prodfinder/imagepick/internal/publisher/memory"
)

// App holds the shared, long-lived services for the picker. It is built once
// at startup and handed to the commands that need it.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	store     pick.Store
	engine    *workflow.Engine
	scheduler *scheduler.Scheduler
	server    *api.Server

	closers []func()
}

// New builds the full service graph from configuration. It fails fast when
// any backend cannot be initialized.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	metrics.Init()

	a := &App{cfg: cfg, logger: logger}

	store, err := a.buildStore(ctx)
	if err != nil {
		return nil, err
	}
	a.store = store

	blobs, err := a.buildBlobStore(ctx)
	if err != nil {
		return nil, err
	}

	publisher, err := a.buildPublisher(ctx)
	if err != nil {
		return nil, err
	}

	provider, err := a.buildProvider()
	if err != nil {
		return nil, err
	}

	fetcher := httpimg.New(nil, httpimg.Config{
		Timeout:   cfg.FetchTimeout(),
		MaxBytes:  cfg.Fetcher.MaxBytes,
		UserAgent: cfg.Fetcher.UserAgent,
	}, logger)
	sc := scorer.New(scorer.Config{
		MinWidth:            cfg.Scorer.MinWidth,
		MinHeight:           cfg.Scorer.MinHeight,
		ScoreThreshold:      cfg.Scorer.ScoreThreshold,
		WatermarkConfidence: cfg.Scorer.WatermarkConfidence,
		SubjectCheckEnabled: cfg.Scorer.SubjectCheckEnabled,
	}, logger)
	sel := selector.New(selector.Config{
		MaxCandidates: cfg.Workflow.MaxCandidates,
		ArchivePrefix: cfg.Blob.Prefix,
	}, provider, fetcher, sc, blobs, logger)

	a.engine = workflow.New(workflow.Config{
		MaxAttempts:       cfg.Workflow.MaxAttempts,
		MaxCandidates:     cfg.Workflow.MaxCandidates,
		ClearURLOnExhaust: cfg.Workflow.ClearURLOnExhaust,
		EventTopic:        cfg.Workflow.EventTopic,
	}, sel, store, publisher, clocksystem.New(), logger)

	a.scheduler = scheduler.New(scheduler.Config{
		MaxConcurrent: cfg.Scheduler.MaxConcurrent,
	}, logger)

	a.server = api.NewServer(a.engine, a.scheduler, store, logger)

	logger.Info("application services initialized",
		zap.String("store", cfg.Store.Kind),
		zap.String("provider", cfg.Provider.Kind),
		zap.String("blob", cfg.Blob.Kind),
		zap.String("publisher", cfg.Publisher.Kind))
	return a, nil
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Store returns the product store.
func (a *App) Store() pick.Store { return a.store }

// Engine returns the workflow engine.
func (a *App) Engine() *workflow.Engine { return a.engine }

// Scheduler returns the batch scheduler.
func (a *App) Scheduler() *scheduler.Scheduler { return a.scheduler }

// Server returns the HTTP API server.
func (a *App) Server() *api.Server { return a.server }

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

func (a *App) buildStore(ctx context.Context) (pick.Store, error) {
	switch a.cfg.Store.Kind {
	case "memory":
		return storememory.New(), nil
	case "postgres":
		store, err := storepostgres.New(ctx, storepostgres.Config{
			DSN:   a.cfg.Store.DSN,
			Table: a.cfg.Store.Table,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize postgres store: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store kind %q", a.cfg.Store.Kind)
	}
}

func (a *App) buildBlobStore(ctx context.Context) (pick.BlobStore, error) {
	switch a.cfg.Blob.Kind {
	case "noop":
		return nil, nil
	case "memory":
		return blobmemory.NewBlobStore(), nil
	case "local":
		return bloblocal.New(bloblocal.Config{BaseDir: a.cfg.Blob.BaseDir})
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("initialize gcs client: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		return blobgcs.New(client, blobgcs.Config{Bucket: a.cfg.Blob.GCSBucket})
	default:
		return nil, fmt.Errorf("unknown blob kind %q", a.cfg.Blob.Kind)
	}
}

func (a *App) buildPublisher(ctx context.Context) (pick.Publisher, error) {
	switch a.cfg.Publisher.Kind {
	case "noop":
		return nil, nil
	case "memory":
		return publishermemory.New(), nil
	case "pubsub":
		client, err := pubsub.NewClient(ctx, a.cfg.Publisher.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("initialize pubsub client: %w", err)
		}
		topic := client.Topic(a.cfg.Publisher.TopicName)
		pub := pubsubpublisher.New(topic)
		a.closers = append(a.closers, func() {
			pub.Stop()
			_ = client.Close()
		})
		return pub, nil
	default:
		return nil, fmt.Errorf("unknown publisher kind %q", a.cfg.Publisher.Kind)
	}
}

func (a *App) buildProvider() (pick.SearchProvider, error) {
	if a.cfg.Provider.BaseURL == "" {
		return nil, fmt.Errorf("provider.base_url is required")
	}

	var provider pick.SearchProvider
	switch a.cfg.Provider.Kind {
	case "searx":
		provider = searx.New(searx.Config{
			BaseURL:   a.cfg.Provider.BaseURL,
			UserAgent: a.cfg.Fetcher.UserAgent,
		}, retry.NewPolicyWith(a.cfg.Scheduler.MaxRetries, 0, 0), a.logger)
	case "htmlindex":
		provider = htmlindex.New(htmlindex.Config{
			BaseURL:   a.cfg.Provider.BaseURL,
			UserAgent: a.cfg.Fetcher.UserAgent,
		}, a.logger)
	default:
		return nil, fmt.Errorf("unknown provider kind %q", a.cfg.Provider.Kind)
	}

	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   a.cfg.Provider.RateRPS,
		DefaultBurst: a.cfg.Provider.RateBurst,
	})
	return ratelimit.Limit(provider, limiter), nil
}

// Close gracefully shuts down every service the App owns.
func (a *App) Close() {
	a.logger.Info("shutting down application services")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.logger.Sync()
}

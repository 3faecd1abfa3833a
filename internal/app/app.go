package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/yungbote/northstar-backend/internal/data/aggregates"
	"github.com/yungbote/northstar-backend/internal/data/db"
	"github.com/yungbote/northstar-backend/internal/data/repos"
	httpx "github.com/yungbote/northstar-backend/internal/http"
	httpH "github.com/yungbote/northstar-backend/internal/http/handlers"
	"github.com/yungbote/northstar-backend/internal/modules/attribution/engine"
	"github.com/yungbote/northstar-backend/internal/modules/attribution/identity"
	"github.com/yungbote/northstar-backend/internal/modules/attribution/labels"
	"github.com/yungbote/northstar-backend/internal/modules/attribution/peercredit"
	"github.com/yungbote/northstar-backend/internal/modules/attribution/repocontext"
	"github.com/yungbote/northstar-backend/internal/modules/attribution/skillledger"
	"github.com/yungbote/northstar-backend/internal/modules/attribution/triage"
	"github.com/yungbote/northstar-backend/internal/modules/attribution/workflow"
	"github.com/yungbote/northstar-backend/internal/observability"
	"github.com/yungbote/northstar-backend/internal/platform/envutil"
	"github.com/yungbote/northstar-backend/internal/platform/logger"
	"github.com/yungbote/northstar-backend/internal/platform/openai"
	"github.com/yungbote/northstar-backend/internal/platform/redisx"
	"github.com/yungbote/northstar-backend/internal/temporalx"
	"github.com/yungbote/northstar-backend/internal/temporalx/delivery"
	"github.com/yungbote/northstar-backend/internal/temporalx/temporalworker"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	DB       *gorm.DB
	Redis    *goredis.Client
	Temporal temporalsdkclient.Client
	Metrics  *observability.Metrics
	Repos    repos.Set

	Engine     *engine.Engine
	Dispatcher *engine.Dispatcher

	closers []func(context.Context) error
}

// New wires the engine and its collaborators. withTemporal forces a Temporal
// client even in inline dispatch mode, for the worker binary.
func New(ctx context.Context, withTemporal bool) (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a := &App{Log: log, Cfg: cfg}
	if err := a.wire(ctx, withTemporal); err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context, withTemporal bool) error {
	log, cfg := a.Log, a.Cfg
	log.Info("Wiring attribution engine", "environment", cfg.Environment, "dispatch", cfg.Dispatch)

	a.Metrics = observability.Init(log)
	a.closers = append(a.closers, observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
	}))

	// Postgres
	pg, err := db.NewPostgresService(log, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("init postgres: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return pg.Close() })
	if err := pg.AutoMigrateAll(); err != nil {
		return fmt.Errorf("postgres automigrate: %w", err)
	}
	a.DB = pg.DB()
	a.Repos = repos.NewSet(a.DB, log)
	a.Metrics.StartPostgresCollector(ctx, log, a.DB)
	a.Metrics.StartLedgerCollector(ctx, log, a.DB)

	// Redis pre-check is optional; the ledger stays authoritative without it.
	keystore := redisx.DeliveryKeystore(redisx.NopKeystore{})
	if cfg.RedisAddr != "" {
		rdb, err := redisx.NewClient(ctx, cfg.RedisAddr)
		if err != nil {
			log.Warn("Redis unavailable; delivery pre-check disabled", "error", err)
		} else {
			a.Redis = rdb
			a.closers = append(a.closers, func(context.Context) error { return rdb.Close() })
			keystore = redisx.NewDeliveryKeystore(log, rdb, cfg.DeliveryTTL)
			a.Metrics.StartRedisCollector(ctx, log, rdb)
		}
	}

	labeler := labels.Labeler(labels.Noop{})
	if cfg.LabelerEnabled {
		client, err := openai.NewClient(log)
		if err != nil {
			return fmt.Errorf("init skill labeler: %w", err)
		}
		labeler = labels.NewLLMLabeler(log, client)
	}

	signals := observability.NewAttributionSignals(a.Metrics, log)
	set := a.Repos
	eng, err := engine.New(engine.Deps{
		Log: log,
		Deliveries: aggregates.NewDeliveryAggregate(aggregates.DeliveryAggregateDeps{
			Base: aggregates.BaseDeps{
				DB:    a.DB,
				Log:   log,
				Hooks: aggregates.NewObservabilityHooks(a.Metrics),
			},
			EventLog: set.EventLog,
		}),
		EventLog:    set.EventLog,
		Context:     repocontext.NewResolver(log, set.RepoMappings, set.IssueProjects),
		Identity:    identity.NewResolver(log, set.Developers, set.Identities, cfg.AutoProvision),
		Workflows:   workflow.NewAggregator(log, cfg.Weights, set.Workflows, skillledger.NewWriter(log, set.Skills, set.DeveloperSkills), signals),
		PeerCredit:  peercredit.NewAllocator(log, cfg.Weights, set.Developers, set.PeerCredits),
		Triage:      triage.NewSink(log, set.Triage, signals),
		Labeler:     labeler,
		Keystore:    keystore,
		Signals:     signals,
		Metrics:     a.Metrics,
		CallTimeout: cfg.CallTimeout,
	})
	if err != nil {
		return err
	}
	a.Engine = eng
	a.Dispatcher = engine.NewDispatcher(log, eng, cfg.LocalConcurrency)

	if withTemporal || cfg.Dispatch == DispatchTemporal {
		tc, err := temporalx.NewClient(ctx, log, cfg.Temporal)
		if err != nil {
			return err
		}
		if tc != nil {
			a.Temporal = tc
			a.closers = append(a.closers, func(context.Context) error { tc.Close(); return nil })
		}
	}
	return nil
}

// Router builds the webhook intake for the configured dispatch mode.
func (a *App) Router() (*gin.Engine, error) {
	var intake httpH.Intake = inlineIntake{dispatcher: a.Dispatcher}
	if a.Cfg.Dispatch == DispatchTemporal {
		starter, err := delivery.NewStarter(a.Temporal, a.Cfg.Temporal.TaskQueue)
		if err != nil {
			return nil, err
		}
		intake = queuedIntake{starter: starter}
	}

	checks := map[string]httpH.Pinger{
		"postgres": func(ctx context.Context) error {
			sqlDB, err := a.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() }
	}

	return httpx.NewRouter(httpx.RouterConfig{
		ServiceName:    a.Cfg.ServiceName,
		Log:            a.Log,
		Metrics:        a.Metrics,
		WebhookHandler: httpH.NewWebhookHandler(a.Log, intake, a.Cfg.WebhookSecrets),
		HealthHandler:  httpH.NewHealthHandler(checks),
	}), nil
}

// RunHTTP serves the webhook intake until ctx is done.
func (a *App) RunHTTP(ctx context.Context) error {
	router, err := a.Router()
	if err != nil {
		return err
	}
	a.Log.Info("HTTP intake listening", "addr", a.Cfg.HTTPAddr)
	return (&httpx.Server{Engine: router}).Run(ctx, a.Cfg.HTTPAddr)
}

// RunWorker polls the Temporal task queue until ctx is done.
func (a *App) RunWorker(ctx context.Context) error {
	runner, err := temporalworker.NewRunner(a.Log, a.Temporal, a.Cfg.Temporal, a.Engine, a.Metrics, envutil.Int("WORKER_CONCURRENCY", 4))
	if err != nil {
		return err
	}
	if addr := envutil.String("METRICS_ADDR", ""); addr != "" {
		a.Metrics.StartServer(ctx, a.Log, addr)
	}
	if err := runner.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func (a *App) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i](ctx))
	}
	a.closers = nil
	if a.Log != nil {
		a.Log.Sync()
	}
	return err
}

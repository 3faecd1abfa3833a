package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/northstar-backend/internal/data/db"
	httpH "github.com/yungbote/northstar-backend/internal/http/handlers"
	"github.com/yungbote/northstar-backend/internal/modules/attribution/scoring"
	"github.com/yungbote/northstar-backend/internal/platform/envutil"
	"github.com/yungbote/northstar-backend/internal/platform/redisx"
	"github.com/yungbote/northstar-backend/internal/temporalx"
)

const (
	DispatchInline   = "inline"
	DispatchTemporal = "temporal"
)

type Config struct {
	Environment string
	LogMode     string
	ServiceName string
	HTTPAddr    string

	Postgres    db.PostgresConfig
	RedisAddr   string
	DeliveryTTL time.Duration

	LabelerEnabled bool
	AutoProvision  bool

	Dispatch         string
	CallTimeout      time.Duration
	LocalConcurrency int

	WebhookSecrets httpH.WebhookSecrets
	Temporal       temporalx.Config
	Weights        scoring.Weights
}

func LoadConfig() (Config, error) {
	weights, err := scoring.LoadWeights()
	if err != nil {
		return Config{}, fmt.Errorf("scoring weights: %w", err)
	}
	cfg := Config{
		Environment: envutil.String("ENVIRONMENT", "development"),
		LogMode:     envutil.String("LOG_MODE", "development"),
		ServiceName: envutil.String("OTEL_SERVICE_NAME", "northstar-attribution"),
		HTTPAddr:    envutil.String("HTTP_ADDR", ":8080"),

		Postgres:    db.LoadPostgresConfig(),
		RedisAddr:   envutil.String("REDIS_ADDR", ""),
		DeliveryTTL: envutil.Duration("ATTRIBUTION_DELIVERY_TTL", redisx.DefaultDeliveryTTL),

		LabelerEnabled: envutil.Bool("SKILL_LABELER_ENABLED", false),
		AutoProvision:  envutil.Bool("AUTO_PROVISION_ENABLED", false),

		Dispatch:         strings.ToLower(envutil.String("ATTRIBUTION_DISPATCH", DispatchInline)),
		CallTimeout:      envutil.Duration("ATTRIBUTION_CALL_TIMEOUT", 30*time.Second),
		LocalConcurrency: envutil.Int("ATTRIBUTION_LOCAL_CONCURRENCY", 8),

		WebhookSecrets: httpH.WebhookSecrets{
			SourceControl: []byte(envutil.String("WEBHOOK_SECRET_SOURCE_CONTROL", "")),
			IssueTracker:  []byte(envutil.String("WEBHOOK_SECRET_ISSUE_TRACKER", "")),
		},
		Temporal: temporalx.LoadConfig(),
		Weights:  weights,
	}
	switch cfg.Dispatch {
	case DispatchInline:
	case DispatchTemporal:
		if !cfg.Temporal.Enabled() {
			return Config{}, fmt.Errorf("ATTRIBUTION_DISPATCH=temporal requires TEMPORAL_ADDRESS")
		}
	default:
		return Config{}, fmt.Errorf("unknown ATTRIBUTION_DISPATCH %q", cfg.Dispatch)
	}
	return cfg, nil
}

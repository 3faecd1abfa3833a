package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/northstar-backend/internal/http/handlers"
	httpMW "github.com/yungbote/northstar-backend/internal/http/middleware"
	"github.com/yungbote/northstar-backend/internal/observability"
	"github.com/yungbote/northstar-backend/internal/platform/logger"
)

type RouterConfig struct {
	ServiceName string
	Log         *logger.Logger
	Metrics     *observability.Metrics

	WebhookHandler *httpH.WebhookHandler
	HealthHandler  *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	// Webhooks
	if cfg.WebhookHandler != nil {
		hooks := r.Group("/webhooks")
		hooks.POST("/source-control", cfg.WebhookHandler.SourceControl)
		hooks.POST("/issue-tracker", cfg.WebhookHandler.IssueTracker)
	}

	return r
}

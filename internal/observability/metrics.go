package observability

import (
	"context"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	types "github.com/yungbote/northstar-backend/internal/domain"
	"github.com/yungbote/northstar-backend/internal/platform/logger"
)

type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge

	llmRequests *CounterVec
	llmLatency  *HistogramVec
	llmTokens   *CounterVec

	activityTime *HistogramVec
	workerTotal  *Counter
	workerError  *Counter

	aggregateOps       *CounterVec
	aggregateLatency   *HistogramVec
	aggregateConflicts *CounterVec
	aggregateRetries   *CounterVec

	attributionEvents *CounterVec
	deliveryLatency   *HistogramVec
	skillDelta        *HistogramVec
	timeToMerge       *HistogramVec
	ledgerRows        *GaugeVec

	pgStats   *GaugeVec
	redisUp   *Gauge
	redisPing *Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return parseBoolEnv("METRICS_ENABLED", false)
}

func Current() *Metrics {
	return instance
}

// Init builds the process-wide registry when METRICS_ENABLED is set, and returns nil otherwise.
// Every method on a nil *Metrics is a no-op.
func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = New()
		if log != nil {
			log.Info("Observability metrics enabled")
		}
	})
	return instance
}

// New builds an unregistered metrics set.
func New() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("northstar_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"northstar_api_request_duration_seconds",
			"API request latency in seconds by method/route/status.",
			[]string{"method", "route", "status"},
			[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		),
		apiInflight: NewGauge("northstar_api_inflight_requests", "In-flight API requests."),
		llmRequests: NewCounterVec("northstar_llm_requests_total", "LLM requests by model/endpoint/status.", []string{"model", "endpoint", "status"}),
		llmLatency: NewHistogramVec(
			"northstar_llm_request_duration_seconds",
			"LLM request latency in seconds by model/endpoint/status.",
			[]string{"model", "endpoint", "status"},
			[]float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		),
		llmTokens: NewCounterVec("northstar_llm_tokens_total", "LLM tokens by model/direction.", []string{"model", "direction"}),
		activityTime: NewHistogramVec(
			"northstar_worker_activity_duration_seconds",
			"Worker activity duration in seconds.",
			[]string{"activity", "status"},
			[]float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		),
		workerTotal:  NewCounter("northstar_worker_activity_total", "Total worker activities."),
		workerError:  NewCounter("northstar_worker_activity_error_total", "Total worker activities with failure status."),
		aggregateOps: NewCounterVec("northstar_aggregate_operations_total", "Aggregate write operations by name/status.", []string{"aggregate", "status"}),
		aggregateLatency: NewHistogramVec(
			"northstar_aggregate_operation_duration_seconds",
			"Aggregate write latency in seconds by name/status.",
			[]string{"aggregate", "status"},
			[]float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		),
		aggregateConflicts: NewCounterVec("northstar_aggregate_conflicts_total", "Aggregate conflicts by name.", []string{"aggregate"}),
		aggregateRetries:   NewCounterVec("northstar_aggregate_retries_total", "Aggregate retryable failures by name.", []string{"aggregate"}),
		attributionEvents:  NewCounterVec("northstar_attribution_events_total", "Attribution lifecycle and modifier events by name/tag.", []string{"name", "tag"}),
		deliveryLatency: NewHistogramVec(
			"northstar_attribution_delivery_duration_seconds",
			"Delivery processing latency in seconds by provider/outcome.",
			[]string{"provider", "outcome"},
			[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		),
		skillDelta: NewHistogramVec(
			"northstar_attribution_skill_delta",
			"Finalized skill delta distribution.",
			[]string{},
			[]float64{-2, -1, -0.5, -0.25, 0, 0.25, 0.5, 1, 1.5, 2, 2.5, 3},
		),
		timeToMerge: NewHistogramVec(
			"northstar_attribution_time_to_merge_seconds",
			"Time from pull request creation to merge for finalized workflows.",
			[]string{},
			[]float64{600, 3600, 4 * 3600, 12 * 3600, 24 * 3600, 48 * 3600, 7 * 24 * 3600, 30 * 24 * 3600},
		),
		ledgerRows: NewGaugeVec("northstar_attribution_ledger_rows", "Idempotency ledger rows by status.", []string{"status"}),
		pgStats:    NewGaugeVec("northstar_postgres_stats", "Postgres connection stats.", []string{"metric"}),
		redisUp:    NewGauge("northstar_redis_up", "Redis connectivity (1=up, 0=down)."),
		redisPing:  NewGauge("northstar_redis_ping_seconds", "Redis ping latency in seconds."),
	}
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

type promWriter interface {
	WritePrometheus(w io.Writer) error
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, c := range []promWriter{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.llmRequests, m.llmLatency, m.llmTokens,
		m.activityTime, m.workerTotal, m.workerError,
		m.aggregateOps, m.aggregateLatency, m.aggregateConflicts, m.aggregateRetries,
		m.attributionEvents, m.deliveryLatency, m.skillDelta, m.timeToMerge, m.ledgerRows,
		m.pgStats, m.redisUp, m.redisPing,
	} {
		if err := c.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveActivity(activityName, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if activityName == "" {
		activityName = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	m.activityTime.Observe(dur.Seconds(), activityName, status)
	m.workerTotal.Inc()
	if isFailureStatus(status) {
		m.workerError.Inc()
	}
}

func (m *Metrics) ObserveLLMRequest(model, endpoint, status string, dur time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = "unknown"
	}
	m.llmRequests.Inc(model, endpoint, status)
	if dur > 0 {
		m.llmLatency.Observe(dur.Seconds(), model, endpoint, status)
	}
	if inputTokens > 0 {
		m.llmTokens.Add(float64(inputTokens), model, "input")
	}
	if outputTokens > 0 {
		m.llmTokens.Add(float64(outputTokens), model, "output")
	}
}

func (m *Metrics) ObserveAggregateOperation(name, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.aggregateOps.Inc(name, status)
	m.aggregateLatency.Observe(dur.Seconds(), name, status)
}

func (m *Metrics) IncAggregateConflict(name string) {
	if m == nil {
		return
	}
	m.aggregateConflicts.Inc(name)
}

func (m *Metrics) IncAggregateRetry(name string) {
	if m == nil {
		return
	}
	m.aggregateRetries.Inc(name)
}

func (m *Metrics) IncAttributionEvent(name, tag string) {
	if m == nil {
		return
	}
	if tag == "" {
		tag = "none"
	}
	m.attributionEvents.Inc(name, tag)
}

// AttributionEventCount reads one name/tag series back.
func (m *Metrics) AttributionEventCount(name, tag string) float64 {
	if m == nil {
		return 0
	}
	return m.attributionEvents.Value(name, tag)
}

func (m *Metrics) ObserveDelivery(provider, outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.deliveryLatency.Observe(dur.Seconds(), provider, outcome)
}

func (m *Metrics) ObserveSkillDelta(delta float64) {
	if m == nil {
		return
	}
	m.skillDelta.Observe(delta)
}

func (m *Metrics) ObserveTimeToMerge(seconds float64) {
	if m == nil || seconds < 0 {
		return
	}
	m.timeToMerge.Observe(seconds)
}

func (m *Metrics) StartPostgresCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sqlDB, err := db.DB()
				if err != nil {
					if log != nil {
						log.Warn("metrics: postgres stats unavailable", "error", err)
					}
					continue
				}
				stats := sqlDB.Stats()
				m.pgStats.Set(float64(stats.OpenConnections), "open_connections")
				m.pgStats.Set(float64(stats.InUse), "in_use")
				m.pgStats.Set(float64(stats.Idle), "idle")
				m.pgStats.Set(float64(stats.WaitCount), "wait_count")
				m.pgStats.Set(stats.WaitDuration.Seconds(), "wait_duration_seconds")
				m.pgStats.Set(float64(stats.MaxOpenConnections), "max_open_connections")
			}
		}
	}()
}

// StartLedgerCollector samples idempotency ledger row counts by status.
func (m *Metrics) StartLedgerCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	statuses := []string{types.LedgerStatusProcessed, types.LedgerStatusSkipped, types.LedgerStatusError}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, s := range statuses {
					m.ledgerRows.Set(0, s)
				}
				var rows []struct {
					Status string
					Count  int64
				}
				if err := db.WithContext(ctx).
					Model(&types.IntegrationEventLog{}).
					Select("status, count(*) as count").
					Group("status").
					Scan(&rows).Error; err != nil {
					if log != nil {
						log.Warn("metrics: ledger status query failed", "error", err)
					}
					continue
				}
				for _, row := range rows {
					m.ledgerRows.Set(float64(row.Count), row.Status)
				}
			}
		}
	}()
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb redis.UniversalClient) {
	if m == nil || rdb == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}

func parseBoolEnv(key string, fallback bool) bool {
	val := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch val {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func scrapeInterval() time.Duration {
	v := strings.TrimSpace(os.Getenv("METRICS_SCRAPE_INTERVAL_SECONDS"))
	if v == "" {
		return 10 * time.Second
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 10 * time.Second
	}
	return time.Duration(n) * time.Second
}

func isFailureStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "failed", "failure", "error", "timeout", "panic":
		return true
	default:
		return false
	}
}

package observability

import (
	"github.com/yungbote/northstar-backend/internal/platform/logger"
)

// AttributionSignals turns engine lifecycle and modifier events into counters and
// histograms. It never returns an error and recovers from its own panics.
type AttributionSignals struct {
	metrics *Metrics
	log     *logger.Logger
}

func NewAttributionSignals(metrics *Metrics, log *logger.Logger) *AttributionSignals {
	if log == nil {
		log = logger.Nop()
	}
	return &AttributionSignals{metrics: metrics, log: log.With("component", "AttributionSignals")}
}

func (s *AttributionSignals) Emit(name, tag string, kv ...any) {
	if s == nil {
		return
	}
	defer s.recover(name)
	s.metrics.IncAttributionEvent(name, tag)
	s.log.Debug(name, append([]any{"tag", tag}, kv...)...)
}

func (s *AttributionSignals) ObserveDelta(tenant string, delta float64) {
	if s == nil {
		return
	}
	defer s.recover("skill.delta")
	s.metrics.ObserveSkillDelta(delta)
	s.log.Debug("skill.delta", "tenant", tenant, "delta", delta)
}

func (s *AttributionSignals) ObserveTimeToMerge(tenant string, seconds float64) {
	if s == nil {
		return
	}
	defer s.recover("workflow.time_to_merge")
	s.metrics.ObserveTimeToMerge(seconds)
}

func (s *AttributionSignals) recover(name string) {
	if r := recover(); r != nil {
		s.log.Warn("attribution signal panicked", "signal", name, "panic", r)
	}
}

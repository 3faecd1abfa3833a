// Package triage records deliveries the engine could not act on.
package triage

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/northstar-backend/internal/data/repos"
	types "github.com/yungbote/northstar-backend/internal/domain"
	"github.com/yungbote/northstar-backend/internal/modules/attribution/signal"
	"github.com/yungbote/northstar-backend/internal/platform/dbctx"
	"github.com/yungbote/northstar-backend/internal/platform/logger"
)

type Sink interface {
	// Record appends one triage row inside the caller's transaction.
	Record(dbc dbctx.Context, provider, deliveryKey, reason string, payload []byte) error
}

type sink struct {
	log     *logger.Logger
	repo    repos.AttributionTriageRepo
	signals signal.Emitter
}

func NewSink(log *logger.Logger, repo repos.AttributionTriageRepo, signals signal.Emitter) Sink {
	return &sink{
		log:     log.With("service", "TriageSink"),
		repo:    repo,
		signals: signal.OrNop(signals),
	}
}

func (s *sink) Record(dbc dbctx.Context, provider, deliveryKey, reason string, payload []byte) error {
	reason = strings.TrimSpace(reason)
	body := datatypes.JSON(`{}`)
	switch {
	case len(payload) == 0:
	case json.Valid(payload):
		body = datatypes.JSON(payload)
	default:
		// Unparseable bytes are kept verbatim as a JSON string.
		raw, err := json.Marshal(string(payload))
		if err != nil {
			return err
		}
		body = datatypes.JSON(raw)
	}
	row := &types.AttributionTriage{
		ID:          uuid.New(),
		Provider:    provider,
		DeliveryKey: deliveryKey,
		Reason:      reason,
		Payload:     body,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.Create(dbc, row); err != nil {
		return err
	}
	s.log.Info("attribution.triage", "provider", provider, "delivery", deliveryKey, "reason", reason)
	signal.For(dbc.Ctx, s.signals).Emit(signal.Triage, reason, "provider", provider)
	return nil
}

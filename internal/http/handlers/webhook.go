package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/go-github/v68/github"
	"github.com/tidwall/gjson"

	types "github.com/yungbote/northstar-backend/internal/domain"
	domainagg "github.com/yungbote/northstar-backend/internal/domain/aggregates"
	httpMW "github.com/yungbote/northstar-backend/internal/http/middleware"
	"github.com/yungbote/northstar-backend/internal/http/response"
	"github.com/yungbote/northstar-backend/internal/modules/attribution/sourcecontrol"
	"github.com/yungbote/northstar-backend/internal/platform/logger"
)

const (
	headerIssueTrackerDelivery  = "X-Atlassian-Webhook-Identifier"
	headerIssueTrackerSignature = "X-Hub-Signature"
	defaultMaxBody              = 5 << 20
)

// Intake accepts one decoded delivery. Inline intake processes it before
// returning; queued intake only enqueues it.
type Intake interface {
	Submit(ctx context.Context, env types.Envelope) (Receipt, error)
}

type Receipt struct {
	Provider     string    `json:"provider"`
	DeliveryKey  string    `json:"delivery_key"`
	Outcome      string    `json:"outcome"`
	TriageReason string    `json:"triage_reason,omitempty"`
	WorkflowIDs  []string  `json:"workflow_ids,omitempty"`
	QueuedAs     string    `json:"queued_as,omitempty"`
	Finalized    int       `json:"finalized,omitempty"`
	ReceivedAt   time.Time `json:"received_at"`
}

type WebhookSecrets struct {
	SourceControl []byte
	IssueTracker  []byte
}

type WebhookHandler struct {
	log     *logger.Logger
	intake  Intake
	secrets WebhookSecrets
	maxBody int64
}

func NewWebhookHandler(log *logger.Logger, intake Intake, secrets WebhookSecrets) *WebhookHandler {
	return &WebhookHandler{
		log:     log.With("handler", "WebhookHandler"),
		intake:  intake,
		secrets: secrets,
		maxBody: defaultMaxBody,
	}
}

// POST /webhooks/source-control
func (h *WebhookHandler) SourceControl(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody)
	payload, err := sourcecontrol.ReadPayload(c.Request, h.secrets.SourceControl)
	if err != nil {
		h.reject(c, err)
		return
	}
	h.submit(c, types.Envelope{
		Provider:    types.ProviderSourceControl,
		DeliveryKey: sourcecontrol.DeliveryKey(c.Request),
		EventKind:   sourcecontrol.EventKind(c.Request),
		Payload:     payload,
		ReceivedAt:  time.Now().UTC(),
	})
}

// POST /webhooks/issue-tracker
func (h *WebhookHandler) IssueTracker(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody))
	if err != nil {
		h.reject(c, err)
		return
	}
	if len(h.secrets.IssueTracker) > 0 {
		if err := github.ValidateSignature(c.GetHeader(headerIssueTrackerSignature), payload, h.secrets.IssueTracker); err != nil {
			h.reject(c, errors.Join(sourcecontrol.ErrSignature, err))
			return
		}
	}
	h.submit(c, types.Envelope{
		Provider:    types.ProviderIssueTracker,
		DeliveryKey: strings.TrimSpace(c.GetHeader(headerIssueTrackerDelivery)),
		EventKind:   gjson.GetBytes(payload, "webhookEvent").String(),
		Payload:     payload,
		ReceivedAt:  time.Now().UTC(),
	})
}

func (h *WebhookHandler) submit(c *gin.Context, env types.Envelope) {
	if env.DeliveryKey != "" {
		c.Set(httpMW.DeliveryKeyContextKey, env.DeliveryKey)
	}
	receipt, err := h.intake.Submit(c.Request.Context(), env)
	if err != nil {
		h.log.Warn("webhook intake failed", "provider", env.Provider, "event_kind", env.EventKind, "delivery", env.DeliveryKey, "error", err)
		if domainagg.IsCode(err, domainagg.CodeValidation) {
			response.RespondError(c, http.StatusBadRequest, "invalid_delivery", err)
			return
		}
		// A 5xx lets the sender redeliver.
		response.RespondError(c, http.StatusInternalServerError, "intake_failed", err)
		return
	}
	c.Set(httpMW.DeliveryKeyContextKey, receipt.DeliveryKey)
	c.JSON(http.StatusAccepted, receipt)
}

func (h *WebhookHandler) reject(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, sourcecontrol.ErrSignature):
		response.RespondError(c, http.StatusUnauthorized, "invalid_signature", err)
	case errors.As(err, &tooLarge):
		response.RespondError(c, http.StatusRequestEntityTooLarge, "payload_too_large", err)
	default:
		response.RespondError(c, http.StatusBadRequest, "invalid_payload", err)
	}
}

// Package issuetracker decodes issue-tracker webhook deliveries into events.
package issuetracker

import (
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/yungbote/northstar-backend/internal/modules/attribution/events"
)

// Decode reads an issue-tracker webhook body. kind falls back to the body's
// webhookEvent field.
func Decode(kind string, payload []byte) (events.Event, error) {
	if !gjson.ValidBytes(payload) {
		return nil, fmt.Errorf("%w: issue-tracker body is not valid json", events.ErrMalformedPayload)
	}
	body := gjson.ParseBytes(payload)
	kind = strings.TrimSpace(kind)
	if kind == "" {
		kind = body.Get("webhookEvent").String()
	}
	if !strings.HasPrefix(kind, "jira:issue_") {
		return events.UnsupportedEvent{EventKind: kind}, nil
	}

	key := strings.TrimSpace(body.Get("issue.key").String())
	if key == "" {
		return nil, fmt.Errorf("%w: issue.key missing", events.ErrMalformedPayload)
	}
	projectKey := strings.TrimSpace(body.Get("issue.fields.project.key").String())
	if projectKey == "" {
		projectKey = events.ProjectKeyOf(key)
	}
	return events.IssueTransitionEvent{
		IssueKey:   key,
		ProjectKey: strings.ToUpper(projectKey),
		Status:     body.Get("issue.fields.status.name").String(),
		ResolvedAt: parseTime(body.Get("issue.fields.resolutiondate").String()),
		Payload:    payload,
	}, nil
}

// DeliveryKey derives a replay-stable key from the body when the transport
// supplied none: the webhook timestamp joined with the issue key.
func DeliveryKey(payload []byte) string {
	body := gjson.ParseBytes(payload)
	if id := strings.TrimSpace(body.Get("id").String()); id != "" {
		return id
	}
	ts := strings.TrimSpace(body.Get("timestamp").String())
	if ts == "" {
		return ""
	}
	if key := strings.TrimSpace(body.Get("issue.key").String()); key != "" {
		return ts + ":" + key
	}
	return ts
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
}

func parseTime(v string) *time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

package issuetracker

import (
	"errors"
	"testing"
	"time"

	"github.com/yungbote/northstar-backend/internal/modules/attribution/events"
)

const donePayload = `{
  "timestamp": 1709300000000,
  "webhookEvent": "jira:issue_updated",
  "issue": {
    "key": "PX-123",
    "fields": {
      "project": {"key": "px"},
      "status": {"name": "Done"},
      "resolutiondate": "2024-03-02T09:30:00.000+0000"
    }
  }
}`

func TestDecodeDoneTransition(t *testing.T) {
	ev, err := Decode("", []byte(donePayload))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	issue, ok := ev.(events.IssueTransitionEvent)
	if !ok {
		t.Fatalf("type: want IssueTransitionEvent got %T", ev)
	}
	if issue.IssueKey != "PX-123" || issue.ProjectKey != "PX" || !issue.Done() {
		t.Fatalf("issue: got=%+v", issue)
	}
	want := time.Date(2024, 3, 2, 9, 30, 0, 0, time.UTC)
	if issue.ResolvedAt == nil || !issue.ResolvedAt.Equal(want) {
		t.Fatalf("resolved at: want=%v got=%v", want, issue.ResolvedAt)
	}
}

func TestDecodeUnsupportedAndMalformed(t *testing.T) {
	ev, err := Decode("", []byte(`{"webhookEvent": "comment_created"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := ev.(events.UnsupportedEvent); !ok {
		t.Fatalf("type: want UnsupportedEvent got %T", ev)
	}
	if _, err := Decode("jira:issue_updated", []byte(`{"issue": {}}`)); !errors.Is(err, events.ErrMalformedPayload) {
		t.Fatalf("missing key: want ErrMalformedPayload got=%v", err)
	}
}

func TestDeliveryKeyFromBody(t *testing.T) {
	if got := DeliveryKey([]byte(donePayload)); got != "1709300000000:PX-123" {
		t.Fatalf("delivery key: got=%s", got)
	}
	if got := DeliveryKey([]byte(`{"id": "abc", "timestamp": 1}`)); got != "abc" {
		t.Fatalf("delivery key with id: got=%s", got)
	}
	if got := DeliveryKey([]byte(`{}`)); got != "" {
		t.Fatalf("delivery key empty: got=%s", got)
	}
}

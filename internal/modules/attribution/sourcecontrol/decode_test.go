package sourcecontrol

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/yungbote/northstar-backend/internal/modules/attribution/events"
)

const pushPayload = `{
  "ref": "refs/heads/main",
  "repository": {"full_name": "acme/api"},
  "pusher": {"name": "Octo", "email": "octo@acme.dev"},
  "sender": {"login": "octo"},
  "commits": [
    {"id": "a1", "message": "PX-123 add parser", "author": {"name": "Octo", "email": "Octo@Acme.dev", "username": "octo"}},
    {"id": "a2", "message": "PX-124 and PX-123 follow-up", "author": {"name": "Octo", "email": "octo@acme.dev", "username": "octo"}}
  ],
  "head_commit": {"id": "a2", "message": "PX-124 and PX-123 follow-up", "pr_number": 42,
    "author": {"name": "Octo", "email": "octo@acme.dev", "username": "octo"}}
}`

const prPayload = `{
  "action": "closed",
  "number": 42,
  "repository": {"full_name": "acme/api"},
  "sender": {"login": "merger"},
  "pull_request": {
    "number": 42,
    "title": "Add parser",
    "body": "Implements PX-123",
    "head": {"ref": "feature/parser"},
    "user": {"login": "Octo"},
    "merged": true,
    "created_at": "2024-03-01T10:00:00Z",
    "merged_at": "2024-03-01T20:00:00Z",
    "merged_by": {"login": "merger"}
  }
}`

const reviewPayload = `{
  "action": "submitted",
  "repository": {"full_name": "acme/api"},
  "sender": {"login": "reviewer"},
  "review": {"id": 9001, "state": "APPROVED", "submitted_at": "2024-03-01T12:00:00Z", "user": {"login": "Reviewer"}},
  "pull_request": {"number": 42, "title": "PX-123 parser", "head": {"ref": "x"}, "user": {"login": "octo"}}
}`

func TestDecodePushCollectsKeysAndActors(t *testing.T) {
	ev, err := Decode("push", []byte(pushPayload))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	push, ok := ev.(events.PushEvent)
	if !ok {
		t.Fatalf("type: want PushEvent got %T", ev)
	}
	if push.Repo != "acme/api" {
		t.Fatalf("repo: want=acme/api got=%s", push.Repo)
	}
	if len(push.JiraKeys) != 2 || push.JiraKeys[0] != "PX-123" || push.JiraKeys[1] != "PX-124" {
		t.Fatalf("keys: got=%v", push.JiraKeys)
	}
	if push.PRNumber == nil || *push.PRNumber != 42 {
		t.Fatalf("pr number: got=%v", push.PRNumber)
	}
	if len(push.Actors.Emails) != 1 || push.Actors.Emails[0] != "octo@acme.dev" {
		t.Fatalf("emails: got=%v", push.Actors.Emails)
	}
	if len(push.Actors.Logins) == 0 || push.Actors.Logins[0] != "octo" {
		t.Fatalf("logins: got=%v", push.Actors.Logins)
	}
}

func TestDecodePullRequestMerged(t *testing.T) {
	ev, err := Decode("pull_request", []byte(prPayload))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	pr := ev.(events.PullRequestEvent)
	if pr.Number != 42 || pr.JiraKey != "PX-123" || !pr.Merged {
		t.Fatalf("pr: got=%+v", pr)
	}
	if pr.CreatedAt == nil || pr.MergedAt == nil || pr.MergedAt.Sub(*pr.CreatedAt).Hours() != 10 {
		t.Fatalf("timestamps: created=%v merged=%v", pr.CreatedAt, pr.MergedAt)
	}
	if pr.Actors.Logins[0] != "octo" {
		t.Fatalf("author should lead login candidates, got=%v", pr.Actors.Logins)
	}
}

func TestDecodeReviewLowercasesState(t *testing.T) {
	ev, err := Decode("pull_request_review", []byte(reviewPayload))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	rv := ev.(events.ReviewEvent)
	if rv.State != events.ReviewApproved || rv.ReviewID != 9001 || rv.PRNumber != 42 || rv.JiraKey != "PX-123" {
		t.Fatalf("review: got=%+v", rv)
	}
	if rv.SubmittedAt == nil || len(rv.Review) == 0 {
		t.Fatalf("review fields missing: %+v", rv)
	}
	if rv.Actors.Logins[0] != "reviewer" {
		t.Fatalf("logins: got=%v", rv.Actors.Logins)
	}
}

func TestDecodeUnsupportedAndMalformed(t *testing.T) {
	ev, err := Decode("issues", []byte(`{}`))
	if err != nil {
		t.Fatalf("unsupported decode: %v", err)
	}
	if _, ok := ev.(events.UnsupportedEvent); !ok {
		t.Fatalf("type: want UnsupportedEvent got %T", ev)
	}
	if _, err := Decode("push", []byte(`{"commits": [`)); !errors.Is(err, events.ErrMalformedPayload) {
		t.Fatalf("malformed: want ErrMalformedPayload got=%v", err)
	}
	if _, err := Decode("pull_request", []byte(`{"action": "opened"}`)); !errors.Is(err, events.ErrMalformedPayload) {
		t.Fatalf("missing pr: want ErrMalformedPayload got=%v", err)
	}
}

func TestDecodePushSkipsCommitWithNonStringMessage(t *testing.T) {
	payload := `{
  "repository": {"full_name": "acme/api"},
  "sender": {"login": "octo"},
  "commits": [
    {"id": "b1", "message": 12345, "author": {"email": "octo@acme.dev"}},
    {"id": "b2", "message": "PX-123 add parser", "author": {"email": "octo@acme.dev"}}
  ]
}`
	ev, err := Decode("push", []byte(payload))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	push, ok := ev.(events.PushEvent)
	if !ok {
		t.Fatalf("type: want PushEvent got %T", ev)
	}
	if push.Repo != "acme/api" || len(push.JiraKeys) != 1 || push.JiraKeys[0] != "PX-123" {
		t.Fatalf("push: repo=%s keys=%v", push.Repo, push.JiraKeys)
	}
	if len(push.Actors.Emails) != 1 || push.Actors.Emails[0] != "octo@acme.dev" {
		t.Fatalf("emails: got=%v", push.Actors.Emails)
	}

	if _, err := Decode("push", []byte(`{"repository": {"full_name": 7}, "commits": [{"message": 1}]}`)); !errors.Is(err, events.ErrMalformedPayload) {
		t.Fatalf("unusable push: want ErrMalformedPayload got=%v", err)
	}
}

func TestReadPayloadVerifiesSignature(t *testing.T) {
	secret := []byte("s3cret")
	body := []byte(`{"zen":"hi"}`)
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	good := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	req := httptest.NewRequest("POST", "/webhooks/source-control", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("X-Hub-Signature-256", good)
	got, err := ReadPayload(req, secret)
	if err != nil || string(got) != string(body) {
		t.Fatalf("valid signature: got=%s err=%v", got, err)
	}

	req = httptest.NewRequest("POST", "/webhooks/source-control", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Hub-Signature-256", "sha256=00")
	if _, err := ReadPayload(req, secret); !errors.Is(err, ErrSignature) {
		t.Fatalf("bad signature: want ErrSignature got=%v", err)
	}
}

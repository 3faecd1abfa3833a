// Package sourcecontrol decodes source-control webhook deliveries into events.
package sourcecontrol

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v68/github"
	"github.com/tidwall/gjson"

	"github.com/yungbote/northstar-backend/internal/modules/attribution/events"
)

// Decode parses payload for the given webhook kind. Kinds the engine does not
// act on decode to events.UnsupportedEvent.
func Decode(kind string, payload []byte) (events.Event, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	switch kind {
	case events.KindPush, events.KindPullRequest, events.KindReview, events.KindReviewComment:
	default:
		return events.UnsupportedEvent{EventKind: kind}, nil
	}
	if !gjson.ValidBytes(payload) {
		return nil, fmt.Errorf("%w: %s body is not valid json", events.ErrMalformedPayload, kind)
	}
	parsed, err := github.ParseWebHook(kind, payload)
	if err != nil {
		if kind == events.KindPush {
			// A commit with an off-type field loses only that commit.
			return decodePushLoose(payload)
		}
		return nil, fmt.Errorf("%w: %v", events.ErrMalformedPayload, err)
	}

	switch ev := parsed.(type) {
	case *github.PushEvent:
		return decodePush(ev, payload), nil
	case *github.PullRequestEvent:
		return decodePullRequest(ev, payload)
	case *github.PullRequestReviewEvent:
		return decodeReview(ev, payload)
	case *github.PullRequestReviewCommentEvent:
		return decodeReviewComment(ev, payload)
	default:
		return events.UnsupportedEvent{EventKind: kind}, nil
	}
}

func decodePush(ev *github.PushEvent, payload []byte) events.PushEvent {
	var messages []string
	for _, c := range ev.Commits {
		if c == nil {
			continue
		}
		messages = append(messages, c.GetMessage())
	}
	messages = append(messages, ev.GetHeadCommit().GetMessage())
	return pushEvent(ev.GetRepo().GetFullName(), messages, payload)
}

// decodePushLoose reads a push the typed parser rejected, keeping only the
// commit messages that are strings.
func decodePushLoose(payload []byte) (events.Event, error) {
	repo := gjson.GetBytes(payload, "repository.full_name")
	if repo.Type != gjson.String || strings.TrimSpace(repo.Str) == "" {
		return nil, fmt.Errorf("%w: push repository missing", events.ErrMalformedPayload)
	}
	var messages []string
	eachString(payload, "commits.#.message", func(m string) { messages = append(messages, m) })
	eachString(payload, "head_commit.message", func(m string) { messages = append(messages, m) })
	return pushEvent(repo.Str, messages, payload), nil
}

func pushEvent(repo string, messages []string, payload []byte) events.PushEvent {
	out := events.PushEvent{
		Repo:     repo,
		JiraKeys: events.JiraKeys(messages...),
		Actors: collect(payload,
			[]string{"head_commit.author.email", "head_commit.committer.email", "commits.#.author.email", "commits.#.committer.email", "pusher.email", "sender.email"},
			[]string{"head_commit.author.username", "head_commit.committer.username", "commits.#.author.username", "pusher.name", "sender.login"},
		),
		Payload: payload,
	}
	if n := gjson.GetBytes(payload, "head_commit.pr_number"); n.Exists() && n.Type == gjson.Number {
		v := int(n.Int())
		out.PRNumber = &v
	}
	return out
}

func decodePullRequest(ev *github.PullRequestEvent, payload []byte) (events.Event, error) {
	pr := ev.GetPullRequest()
	if pr == nil {
		return nil, fmt.Errorf("%w: pull_request object missing", events.ErrMalformedPayload)
	}
	number := ev.GetNumber()
	if number == 0 {
		number = pr.GetNumber()
	}
	if number == 0 {
		return nil, fmt.Errorf("%w: pull request number missing", events.ErrMalformedPayload)
	}
	out := events.PullRequestEvent{
		Repo:      ev.GetRepo().GetFullName(),
		Action:    ev.GetAction(),
		Number:    number,
		JiraKey:   jiraKeyOf(pr),
		CreatedAt: timeOf(pr.CreatedAt),
		Merged:    pr.GetMerged(),
		MergedAt:  timeOf(pr.MergedAt),
		Actors: collect(payload,
			[]string{"pull_request.user.email", "sender.email", "pull_request.merged_by.email"},
			[]string{"pull_request.user.login", "sender.login", "pull_request.merged_by.login"},
		),
		Payload: payload,
	}
	return out, nil
}

func decodeReview(ev *github.PullRequestReviewEvent, payload []byte) (events.Event, error) {
	pr, review := ev.GetPullRequest(), ev.GetReview()
	if pr == nil || review == nil {
		return nil, fmt.Errorf("%w: review or pull_request object missing", events.ErrMalformedPayload)
	}
	return events.ReviewEvent{
		Repo:        ev.GetRepo().GetFullName(),
		PRNumber:    pr.GetNumber(),
		JiraKey:     jiraKeyOf(pr),
		ReviewID:    review.GetID(),
		State:       strings.ToLower(strings.TrimSpace(review.GetState())),
		SubmittedAt: timeOf(review.SubmittedAt),
		Actors: collect(payload,
			[]string{"review.user.email", "sender.email"},
			[]string{"review.user.login", "sender.login"},
		),
		Author: collect(payload,
			[]string{"pull_request.user.email"},
			[]string{"pull_request.user.login"},
		),
		Review: rawOf(payload, "review"),
	}, nil
}

func decodeReviewComment(ev *github.PullRequestReviewCommentEvent, payload []byte) (events.Event, error) {
	pr, comment := ev.GetPullRequest(), ev.GetComment()
	if pr == nil || comment == nil {
		return nil, fmt.Errorf("%w: comment or pull_request object missing", events.ErrMalformedPayload)
	}
	return events.ReviewCommentEvent{
		Repo:      ev.GetRepo().GetFullName(),
		PRNumber:  pr.GetNumber(),
		JiraKey:   jiraKeyOf(pr),
		CommentID: comment.GetID(),
		Actors: collect(payload,
			[]string{"comment.user.email", "sender.email"},
			[]string{"comment.user.login", "sender.login"},
		),
		Author: collect(payload,
			[]string{"pull_request.user.email"},
			[]string{"pull_request.user.login"},
		),
		Comment: rawOf(payload, "comment"),
	}, nil
}

func rawOf(payload []byte, path string) json.RawMessage {
	r := gjson.GetBytes(payload, path)
	if !r.Exists() || r.Raw == "" {
		return nil
	}
	return json.RawMessage(r.Raw)
}

func jiraKeyOf(pr *github.PullRequest) string {
	return events.FirstJiraKey(pr.GetTitle(), pr.GetHead().GetRef(), pr.GetBody())
}

func timeOf(ts *github.Timestamp) *time.Time {
	if ts == nil || ts.IsZero() {
		return nil
	}
	t := ts.UTC()
	return &t
}

func collect(payload []byte, emailPaths, loginPaths []string) events.Candidates {
	var set events.CandidateSet
	for _, p := range emailPaths {
		eachString(payload, p, set.AddEmail)
	}
	for _, p := range loginPaths {
		eachString(payload, p, set.AddLogin)
	}
	return set.Candidates()
}

func eachString(payload []byte, path string, fn func(string)) {
	r := gjson.GetBytes(payload, path)
	if r.IsArray() {
		r.ForEach(func(_, v gjson.Result) bool {
			if v.Type == gjson.String {
				fn(v.Str)
			}
			return true
		})
		return
	}
	if r.Type == gjson.String {
		fn(r.Str)
	}
}

// ErrSignature is returned when a delivery fails signature verification.
var ErrSignature = errors.New("webhook signature rejected")

// ReadPayload reads and, when secret is non-empty, verifies a webhook request body.
func ReadPayload(r *http.Request, secret []byte) ([]byte, error) {
	sig := r.Header.Get(github.SHA256SignatureHeader)
	if sig == "" {
		sig = r.Header.Get(github.SHA1SignatureHeader)
	}
	contentType := r.Header.Get("Content-Type")
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		contentType = "application/json"
	}
	payload, err := github.ValidatePayloadFromBody(contentType, r.Body, sig, secret)
	if err != nil {
		if strings.Contains(err.Error(), "Content-Type") {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrSignature, err)
	}
	return payload, nil
}

// EventKind and DeliveryKey read the provider headers of a webhook request.
func EventKind(r *http.Request) string { return github.WebHookType(r) }

func DeliveryKey(r *http.Request) string { return github.DeliveryID(r) }

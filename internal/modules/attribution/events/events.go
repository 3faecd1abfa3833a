// Package events defines the closed set of delivery variants the attribution
// engine understands. Decoders in sourcecontrol and issuetracker produce them;
// the engine dispatches on them with a type switch.
package events

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"
)

const (
	KindPush          = "push"
	KindPullRequest   = "pull_request"
	KindReview        = "pull_request_review"
	KindReviewComment = "pull_request_review_comment"
	KindIssueUpdated  = "jira:issue_updated"
)

// ErrMalformedPayload marks a delivery whose payload cannot be decoded at all.
var ErrMalformedPayload = errors.New("malformed payload")

// Event is implemented only by the variants in this package.
type Event interface {
	Kind() string
	sealed()
}

// Candidates are the actor strings found in a payload, in lookup order.
type Candidates struct {
	Emails []string
	Logins []string
}

func (c Candidates) Empty() bool { return len(c.Emails) == 0 && len(c.Logins) == 0 }

// First returns the first login, falling back to the first email.
func (c Candidates) First() (login, email string) {
	if len(c.Logins) > 0 {
		login = c.Logins[0]
	}
	if len(c.Emails) > 0 {
		email = c.Emails[0]
	}
	return login, email
}

// CandidateSet accumulates lowercased, de-duplicated actor strings.
type CandidateSet struct {
	c    Candidates
	seen map[string]bool
}

func (s *CandidateSet) AddEmail(v string) {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" || !strings.Contains(v, "@") || s.mark("e:"+v) {
		return
	}
	s.c.Emails = append(s.c.Emails, v)
}

func (s *CandidateSet) AddLogin(v string) {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" || s.mark("l:"+v) {
		return
	}
	s.c.Logins = append(s.c.Logins, v)
}

func (s *CandidateSet) Candidates() Candidates { return s.c }

func (s *CandidateSet) mark(k string) bool {
	if s.seen == nil {
		s.seen = map[string]bool{}
	}
	if s.seen[k] {
		return true
	}
	s.seen[k] = true
	return false
}

// PushEvent may reference several issue keys; each gets its own workflow.
type PushEvent struct {
	Repo     string
	PRNumber *int
	JiraKeys []string
	Actors   Candidates
	Payload  json.RawMessage
}

type PullRequestEvent struct {
	Repo      string
	Action    string
	Number    int
	JiraKey   string
	CreatedAt *time.Time
	Merged    bool
	MergedAt  *time.Time
	Actors    Candidates
	Payload   json.RawMessage
}

// ReviewState values are lowercased provider states.
const (
	ReviewApproved         = "approved"
	ReviewChangesRequested = "changes_requested"
)

// ReviewEvent carries the reviewer in Actors and the pull request author in Author.
type ReviewEvent struct {
	Repo        string
	PRNumber    int
	JiraKey     string
	ReviewID    int64
	State       string
	SubmittedAt *time.Time
	Actors      Candidates
	Author      Candidates
	Review      json.RawMessage
}

type ReviewCommentEvent struct {
	Repo      string
	PRNumber  int
	JiraKey   string
	CommentID int64
	Actors    Candidates
	Author    Candidates
	Comment   json.RawMessage
}

type IssueTransitionEvent struct {
	IssueKey   string
	ProjectKey string
	Status     string
	ResolvedAt *time.Time
	Payload    json.RawMessage
}

var doneStates = map[string]bool{"done": true, "resolved": true, "closed": true}

// Done reports whether the issue moved into a terminal state.
func (e IssueTransitionEvent) Done() bool {
	return doneStates[strings.ToLower(strings.TrimSpace(e.Status))]
}

// UnsupportedEvent is recorded as skipped without touching any workflow.
type UnsupportedEvent struct {
	EventKind string
}

func (PushEvent) Kind() string            { return KindPush }
func (PullRequestEvent) Kind() string     { return KindPullRequest }
func (ReviewEvent) Kind() string          { return KindReview }
func (ReviewCommentEvent) Kind() string   { return KindReviewComment }
func (IssueTransitionEvent) Kind() string { return KindIssueUpdated }
func (e UnsupportedEvent) Kind() string   { return e.EventKind }

func (PushEvent) sealed()            {}
func (PullRequestEvent) sealed()     {}
func (ReviewEvent) sealed()          {}
func (ReviewCommentEvent) sealed()   {}
func (IssueTransitionEvent) sealed() {}
func (UnsupportedEvent) sealed()     {}

var jiraKeyRE = regexp.MustCompile(`[A-Z]{2,10}-\d+`)

// FirstJiraKey returns the first issue key found scanning texts in order.
func FirstJiraKey(texts ...string) string {
	for _, t := range texts {
		if k := jiraKeyRE.FindString(t); k != "" {
			return k
		}
	}
	return ""
}

// JiraKeys returns every distinct issue key across texts in first-seen order.
func JiraKeys(texts ...string) []string {
	var out []string
	seen := map[string]bool{}
	for _, t := range texts {
		for _, k := range jiraKeyRE.FindAllString(t, -1) {
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

// ProjectKeyOf returns the project prefix of an issue key ("PX-123" -> "PX").
func ProjectKeyOf(issueKey string) string {
	issueKey = strings.TrimSpace(issueKey)
	if i := strings.LastIndexByte(issueKey, '-'); i > 0 {
		return strings.ToUpper(issueKey[:i])
	}
	return ""
}

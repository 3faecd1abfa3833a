// Package labels turns an event payload into candidate skill assertions.
package labels

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	types "github.com/yungbote/northstar-backend/internal/domain"
	"github.com/yungbote/northstar-backend/internal/platform/logger"
	"github.com/yungbote/northstar-backend/internal/platform/openai"
)

const maxAssertions = 8

type Labeler interface {
	// Label returns candidate skill assertions for one event. An empty result is valid;
	// an error means the label service could not be reached.
	Label(ctx context.Context, eventKind string, payload []byte) ([]types.SkillAssertion, error)
}

type Noop struct{}

func (Noop) Label(context.Context, string, []byte) ([]types.SkillAssertion, error) { return nil, nil }

// Static returns the same assertions for every event.
type Static []types.SkillAssertion

func (s Static) Label(context.Context, string, []byte) ([]types.SkillAssertion, error) {
	return append([]types.SkillAssertion(nil), s...), nil
}

const systemPrompt = `You label software engineering activity with hierarchical skills.
Reply with a JSON object of the form
{"assertions":[{"path":["area","subarea","skill"],"confidence":0.0,"evidence":"short quote"}]}.
Paths go from broad to specific and have at most four segments. Confidence is between 0 and 1.
Return {"assertions":[]} when the activity shows no identifiable skill.`

type llmLabeler struct {
	log    *logger.Logger
	client openai.Client
}

func NewLLMLabeler(log *logger.Logger, client openai.Client) Labeler {
	if client == nil {
		return Noop{}
	}
	return &llmLabeler{log: log.With("service", "SkillLabeler"), client: client}
}

func (l *llmLabeler) Label(ctx context.Context, eventKind string, payload []byte) ([]types.SkillAssertion, error) {
	raw, err := l.client.GenerateJSON(ctx, systemPrompt, Prompt(eventKind, payload))
	if errors.Is(err, openai.ErrEmptyResponse) {
		l.log.Debug("label service returned nothing", "event_kind", eventKind)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("label %s: %w", eventKind, err)
	}
	out := Parse(raw)
	if len(out) == 0 {
		l.log.Debug("no usable assertions", "event_kind", eventKind, "bytes", len(raw))
	}
	return out, nil
}

// Prompt summarizes the fields of a payload that carry skill evidence.
func Prompt(eventKind string, payload []byte) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Event type: %s\n", eventKind)
	if !gjson.ValidBytes(payload) {
		return b.String()
	}
	root := gjson.ParseBytes(payload)
	keys := []string{}
	root.ForEach(func(k, _ gjson.Result) bool {
		keys = append(keys, k.String())
		return true
	})
	sort.Strings(keys)
	fmt.Fprintf(&b, "Payload keys: %s\n", strings.Join(keys, ", "))
	for _, path := range []string{
		"repository.full_name",
		"repository.language",
		"pull_request.title",
		"pull_request.body",
		"pull_request.head.ref",
		"head_commit.message",
		"commits.#.message",
		"commits.#.added",
		"commits.#.modified",
		"review.body",
		"comment.body",
		"comment.path",
	} {
		v := root.Get(path)
		if !v.Exists() {
			continue
		}
		text := strings.TrimSpace(v.String())
		if text == "" || text == "[]" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", path, truncate(text, 1200))
	}
	b.WriteString("Extract hierarchical skills (path arrays), confidence (0..1), and short evidence.")
	return b.String()
}

// Parse reads {"assertions":[...]} leniently. Anything malformed yields no assertions.
func Parse(raw []byte) []types.SkillAssertion {
	if !gjson.ValidBytes(raw) {
		return nil
	}
	list := gjson.GetBytes(raw, "assertions")
	if !list.IsArray() {
		return nil
	}
	out := []types.SkillAssertion{}
	seen := map[string]bool{}
	list.ForEach(func(_, item gjson.Result) bool {
		if !item.IsObject() {
			return true
		}
		a := types.SkillAssertion{Evidence: strings.TrimSpace(item.Get("evidence").String())}
		for _, seg := range item.Get("path").Array() {
			if seg.Type == gjson.String {
				a.Path = append(a.Path, seg.String())
			}
		}
		a.Path = a.CleanPath()
		key := a.PathKey()
		if key == "" || seen[strings.ToLower(key)] {
			return true
		}
		seen[strings.ToLower(key)] = true
		if c := item.Get("confidence"); c.Type == gjson.Number {
			a.Confidence = clamp01(c.Float())
		}
		out = append(out, a)
		return len(out) < maxAssertions
	})
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Cut on a rune boundary.
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

package openai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/yungbote/northstar-backend/internal/observability"
	"github.com/yungbote/northstar-backend/internal/platform/logger"
)

// Client is the narrow OpenAI surface the backend uses: one system+user prompt in,
// one JSON object out.
type Client interface {
	GenerateJSON(ctx context.Context, system string, user string) ([]byte, error)
	Model() string
}

var ErrEmptyResponse = errors.New("openai: empty response")

// WithModel returns a client that uses the provided model.
// If model is empty or base is nil, it returns the base client unchanged.
func WithModel(base Client, model string) Client {
	model = strings.TrimSpace(model)
	if base == nil || model == "" {
		return base
	}
	if c, ok := base.(*client); ok {
		clone := *c
		clone.model = model
		return &clone
	}
	return base
}

type client struct {
	log         *logger.Logger
	api         sdk.Client
	model       string
	temperature *float64
}

func NewClient(log *logger.Logger) (Client, error) {
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	model := strings.TrimSpace(os.Getenv("OPENAI_LABEL_MODEL"))
	if model == "" {
		model = strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	}
	if model == "" {
		model = "gpt-4o-mini"
	}

	timeoutSec := 30
	if v := os.Getenv("OPENAI_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}
	maxRetries := 2
	if v := os.Getenv("OPENAI_MAX_RETRIES"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed >= 0 {
			maxRetries = parsed
		}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(time.Duration(timeoutSec) * time.Second),
		option.WithMaxRetries(maxRetries),
	}
	if base := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(base, "/")+"/"))
	}

	// Temperature is pinned to 0 unless OPENAI_DISABLE_TEMPERATURE is set.
	var temp *float64
	if !parseBoolEnv("OPENAI_DISABLE_TEMPERATURE", false) {
		zero := 0.0
		temp = &zero
	}

	if log == nil {
		log = logger.Nop()
	}
	return &client{
		log:         log.With("client", "OpenAI"),
		api:         sdk.NewClient(opts...),
		model:       model,
		temperature: temp,
	}, nil
}

func (c *client) Model() string { return c.model }

func (c *client) GenerateJSON(ctx context.Context, system string, user string) ([]byte, error) {
	params := sdk.ChatCompletionNewParams{
		Model: sdk.ChatModel(c.model),
		Messages: []sdk.ChatCompletionMessageParamUnion{
			sdk.SystemMessage(system),
			sdk.UserMessage(user),
		},
		ResponseFormat: sdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &sdk.ResponseFormatJSONObjectParam{},
		},
	}
	if c.temperature != nil {
		params.Temperature = sdk.Float(*c.temperature)
	}

	start := time.Now()
	resp, err := c.api.Chat.Completions.New(ctx, params)
	status := "ok"
	if err != nil {
		status = "error"
	}
	in, out := 0, 0
	if resp != nil {
		in, out = int(resp.Usage.PromptTokens), int(resp.Usage.CompletionTokens)
	}
	observability.Current().ObserveLLMRequest(c.model, "chat.completions", status, time.Since(start), in, out)
	if err != nil {
		c.log.Warn("openai request failed", "model", c.model, "error", err)
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, ErrEmptyResponse
	}
	return []byte(resp.Choices[0].Message.Content), nil
}

func parseBoolEnv(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

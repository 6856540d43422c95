/*

This file contains the policy oracle boundary. The oracle is a black box
that may be slow, wrong or unavailable; the engine treats every response as
untrusted input. The narrow interface lets tests substitute a deterministic
rule engine.

*/

package policy

import (
	"context"
	"errors"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"github.com/rs/zerolog"

	"github.com/neurallock/nla/internal/logger"
)

var ErrEmptyOracleResponse = errors.New("policy: empty response from oracle")

const defaultOracleTimeout = 45 * time.Second

// Oracle proposes an action for a textual state description. The response is
// expected to be a JSON object matching the documented contract, but callers
// must never assume it is well-formed.
type Oracle interface {
	Propose(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// OpenAIOracle implements Oracle over the chat completions API with a
// JSON-object response format and low temperature for consistency.
type OpenAIOracle struct {
	client  openai.Client
	model   string
	timeout time.Duration
	logger  zerolog.Logger
}

var _ Oracle = (*OpenAIOracle)(nil)

// NewOpenAIOracle creates the oracle client.
func NewOpenAIOracle(apiKey, model string, timeout time.Duration) (*OpenAIOracle, error) {
	if apiKey == "" {
		return nil, errors.New("policy: oracle API key is required")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if timeout == 0 {
		timeout = defaultOracleTimeout
	}

	return &OpenAIOracle{
		client:  openai.NewClient(option.WithAPIKey(apiKey)),
		model:   model,
		timeout: timeout,
		logger:  logger.GetForComponent("policy_oracle"),
	}, nil
}

func (o *OpenAIOracle) Propose(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	started := time.Now()
	response, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Temperature: openai.Float(0.3),
		MaxTokens:   openai.Int(1000),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return "", err
	}

	if len(response.Choices) == 0 || response.Choices[0].Message.Content == "" {
		return "", ErrEmptyOracleResponse
	}

	o.logger.Debug().
		Dur("latency", time.Since(started)).
		Str("model", o.model).
		Msg("Oracle proposal received")

	return response.Choices[0].Message.Content, nil
}

// Package assistant answers questions about the mailbox by letting a chat
// model call the registered tools.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"github.com/deskmail/deskmail/internal/config"
	"github.com/deskmail/deskmail/internal/tools"
)

// DefaultSystemPrompt is used when the configuration sets none.
const DefaultSystemPrompt = `You are an email assistant with access to the user's mailbox, calendar and tasks through tools.
Listing tools number the emails they return; use those numbers with the by-number tools.
Never send, move or complete anything the user did not ask for.`

// ErrMaxIterations is returned when the model keeps calling tools.
var ErrMaxIterations = errors.New("max iterations reached without completion")

// ChatClient is the subset of the OpenAI client the assistant needs.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Assistant runs a tool-calling conversation loop.
type Assistant struct {
	client   ChatClient
	registry *tools.Registry
	cfg      config.LLMConfig
	logger   zerolog.Logger
}

// NewClient builds an OpenAI client from cfg, honouring a custom base URL.
func NewClient(cfg config.LLMConfig) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}

// New creates a new Assistant
func New(client ChatClient, registry *tools.Registry, cfg config.LLMConfig, logger zerolog.Logger) *Assistant {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 10
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	return &Assistant{
		client:   client,
		registry: registry,
		cfg:      cfg,
		logger:   logger.With().Str("component", "assistant").Logger(),
	}
}

// Ask answers question, executing tool calls until the model replies with
// plain text.
func (a *Assistant) Ask(ctx context.Context, question string) (string, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: a.cfg.SystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: question},
	}
	apiTools := a.registry.ToOpenAITools(nil)

	for i := 0; i < a.cfg.MaxIterations; i++ {
		resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       a.cfg.Model,
			Messages:    messages,
			Tools:       apiTools,
			MaxTokens:   a.cfg.MaxTokens,
			Temperature: a.cfg.Temperature,
		})
		if err != nil {
			return "", fmt.Errorf("chat completion failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", errors.New("chat completion returned no choices")
		}

		msg := resp.Choices[0].Message
		messages = append(messages, msg)

		a.logger.Debug().
			Int("iteration", i).
			Int("tool_calls", len(msg.ToolCalls)).
			Int("total_tokens", resp.Usage.TotalTokens).
			Msg("Received completion")

		if len(msg.ToolCalls) == 0 {
			return msg.Content, nil
		}

		for _, tc := range msg.ToolCalls {
			a.logger.Info().
				Str("tool", tc.Function.Name).
				Str("call_id", tc.ID).
				Msg("Executing tool call")

			result := a.registry.Call(ctx, tc.Function.Name, json.RawMessage(tc.Function.Arguments))
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    result,
				ToolCallID: tc.ID,
			})
		}
	}

	return "", ErrMaxIterations
}

// Package advisor turns emitted signals into short natural-language
// briefs for chat delivery.
package advisor

import (
	"context"
	"fmt"

	"signalforge/internal/domain"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// LLMClient abstracts the OpenAI chat completions API for testability.
type LLMClient interface {
	CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

type NarratorService struct {
	tracer trace.Tracer
	llm    LLMClient
	model  string
}

func NewNarratorService(tracer trace.Tracer, llm LLMClient, model string) *NarratorService {
	return &NarratorService{tracer: tracer, llm: llm, model: model}
}

// Narrate produces a brief explanation of why the signal fired. A nil
// LLM client returns an empty narrative rather than an error so signal
// delivery works without an API key.
func (s *NarratorService) Narrate(ctx context.Context, signal *domain.EnhancedSignal) (string, error) {
	if s == nil || s.llm == nil || signal == nil {
		return "", nil
	}

	ctx, span := s.tracer.Start(ctx, "advisor.narrate")
	defer span.End()
	span.SetAttributes(
		attribute.String("symbol", signal.Symbol),
		attribute.String("llm.model", s.model),
	)

	completion, err := s.llm.CreateChatCompletion(ctx, openai.ChatCompletionNewParams{
		Model: s.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(narratorPhilosophy),
			openai.UserMessage(FormatSignalContext(signal)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("narrator unavailable: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no choices in LLM response")
	}

	reply := completion.Choices[0].Message.Content
	span.SetAttributes(attribute.Int("llm.reply_length", len(reply)))
	return reply, nil
}

// openaiClient wraps the official SDK's chat completions service.
type openaiClient struct {
	client openai.Client
}

func NewOpenAIClient(apiKey string) LLMClient {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &openaiClient{client: client}
}

func (c *openaiClient) CreateChatCompletion(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
) (*openai.ChatCompletion, error) {
	return c.client.Chat.Completions.New(ctx, params)
}

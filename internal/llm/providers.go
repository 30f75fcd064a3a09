package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/generative-ai-go/genai"
	openai "github.com/openai/openai-go"
	openaioption "github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	googleoption "google.golang.org/api/option"
)

// defaultNewProvider dispatches to the appropriate provider implementation.
func defaultNewProvider(providerName, model string) (Provider, error) {
	switch strings.ToLower(providerName) {
	case "anthropic", "":
		return newAnthropicProvider(model)
	case "openai":
		return newOpenAIProvider(model)
	case "google":
		return newGoogleProvider(model)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", providerName)
	}
}

// ── Anthropic ────────────────────────────────────────────────────────────────

// anthropicProvider implements Provider using the Anthropic SDK.
// anthropic.Client is a value type; the SDK's NewClient returns it by value.
type anthropicProvider struct {
	client anthropic.Client
	model  string
}

func newAnthropicProvider(model string) (Provider, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("llm: ANTHROPIC_API_KEY environment variable not set")
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &anthropicProvider{client: client, model: model}, nil
}

func (p *anthropicProvider) Complete(
	ctx context.Context,
	systemPrompt, userPrompt string,
	maxTokens int,
	temperature float64,
) (string, error) {
	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(temperature),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic: messages.new: %w", err)
	}

	var parts []string
	for _, block := range msg.Content {
		// "text" is the only content type carrying assistant text output; the
		// SDK does not expose a typed constant for it in this version.
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("anthropic: response contained no text content blocks")
	}
	return strings.Join(parts, ""), nil
}

// ── OpenAI ───────────────────────────────────────────────────────────────────

type openaiProvider struct {
	client openai.Client
	model  string
}

func newOpenAIProvider(model string) (Provider, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("llm: OPENAI_API_KEY environment variable not set")
	}
	client := openai.NewClient(openaioption.WithAPIKey(apiKey))
	return &openaiProvider{client: client, model: model}, nil
}

func (p *openaiProvider) Complete(
	ctx context.Context,
	systemPrompt, userPrompt string,
	maxTokens int,
	temperature float64,
) (string, error) {
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(p.model),
		MaxTokens:   openai.Int(int64(maxTokens)),
		Temperature: openai.Float(temperature),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai: chat.completions.new: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: response contained no choices")
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", fmt.Errorf("openai: response contained no content")
	}
	return content, nil
}

// ── Google ───────────────────────────────────────────────────────────────────

// googleProvider implements Provider using the Google Generative AI SDK.
// A new genai.Client is created per Complete call so the caller's context
// governs the connection and the client is always closed after use.
type googleProvider struct {
	apiKey string
	model  string
}

func newGoogleProvider(model string) (Provider, error) {
	apiKey := os.Getenv("GOOGLE_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("llm: GOOGLE_API_KEY environment variable not set")
	}
	return &googleProvider{apiKey: apiKey, model: model}, nil
}

func (p *googleProvider) Complete(
	ctx context.Context,
	systemPrompt, userPrompt string,
	maxTokens int,
	temperature float64,
) (string, error) {
	client, err := genai.NewClient(ctx, googleoption.WithAPIKey(p.apiKey))
	if err != nil {
		return "", fmt.Errorf("google: genai client: %w", err)
	}
	defer client.Close()

	m := client.GenerativeModel(p.model)
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}
	maxOut := int32(maxTokens)
	m.MaxOutputTokens = &maxOut
	temp32 := float32(temperature)
	m.Temperature = &temp32
	// Force JSON output mode to prevent the model from wrapping the response
	// in markdown code fences.
	m.ResponseMIMEType = "application/json"

	resp, err := m.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		return "", fmt.Errorf("google: generate content: %w", err)
	}

	var parts []string
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				parts = append(parts, string(t))
			}
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("google: response contained no text content")
	}
	return strings.Join(parts, ""), nil
}

package generator

import (
	"context"
	"errors"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAILLM implements LLMClient using the official openai-go SDK (chat completions).
// DeepSeek and other OpenAI-compatible gateways are reached through BaseURL.
type OpenAILLM struct {
	Model     string
	MaxTokens int
	client    openai.Client
}

func NewOpenAILLMFromConfig(cfg *LLMSettings) (*OpenAILLM, error) {
	if cfg == nil {
		return nil, errors.New("llm config is nil")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key missing; provide llm.api_key")
	}
	if cfg.Model == "" {
		return nil, errors.New("llm model is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAILLM{
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
		client:    openai.NewClient(opts...),
	}, nil
}

func (o *OpenAILLM) params(prompt Prompt) openai.ChatCompletionNewParams {
	msgs := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(prompt.System),
	}
	for _, h := range prompt.History {
		switch h.Role {
		case RoleAssistant:
			msgs = append(msgs, openai.ChatCompletionMessageParamOfAssistant(h.Content))
		default:
			msgs = append(msgs, openai.UserMessage(h.Content))
		}
	}
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.Model),
		Messages: msgs,
	}
	if o.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(o.MaxTokens))
	}
	return params
}

func (o *OpenAILLM) Complete(ctx context.Context, prompt Prompt) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, o.params(prompt))
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream uses the SSE chat completion endpoint and forwards content deltas.
func (o *OpenAILLM) Stream(ctx context.Context, prompt Prompt, onDelta func(string)) (string, error) {
	stream := o.client.Chat.Completions.NewStreaming(ctx, o.params(prompt))
	defer stream.Close()

	var sb strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		sb.WriteString(delta)
		if onDelta != nil {
			onDelta(delta)
		}
	}
	if err := stream.Err(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

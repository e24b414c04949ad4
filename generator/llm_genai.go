package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GenAILLM implements LLMClient on top of the Gemini API.
type GenAILLM struct {
	Model     string
	MaxTokens int
	client    *genai.Client
}

func NewGenAILLMFromConfig(ctx context.Context, cfg *LLMSettings) (*GenAILLM, error) {
	if cfg == nil {
		return nil, errors.New("llm config is nil")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key missing; provide llm.api_key")
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GenAILLM{Model: model, MaxTokens: cfg.MaxTokens, client: client}, nil
}

func (g *GenAILLM) request(prompt Prompt) ([]*genai.Content, *genai.GenerateContentConfig) {
	var contents []*genai.Content
	for _, m := range prompt.History {
		role := genai.Role(genai.RoleUser)
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	cfg := &genai.GenerateContentConfig{}
	if prompt.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(prompt.System, genai.RoleUser)
	}
	if g.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(g.MaxTokens)
	}
	return contents, cfg
}

func (g *GenAILLM) Complete(ctx context.Context, prompt Prompt) (string, error) {
	contents, cfg := g.request(prompt)
	resp, err := g.client.Models.GenerateContent(ctx, g.Model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate failed: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", errors.New("gemini: empty candidates")
	}
	return text, nil
}

func (g *GenAILLM) Stream(ctx context.Context, prompt Prompt, onDelta func(string)) (string, error) {
	contents, cfg := g.request(prompt)
	var sb strings.Builder
	for resp, err := range g.client.Models.GenerateContentStream(ctx, g.Model, contents, cfg) {
		if err != nil {
			return "", fmt.Errorf("gemini stream failed: %w", err)
		}
		delta := resp.Text()
		if delta == "" {
			continue
		}
		sb.WriteString(delta)
		if onDelta != nil {
			onDelta(delta)
		}
	}
	return sb.String(), nil
}

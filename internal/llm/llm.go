// Package llm talks to chat-completion models through the OpenAI API,
// either at OpenAI or at a local Ollama's OpenAI-compatible endpoint.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/TobiSchelling/NewsAI/internal/config"
)

const (
	temperature    = 0.3
	requestTimeout = 120 * time.Second
)

// ErrNotConfigured is returned when no provider can be reached.
var ErrNotConfigured = errors.New("no LLM provider available")

// Completion is a model reply and the tokens it cost.
type Completion struct {
	Text   string
	Tokens int64
}

// Provider generates completions.
type Provider interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (Completion, error)
	Name() string
}

// ChatProvider is a Provider backed by the Chat Completions API.
type ChatProvider struct {
	name   string
	model  string
	client openai.Client
	// legacyMaxTokens sends max_tokens instead of max_completion_tokens.
	legacyMaxTokens bool
}

// NewOpenAIProvider creates a provider for OpenAI's hosted models.
func NewOpenAIProvider(model, apiKey string, opts ...option.RequestOption) *ChatProvider {
	opts = append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(requestTimeout),
	}, opts...)
	return &ChatProvider{
		name:   "openai",
		model:  model,
		client: openai.NewClient(opts...),
	}
}

// NewOllamaProvider creates a provider for a local Ollama server.
func NewOllamaProvider(model, baseURL string, opts ...option.RequestOption) *ChatProvider {
	opts = append([]option.RequestOption{
		option.WithBaseURL(strings.TrimRight(baseURL, "/") + "/v1/"),
		option.WithAPIKey("ollama"),
		option.WithRequestTimeout(requestTimeout),
	}, opts...)
	return &ChatProvider{
		name:            "ollama",
		model:           model,
		client:          openai.NewClient(opts...),
		legacyMaxTokens: true,
	}
}

// Name returns "openai" or "ollama".
func (p *ChatProvider) Name() string {
	return p.name
}

// Generate sends prompt as a single user message.
func (p *ChatProvider) Generate(ctx context.Context, prompt string, maxTokens int) (Completion, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(p.model),
		Messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		Temperature: openai.Float(temperature),
	}
	if maxTokens > 0 {
		if p.legacyMaxTokens {
			params.MaxTokens = openai.Int(int64(maxTokens))
		} else {
			params.MaxCompletionTokens = openai.Int(int64(maxTokens))
		}
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Completion{}, fmt.Errorf("%s chat completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, fmt.Errorf("%s chat completion choices are missing", p.name)
	}

	return Completion{
		Text:   resp.Choices[0].Message.Content,
		Tokens: resp.Usage.TotalTokens,
	}, nil
}

// OllamaAvailable checks that Ollama answers at baseURL and has model.
func OllamaAvailable(ctx context.Context, client *http.Client, baseURL, model string) error {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/api/tags", nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama returned %d", resp.StatusCode)
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decoding ollama tags: %w", err)
	}

	modelBase := strings.SplitN(model, ":", 2)[0]
	for _, m := range result.Models {
		if strings.Contains(m.Name, modelBase) {
			return nil
		}
	}
	return fmt.Errorf("ollama model %q not found", model)
}

// CreateProvider picks the configured provider, falling back from Ollama to
// OpenAI when Ollama is unavailable and an API key is set.
func CreateProvider(ctx context.Context, cfg config.Curation, log *slog.Logger) (Provider, error) {
	if log == nil {
		log = slog.Default()
	}
	apiKey := os.Getenv(cfg.APIKeyEnv)

	if strings.EqualFold(cfg.Provider, "ollama") {
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := OllamaAvailable(probeCtx, nil, cfg.OllamaURL, cfg.Model)
		cancel()
		if err == nil {
			log.InfoContext(ctx, "Using Ollama", "model", cfg.Model, "url", cfg.OllamaURL)
			return NewOllamaProvider(cfg.Model, cfg.OllamaURL), nil
		}
		log.WarnContext(ctx, "Ollama not available, trying OpenAI fallback", "error", err)
	}

	if apiKey == "" {
		return nil, fmt.Errorf("%w: start Ollama or set %s", ErrNotConfigured, cfg.APIKeyEnv)
	}
	log.InfoContext(ctx, "Using OpenAI", "model", cfg.OpenAIModel)
	return NewOpenAIProvider(cfg.OpenAIModel, apiKey), nil
}

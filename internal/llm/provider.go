package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/textio/internal/model"
	"go.uber.org/zap"
)

// ErrEmptyResponse is returned when the provider answers without any content.
// It is a transport failure: the caller retries rather than trying to repair.
var ErrEmptyResponse = errors.New("empty response from model")

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Complete sends a system/user prompt pair and returns the raw model text
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// CompletionRequest contains one system/user prompt pair
type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string

	// Model overrides the configured model when set
	Model string

	// Temperature overrides the configured temperature when non-zero
	Temperature float64

	// MaxTokens limits the response length
	MaxTokens int
}

// CompletionResponse contains the model's raw text output
type CompletionResponse struct {
	// Content is the untrimmed first choice text
	Content string

	// Model is the model that generated the response
	Model string

	// TokensUsed tracks token consumption
	TokensUsed int
}

// TokenProvider returns a bearer token for each request.
// It replaces a static API key for providers fronted by short-lived credentials.
type TokenProvider func(ctx context.Context) (string, error)

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// TokenProvider takes precedence over APIKey when set
	TokenProvider TokenProvider

	// BaseURL for custom endpoints (e.g., Ollama, OpenAI-compatible gateways)
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int

	// Temperature for generation; evaluation wants it low
	Temperature float64

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string

	// Logger receives availability diagnostics; nil discards them
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:    "", // Disabled by default
		Model:       "",
		Timeout:     60,
		MaxTokens:   1500,
		Temperature: 0.1,
	}
}

// ConfigFromModel converts model.LLMConfig to llm.Config
func ConfigFromModel(modelConfig model.LLMConfig) Config {
	return Config{
		Provider:    modelConfig.Provider,
		Model:       modelConfig.Model,
		APIKey:      modelConfig.APIKey,
		BaseURL:     modelConfig.BaseURL,
		Timeout:     modelConfig.Timeout,
		MaxTokens:   modelConfig.MaxTokens,
		Temperature: modelConfig.Temperature,
		HTTPProxy:   modelConfig.HTTPProxy,
		HTTPSProxy:  modelConfig.HTTPSProxy,
		NoProxy:     modelConfig.NoProxy,
	}
}

// resolve fills request fields the caller left empty from the provider config
func (c Config) resolve(req CompletionRequest, fallbackModel string) (modelName string, maxTokens int, temperature float64) {
	modelName = req.Model
	if modelName == "" {
		modelName = c.Model
	}
	if modelName == "" {
		modelName = fallbackModel
	}

	maxTokens = req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.MaxTokens
	}
	if maxTokens == 0 {
		maxTokens = 1500
	}

	temperature = req.Temperature
	if temperature == 0 {
		temperature = c.Temperature
	}
	return modelName, maxTokens, temperature
}

func (c Config) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

func (c Config) timeout(fallback time.Duration) time.Duration {
	if c.Timeout <= 0 {
		return fallback
	}
	return time.Duration(c.Timeout) * time.Second
}

func (c Config) bearer(ctx context.Context) (string, error) {
	if c.TokenProvider != nil {
		token, err := c.TokenProvider(ctx)
		if err != nil {
			return "", fmt.Errorf("token provider: %w", err)
		}
		return token, nil
	}
	return c.APIKey, nil
}

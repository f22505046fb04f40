package llm

import (
	"testing"
	"time"

	"github.com/ppiankov/textio/internal/model"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		wantName string
		wantErr  bool
	}{
		{"openai", Config{Provider: "openai", APIKey: "k"}, "openai", false},
		{"azure alias", Config{Provider: "Azure", APIKey: "k"}, "openai", false},
		{"claude alias", Config{Provider: "claude", APIKey: "k"}, "anthropic", false},
		{"ollama needs no key", Config{Provider: "ollama"}, "ollama", false},
		{"empty", Config{}, "", true},
		{"unknown", Config{Provider: "palm"}, "", true},
		{"openai without key", Config{Provider: "openai"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.config)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got provider %v", p)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Name() != tt.wantName {
				t.Errorf("expected %s, got %s", tt.wantName, p.Name())
			}
		})
	}
}

func TestConfigFromModel(t *testing.T) {
	mc := model.LLMConfig{
		Provider:     "anthropic",
		Model:        "claude-3-5-haiku-20241022",
		APIKey:       "k",
		Timeout:      30,
		MaxTokens:    800,
		Temperature:  0.1,
		RetryBackoff: time.Second,
		HTTPSProxy:   "http://proxy:3128",
	}

	c := ConfigFromModel(mc)
	if c.Provider != "anthropic" || c.Model != mc.Model || c.MaxTokens != 800 || c.HTTPSProxy != mc.HTTPSProxy {
		t.Errorf("unexpected config: %+v", c)
	}
}

func TestConfig_Resolve(t *testing.T) {
	c := Config{Model: "configured", MaxTokens: 0, Temperature: 0.1}

	name, maxTokens, temp := c.resolve(CompletionRequest{}, "fallback")
	if name != "configured" || maxTokens != 1500 || temp != 0.1 {
		t.Errorf("unexpected defaults: %s %d %v", name, maxTokens, temp)
	}

	name, maxTokens, temp = c.resolve(CompletionRequest{Model: "override", MaxTokens: 10, Temperature: 0.7}, "fallback")
	if name != "override" || maxTokens != 10 || temp != 0.7 {
		t.Errorf("request fields must win: %s %d %v", name, maxTokens, temp)
	}

	name, _, _ = Config{}.resolve(CompletionRequest{}, "fallback")
	if name != "fallback" {
		t.Errorf("expected fallback model, got %s", name)
	}
}

package llm

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go/option"
)

// Config selects and addresses a backend.
type Config struct {
	Provider      string `koanf:"provider"`
	Host          string `koanf:"host"`
	Port          int    `koanf:"port"`
	Model         string `koanf:"model"`
	ContextWindow int    `koanf:"context_window"`
	APIKey        string `koanf:"api_key"`
}

// Address returns host[:port].
func (c Config) Address() string {
	if c.Port == 0 {
		return c.Host
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// openAIPreset describes hosted services exposing the OpenAI protocol.
type openAIPreset struct {
	baseURL string
	keyEnv  string
}

var openAIPresets = map[string]openAIPreset{
	"groq":      {baseURL: "https://api.groq.com/openai/v1/", keyEnv: "GROQ_API_KEY"},
	"fireworks": {baseURL: "https://api.fireworks.ai/inference/v1/", keyEnv: "FIREWORKS_API_KEY"},
	"deepseek":  {baseURL: "https://api.deepseek.com/v1/", keyEnv: "DEEPSEEK_API_KEY"},
}

// New builds the generator for cfg.Provider.
func New(ctx context.Context, cfg Config) (Generator, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("generator model is required")
	}

	switch strings.ToLower(cfg.Provider) {
	case "", "ollama":
		return NewOllama(ollamaURL(cfg), cfg.Model, cfg.ContextWindow), nil
	case "openai":
		return NewOpenAI(cfg.Model, openAIOptions(cfg, "")...), nil
	case "http", "openai-compatible":
		if cfg.Host == "" {
			return nil, fmt.Errorf("openai compatible generator requires a host")
		}
		return NewOpenAICompatible(cfg.Address(), cfg.Model), nil
	case "anthropic", "claude":
		var opts []anthropicoption.RequestOption
		if cfg.APIKey != "" {
			opts = append(opts, anthropicoption.WithAPIKey(cfg.APIKey))
		}
		if cfg.Host != "" {
			opts = append(opts, anthropicoption.WithBaseURL(CompatibleBaseURL(cfg.Address())))
		}
		return NewAnthropic(cfg.Model, opts...), nil
	case "gemini", "google":
		return NewGemini(ctx, cfg.Model, cfg.APIKey)
	default:
		preset, ok := openAIPresets[strings.ToLower(cfg.Provider)]
		if !ok {
			return nil, fmt.Errorf("generator '%s' not supported", cfg.Provider)
		}
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv(preset.keyEnv)
		}
		if key == "" {
			return nil, fmt.Errorf("%s requires %s to be set", cfg.Provider, preset.keyEnv)
		}
		return NewOpenAI(cfg.Model, option.WithBaseURL(preset.baseURL), option.WithAPIKey(key)), nil
	}
}

// NewEmbedder builds an embedder for cfg.Provider. Backends without an
// embedding endpoint are rejected.
func NewEmbedder(ctx context.Context, cfg Config) (Embedder, error) {
	gen, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	emb, ok := gen.(Embedder)
	if !ok {
		return nil, fmt.Errorf("generator '%s' does not support embeddings", cfg.Provider)
	}
	return emb, nil
}

// ParseGeneratorString parses the compact `provider://model@host:port` form.
// Host and port are optional; ollama defaults to localhost:11434.
func ParseGeneratorString(raw string) (Config, error) {
	var cfg Config

	provider, rest, ok := strings.Cut(raw, "://")
	if !ok || provider == "" || rest == "" {
		return cfg, fmt.Errorf("invalid generator string '%s', expected provider://model@host:port", raw)
	}
	cfg.Provider = provider

	model, address := rest, ""
	if idx := strings.LastIndex(rest, "@"); idx >= 0 {
		model, address = rest[:idx], rest[idx+1:]
	}
	if model == "" {
		return cfg, fmt.Errorf("invalid generator string '%s': missing model", raw)
	}
	cfg.Model = model

	if address != "" {
		host, port, err := net.SplitHostPort(address)
		if err != nil {
			// no port
			cfg.Host = address
		} else {
			p, err := strconv.Atoi(port)
			if err != nil {
				return cfg, fmt.Errorf("invalid port '%s' in generator string", port)
			}
			cfg.Host, cfg.Port = host, p
		}
	}

	if cfg.Provider == "ollama" {
		if cfg.Host == "" {
			cfg.Host = "localhost"
		}
		if cfg.Port == 0 {
			cfg.Port = 11434
		}
	}
	return cfg, nil
}

func ollamaURL(cfg Config) string {
	if cfg.Host == "" {
		return defaultOllamaURL
	}
	if strings.Contains(cfg.Host, "://") {
		if cfg.Port == 0 {
			return cfg.Host
		}
		return fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}
	return "http://" + cfg.Address()
}

func openAIOptions(cfg Config, baseURL string) []option.RequestOption {
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if baseURL == "" && cfg.Host != "" {
		baseURL = CompatibleBaseURL(cfg.Address())
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return opts
}

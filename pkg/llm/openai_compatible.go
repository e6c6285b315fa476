package llm

import (
	"context"
	"strings"
)

// OpenAICompatibleGenerator targets a self-hosted OpenAI compatible server
// addressed by a bare host[:port]. It only rewrites the address and forwards
// every call to an unauthenticated OpenAIGenerator.
type OpenAICompatibleGenerator struct {
	client *OpenAIGenerator
}

// NewOpenAICompatible creates the shim for address (host, host:port or
// host:port/path).
func NewOpenAICompatible(address, model string) *OpenAICompatibleGenerator {
	return &OpenAICompatibleGenerator{
		client: NewOpenAINoAuth(CompatibleBaseURL(address), model),
	}
}

// CompatibleBaseURL turns a bare host[:port] into an http base URL with a
// trailing slash. Addresses that already carry a scheme are kept as is.
func CompatibleBaseURL(address string) string {
	url := address
	if !strings.Contains(url, "://") {
		url = "http://" + url
	}
	if !strings.HasSuffix(url, "/") {
		url += "/"
	}
	return url
}

// CheckNativeToolsSupport implements Generator.
func (g *OpenAICompatibleGenerator) CheckNativeToolsSupport(ctx context.Context) (bool, error) {
	return g.client.CheckNativeToolsSupport(ctx)
}

// Chat implements Generator.
func (g *OpenAICompatibleGenerator) Chat(ctx context.Context, opts *ChatOptions) (*ChatResponse, error) {
	return g.client.Chat(ctx, opts)
}

// Embed implements Embedder.
func (g *OpenAICompatibleGenerator) Embed(ctx context.Context, text string) ([]float32, error) {
	return g.client.Embed(ctx, text)
}

var (
	_ Generator = (*OpenAICompatibleGenerator)(nil)
	_ Embedder  = (*OpenAICompatibleGenerator)(nil)
)

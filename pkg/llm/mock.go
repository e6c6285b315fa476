package llm

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"sync"
)

// ScriptedGenerator returns a pre-defined sequence of responses.
// Useful for driving the step loop in tests.
type ScriptedGenerator struct {
	mu        sync.Mutex
	Responses []*ChatResponse
	Err       error
	// NativeTools is reported by CheckNativeToolsSupport.
	NativeTools bool
	// Requests records every ChatOptions received, in order.
	Requests []*ChatOptions
}

// NewScriptedGenerator creates a ScriptedGenerator replying with plain text
// contents in order.
func NewScriptedGenerator(contents ...string) *ScriptedGenerator {
	s := &ScriptedGenerator{}
	for _, c := range contents {
		s.Responses = append(s.Responses, &ChatResponse{Content: c})
	}
	return s
}

// CheckNativeToolsSupport implements Generator.
func (s *ScriptedGenerator) CheckNativeToolsSupport(context.Context) (bool, error) {
	return s.NativeTools, nil
}

// Chat pops the next scripted response or returns the configured error.
func (s *ScriptedGenerator) Chat(_ context.Context, opts *ChatOptions) (*ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Requests = append(s.Requests, opts)

	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.Responses) == 0 {
		return nil, errors.New("scripted generator: no more responses available")
	}

	resp := s.Responses[0]
	s.Responses = s.Responses[1:]
	return resp, nil
}

// AddResponse appends a response to the queue.
func (s *ScriptedGenerator) AddResponse(resp *ChatResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Responses = append(s.Responses, resp)
}

// CallCount returns how many times Chat has been called.
func (s *ScriptedGenerator) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Requests)
}

// HashEmbedder produces deterministic bag-of-words vectors without a backend.
// Texts sharing words end up close in cosine space.
type HashEmbedder struct {
	Dimensions int
}

// NewHashEmbedder creates a HashEmbedder, defaulting to 64 dimensions.
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 64
	}
	return &HashEmbedder{Dimensions: dimensions}
}

// Embed implements Embedder.
func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.Dimensions)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		vec[h.Sum32()%uint32(e.Dimensions)]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm == 0 {
		return vec, nil
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

var (
	_ Generator = (*ScriptedGenerator)(nil)
	_ Embedder  = (*HashEmbedder)(nil)
)

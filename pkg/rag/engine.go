package rag

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// namespace for deterministic chunk identifiers.
var chunkNamespace = uuid.MustParse("5d2c6f1e-8f0a-4f4b-9a57-3f1c2b7d9e10")

// Document is one indexed chunk of a source file.
type Document struct {
	ID      string
	Path    string
	Chunk   int
	Content string
}

// Result pairs a document with its relevance score.
type Result struct {
	Document Document
	Score    float64
}

// Engine imports documents into a VectorStore and answers similarity queries.
type Engine struct {
	cfg         Config
	embedder    Embedder
	store       VectorStore
	logger      *slog.Logger
	concurrency int
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore overrides the store selected by Config.Backend.
func WithStore(store VectorStore) Option {
	return func(e *Engine) { e.store = store }
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithConcurrency bounds the number of parallel embedding calls.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// NewEngine validates cfg and connects the configured vector store.
func NewEngine(cfg Config, embedder Embedder, opts ...Option) (*Engine, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag engine requires an embedder")
	}
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:         cfg,
		embedder:    embedder,
		logger:      slog.Default(),
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.store == nil {
		switch cfg.Backend {
		case BackendQdrant:
			store, err := NewQdrantStore(cfg.QdrantAddr)
			if err != nil {
				return nil, err
			}
			e.store = store
		default:
			e.store = NewLocalStore(cfg.DataPath)
		}
	}
	return e, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// ImportNewDocuments walks the source path and indexes every chunk not yet
// stored. It returns the number of chunks added.
func (e *Engine) ImportNewDocuments(ctx context.Context) (int, error) {
	docs, err := e.loadDocuments()
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}

	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	existing, err := e.store.Existing(ctx, e.cfg.Collection, ids)
	if err != nil {
		return 0, err
	}

	var pending []Document
	for _, d := range docs {
		if !existing[d.ID] {
			pending = append(pending, d)
		}
	}
	if len(pending) == 0 {
		e.logger.DebugContext(ctx, "rag index up to date", slog.Int("chunks", len(docs)))
		return 0, nil
	}

	e.logger.InfoContext(ctx, "importing documents",
		slog.String("source", e.cfg.SourcePath),
		slog.Int("new_chunks", len(pending)),
		slog.Int("total_chunks", len(docs)),
	)

	points := make([]Point, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, d := range pending {
		g.Go(func() error {
			vec, err := e.embedder.Embed(gctx, d.Content)
			if err != nil {
				return fmt.Errorf("failed to embed %s#%d: %w", d.Path, d.Chunk, err)
			}
			points[i] = Point{
				ID:     d.ID,
				Vector: vec,
				Payload: map[string]string{
					"path":    d.Path,
					"chunk":   strconv.Itoa(d.Chunk),
					"content": d.Content,
				},
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	if err := e.store.CreateCollection(ctx, e.cfg.Collection, uint64(len(points[0].Vector))); err != nil {
		return 0, err
	}
	if err := e.store.Upsert(ctx, e.cfg.Collection, points); err != nil {
		return 0, err
	}
	return len(points), nil
}

// Retrieve returns up to topK documents ordered by non-increasing score.
func (e *Engine) Retrieve(ctx context.Context, query string, topK int) ([]Result, error) {
	if topK <= 0 {
		return nil, nil
	}
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := e.store.Search(ctx, e.cfg.Collection, vec, topK)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		chunk, _ := strconv.Atoi(h.Point.Payload["chunk"])
		results = append(results, Result{
			Document: Document{
				ID:      h.ID,
				Path:    h.Point.Payload["path"],
				Chunk:   chunk,
				Content: h.Point.Payload["content"],
			},
			Score: float64(h.Score),
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// loadDocuments reads and chunks every text file under the source path,
// skipping hidden entries.
func (e *Engine) loadDocuments() ([]Document, error) {
	var docs []Document
	err := filepath.WalkDir(e.cfg.SourcePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != e.cfg.SourcePath && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if !utf8.Valid(data) {
			e.logger.Debug("skipping binary file", slog.String("path", path))
			return nil
		}

		rel, err := filepath.Rel(e.cfg.SourcePath, path)
		if err != nil {
			rel = path
		}
		for i, chunk := range Chunk(string(data), e.cfg.ChunkSize) {
			docs = append(docs, Document{
				ID:      chunkID(rel, i, chunk),
				Path:    rel,
				Chunk:   i,
				Content: chunk,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read documents from %s: %w", e.cfg.SourcePath, err)
	}
	return docs, nil
}

func chunkID(path string, index int, content string) string {
	return uuid.NewSHA1(chunkNamespace, []byte(path+"\x00"+strconv.Itoa(index)+"\x00"+content)).String()
}

// Chunk splits text into pieces of at most size runes, breaking on whitespace
// when possible. Blank input yields no chunks.
func Chunk(text string, size int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if size <= 0 {
		return []string{text}
	}

	var (
		chunks []string
		b      strings.Builder
		n      int
	)
	for _, word := range strings.Fields(text) {
		wl := utf8.RuneCountInString(word)
		if n > 0 && n+1+wl > size {
			chunks = append(chunks, b.String())
			b.Reset()
			n = 0
		}
		// words longer than size are split hard
		for wl > size {
			r := []rune(word)
			chunks = append(chunks, string(r[:size]))
			word = string(r[size:])
			wl -= size
		}
		if n > 0 {
			b.WriteByte(' ')
			n++
		}
		b.WriteString(word)
		n += wl
	}
	if n > 0 {
		chunks = append(chunks, b.String())
	}
	return chunks
}

// Package rag implements retrieval augmentation: source documents are chunked,
// embedded and stored in a vector store, then queried by similarity.
package rag

import "context"

// VectorStore defines the interface for a vector database.
type VectorStore interface {
	// Upsert adds or updates points in the vector store.
	Upsert(ctx context.Context, collection string, points []Point) error
	// Search returns the nearest points to vector, best first.
	Search(ctx context.Context, collection string, vector []float32, limit int) ([]SearchResult, error)
	// CreateCollection creates a new collection if it doesn't exist.
	CreateCollection(ctx context.Context, name string, vectorSize uint64) error
	// Existing returns the subset of ids already stored in collection.
	Existing(ctx context.Context, collection string, ids []string) (map[string]bool, error)
}

// Point represents a data point in the vector store.
type Point struct {
	ID      string            `json:"id"`
	Vector  []float32         `json:"vector"`
	Payload map[string]string `json:"payload"`
}

// SearchResult represents a result from a vector search.
type SearchResult struct {
	ID    string  `json:"id"`
	Score float32 `json:"score"`
	Point Point   `json:"point"`
}

// Embedder defines the interface for converting text to vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

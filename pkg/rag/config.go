package rag

import (
	"fmt"
	"path/filepath"
)

const (
	BackendLocal  = "local"
	BackendQdrant = "qdrant"

	defaultCollection = "nerve"
	defaultChunkSize  = 1024
)

// Config describes where documents come from and where vectors live.
type Config struct {
	// SourcePath is the folder walked for documents to import.
	SourcePath string `yaml:"source_path" koanf:"source_path"`
	// DataPath holds the local store files. Defaults to SourcePath/.rag.
	DataPath string `yaml:"data_path" koanf:"data_path"`
	// ChunkSize is the maximum chunk length in characters.
	ChunkSize int `yaml:"chunk_size" koanf:"chunk_size"`
	// Backend is local or qdrant.
	Backend    string `yaml:"backend" koanf:"backend"`
	QdrantAddr string `yaml:"qdrant_addr" koanf:"qdrant_addr"`
	Collection string `yaml:"collection" koanf:"collection"`
}

// withDefaults fills unset fields and validates the result.
func (c Config) withDefaults() (Config, error) {
	if c.SourcePath == "" {
		return c, fmt.Errorf("rag source_path is required")
	}
	if c.Backend == "" {
		c.Backend = BackendLocal
	}
	if c.DataPath == "" {
		c.DataPath = filepath.Join(c.SourcePath, ".rag")
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = defaultChunkSize
	}
	if c.Collection == "" {
		c.Collection = defaultCollection
	}
	switch c.Backend {
	case BackendLocal:
	case BackendQdrant:
		if c.QdrantAddr == "" {
			return c, fmt.Errorf("rag qdrant backend requires qdrant_addr")
		}
	default:
		return c, fmt.Errorf("unknown rag backend '%s'", c.Backend)
	}
	return c, nil
}

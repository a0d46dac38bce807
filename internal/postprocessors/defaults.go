package postprocessors

import (
	"github.com/custodia-labs/jam/internal/core/ports/driven"
	"github.com/custodia-labs/jam/internal/postprocessors/chunker"
)

// Chunker is the name of the fixed-size splitter.
const Chunker = "chunker"

// RegisterDefaults registers all built-in splitters with the registry.
func RegisterDefaults(r *Registry) {
	r.Register(Chunker, buildChunker)
}

// NewDefaultRegistry returns a registry holding the built-in splitters.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	RegisterDefaults(r)
	return r
}

// SplitterFactory returns a function building the named splitter for a
// passage length and overlap, in the shape the ingest service expects.
func (r *Registry) SplitterFactory(name string) func(length, overlap int) (driven.Splitter, error) {
	return func(length, overlap int) (driven.Splitter, error) {
		return r.Build(name, map[string]any{
			"chunk_size": length,
			"overlap":    overlap,
		})
	}
}

// buildChunker creates a chunker from generic config.
// Supported config keys:
//   - chunk_size (int): Characters per passage (default: 1000)
//   - overlap (int): Overlapping characters between passages (default: 200)
func buildChunker(cfg map[string]any) (driven.Splitter, error) {
	var opts []chunker.Option

	if cfg != nil {
		if size := getIntFromConfig(cfg, "chunk_size"); size > 0 {
			opts = append(opts, chunker.WithChunkSize(size))
		}
		if _, ok := cfg["overlap"]; ok {
			opts = append(opts, chunker.WithOverlap(getIntFromConfig(cfg, "overlap")))
		}
	}

	return chunker.New(opts...), nil
}

// getIntFromConfig safely extracts an int from generic config map.
// Handles int, int64, and float64 types that may come from TOML/JSON parsing.
func getIntFromConfig(cfg map[string]any, key string) int {
	val, ok := cfg[key]
	if !ok {
		return 0
	}

	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// Package modulecache caches compiled modules by import path so
// several Runtime processes (or repeated imports within one) can
// avoid recompiling the same source. A Cache is optional; without one
// attached, Runtime's own in-memory export cache per spec.md §4.4 is
// the only cache layer.
package modulecache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oriys/bur/internal/lang/bytecode"
)

// CachedModule is the JSON-encoded round-trip unit stored per path:
// the compiled instruction/function tables plus the source hash they
// were built from, so a cache hit can be invalidated on source change
// without recompiling to detect the mismatch.
type CachedModule struct {
	Path   string                    `json:"path"`
	Hash   string                    `json:"hash"`
	Module *bytecode.CompiledModule  `json:"module"`
}

// Cache reads and writes CachedModule entries keyed by import path.
type Cache interface {
	Get(ctx context.Context, path string) (*CachedModule, bool, error)
	Set(ctx context.Context, path string, m *CachedModule, ttl time.Duration) error
	Invalidate(ctx context.Context, path string) error
	Close() error
}

func encode(m *CachedModule) ([]byte, error) { return json.Marshal(m) }
func decode(data []byte) (*CachedModule, error) {
	var m CachedModule
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

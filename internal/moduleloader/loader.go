// Package moduleloader resolves a Bur import path to module source,
// the external-collaborator interface spec.md §6 pins the Runtime's
// import resolution against. Two concrete backends are provided: a
// local filesystem loader (the default) and an S3-backed loader for
// remotely-hosted modules.
package moduleloader

import "context"

// LoadedModule is the result of resolving an import path: the raw
// source text plus the content hash a cache layer keys on.
type LoadedModule struct {
	Path   string
	Source string
	Hash   string // HashString(Source), see internal/pkg/crypto
}

// ModuleLoader resolves path to a LoadedModule. Implementations must
// be safe for concurrent use; Runtime.Import may call Load for
// distinct paths from different goroutines.
type ModuleLoader interface {
	Load(ctx context.Context, path string) (*LoadedModule, error)
}

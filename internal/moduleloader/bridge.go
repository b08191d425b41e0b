package moduleloader

import "context"

// AsSourceLoader adapts a ModuleLoader to internal/runtime.SourceLoader's
// narrower, context-free `Load(path) (string, error)` contract, the
// shape Runtime depends on per spec.md §6. Runtime never needs path's
// hash or a ctx deadline mid-import, so context.Background() is used
// for every call.
type AsSourceLoader struct {
	ModuleLoader
}

// Load implements runtime.SourceLoader.
func (a AsSourceLoader) Load(path string) (string, error) {
	m, err := a.ModuleLoader.Load(context.Background(), path)
	if err != nil {
		return "", err
	}
	return m.Source, nil
}

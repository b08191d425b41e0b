package main

import (
	"context"
	"fmt"

	"github.com/oriys/bur/internal/config"
	"github.com/oriys/bur/internal/moduleloader"
	"github.com/oriys/bur/internal/runtime"
)

// buildSourceLoader constructs the runtime.SourceLoader cfg.Loader
// names, defaulting to the filesystem backend when cfg leaves it
// unset. The filesystem loader is rooted at cfg.Loader.FSRoot, or at
// dir when that is empty.
func buildSourceLoader(ctx context.Context, cfg *config.Config, dir string) (runtime.SourceLoader, error) {
	backend := cfg.Loader.Backend
	if backend == "" {
		backend = "fs"
	}
	switch backend {
	case "fs":
		root := cfg.Loader.FSRoot
		if root == "" {
			root = dir
		}
		return moduleloader.AsSourceLoader{ModuleLoader: moduleloader.NewFSLoader(root)}, nil
	case "s3":
		l, err := moduleloader.NewS3Loader(ctx, moduleloader.S3Config{
			Bucket: cfg.Loader.S3.Bucket,
			Prefix: cfg.Loader.S3.Prefix,
			Region: cfg.Loader.S3.Region,
		})
		if err != nil {
			return nil, err
		}
		return moduleloader.AsSourceLoader{ModuleLoader: l}, nil
	default:
		return nil, fmt.Errorf("bur: unknown loader backend %q", backend)
	}
}

func runtimeConfig(cfg *config.Config) runtime.Config {
	return runtime.Config{GC: runtime.GCConfig{Interval: cfg.GC.Interval}}
}

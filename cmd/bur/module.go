package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/oriys/bur/internal/moduleregistry"
	"github.com/oriys/bur/internal/output"
	"github.com/oriys/bur/internal/pkg/crypto"
)

func newModuleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "module",
		Short: "Publish, list, inspect, and roll back modules in the durable registry",
	}
	cmd.AddCommand(newModulePublishCmd())
	cmd.AddCommand(newModuleListCmd())
	cmd.AddCommand(newModuleGetCmd())
	cmd.AddCommand(newModuleRollbackCmd())
	return cmd
}

func openRegistry(ctx context.Context) (*moduleregistry.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.Registry.Enabled || cfg.Registry.DSN == "" {
		return nil, fmt.Errorf("bur module: registry.enabled is false or registry.dsn is unset in config")
	}
	return moduleregistry.NewStore(ctx, cfg.Registry.DSN)
}

func newModulePublishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish <path> <file.bur>",
		Short: "Publish a new version of a module",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			store, err := openRegistry(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			src, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("bur module publish: reading %q: %w", args[1], err)
			}
			source := string(src)
			version, err := store.Publish(ctx, args[0], source, crypto.HashString(source))
			if err != nil {
				return err
			}
			p := output.NewPrinter(output.ParseFormat(outputFormat))
			p.Success("published %s as v%d", args[0], version)
			return nil
		},
	}
}

func newModuleListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every published module",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			store, err := openRegistry(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			modules, err := store.List(ctx)
			if err != nil {
				return err
			}
			rows := make([]output.ModuleRow, len(modules))
			for i, m := range modules {
				rows[i] = output.ModuleRow{Path: m.Path, LatestVersion: m.Version, Updated: m.CreatedAt.Format("2006-01-02T15:04:05Z07:00")}
			}
			return output.NewPrinter(output.ParseFormat(outputFormat)).PrintModules(rows)
		},
	}
}

func newModuleGetCmd() *cobra.Command {
	var version int
	var allVersions bool
	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "Show a published module's source, or every version with --all-versions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			store, err := openRegistry(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			p := output.NewPrinter(output.ParseFormat(outputFormat))
			if allVersions {
				versions, err := store.ListVersions(ctx, args[0])
				if err != nil {
					return err
				}
				rows := make([]output.ModuleVersionRow, len(versions))
				for i, v := range versions {
					rows[i] = output.ModuleVersionRow{Path: v.Path, Version: v.Version, CodeHash: v.CodeHash, Created: v.CreatedAt.Format("2006-01-02T15:04:05Z07:00")}
				}
				return p.PrintModuleVersions(rows)
			}

			var m *moduleregistry.PublishedModule
			if version > 0 {
				m, err = store.GetVersion(ctx, args[0], version)
			} else {
				m, err = store.Get(ctx, args[0])
			}
			if err != nil {
				return err
			}
			return p.PrintModuleDetail(output.ModuleDetail{
				Path:     m.Path,
				Version:  m.Version,
				CodeHash: m.CodeHash,
				Source:   m.Source,
				Created:  m.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			})
		},
	}
	cmd.Flags().IntVar(&version, "version", 0, "fetch a specific version instead of the latest")
	cmd.Flags().BoolVar(&allVersions, "all-versions", false, "list every version instead of showing one module's source")
	return cmd
}

func newModuleRollbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <path> <version>",
		Short: "Point a module's latest version at an already-published version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("bur module rollback: invalid version %q: %w", args[1], err)
			}
			ctx := context.Background()
			store, err := openRegistry(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Rollback(ctx, args[0], version); err != nil {
				return err
			}
			output.NewPrinter(output.ParseFormat(outputFormat)).Success("rolled back %s to v%d", args[0], version)
			return nil
		},
	}
}

// Command swarmd is the mcp-swarm entrypoint: a cobra CLI wiring
// zap logger -> swarmconfig -> persistence gateway -> event bus ->
// supervisor -> session layer -> control surface, replacing the teacher's
// cmd/omega/main.go plain-func wiring with spf13/cobra the way a CLI-first
// tool in this corpus structures its entrypoint.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/SpideXD/mcp-swarm/internal/catalog"
	"github.com/SpideXD/mcp-swarm/internal/control"
	"github.com/SpideXD/mcp-swarm/internal/eventbus"
	"github.com/SpideXD/mcp-swarm/internal/meta"
	"github.com/SpideXD/mcp-swarm/internal/profile"
	"github.com/SpideXD/mcp-swarm/internal/session"
	"github.com/SpideXD/mcp-swarm/internal/store"
	"github.com/SpideXD/mcp-swarm/internal/supervisor"
	"github.com/SpideXD/mcp-swarm/internal/swarmconfig"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "0.1.0-dev"

func main() {
	root := &cobra.Command{
		Use:   "swarmd",
		Short: "mcp-swarm supervises local and remote MCP tool-providing workers",
	}
	root.AddCommand(newRunCmd())
	root.AddCommand(newVersionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the swarmd version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version)
			return nil
		},
	}
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the supervisor and its control surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
}

func run() error {
	zl, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("swarmd: build logger: %w", err)
	}
	defer zl.Sync()
	log := zl.Sugar()

	cfg, err := swarmconfig.Load(log)
	if err != nil {
		return fmt.Errorf("swarmd: load config: %w", err)
	}
	log.Infow("swarmd: starting", "mode", cfg.Mode, "version", version)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("swarmd: create data dir %q: %w", cfg.DataDir, err)
	}

	gw, err := store.Open(cfg.DBPath, log)
	if err != nil {
		return fmt.Errorf("swarmd: open store: %w", err)
	}
	defer gw.Close()

	bus := eventbus.New()

	sup := supervisor.New(gw, bus, cfg, log)
	if err := sup.Start(context.Background()); err != nil {
		return fmt.Errorf("swarmd: start supervisor: %w", err)
	}
	defer sup.Stop()

	builtinPath := filepath.Join(cfg.DataDir, "profiles.yaml")
	builtins, err := profile.LoadBuiltins(builtinPath)
	if err != nil {
		log.Warnw("swarmd: load built-in profiles", "path", builtinPath, "err", err)
		builtins = nil
	}
	profiles := profile.New(gw, builtins)

	var sources []catalog.Source
	for i, url := range cfg.CatalogSources {
		sources = append(sources, &catalog.HTTPSource{
			SourceName: fmt.Sprintf("catalog-%d", i),
			BaseURL:    url,
		})
	}
	discovery := catalog.New(sources, log)
	facade := meta.New(sup, gw, profiles, discovery)

	if cfg.Mode == swarmconfig.ModeStdio {
		log.Info("swarmd: serving stdio MCP surface")
		stdio := control.NewStdioServer(facade)
		err := stdio.Serve()
		sup.StopAll()
		return err
	}

	sessions := session.New(cfg.MaxSessions, cfg.SessionIdleTimeout, cfg.SessionCleanupInterval, sup.ReleaseSession, bus, log)
	defer sessions.CloseStore()

	ctrl := control.NewServer(cfg, sessions, facade, sup, bus, log)
	if err := ctrl.Start(); err != nil {
		return fmt.Errorf("swarmd: control surface: %w", err)
	}

	sup.StopAll()
	return nil
}

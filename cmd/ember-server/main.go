// Command ember-server is the process entrypoint: it parses CLI flags,
// restores the keyspace from a snapshot if one is configured, and serves
// the wire protocol until terminated.
package main

import (
	"fmt"
	"os"

	"github.com/emberkv/ember/internal/applog"
	"github.com/emberkv/ember/internal/config"
	"github.com/emberkv/ember/internal/server"
	"github.com/emberkv/ember/internal/snapshot"
	"github.com/emberkv/ember/internal/store"
)

const banner = `
  [91m███████╗███╗   ███╗██████╗ ███████╗██████╗ [0m
  [91m██╔════╝████╗ ████║██╔══██╗██╔════╝██╔══██╗[0m
  [92m█████╗  ██╔████╔██║██████╔╝█████╗  ██████╔╝[0m
  [92m██╔══╝  ██║╚██╔╝██║██╔══██╗██╔══╝  ██╔══██╗[0m
  [94m███████╗██║ ╚═╝ ██║██████╔╝███████╗██║  ██║[0m
  [94m╚══════╝╚═╝     ╚═╝╚═════╝ ╚══════╝╚═╝  ╚═╝[0m
`

func main() {
	fmt.Println(banner)
	applog.Info(">>>> ember server <<<<")

	cfg, err := config.FromArgs(os.Args[1:])
	if err != nil {
		applog.Error("invalid arguments: %v", err)
		os.Exit(1)
	}

	ks := store.New()

	if cfg.SnapshotDir != "" && cfg.SnapshotDBFile != "" {
		applog.Info("loading snapshot from %s/%s", cfg.SnapshotDir, cfg.SnapshotDBFile)
		if err := snapshot.Load(ks, cfg.SnapshotDir, cfg.SnapshotDBFile); err != nil {
			applog.Warn("snapshot load reported an error (continuing): %v", err)
		}
	}

	srv := server.New(cfg, ks)
	if err := srv.ListenAndServe(); err != nil {
		applog.Error("failed to bind port %d: %v", cfg.Port, err)
		os.Exit(1)
	}
	os.Exit(0)
}

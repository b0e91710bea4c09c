// Command dynamod is the engine daemon: a persistent process that owns the
// catalog, server manager, and scheduler main loop, per spec.md §1/§4.5.
// The hidden "worker" subcommand re-execs this same binary as a worker
// process, the subprocess substitute for the original's dynamically
// loaded execfile payload (spec.md §9 "Dynamic worker payloads").
/*
 * Copyright (c) 2024-2026, the dynamo project authors.
 */
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/cpausmit/dynamo/internal/board"
	"github.com/cpausmit/dynamo/internal/catalog"
	"github.com/cpausmit/dynamo/internal/config"
	"github.com/cpausmit/dynamo/internal/dstats"
	"github.com/cpausmit/dynamo/internal/master"
	"github.com/cpausmit/dynamo/internal/master/boltstore"
	"github.com/cpausmit/dynamo/internal/registry"
	"github.com/cpausmit/dynamo/internal/scheduler"
	"github.com/cpausmit/dynamo/internal/servermgr"
	"github.com/cpausmit/dynamo/internal/worker"
	"github.com/cpausmit/dynamo/internal/xlog"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		hostname   string
		metricsAddr string
	)

	root := &cobra.Command{
		Use:   "dynamod",
		Short: "distributed data-management engine daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(cmd.Context(), configPath, hostname, metricsAddr)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "/etc/dynamo/dynamo.yaml", "path to the engine YAML configuration")
	root.PersistentFlags().StringVar(&hostname, "hostname", "", "this host's name in the master store (default: OS hostname)")
	root.Flags().StringVar(&metricsAddr, "metrics-addr", ":9182", "address to serve Prometheus metrics on")

	root.AddCommand(newWorkerCmd())
	return root
}

func runEngine(ctx context.Context, configPath, hostname, metricsAddr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if hostname == "" {
		hostname, err = os.Hostname()
		if err != nil {
			return errors.Wrap(err, "dynamod: hostname")
		}
	}

	masterStore, err := openMasterStore(cfg.Master)
	if err != nil {
		return errors.Wrap(err, "dynamod: open master store")
	}
	var shadowStore master.Store
	if cfg.Shadow != nil {
		shadowStore, err = openMasterStore(*cfg.Shadow)
		if err != nil {
			return errors.Wrap(err, "dynamod: open shadow store")
		}
	}

	updateBoard, err := openBoard(cfg.Board)
	if err != nil {
		return errors.Wrap(err, "dynamod: open board")
	}

	registryBackend, err := openRegistry(cfg.Registry.Backend)
	if err != nil {
		return errors.Wrap(err, "dynamod: open registry")
	}

	cat := catalog.New()
	stats := dstats.New()

	mgr := servermgr.NewManager(servermgr.Config{
		Hostname:   hostname,
		MasterHost: cfg.Master.Config["host"],
		Master:     masterStore,
		Shadow:     shadowStore,
		Board:      updateBoard,
		Stats:      stats,
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr.StartHeartbeat(ctx)

	sched := scheduler.New(scheduler.Config{
		Registry:       registryBackend,
		Catalog:        cat,
		Manager:        mgr,
		FullAccessUser: cfg.User,
		ReadOnlyUser:   cfg.ReadUser,
		LogDir:         "/var/log/dynamo",
		SocketDir:      os.TempDir(),
		Stats:          stats,
	})

	go serveMetrics(metricsAddr, stats)

	xlog.Log.Info().Str("host", hostname).Msg("dynamod: starting")
	err = sched.Run(ctx)
	mgr.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func serveMetrics(addr string, stats *dstats.Stats) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", stats.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		xlog.Log.Warn().Err(err).Msg("dynamod: metrics server stopped")
	}
}

func openMasterStore(mc config.ModuleConfig) (master.Store, error) {
	switch mc.Module {
	case "bolt", "":
		return boltstore.Open(mc.Config["path"], mc.Config["holder_id"])
	default:
		return nil, errors.Errorf("dynamod: unknown master.module %q", mc.Module)
	}
}

func openBoard(bc config.ModuleConfig) (board.Board, error) {
	switch bc.Module {
	case "bolt", "":
		return board.OpenBolt(bc.Config["path"])
	default:
		return nil, errors.Errorf("dynamod: unknown board.module %q", bc.Module)
	}
}

func openRegistry(bc config.BackendConfig) (registry.Backend, error) {
	switch bc.Interface {
	case "bolt", "":
		return registry.OpenBolt(bc.Config["path"])
	default:
		return nil, errors.Errorf("dynamod: unknown registry.backend.interface %q", bc.Interface)
	}
}

func newWorkerCmd() *cobra.Command {
	var (
		actionID    uint64
		payloadPath string
		argsStr     string
		socket      string
		snapshot    string
		readOnly    bool
	)

	cmd := &cobra.Command{
		Use:    "worker",
		Short:  "internal: run a single action payload (invoked by dynamod itself)",
		Hidden: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := os.ReadFile(snapshot)
			if err != nil {
				return errors.Wrap(err, "dynamod worker: read snapshot")
			}

			loader := worker.Loader(worker.PluginLoader{})
			if readOnly {
				loader = worker.ExternalLoader{}
			}
			payload, err := loader.Load(payloadPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
			defer stop()
			// The interrupt signal is ignored (spec.md §4.5.1 "ignore the
			// interrupt signal"): only the scheduler's termination signal
			// unwinds a worker.
			signal.Ignore(os.Interrupt)

			return worker.Execute(ctx, worker.RunConfig{
				ActionID: actionID,
				Args:     argsStr,
				Snapshot: data,
				Socket:   socket,
				ReadOnly: readOnly,
			}, payload)
		},
	}

	cmd.Flags().Uint64Var(&actionID, "action-id", 0, "")
	cmd.Flags().StringVar(&payloadPath, "payload", "", "")
	cmd.Flags().StringVar(&argsStr, "args", "", "")
	cmd.Flags().StringVar(&socket, "socket", "", "")
	cmd.Flags().StringVar(&snapshot, "snapshot", "", "")
	cmd.Flags().BoolVar(&readOnly, "readonly", false, "")
	return cmd
}

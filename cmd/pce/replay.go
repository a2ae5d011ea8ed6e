// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PCE Contributors

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pce-editor/pce/internal/host"
	"github.com/pce-editor/pce/internal/observability"
	"github.com/pce-editor/pce/pkg/errutil"
	"github.com/pce-editor/pce/pkg/plugin"
)

// listenRetries bounds how often the metrics listener is retried.
const listenRetries = 4

// newReplayCmd creates the replay subcommand.
func newReplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <script>",
		Short: "Replay an event script through the installed plugins",
		Long: `Load every plugin from the plugins directory, attach it to a headless
editor and dispatch the events of a script in order. Scripts ending in .yaml
are YAML; anything else uses the compact one-event-per-line format. Each
event prints its final disposition and the plugin that intercepted it, if
any.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, args[0])
		},
	}
}

func runReplay(cmd *cobra.Command, scriptPath string) error {
	cfg, logger, err := resolveConfig(cmd.Flags())
	if err != nil {
		return err
	}

	events, err := host.LoadScript(scriptPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var ready atomic.Bool
	var metrics *observability.Metrics
	if cfg.MetricsAddr != "" {
		srv := observability.NewServer(cfg.MetricsAddr, ready.Load)
		srv.SetLogger(logger)
		errCh, err := srv.StartRetry(ctx, listenRetries)
		if err != nil {
			return err
		}
		go watchServer(logger, errCh)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := srv.Stop(shutdownCtx); err != nil {
				errutil.LogError(logger, "failed to stop observability server", err)
			}
		}()
		metrics = srv.Metrics()
	}

	d, err := startHost(ctx, cfg, logger, metrics)
	if err != nil {
		return err
	}
	ready.Store(true)

	replayed := replayEvents(ctx, d, events, cmd.OutOrStdout())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := d.Close(shutdownCtx); err != nil {
		return err
	}

	logger.Info("replay finished", "events", replayed, "total", len(events))
	return nil
}

// replayEvents dispatches events in order until ctx is cancelled and
// returns how many were dispatched.
func replayEvents(ctx context.Context, d *host.Dispatcher, events []plugin.Event, w io.Writer) int {
	for i, event := range events {
		if ctx.Err() != nil {
			return i
		}
		out := d.DispatchOutcome(event)
		line := fmt.Sprintf("%d %s -> %s", i+1, plugin.KindName(plugin.KindOfEvent(event)), out.Disposition)
		if out.InterceptedBy != "" {
			line += " [intercepted by " + out.InterceptedBy + "]"
		}
		_, _ = fmt.Fprintln(w, line)
	}
	return len(events)
}

func watchServer(logger *slog.Logger, errCh <-chan error) {
	for err := range errCh {
		errutil.LogError(logger, "observability server failed", err)
	}
}

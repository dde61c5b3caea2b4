package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/tasksync/internal/app"
	"github.com/mschirtzinger/tasksync/internal/dashboard"
	"github.com/mschirtzinger/tasksync/internal/reconcile"
	"github.com/mschirtzinger/tasksync/internal/schema"
	"github.com/mschirtzinger/tasksync/internal/sources/filesrc"
	"github.com/mschirtzinger/tasksync/internal/ui"
	"github.com/mschirtzinger/tasksync/internal/watch"
)

var syncCmd = &cobra.Command{
	Use:     "sync [source-id]",
	GroupID: "sync",
	Short:   "Run one reconciliation pass now",
	Long: `Poll sources and reconcile their assignments into tasks.

With a source id only that source is synced; otherwise every connected source
of the owner is synced one after another.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := openSession()
		defer s.Close()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		start := time.Now()
		var runs []*reconcile.Run
		var err error
		if len(args) == 1 {
			var run *reconcile.Run
			run, err = s.SyncSource(ctx, args[0])
			if run != nil {
				runs = append(runs, run)
			}
		} else {
			runs, err = s.SyncAll(ctx)
		}

		for _, run := range runs {
			printRun(run)
		}
		if err != nil {
			fail("%v", err)
		}
		if len(runs) == 0 {
			fmt.Println("No sources connected.")
			return
		}
		fmt.Printf("%s Sync complete in %v\n", ui.RenderPass("✓"), time.Since(start).Round(time.Millisecond))
	},
}

func printRun(run *reconcile.Run) {
	sum := run.Summary()
	mark := ui.RenderPass("✓")
	if run.Err != nil {
		mark = ui.RenderFail("✗")
	} else if sum.Failed > 0 {
		mark = ui.RenderWarn("⚠")
	}

	fmt.Printf("%s %s  new %d  updated %d  unchanged %d  failed %d\n",
		mark, ui.RenderAccent(run.SourceAccountID), sum.New, sum.Updated, sum.Unchanged, sum.Failed)
	if run.Err != nil {
		fmt.Printf("   %v\n", run.Err)
	}
	for _, o := range run.FailedOutcomes() {
		fmt.Printf("   %s %s: %v\n", ui.RenderFail("✗"), o.ExternalID, o.Err)
	}
	for _, o := range run.Outcomes {
		for _, w := range o.Warnings {
			fmt.Printf("   %s %s: %s\n", ui.RenderWarn("⚠"), o.ExternalID, w)
		}
	}
}

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Sync on a schedule until interrupted",
	Long: `Run the sync scheduler in the foreground. Every sync.interval all connected
sources are reconciled one at a time. File sources are also synced shortly
after their directory changes (watch.enabled), and with dashboard.enabled a
WebSocket feed at ws://localhost:<port>/ws reports every finished pass.`,
	Run: func(cmd *cobra.Command, args []string) {
		if cmd.Flags().Changed("dashboard") {
			cfg.Dashboard.Enabled, _ = cmd.Flags().GetBool("dashboard")
		}
		if cmd.Flags().Changed("port") {
			cfg.Dashboard.Port, _ = cmd.Flags().GetInt("port")
		}

		s := openSessionWith(app.Options{RunOnStart: true})
		defer s.Close()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if cfg.Dashboard.Enabled {
			dcfg := dashboard.DefaultConfig()
			if cfg.Dashboard.Port > 0 {
				dcfg.Port = cfg.Dashboard.Port
			}
			dcfg.Logger = logger
			server := dashboard.NewServer(dcfg)
			if err := server.Start(); err != nil {
				fail("failed to start dashboard: %v", err)
			}
			defer server.Stop()
			s.AddRefresher(dashboard.NewHandler(server, logger))
			fmt.Printf("Dashboard feed: ws://%s/ws\n", server.Addr())
		}

		if cfg.Watch.Enabled {
			w, err := startWatcher(ctx, s)
			if err != nil {
				fail("%v", err)
			}
			defer w.Stop()
		}

		sched := s.Scheduler()
		sched.Start(ctx)
		fmt.Printf("%s Syncing every %v as %s. Press Ctrl+C to stop.\n",
			ui.RenderAccent("↻"), cfg.Sync.Interval, s.Owner())

		<-ctx.Done()
		fmt.Println("\nStopping...")
		sched.Stop()
	},
}

// startWatcher watches the directory of every connected file source.
func startWatcher(ctx context.Context, s *app.Session) (*watch.Watcher, error) {
	wcfg := watch.DefaultConfig()
	if cfg.Watch.Debounce > 0 {
		wcfg.Debounce = cfg.Watch.Debounce
	}
	wcfg.Logger = logger
	w, err := watch.New(s.Scheduler(), wcfg)
	if err != nil {
		return nil, err
	}

	srcs, err := s.Sources(ctx)
	if err != nil {
		_ = w.Stop()
		return nil, err
	}
	for _, a := range srcs {
		if a.Type != schema.SourceTypeFile {
			continue
		}
		if err := w.Add(a.ID, a.Detail(filesrc.KeyDir, "")); err != nil {
			logger.Warn().Err(err).Str("source", a.ID).Msg("cannot watch file source")
		}
	}

	if err := w.Start(ctx); err != nil {
		_ = w.Stop()
		return nil, err
	}
	return w, nil
}

func init() {
	daemonCmd.Flags().Bool("dashboard", false, "serve the WebSocket feed (overrides dashboard.enabled)")
	daemonCmd.Flags().IntP("port", "p", 8080, "dashboard port (overrides dashboard.port)")

	rootCmd.AddCommand(syncCmd, daemonCmd)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/stockmaster/stocksync/internal/connectivity"
	"github.com/stockmaster/stocksync/internal/daemon"
	"github.com/stockmaster/stocksync/internal/dashboard"
	"github.com/stockmaster/stocksync/internal/schema"
	"github.com/stockmaster/stocksync/internal/store"
	stsync "github.com/stockmaster/stocksync/internal/sync"
	"github.com/stockmaster/stocksync/internal/ui"
)

// terminal prints status changes and toasts.
type terminal struct {
	mu   sync.Mutex
	last schema.Status
	seen bool
}

func (t *terminal) SetStatus(s schema.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.seen && t.last == s {
		return
	}
	t.last, t.seen = s, true
	fmt.Printf("%s %s\n", ui.RenderMuted(time.Now().Format("15:04:05")), ui.RenderStatus(s))
}

func (t *terminal) Notify(msg string, sev schema.Severity) {
	fmt.Printf("%s %s\n", ui.RenderMuted(time.Now().Format("15:04:05")), ui.RenderToast(msg, sev))
}

// fanout forwards status and toasts to several sinks.
type fanout struct {
	status []connectivity.StatusSink
	toasts []stsync.Notifier
}

func (f *fanout) SetStatus(s schema.Status) {
	for _, sink := range f.status {
		sink.SetStatus(s)
	}
}

func (f *fanout) Notify(msg string, sev schema.Severity) {
	for _, n := range f.toasts {
		n.Notify(msg, sev)
	}
}

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Run one sync cycle now",
	Long: `Upload the whole local store to the sync server and replace local
collections with the server's response.

The batch is validated first; a product missing a name, price or stock is
reported and nothing is sent. On failure the local store is left unchanged.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		term := &terminal{}
		a, err := openApp(ctx, &stsync.Config{Status: term, Notifier: term})
		if err != nil {
			return err
		}
		defer a.Close()

		if !a.session.IsAuthenticated(ctx) {
			fmt.Printf("%s Not logged in; the server will reject the upload. Run 'stocksync login' first.\n", ui.RenderWarn("⚠"))
		}

		result, err := a.manager.Sync(ctx, stsync.Options{Reload: true})
		if err != nil {
			// The failure was already reported through the notifier.
			return errSilent
		}

		rows := make([][]string, 0, len(schema.CollectionSlots))
		for _, slot := range schema.CollectionSlots {
			replaced := "-"
			for _, s := range result.Slots {
				if s == slot {
					replaced = "yes"
				}
			}
			rows = append(rows, []string{slot.String(), strconv.Itoa(result.Sent[slot]), replaced})
		}
		fmt.Println()
		fmt.Print(ui.Table([]string{"COLLECTION", "SENT", "REPLACED"}, rows))
		fmt.Printf("\nLast sync: %s\n", result.SyncedAt.Local().Format("2006-01-02 15:04:05"))
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show connectivity, session and local data status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		monitor := connectivity.New(a.client, nil, &connectivity.Config{
			ProbeTimeout: cfg.Connectivity.ProbeTimeout,
			Logger:       a.logger("[connectivity] "),
		})
		monitor.Check(ctx)

		fmt.Printf("\n%s StockSync Status\n\n", ui.RenderAccent("📊"))
		fmt.Printf("Server:    %s (%s)\n", cfg.Server.URL, ui.RenderStatus(monitor.Status()))
		fmt.Printf("Store:     %s %s\n", cfg.Store.Backend, ui.RenderMuted(cfg.Store.Path))

		user, _ := a.session.User(ctx)
		switch {
		case a.session.IsAuthenticated(ctx) && user != nil:
			fmt.Printf("Session:   %s\n", user.DisplayName())
		case a.session.IsAuthenticated(ctx):
			fmt.Printf("Session:   logged in\n")
		default:
			fmt.Printf("Session:   %s\n", ui.RenderWarn("not logged in"))
		}

		last, err := a.manager.LastSyncTime(ctx)
		if err != nil {
			return err
		}
		if last != nil {
			fmt.Printf("Last sync: %s\n", last.Local().Format("2006-01-02 15:04:05"))
		} else {
			fmt.Printf("Last sync: %s\n", ui.RenderMuted("never"))
		}

		snap, err := store.ReadSnapshot(ctx, a.store)
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(schema.CollectionSlots))
		for _, slot := range schema.CollectionSlots {
			records := snap.Collection(slot)
			pending := 0
			for _, r := range records {
				if id, ok := r["id"]; !ok || isTemporaryID(id) {
					pending++
				}
			}
			rows = append(rows, []string{slot.String(), strconv.Itoa(len(records)), strconv.Itoa(pending)})
		}
		fmt.Println()
		fmt.Print(ui.Table([]string{"COLLECTION", "RECORDS", "UNSYNCED"}, rows))
		fmt.Println()
		return nil
	},
}

func isTemporaryID(v any) bool {
	n, err := strconv.ParseFloat(fmt.Sprint(v), 64)
	return err != nil || n <= 0
}

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the auto-sync daemon (foreground)",
	Long: `Run the auto-sync daemon in the foreground.

The daemon:
  1. Checks connectivity and syncs once if the store has data
  2. Re-checks connectivity periodically
  3. Syncs on a fixed interval while online and logged in
  4. Syncs after local edits (files backend), debounced
  5. Syncs on SIGHUP
  6. Optionally serves the WebSocket status feed (--dashboard)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		withDashboard, _ := cmd.Flags().GetBool("dashboard")
		return runDaemon(cmd.Context(), withDashboard)
	},
}

func runDaemon(parent context.Context, withDashboard bool) error {
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sinks := &fanout{}
	term := &terminal{}
	sinks.status = append(sinks.status, term)
	sinks.toasts = append(sinks.toasts, term)

	a, err := openApp(ctx, &stsync.Config{Status: sinks, Notifier: sinks})
	if err != nil {
		return err
	}
	defer a.Close()

	monitor := connectivity.New(a.client, sinks, &connectivity.Config{
		PollInterval:   cfg.Connectivity.PollInterval,
		ProbeTimeout:   cfg.Connectivity.ProbeTimeout,
		ReconnectEvery: cfg.Connectivity.ReconnectEvery,
		ReconnectBurst: 1,
		HasLocalData: func(ctx context.Context) (bool, error) {
			return store.HasLocalData(ctx, a.store)
		},
		Sync: func(ctx context.Context) error {
			if !a.session.IsAuthenticated(ctx) {
				return nil
			}
			_, err := a.manager.Sync(ctx, stsync.Options{})
			if errors.Is(err, stsync.ErrSyncInProgress) {
				return nil
			}
			return err
		},
		IsSyncing: a.manager.IsSyncing,
		Logger:    a.logger("[connectivity] "),
	})

	var watcher *store.Watcher
	if files, ok := a.store.(*store.Files); ok {
		watcher, err = store.NewWatcher(files)
		if err != nil {
			return err
		}
	}

	d, err := daemon.New(a.manager, monitor, watcher, &daemon.Config{
		AutoSyncInterval: cfg.Sync.AutoInterval,
		DebounceInterval: cfg.Sync.Debounce,
		Authenticated:    a.session.IsAuthenticated,
		Logger:           a.logger("[daemon] "),
	})
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	if withDashboard {
		server := dashboard.NewServer(&dashboard.Config{
			Addr:     cfg.Dashboard.Addr,
			OnOnline: d.TriggerOnline,
			OnSync:   d.TriggerSync,
			Logger:   a.logger("[dashboard] "),
		})
		handler := dashboard.NewHandler(server, a.logger("[dashboard] "))
		sinks.status = append(sinks.status, handler)
		sinks.toasts = append(sinks.toasts, handler)
		unsubscribe := a.manager.Subscribe(handler.OnEvent)
		defer unsubscribe()

		if err := server.Start(); err != nil {
			return fmt.Errorf("failed to start dashboard: %w", err)
		}
		defer func() {
			if err := server.Stop(); err != nil {
				fmt.Fprintf(os.Stderr, "Error during dashboard shutdown: %v\n", err)
			}
		}()
		fmt.Printf("Dashboard: ws://%s/ws\n", server.GetAddr())
	}

	fmt.Printf("%s Starting sync daemon...\n", ui.RenderAccent("🚀"))
	fmt.Printf("   Server: %s\n", cfg.Server.URL)
	fmt.Printf("   Store:  %s (%s)\n", cfg.Store.Path, cfg.Store.Backend)
	fmt.Printf("   Auto-sync every %v\n", cfg.Sync.AutoInterval)
	fmt.Printf("\nPress Ctrl+C to stop, send SIGHUP to sync now\n\n")

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				d.TriggerSync()
			}
		}
	}()

	return d.Run(ctx)
}

var clearCmd = &cobra.Command{
	Use:     "clear",
	GroupID: "data",
	Short:   "Delete all local business data (keeps the session)",
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			ok, err := confirm("Delete all local inventory data? Unsynced changes will be lost.")
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("Aborted")
				return nil
			}
		}

		a, err := openApp(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.manager.ClearLocalData(cmd.Context()); err != nil {
			return err
		}
		fmt.Printf("%s Local data cleared\n", ui.RenderPass("✓"))
		return nil
	},
}

func init() {
	daemonCmd.Flags().Bool("dashboard", false, "serve the WebSocket status feed")
	clearCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")

	rootCmd.AddCommand(syncCmd, statusCmd, daemonCmd, clearCmd)
}

package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stockmaster/stocksync/internal/auth"
	"github.com/stockmaster/stocksync/internal/config"
	"github.com/stockmaster/stocksync/internal/remote"
	"github.com/stockmaster/stocksync/internal/store"
	stsync "github.com/stockmaster/stocksync/internal/sync"
)

var (
	v       = viper.New()
	cfg     *config.Config
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "stocksync",
	Short: "Offline-first inventory and POS sync",
	Long: `stocksync keeps a local inventory store in step with the sync server.

The UI layer edits the local store directly; stocksync uploads the whole
store, lets the server assign ids to new records, and replaces the local
collections with the server's canonical copies.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "auth", Title: "Session Commands:"},
		&cobra.Group{ID: "data", Title: "Data Commands:"},
	)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ./stocksync.toml or "+filepath.Join(config.DefaultDir(), "stocksync.toml")+")")
	flags.String("server", "", "sync server URL")
	flags.String("store", "", "store backend: sqlite, files or memory")
	flags.String("store-path", "", "store database file (sqlite) or directory (files)")
	flags.String("log-file", "", "write logs to this rotating file instead of stderr")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log component activity")

	_ = v.BindPFlag(config.KeyServerURL, flags.Lookup("server"))
	_ = v.BindPFlag(config.KeyStoreBackend, flags.Lookup("store"))
	_ = v.BindPFlag(config.KeyStorePath, flags.Lookup("store-path"))
	_ = v.BindPFlag(config.KeyLogFile, flags.Lookup("log-file"))
}

// app holds the components a command needs, built from cfg.
type app struct {
	store   store.Store
	client  *remote.Client
	session *auth.Session
	manager *stsync.Manager
	logOut  io.Writer
	closers []io.Closer
}

// logger returns a component logger. Component logs are discarded unless
// --verbose is set or a log file is configured.
func (a *app) logger(prefix string) *log.Logger {
	if !verbose && cfg.Log.File == "" {
		return log.New(io.Discard, "", 0)
	}
	if a.logOut == nil {
		l, closer := cfg.Logger("")
		a.logOut = l.Writer()
		a.closers = append(a.closers, closer)
	}
	return log.New(a.logOut, prefix, log.LstdFlags)
}

// openApp opens the store and wires the client, session and manager.
func openApp(ctx context.Context, syncCfg *stsync.Config) (*app, error) {
	backend, err := store.ParseBackend(cfg.Store.Backend)
	if err != nil {
		return nil, err
	}
	if backend != store.BackendMemory {
		dir := cfg.Store.Path
		if backend == store.BackendSQLite {
			dir = filepath.Dir(dir)
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	st, err := store.Open(ctx, backend, cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	a := &app{store: st}
	a.client = remote.New(&remote.Config{
		BaseURL: cfg.Server.URL,
		Timeout: cfg.Server.Timeout,
		Logger:  a.logger("[remote] "),
	})
	a.session = auth.New(st, a.client, &auth.Config{Logger: a.logger("[auth] ")})

	if syncCfg == nil {
		syncCfg = &stsync.Config{}
	}
	if syncCfg.Logger == nil {
		syncCfg.Logger = a.logger("[sync] ")
	}
	a.manager = stsync.New(st, a.client, a.session, syncCfg)
	return a, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error closing store: %v\n", err)
	}
	for _, c := range a.closers {
		_ = c.Close()
	}
}

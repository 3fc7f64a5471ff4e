package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aqademiq/aqsync/internal/daemon"
	"github.com/aqademiq/aqsync/internal/dashboard"
	"github.com/aqademiq/aqsync/internal/ui"
)

var daemonNoDashboard bool

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the sync daemon (foreground)",
	Long: `Run the sync daemon in the foreground.

The daemon will:
  1. Sync every enabled account on the configured schedule
  2. Accept Google push notifications on /webhook/google
  3. Serve the dashboard (WebSocket stream, REST API, ICS feeds)
  4. Hot reload the accounts file on edit
  5. Pause sync cycles while the calendar API is unreachable`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfigOrExit()
		store := openStoreOrExit(cfg)
		defer store.Close()

		logger := daemon.NewLogger(cfg.Log)

		dcfg := &daemon.Config{
			PollCron:         cfg.Daemon.PollCron,
			DebounceInterval: cfg.Daemon.Debounce,
			Logger:           logger,
		}

		d, err := daemon.New(store, cfg, dcfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating daemon: %v\n", err)
			os.Exit(1)
		}

		var srv *dashboard.Server
		if !daemonNoDashboard {
			srv = dashboard.NewServer(store, d, &dashboard.Config{
				Port:   cfg.Dashboard.Port,
				Logger: logger,
			})
			dcfg.Sink = dashboard.NewHandler(srv, logger)
			if err := srv.Start(); err != nil {
				fmt.Fprintf(os.Stderr, "Error starting dashboard: %v\n", err)
				os.Exit(1)
			}
			defer func() { _ = srv.Stop() }()
			fmt.Printf("%s Dashboard on http://%s\n", ui.RenderAccent("🌐"), srv.GetAddr())
		}

		fmt.Printf("%s Starting sync daemon...\n", ui.RenderAccent("🚀"))
		fmt.Printf("   Database: %s\n", cfg.DBPath)
		fmt.Printf("   Accounts: %s\n", cfg.AccountsPath)
		fmt.Printf("   Schedule: %s\n", cfg.Daemon.PollCron)
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := d.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Daemon stopped with error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	daemonCmd.Flags().BoolVar(&daemonNoDashboard, "no-dashboard", false, "run without the HTTP dashboard")
	rootCmd.AddCommand(daemonCmd)
}

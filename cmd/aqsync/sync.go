package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aqademiq/aqsync/internal/config"
	"github.com/aqademiq/aqsync/internal/db"
	"github.com/aqademiq/aqsync/internal/gcal"
	"github.com/aqademiq/aqsync/internal/sync"
	"github.com/aqademiq/aqsync/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync [user_id]",
	GroupID: "sync",
	Short:   "Run one sync cycle now",
	Long: `Run one full sync cycle for a user, or for every enabled account
when no user is given. Each cycle pulls remote changes since the last
checkpoint, applies them locally, then pushes deferred local changes
outward.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runSyncCycle(args, false)
	},
}

var exportCmd = &cobra.Command{
	Use:     "export [user_id]",
	GroupID: "sync",
	Short:   "Push local changes without pulling",
	Long: `Run only the outbound half of a sync cycle: deferred local changes
are pushed to the calendar. Remote changes are left for the next full
sync.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runSyncCycle(args, true)
	},
}

func runSyncCycle(args []string, exportOnly bool) {
	cfg := loadConfigOrExit()
	store := openStoreOrExit(cfg)
	defer store.Close()

	accounts, err := config.LoadAccounts(cfg.AccountsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading accounts: %v\n", err)
		os.Exit(1)
	}
	enabled := config.EnabledAccounts(accounts)
	if len(args) == 1 {
		var match []config.Account
		for _, a := range enabled {
			if a.UserID == args[0] {
				match = append(match, a)
			}
		}
		if len(match) == 0 {
			fmt.Fprintf(os.Stderr, "Error: no enabled account for user %q\n", args[0])
			os.Exit(1)
		}
		enabled = match
	}
	if len(enabled) == 0 {
		fmt.Fprintf(os.Stderr, "Error: no enabled accounts in %s\n", cfg.AccountsPath)
		os.Exit(1)
	}

	logger := log.New(os.Stderr, "[sync] ", log.LstdFlags)
	runs := make(map[string]*db.SyncRun, len(enabled))
	failed := 0
	for _, account := range enabled {
		run, err := syncAccount(cfg, store, logger, account, exportOnly)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s %s: %v\n", ui.RenderErr("✗"), account.UserID, err)
			failed++
			continue
		}
		runs[account.UserID] = run
		if !flagJSON {
			printRun(account.UserID, run)
		}
	}
	if flagJSON {
		printJSON(runs)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

// newEngine builds a one-shot sync engine for a single account, outside
// the daemon.
func newEngine(cfg *config.Config, store *db.DB, logger *log.Logger, account config.Account) (sync.Engine, error) {
	client, err := gcal.NewClient(&gcal.Config{
		BaseURL:    cfg.Calendar.BaseURL,
		Token:      account.Token,
		Timeout:    cfg.Calendar.Timeout,
		MaxRetries: cfg.Calendar.MaxRetries,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	return sync.New(store, client, &sync.Options{
		CalendarID: account.CalendarID,
		ExportNew:  cfg.Sync.ExportNew,
		Logger:     logger,
	}), nil
}

func syncAccount(cfg *config.Config, store *db.DB, logger *log.Logger, account config.Account, exportOnly bool) (*db.SyncRun, error) {
	engine, err := newEngine(cfg, store, logger, account)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if exportOnly {
		return engine.ExportUser(ctx, account.UserID)
	}
	return engine.SyncUser(ctx, account.UserID)
}

func printRun(userID string, run *db.SyncRun) {
	icon := ui.RenderPass("✓")
	switch run.Status {
	case db.RunStatusPartial:
		icon = ui.RenderWarn("⚠")
	case db.RunStatusAborted:
		icon = ui.RenderErr("✗")
	}
	fmt.Printf("%s %s: %s (created %d, updated %d, pushed %d, deferred %d, conflicts %d, skipped %d, failed %d)\n",
		icon, userID, run.Status,
		run.Created, run.UpdatedLocal, run.Pushed, run.Deferred,
		run.Conflicts, run.Skipped, run.Failed)
	if run.Conflicts > 0 {
		fmt.Printf("   %s\n", ui.RenderDim("run 'aqsync conflicts list' to review"))
	}
}

func init() {
	rootCmd.AddCommand(syncCmd, exportCmd)
}

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aqademiq/aqsync/internal/config"
	"github.com/aqademiq/aqsync/internal/db"
	"github.com/aqademiq/aqsync/internal/ui"
)

type accountStatus struct {
	UserID        string      `json:"user_id"`
	CalendarID    string      `json:"calendar_id"`
	Enabled       bool        `json:"enabled"`
	Blocks        int         `json:"blocks"`
	Assignments   int         `json:"assignments"`
	Exams         int         `json:"exams"`
	OpenConflicts int         `json:"open_conflicts"`
	LastRun       *db.SyncRun `json:"last_run,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show per-account sync state",
	Long: `Show every configured account with its entity counts, open
conflicts, and the outcome of its most recent sync run.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfigOrExit()
		store := openStoreOrExit(cfg)
		defer store.Close()

		accounts, err := config.LoadAccounts(cfg.AccountsPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading accounts: %v\n", err)
			os.Exit(1)
		}
		if len(accounts) == 0 && !flagJSON {
			fmt.Printf("%s No accounts configured. Add one to %s\n", ui.RenderWarn("⚠"), cfg.AccountsPath)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		statuses := make([]accountStatus, 0, len(accounts))
		for _, account := range accounts {
			s, err := collectStatus(ctx, store, account)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error reading state for %s: %v\n", account.UserID, err)
				os.Exit(1)
			}
			statuses = append(statuses, s)
		}

		if flagJSON {
			printJSON(statuses)
			return
		}

		fmt.Printf("%s Sync Status\n\n", ui.RenderAccent("🔄"))
		fmt.Printf("Database: %s\n", cfg.DBPath)
		fmt.Printf("Accounts: %s\n\n", cfg.AccountsPath)
		for _, s := range statuses {
			printStatus(s)
		}
	},
}

func collectStatus(ctx context.Context, store *db.DB, account config.Account) (accountStatus, error) {
	s := accountStatus{
		UserID:     account.UserID,
		CalendarID: account.CalendarID,
		Enabled:    account.Enabled,
	}

	blocks, err := store.ListScheduleBlocks(ctx, account.UserID)
	if err != nil {
		return s, err
	}
	assignments, err := store.ListAssignments(ctx, account.UserID)
	if err != nil {
		return s, err
	}
	exams, err := store.ListExams(ctx, account.UserID)
	if err != nil {
		return s, err
	}
	s.Blocks, s.Assignments, s.Exams = len(blocks), len(assignments), len(exams)

	s.OpenConflicts, err = store.CountOpenConflicts(ctx, account.UserID)
	if err != nil {
		return s, err
	}

	runs, err := store.ListSyncRuns(ctx, account.UserID, 1)
	if err != nil {
		return s, err
	}
	if len(runs) > 0 {
		s.LastRun = runs[0]
	}
	return s, nil
}

func printStatus(s accountStatus) {
	state := ui.RenderPass("enabled")
	if !s.Enabled {
		state = ui.RenderDim("disabled")
	}
	fmt.Printf("%s (%s, calendar %s)\n", ui.RenderAccent(s.UserID), state, s.CalendarID)
	fmt.Printf("  Entities:  %d blocks, %d assignments, %d exams\n", s.Blocks, s.Assignments, s.Exams)
	if s.OpenConflicts > 0 {
		fmt.Printf("  Conflicts: %s\n", ui.RenderWarn(fmt.Sprintf("%d open", s.OpenConflicts)))
	} else {
		fmt.Printf("  Conflicts: none\n")
	}
	if s.LastRun == nil {
		fmt.Printf("  Last run:  %s\n", ui.RenderDim("never"))
	} else {
		fmt.Printf("  Last run:  %s at %s (created %d, updated %d, pushed %d)\n",
			s.LastRun.Status, s.LastRun.StartedAt.Local().Format("2006-01-02 15:04"),
			s.LastRun.Created, s.LastRun.UpdatedLocal, s.LastRun.Pushed)
	}
	fmt.Println()
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

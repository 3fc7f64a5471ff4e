package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aqademiq/aqsync/internal/migrate"
	"github.com/aqademiq/aqsync/internal/ui"
)

var (
	migrateFrom   string
	migrateDryRun bool
	migrateBackup bool
)

var migrateCmd = &cobra.Command{
	Use:     "migrate",
	GroupID: "data",
	Short:   "Import planner entities from a JSONL export",
	Long: `Import schedule blocks, assignments, and exams from a JSONL file,
one record per line with a "kind" discriminator. Malformed lines are
reported and skipped; the import continues past them.`,
	Run: func(cmd *cobra.Command, args []string) {
		if migrateFrom == "" {
			fmt.Fprintf(os.Stderr, "Error: --from is required\n")
			os.Exit(1)
		}

		cfg := loadConfigOrExit()
		store := openStoreOrExit(cfg)
		defer store.Close()

		mode := ""
		if migrateDryRun {
			mode = " (dry run)"
		}
		fmt.Printf("%s Importing from %s%s\n", ui.RenderAccent("📦"), migrateFrom, mode)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		result, err := migrate.Migrate(ctx, store, migrate.MigrateOptions{
			FromJSONL: migrateFrom,
			DryRun:    migrateDryRun,
			Backup:    migrateBackup,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if result.BackupCreated != "" {
			fmt.Printf("%s Backup: %s\n", ui.RenderPass("✓"), result.BackupCreated)
		}
		fmt.Printf("%s Imported %d entities (%d blocks, %d assignments, %d exams)\n",
			ui.RenderPass("✓"), result.Total(), result.Blocks, result.Assignments, result.Exams)
		if len(result.Errors) > 0 {
			fmt.Printf("%s %d line(s) skipped:\n", ui.RenderWarn("⚠"), len(result.Errors))
			for _, e := range result.Errors {
				fmt.Printf("   %s\n", e)
			}
			os.Exit(1)
		}
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateFrom, "from", "", "input JSONL file")
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "parse and validate without writing")
	migrateCmd.Flags().BoolVar(&migrateBackup, "backup", false, "copy the input aside before importing")
	rootCmd.AddCommand(migrateCmd)
}

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aqademiq/aqsync/internal/ics"
	"github.com/aqademiq/aqsync/internal/ui"
)

var (
	icsUser   string
	icsOutput string
	icsWindow int
)

var icsCmd = &cobra.Command{
	Use:     "ics",
	GroupID: "data",
	Short:   "Import timetable feeds and export the planner as ICS",
}

var icsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import an ICS timetable as schedule blocks",
	Long: `Import a university timetable feed (.ics) as schedule blocks.
Recurring events are expanded inside the import window; EXDATE and
RECURRENCE-ID overrides are honored. Re-run the import when the feed
changes to pick up new occurrences.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if icsUser == "" {
			fmt.Fprintf(os.Stderr, "Error: --user is required\n")
			os.Exit(1)
		}
		body, err := os.ReadFile(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
			os.Exit(1)
		}

		result, err := ics.ImportTimetable(icsUser, body, ics.ImportOptions{WindowDays: icsWindow})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing timetable: %v\n", err)
			os.Exit(1)
		}

		cfg := loadConfigOrExit()
		store := openStoreOrExit(cfg)
		defer store.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		inserted := 0
		for _, block := range result.Blocks {
			if err := store.InsertScheduleBlock(ctx, block); err != nil {
				fmt.Fprintf(os.Stderr, "Error inserting %q: %v\n", block.Title, err)
				os.Exit(1)
			}
			inserted++
		}

		fmt.Printf("%s Imported %d schedule block(s)\n", ui.RenderPass("✓"), inserted)
		if result.Skipped > 0 {
			fmt.Printf("%s Skipped %d unparseable event(s)\n", ui.RenderWarn("⚠"), result.Skipped)
		}
		for _, uid := range result.Truncated {
			fmt.Printf("%s Recurrence truncated for %s\n", ui.RenderWarn("⚠"), uid)
		}
	},
}

var icsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a user's planner as an ICS feed",
	Long: `Render a user's schedule blocks, assignments, and exams as a
VCALENDAR feed. Writes to stdout unless -o is given. The daemon serves
the same feed at /feed/{user_id}.ics.`,
	Run: func(cmd *cobra.Command, args []string) {
		if icsUser == "" {
			fmt.Fprintf(os.Stderr, "Error: --user is required\n")
			os.Exit(1)
		}

		cfg := loadConfigOrExit()
		store := openStoreOrExit(cfg)
		defer store.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		feed, err := ics.ExportFeed(ctx, store, icsUser)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error exporting feed: %v\n", err)
			os.Exit(1)
		}

		if icsOutput == "" {
			fmt.Print(feed)
			return
		}
		if err := os.WriteFile(icsOutput, []byte(feed), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), icsOutput)
	},
}

func init() {
	icsCmd.PersistentFlags().StringVar(&icsUser, "user", "", "planner user")
	icsImportCmd.Flags().IntVar(&icsWindow, "window", 0, "recurrence expansion window in days (default 90)")
	icsExportCmd.Flags().StringVarP(&icsOutput, "output", "o", "", "write the feed to a file instead of stdout")
	icsCmd.AddCommand(icsImportCmd, icsExportCmd)
	rootCmd.AddCommand(icsCmd)
}

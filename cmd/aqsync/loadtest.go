package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aqademiq/aqsync/internal/loadtest"
	"github.com/aqademiq/aqsync/internal/ui"
)

var (
	loadtestUsers    int
	loadtestEntities int
	loadtestMapped   float64
	loadtestWorkers  int
	loadtestEvents   int
	loadtestKeep     bool
)

var loadtestCmd = &cobra.Command{
	Use:     "loadtest",
	GroupID: "data",
	Short:   "Measure classification throughput on a seeded database",
	Long: `Seed a throwaway database with synthetic users, entities, and
mappings, then classify remote events from concurrent workers and
report latency percentiles. The database is deleted afterwards unless
--keep is given.`,
	Run: func(cmd *cobra.Command, args []string) {
		dir, err := os.MkdirTemp("", "aqsync-loadtest-*")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		dbPath := filepath.Join(dir, "loadtest.db")
		if !loadtestKeep {
			defer os.RemoveAll(dir)
		}

		fmt.Printf("%s Seeding %d users x %d entities (%.0f%% mapped)...\n",
			ui.RenderAccent("🏗"), loadtestUsers, loadtestEntities, loadtestMapped*100)

		td, err := loadtest.CreateTestDatabase(dbPath, loadtestUsers, loadtestEntities, loadtestMapped)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error seeding database: %v\n", err)
			os.Exit(1)
		}
		defer td.Close()

		fmt.Printf("%s Classifying with %d workers x %d events...\n",
			ui.RenderAccent("🔄"), loadtestWorkers, loadtestEvents)

		stats, err := td.RunConcurrentClassification(loadtestWorkers, loadtestEvents)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error running load test: %v\n", err)
			os.Exit(1)
		}

		fmt.Println()
		stats.PrintStats(os.Stdout)
		if loadtestKeep {
			fmt.Printf("\n%s Database kept at %s\n", ui.RenderPass("✓"), dbPath)
		}
	},
}

func init() {
	loadtestCmd.Flags().IntVar(&loadtestUsers, "users", 5, "number of synthetic users")
	loadtestCmd.Flags().IntVar(&loadtestEntities, "entities", 200, "entities per user")
	loadtestCmd.Flags().Float64Var(&loadtestMapped, "mapped", 0.8, "fraction of entities with an existing mapping")
	loadtestCmd.Flags().IntVar(&loadtestWorkers, "workers", 8, "concurrent classification workers")
	loadtestCmd.Flags().IntVar(&loadtestEvents, "events", 100, "events classified per worker")
	loadtestCmd.Flags().BoolVar(&loadtestKeep, "keep", false, "keep the seeded database on disk")
	rootCmd.AddCommand(loadtestCmd)
}

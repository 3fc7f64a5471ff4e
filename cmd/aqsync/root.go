package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aqademiq/aqsync/internal/config"
	"github.com/aqademiq/aqsync/internal/db"
)

var (
	flagConfig string
	flagDB     string
	flagJSON   bool
)

var rootCmd = &cobra.Command{
	Use:   "aqsync",
	Short: "Bidirectional sync between Aqademiq planners and Google Calendar",
	Long: `aqsync mirrors schedule blocks, assignments, and exams into Google
Calendar and pulls calendar edits back into the planner.

Changes that happened on both sides since the last checkpoint are never
merged automatically: they become conflicts that you resolve with
'aqsync conflicts resolve'.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default ~/.aqsync/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path or libsql:// URL (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "plain JSON output for scripting")

	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "data", Title: "Data Commands:"},
	)
}

// defaultConfigPath is where Load looks without an explicit --config.
func defaultConfigPath() string {
	if flagConfig != "" {
		return flagConfig
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".aqsync", "config.yaml")
}

// loadConfig reads config and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(defaultConfigPath())
	if err != nil {
		return nil, err
	}
	if flagDB != "" {
		cfg.DBPath = flagDB
	}
	return cfg, nil
}

func loadConfigOrExit() *config.Config {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// printJSON renders v for --json consumers.
func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

// openStoreOrExit opens the entity store and ensures the schema exists.
func openStoreOrExit(cfg *config.Config) *db.DB {
	store, err := db.Open(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	if err := store.InitSchema(); err != nil {
		_ = store.Close()
		fmt.Fprintf(os.Stderr, "Error initializing schema: %v\n", err)
		os.Exit(1)
	}
	return store
}

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aqademiq/aqsync/internal/config"
	"github.com/aqademiq/aqsync/internal/ui"
)

const accountsTemplate = `# aqsync accounts
#
# One [[accounts]] table per synced user. Disabled accounts are ignored by
# the daemon but keep their data.

# [[accounts]]
# user_id = "u-maria"
# calendar_id = "primary"
# token = "ya29...."
# webhook_token = ""
# enabled = true
`

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "data",
	Short:   "Create the config file, accounts template, and database",
	Long: `Initialize aqsync for first use:

  1. Writes the default config to ~/.aqsync/config.yaml
  2. Writes an accounts template to ~/.aqsync/accounts.toml
  3. Creates the database and schema`,
	Run: func(cmd *cobra.Command, args []string) {
		path := defaultConfigPath()
		if path == "" {
			fmt.Fprintf(os.Stderr, "Error: cannot determine config location\n")
			os.Exit(1)
		}

		if err := config.WriteDefault(path); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Wrote config: %s\n", ui.RenderPass("✓"), path)

		cfg := loadConfigOrExit()

		if _, err := os.Stat(cfg.AccountsPath); os.IsNotExist(err) {
			if err := os.MkdirAll(filepath.Dir(cfg.AccountsPath), 0755); err != nil {
				fmt.Fprintf(os.Stderr, "Error creating accounts directory: %v\n", err)
				os.Exit(1)
			}
			if err := os.WriteFile(cfg.AccountsPath, []byte(accountsTemplate), 0600); err != nil {
				fmt.Fprintf(os.Stderr, "Error writing accounts template: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("%s Wrote accounts template: %s\n", ui.RenderPass("✓"), cfg.AccountsPath)
		}

		store := openStoreOrExit(cfg)
		defer store.Close()
		fmt.Printf("%s Initialized database: %s\n", ui.RenderPass("✓"), cfg.DBPath)

		fmt.Printf("\nNext: add an account to %s and run 'aqsync daemon'\n", cfg.AccountsPath)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

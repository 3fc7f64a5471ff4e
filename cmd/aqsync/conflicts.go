package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/aqademiq/aqsync/internal/config"
	"github.com/aqademiq/aqsync/internal/db"
	"github.com/aqademiq/aqsync/internal/schema"
	"github.com/aqademiq/aqsync/internal/ui"
)

var (
	conflictsUser     string
	conflictsAll      bool
	conflictsStrategy string
)

var conflictsCmd = &cobra.Command{
	Use:     "conflicts",
	GroupID: "sync",
	Short:   "List, inspect, and resolve sync conflicts",
	Long: `Work with conflicts: entities where both the local planner and the
remote calendar changed since the last checkpoint. Conflicts are never
merged automatically; each one waits here until you resolve it.`,
}

var conflictsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conflicts",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfigOrExit()
		store := openStoreOrExit(cfg)
		defer store.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		conflicts, err := store.ListConflicts(ctx, db.ConflictFilter{
			UserID:          conflictsUser,
			IncludeResolved: conflictsAll,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing conflicts: %v\n", err)
			os.Exit(1)
		}
		if flagJSON {
			printJSON(conflicts)
			return
		}
		if len(conflicts) == 0 {
			fmt.Printf("%s No conflicts\n", ui.RenderPass("✓"))
			return
		}

		for _, c := range conflicts {
			state := ui.RenderWarn("open")
			if c.Resolved {
				state = ui.RenderDim(fmt.Sprintf("resolved (%s)", c.Resolution))
			}
			fmt.Printf("%s  %s  %s/%s  %s  detected %s\n",
				c.ID, state, c.EntityType, c.EntityID, c.UserID,
				c.DetectedAt.Local().Format("2006-01-02 15:04"))
		}
		fmt.Printf("\n%d conflict(s)\n", len(conflicts))
	},
}

var conflictsShowCmd = &cobra.Command{
	Use:   "show <conflict_id>",
	Short: "Show both snapshots of a conflict",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfigOrExit()
		store := openStoreOrExit(cfg)
		defer store.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		c, err := store.GetConflictByID(ctx, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if flagJSON {
			printJSON(c)
			return
		}

		fmt.Printf("%s Conflict %s\n", ui.RenderAccent("⚔"), c.ID)
		fmt.Printf("  User:     %s\n", c.UserID)
		fmt.Printf("  Entity:   %s/%s\n", c.EntityType, c.EntityID)
		fmt.Printf("  Detected: %s\n", c.DetectedAt.Local().Format("2006-01-02 15:04:05"))
		if c.Resolved {
			fmt.Printf("  Resolved: %s", c.Resolution)
			if c.ResolvedAt != nil {
				fmt.Printf(" at %s", c.ResolvedAt.Local().Format("2006-01-02 15:04:05"))
			}
			fmt.Println()
		}
		fmt.Printf("\n%s\n%s\n", ui.RenderAccent("Local snapshot:"), indentJSON(c.LocalSnapshot))
		fmt.Printf("\n%s\n%s\n", ui.RenderAccent("Remote snapshot:"), indentJSON(c.RemoteSnapshot))
	},
}

var conflictsResolveCmd = &cobra.Command{
	Use:   "resolve <conflict_id>",
	Short: "Resolve a conflict",
	Long: `Resolve an open conflict. With --strategy the resolution is applied
directly; without it, an interactive picker shows both snapshots and asks
which side wins (or collects merged values field by field).`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfigOrExit()
		store := openStoreOrExit(cfg)
		defer store.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		c, err := store.GetConflictByID(ctx, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if c.Resolved {
			fmt.Fprintf(os.Stderr, "Error: conflict %s is already resolved (%s)\n", c.ID, c.Resolution)
			os.Exit(1)
		}

		var strategy schema.ResolutionStrategy
		var payload *schema.MergePayload
		if conflictsStrategy != "" {
			strategy, err = schema.ParseResolutionStrategy(conflictsStrategy)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			if strategy == schema.Merge {
				payload, err = promptMergePayload()
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error: %v\n", err)
					os.Exit(1)
				}
			}
		} else {
			strategy, payload, err = promptResolution(c)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}

		accounts, err := config.LoadAccounts(cfg.AccountsPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading accounts: %v\n", err)
			os.Exit(1)
		}
		var account *config.Account
		for i := range accounts {
			if accounts[i].UserID == c.UserID {
				account = &accounts[i]
				break
			}
		}
		if account == nil {
			fmt.Fprintf(os.Stderr, "Error: no account for user %q\n", c.UserID)
			os.Exit(1)
		}

		logger := log.New(os.Stderr, "[resolve] ", log.LstdFlags)
		engine, err := newEngine(cfg, store, logger, *account)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := engine.Resolve(ctx, c.ID, strategy, payload); err != nil {
			fmt.Fprintf(os.Stderr, "Error resolving conflict: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Resolved %s with %s\n", ui.RenderPass("✓"), c.ID, strategy)
	},
}

// promptResolution runs the interactive picker for a conflict.
func promptResolution(c *schema.Conflict) (schema.ResolutionStrategy, *schema.MergePayload, error) {
	fmt.Printf("%s\n%s\n", ui.RenderAccent("Local snapshot:"), indentJSON(c.LocalSnapshot))
	fmt.Printf("\n%s\n%s\n\n", ui.RenderAccent("Remote snapshot:"), indentJSON(c.RemoteSnapshot))

	var choice string
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title(fmt.Sprintf("Resolve %s/%s", c.EntityType, c.EntityID)).
			Options(
				huh.NewOption("Keep local (push planner version to calendar)", string(schema.PreferLocal)),
				huh.NewOption("Keep remote (apply calendar version to planner)", string(schema.PreferRemote)),
				huh.NewOption("Merge (enter values field by field)", string(schema.Merge)),
			).
			Value(&choice),
	))
	if err := form.Run(); err != nil {
		return "", nil, err
	}

	strategy := schema.ResolutionStrategy(choice)
	if strategy != schema.Merge {
		return strategy, nil, nil
	}
	payload, err := promptMergePayload()
	if err != nil {
		return "", nil, err
	}
	return strategy, payload, nil
}

// promptMergePayload collects merged field values. Empty answers leave a
// field untouched on both sides.
func promptMergePayload() (*schema.MergePayload, error) {
	var title, description, location, start, end string
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("Title").Placeholder("leave empty to keep").Value(&title),
		huh.NewInput().Title("Description").Placeholder("leave empty to keep").Value(&description),
		huh.NewInput().Title("Location").Placeholder("leave empty to keep").Value(&location),
		huh.NewInput().Title("Start (RFC3339)").Placeholder("2026-09-01T09:00:00Z").Value(&start),
		huh.NewInput().Title("End (RFC3339)").Placeholder("2026-09-01T10:00:00Z").Value(&end),
	))
	if err := form.Run(); err != nil {
		return nil, err
	}

	payload := &schema.MergePayload{}
	if title != "" {
		payload.Title = &title
	}
	if description != "" {
		payload.Description = &description
	}
	if location != "" {
		payload.Location = &location
	}
	if start != "" {
		t, err := time.Parse(time.RFC3339, start)
		if err != nil {
			return nil, fmt.Errorf("invalid start time: %w", err)
		}
		payload.Start = &t
	}
	if end != "" {
		t, err := time.Parse(time.RFC3339, end)
		if err != nil {
			return nil, fmt.Errorf("invalid end time: %w", err)
		}
		payload.End = &t
	}
	if payload.Empty() {
		return nil, fmt.Errorf("merge needs at least one field")
	}
	return payload, nil
}

func indentJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "  ", "  "); err != nil {
		return "  " + string(raw)
	}
	return "  " + buf.String()
}

func init() {
	conflictsListCmd.Flags().StringVar(&conflictsUser, "user", "", "only show conflicts for this user")
	conflictsListCmd.Flags().BoolVar(&conflictsAll, "all", false, "include resolved conflicts")
	conflictsResolveCmd.Flags().StringVar(&conflictsStrategy, "strategy", "", "prefer_local, prefer_remote, or merge (skips the picker)")
	conflictsCmd.AddCommand(conflictsListCmd, conflictsShowCmd, conflictsResolveCmd)
	rootCmd.AddCommand(conflictsCmd)
}

package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/aqademiq/aqsync/internal/schema"
	"github.com/aqademiq/aqsync/internal/ui"
)

var (
	assignmentsUser        string
	assignmentsDue         string
	assignmentsCourse      string
	assignmentsDescription string
	assignmentsAll         bool
)

var assignmentsCmd = &cobra.Command{
	Use:     "assignments",
	GroupID: "data",
	Short:   "Add and list assignments",
}

var assignmentsAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add an assignment",
	Long: `Add an assignment to the planner. The due date accepts natural
language ("friday 5pm", "tomorrow", "next monday") as well as RFC3339.
The next sync publishes it to the calendar when export of new entities
is enabled.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if assignmentsUser == "" {
			fmt.Fprintf(os.Stderr, "Error: --user is required\n")
			os.Exit(1)
		}
		due, err := parseDueDate(assignmentsDue)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		cfg := loadConfigOrExit()
		store := openStoreOrExit(cfg)
		defer store.Close()

		a := &schema.Assignment{
			UserID:      assignmentsUser,
			Title:       args[0],
			Description: assignmentsDescription,
			CourseCode:  assignmentsCourse,
			DueDate:     due,
		}
		a.SetDefaults()
		if err := a.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := store.InsertAssignment(ctx, a); err != nil {
			fmt.Fprintf(os.Stderr, "Error adding assignment: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Added %s (due %s)\n", ui.RenderPass("✓"), a.Title,
			a.DueDate.Local().Format("Mon Jan 2 15:04"))
	},
}

var assignmentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List assignments",
	Run: func(cmd *cobra.Command, args []string) {
		if assignmentsUser == "" {
			fmt.Fprintf(os.Stderr, "Error: --user is required\n")
			os.Exit(1)
		}

		cfg := loadConfigOrExit()
		store := openStoreOrExit(cfg)
		defer store.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		assignments, err := store.ListAssignments(ctx, assignmentsUser)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing assignments: %v\n", err)
			os.Exit(1)
		}

		shown := 0
		sort.Slice(assignments, func(i, j int) bool {
			return assignments[i].DueDate.Before(assignments[j].DueDate)
		})
		for _, a := range assignments {
			if a.Completed && !assignmentsAll {
				continue
			}
			mark := " "
			if a.Completed {
				mark = ui.RenderPass("✓")
			} else if a.DueDate.Before(time.Now()) {
				mark = ui.RenderErr("!")
			}
			course := ""
			if a.CourseCode != "" {
				course = " [" + a.CourseCode + "]"
			}
			fmt.Printf("%s %s  %s%s  %s\n", mark,
				a.DueDate.Local().Format("Mon Jan 2 15:04"), a.Title, course,
				ui.RenderDim(a.ID))
			shown++
		}
		if shown == 0 {
			fmt.Printf("%s No assignments\n", ui.RenderDim("·"))
		}
	},
}

// parseDueDate accepts RFC3339 first, then natural language relative to now.
func parseDueDate(input string) (time.Time, error) {
	if input == "" {
		return time.Time{}, fmt.Errorf("--due is required")
	}
	if t, err := time.Parse(time.RFC3339, input); err == nil {
		return t, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(input, time.Now())
	if err != nil {
		return time.Time{}, fmt.Errorf("cannot parse due date %q: %w", input, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("cannot parse due date %q (try RFC3339 or e.g. \"friday 5pm\")", input)
	}
	return r.Time, nil
}

func init() {
	assignmentsCmd.PersistentFlags().StringVar(&assignmentsUser, "user", "", "planner user")
	assignmentsAddCmd.Flags().StringVar(&assignmentsDue, "due", "", "due date (\"friday 5pm\", \"tomorrow\", or RFC3339)")
	assignmentsAddCmd.Flags().StringVar(&assignmentsCourse, "course", "", "course code")
	assignmentsAddCmd.Flags().StringVar(&assignmentsDescription, "description", "", "description")
	assignmentsListCmd.Flags().BoolVar(&assignmentsAll, "all", false, "include completed assignments")
	assignmentsCmd.AddCommand(assignmentsAddCmd, assignmentsListCmd)
	rootCmd.AddCommand(assignmentsCmd)
}

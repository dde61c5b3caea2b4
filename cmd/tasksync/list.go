package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/tasksync/internal/schema"
	"github.com/mschirtzinger/tasksync/internal/ui"
)

var listCmd = &cobra.Command{
	Use:     "list",
	GroupID: "lists",
	Short:   "Create and inspect to-do lists",
}

var listCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a time-windowed list",
	Long: `Create a list that covers [--start, --end]. Times accept RFC3339, a
YYYY-MM-DD date, or phrases such as "next monday 9am".

Lists named Daily, Weekly or Monthly (or created with --default-recurring)
receive new synced tasks whose due date falls inside their window.

Examples:
  tasksync list create Weekly --start "last monday" --end "next sunday 11:59pm" --recurrence weekly
  tasksync list create "Exam week" --start 2026-05-04 --end 2026-05-09 --default-recurring`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		startArg, _ := cmd.Flags().GetString("start")
		endArg, _ := cmd.Flags().GetString("end")
		recurrence, _ := cmd.Flags().GetString("recurrence")
		defaultRecurring, _ := cmd.Flags().GetBool("default-recurring")
		autoClear, _ := cmd.Flags().GetBool("auto-clear")

		now := time.Now()
		start, err := parseTimeArg(startArg, now)
		if err != nil {
			fail("--start: %v", err)
		}
		end, err := parseTimeArg(endArg, now)
		if err != nil {
			fail("--end: %v", err)
		}

		l := &schema.TodoList{
			Name:               args[0],
			StartTime:          start,
			EndTime:            end,
			AutoClearCompleted: autoClear,
			Recurrence:         schema.RecurrenceType(strings.ToLower(recurrence)),
		}
		if defaultRecurring {
			l.Category = schema.CategoryDefaultRecurring
		}

		s := openSession()
		defer s.Close()

		if err := s.CreateList(context.Background(), l); err != nil {
			fail("%v", err)
		}
		fmt.Printf("%s Created list %s (%s)\n", ui.RenderPass("✓"), l.Name, ui.RenderMuted(l.ID))
	},
}

var listShowCmd = &cobra.Command{
	Use:   "show [list-id]",
	Short: "Show lists, or the items of one list",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		active, _ := cmd.Flags().GetBool("active")

		s := openSession()
		defer s.Close()
		ctx := context.Background()

		if len(args) == 1 {
			items, err := s.ListItems(ctx, args[0])
			if err != nil {
				fail("%v", err)
			}
			rows := make([][]string, 0, len(items))
			for _, it := range items {
				due := ""
				if it.DueAt != nil {
					due = it.DueAt.Local().Format("Mon Jan 2 15:04")
				}
				done := ""
				if it.Completed {
					done = ui.RenderPass("✓")
				}
				rows = append(rows, []string{it.TaskID, due, done})
			}
			fmt.Print(ui.Table([]string{"TASK", "DUE", "DONE"}, rows))
			return
		}

		var lists []schema.TodoList
		var err error
		if active {
			lists, err = s.ActiveLists(ctx)
		} else {
			lists, err = s.Lists(ctx)
		}
		if err != nil {
			fail("%v", err)
		}
		if len(lists) == 0 {
			fmt.Println("No lists.")
			return
		}

		rows := make([][]string, 0, len(lists))
		for _, l := range lists {
			name := l.Name
			if l.Category == schema.CategoryDefaultRecurring {
				name += " " + ui.RenderAccent("*")
			}
			rows = append(rows, []string{
				l.ID,
				name,
				l.StartTime.Local().Format("2006-01-02 15:04"),
				l.EndTime.Local().Format("2006-01-02 15:04"),
				string(l.Recurrence),
			})
		}
		fmt.Print(ui.Table([]string{"ID", "NAME", "START", "END", "RECURRENCE"}, rows))
	},
}

var taskCmd = &cobra.Command{
	Use:     "task",
	GroupID: "lists",
	Short:   "Inspect and update tasks",
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List open tasks by priority",
	Run: func(cmd *cobra.Command, args []string) {
		s := openSession()
		defer s.Close()

		tasks, err := s.Tasks(context.Background())
		if err != nil {
			fail("%v", err)
		}
		if len(tasks) == 0 {
			fmt.Println("No open tasks.")
			return
		}

		now := time.Now()
		rows := make([][]string, 0, len(tasks))
		for _, t := range tasks {
			due := t.DueAt.Local().Format("Mon Jan 2 15:04")
			if t.DueAt.Before(now) {
				due = ui.RenderFail(due)
			}
			rows = append(rows, []string{t.ID, fmt.Sprintf("%.1f", t.PriorityScore), due, t.Name})
		}
		fmt.Print(ui.Table([]string{"ID", "SCORE", "DUE", "NAME"}, rows))
	},
}

var taskCompleteCmd = &cobra.Command{
	Use:   "complete <task-id>",
	Short: "Mark a task done",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := openSession()
		defer s.Close()

		if err := s.CompleteTask(context.Background(), args[0]); err != nil {
			fail("%v", err)
		}
		fmt.Printf("%s Completed %s\n", ui.RenderPass("✓"), args[0])
	},
}

var taskSnoozeCmd = &cobra.Command{
	Use:   "snooze <task-id>",
	Short: "Move a task's due date later",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		untilArg, _ := cmd.Flags().GetString("until")
		until, err := parseTimeArg(untilArg, time.Now())
		if err != nil {
			fail("--until: %v", err)
		}

		s := openSession()
		defer s.Close()

		task, err := s.SnoozeTask(context.Background(), args[0], until)
		if err != nil {
			fail("%v", err)
		}
		fmt.Printf("%s %s now due %s\n", ui.RenderPass("✓"), task.Name, task.DueAt.Local().Format("Mon Jan 2 15:04"))
	},
}

func init() {
	listCreateCmd.Flags().String("start", "now", "window start")
	listCreateCmd.Flags().String("end", "", "window end (required)")
	listCreateCmd.Flags().String("recurrence", "none", "none, daily, weekly or monthly")
	listCreateCmd.Flags().Bool("default-recurring", false, "receive synced tasks regardless of name")
	listCreateCmd.Flags().Bool("auto-clear", false, "clear completed items automatically")
	_ = listCreateCmd.MarkFlagRequired("end")

	listShowCmd.Flags().Bool("active", false, "only lists whose window contains now")

	taskSnoozeCmd.Flags().String("until", "", "new due time (required)")
	_ = taskSnoozeCmd.MarkFlagRequired("until")

	listCmd.AddCommand(listCreateCmd, listShowCmd)
	taskCmd.AddCommand(taskListCmd, taskCompleteCmd, taskSnoozeCmd)
	rootCmd.AddCommand(listCmd, taskCmd)
}

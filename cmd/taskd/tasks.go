package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mschirtzinger/taskd/internal/app"
	"github.com/mschirtzinger/taskd/internal/schema"
	"github.com/mschirtzinger/taskd/internal/ui"
)

var addCmd = &cobra.Command{
	Use:     "add <title>",
	GroupID: "tasks",
	Short:   "Create a task",
	Long: `Create a task, optionally as a subtask or inside a task list or calendar.

Subtasks of task list tasks are recorded in the task list; every other
subtask uses the local parent.

Examples:
  taskd add "Water plants" --due "tomorrow at 9am"
  taskd add "Buy milk" --list groceries --parent 12
  taskd add "Standup" --calendar 0b7f... --recur "FREQ=DAILY"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		parent, _ := flags.GetInt64("parent")
		list, _ := flags.GetString("list")
		calendar, _ := flags.GetString("calendar")
		dueStr, _ := flags.GetString("due")
		notes, _ := flags.GetString("notes")
		recur, _ := flags.GetString("recur")
		readOnly, _ := flags.GetBool("read-only")
		priority, _ := flags.GetInt("priority")

		if list != "" && calendar != "" {
			return fmt.Errorf("--list and --calendar are mutually exclusive")
		}

		task := &schema.Task{
			Title:      strings.Join(args, " "),
			Notes:      notes,
			Priority:   priority,
			Recurrence: recur,
			ReadOnly:   readOnly,
		}
		if dueStr != "" {
			due, err := parseDue(dueStr, time.Now())
			if err != nil {
				return err
			}
			task.DueDate = due
		}
		if list == "" {
			task.Parent = parent
		}

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if list != "" {
				if _, err := a.DB.GetTaskList(ctx, list); err != nil {
					return err
				}
			}
			if calendar != "" {
				if _, err := a.DB.GetCalendar(ctx, calendar); err != nil {
					return err
				}
			}

			id, err := a.DB.CreateTask(ctx, task)
			if err != nil {
				return err
			}
			task.ID = id

			switch {
			case list != "":
				err = a.DB.SetTaskList(ctx, &schema.TaskListTask{Task: id, List: list, Parent: parent})
			case calendar != "":
				err = a.DB.SetCalendar(ctx, &schema.CalendarTask{
					Task:     id,
					Calendar: calendar,
					Object:   uuid.NewString() + ".ics",
				})
			}
			if err != nil {
				return err
			}

			a.Sync.OnTaskMutated(task, nil)
			pass(cmd.OutOrStdout(), "Created task %s", ui.RenderAccent(strconv.FormatInt(id, 10)))
			return nil
		})
	},
}

var lsCmd = &cobra.Command{
	Use:     "ls",
	GroupID: "tasks",
	Short:   "List tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := filterFromFlags(cmd)
		if err != nil {
			return err
		}
		if all, _ := cmd.Flags().GetBool("all"); all {
			filter = filter.ShowHiddenAndCompleted()
		}
		sortBy, _ := cmd.Flags().GetStringSlice("sort")
		for _, s := range sortBy {
			filter.OrderBy = append(filter.OrderBy, schema.SortField(s))
		}

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			views, err := a.DB.QueryTasks(ctx, filter)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(views) == 0 {
				fmt.Fprintln(out, ui.RenderMuted("No tasks"))
				return nil
			}
			for _, view := range views {
				mark := "○"
				if view.Completed {
					mark = ui.RenderPass("✓")
				}
				line := fmt.Sprintf("%s %s %s", mark, ui.RenderAccent(fmt.Sprintf("%4d", view.ID)), view.Title)
				if view.ReadOnly {
					line += " " + ui.RenderMuted("(read-only)")
				}
				if view.Hidden {
					line += " " + ui.RenderMuted("(hidden)")
				}
				fmt.Fprintln(out, line)
			}
			return nil
		})
	},
}

var doneCmd = &cobra.Command{
	Use:     "done <id>...",
	GroupID: "tasks",
	Short:   "Complete tasks",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			now := time.Now()
			for _, id := range ids {
				task, err := a.DB.GetTask(ctx, id)
				if err != nil {
					return err
				}
				if task.IsCompleted() {
					continue
				}
				original := task.Clone()
				task.Completed = now
				task.Modified = now
				if err := a.DB.UpdateTask(ctx, task); err != nil {
					return err
				}
				a.Sync.OnTaskMutated(task, original)
				pass(cmd.OutOrStdout(), "Completed %s", task.Title)
			}
			return nil
		})
	},
}

var rmCmd = &cobra.Command{
	Use:     "rm <id>...",
	GroupID: "tasks",
	Short:   "Delete tasks and their direct subtasks",
	Long: `Mark tasks deleted together with their direct subtasks under both the
local and the task list hierarchy. Read-only tasks are skipped. Deleted
tasks stay in the database until they are synced or purged.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			deleted, err := a.Deleter.MarkDeleted(ctx, ids)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(deleted) == 0 {
				warn(out, "Nothing deleted")
				return nil
			}
			pass(out, "Deleted %d tasks", len(deleted))
			for _, task := range deleted {
				fmt.Fprintf(out, "   %s %s\n", ui.RenderAccent(strconv.FormatInt(task.ID, 10)), task.Title)
			}
			return nil
		})
	},
}

var purgeCmd = &cobra.Command{
	Use:     "purge <id>...",
	GroupID: "tasks",
	Short:   "Remove tasks from the database",
	Long: `Remove exactly the given tasks and their metadata. Subtasks are not
touched and no sync is requested.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if err := a.Deleter.Delete(ctx, ids); err != nil {
				return err
			}
			pass(cmd.OutOrStdout(), "Purged %d tasks", len(ids))
			return nil
		})
	},
}

var clearCompletedCmd = &cobra.Command{
	Use:     "clear-completed",
	GroupID: "tasks",
	Short:   "Delete completed tasks",
	Long: `Delete every completed task matched by the filter, hidden ones included.
Read-only tasks and tasks under an incomplete recurring parent are kept.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := filterFromFlags(cmd)
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			n, err := a.Deleter.ClearCompleted(ctx, filter)
			if err != nil {
				return err
			}
			pass(cmd.OutOrStdout(), "Cleared %d completed tasks", n)
			return nil
		})
	},
}

func filterFromFlags(cmd *cobra.Command) (schema.Filter, error) {
	list, _ := cmd.Flags().GetString("list")
	calendar, _ := cmd.Flags().GetString("calendar")
	query, _ := cmd.Flags().GetString("search")
	if list != "" && calendar != "" {
		return schema.Filter{}, fmt.Errorf("--list and --calendar are mutually exclusive")
	}
	return schema.Filter{TaskList: list, Calendar: calendar, Query: query}, nil
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid task id: %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func init() {
	addCmd.Flags().Int64("parent", 0, "parent task id")
	addCmd.Flags().String("list", "", "task list remote id")
	addCmd.Flags().String("calendar", "", "calendar uuid")
	addCmd.Flags().String("due", "", `due date, e.g. "2026-05-01" or "next friday at 5pm"`)
	addCmd.Flags().String("notes", "", "task notes")
	addCmd.Flags().String("recur", "", "recurrence rule (RRULE)")
	addCmd.Flags().Bool("read-only", false, "protect the task from deletion")
	addCmd.Flags().IntP("priority", "p", 3, "priority 0 (high) to 3 (none)")

	for _, c := range []*cobra.Command{lsCmd, clearCompletedCmd} {
		c.Flags().String("list", "", "only tasks in this task list")
		c.Flags().String("calendar", "", "only tasks in this calendar")
		c.Flags().StringP("search", "s", "", "match title or notes")
	}
	lsCmd.Flags().BoolP("all", "a", false, "include hidden and completed tasks")
	lsCmd.Flags().StringSlice("sort", nil, "sort by due, priority, created, modified, title")

	rootCmd.AddCommand(addCmd, lsCmd, doneCmd, rmCmd, purgeCmd, clearCompletedCmd)
}

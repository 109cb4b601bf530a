package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mschirtzinger/taskd/internal/app"
	"github.com/mschirtzinger/taskd/internal/schema"
	"github.com/mschirtzinger/taskd/internal/ui"
)

var taskListAccountCmd = &cobra.Command{
	Use:     "tasklist-account",
	GroupID: "containers",
	Short:   "Manage remote task list accounts",
}

var taskListAccountAddCmd = &cobra.Command{
	Use:   "add <account>",
	Short: "Add a task list account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if err := a.DB.CreateTaskListAccount(ctx, &schema.TaskListAccount{Account: args[0]}); err != nil {
				return err
			}
			pass(cmd.OutOrStdout(), "Added task list account %s", ui.RenderAccent(args[0]))
			return nil
		})
	},
}

var taskListAccountRmCmd = &cobra.Command{
	Use:   "rm <account>",
	Short: "Remove a task list account with its lists and tasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			account, err := a.DB.GetTaskListAccount(ctx, args[0])
			if err != nil {
				return err
			}
			if err := confirm(cmd, "Remove account "+account.Account+"?", "Every list and task of the account is removed."); err != nil {
				return err
			}
			if err := a.Deleter.DeleteTaskListAccount(ctx, account); err != nil {
				return err
			}
			pass(cmd.OutOrStdout(), "Removed task list account %s", ui.RenderAccent(account.Account))
			return nil
		})
	},
}

var taskListCmd = &cobra.Command{
	Use:     "tasklist",
	GroupID: "containers",
	Short:   "Manage remote task lists",
}

var taskListCreateCmd = &cobra.Command{
	Use:   "create <account> <remote-id> [title]",
	Short: "Create a task list",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		list := &schema.TaskList{Account: args[0], RemoteID: args[1], Title: args[1]}
		if len(args) == 3 {
			list.Title = args[2]
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if _, err := a.DB.GetTaskListAccount(ctx, list.Account); err != nil {
				return err
			}
			if err := a.DB.CreateTaskList(ctx, list); err != nil {
				return err
			}
			a.Notifier.NotifyListsChanged()
			pass(cmd.OutOrStdout(), "Created task list %s", ui.RenderAccent(list.RemoteID))
			return nil
		})
	},
}

var taskListRmCmd = &cobra.Command{
	Use:   "rm <remote-id>",
	Short: "Remove a task list and its tasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			list, err := a.DB.GetTaskList(ctx, args[0])
			if err != nil {
				return err
			}
			if err := confirm(cmd, "Remove list "+list.Title+"?", "Every task in the list is removed."); err != nil {
				return err
			}
			if err := a.Deleter.DeleteTaskList(ctx, list); err != nil {
				return err
			}
			pass(cmd.OutOrStdout(), "Removed task list %s", ui.RenderAccent(list.RemoteID))
			return nil
		})
	},
}

var accountCmd = &cobra.Command{
	Use:     "account",
	GroupID: "containers",
	Short:   "Manage calendar accounts",
}

var accountAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a calendar account",
	Long: `Add a calendar account. Types: caldav, tasks, etebase, opentasks, local.

caldav, tasks and etebase accounts enable calendar sync; opentasks accounts
enable the device task provider.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		typeStr, _ := cmd.Flags().GetString("type")
		url, _ := cmd.Flags().GetString("url")
		typ, err := schema.ParseAccountType(typeStr)
		if err != nil {
			return err
		}
		account := &schema.CalendarAccount{
			UUID: uuid.NewString(),
			Name: args[0],
			Type: typ,
			URL:  url,
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if err := a.DB.CreateCalendarAccount(ctx, account); err != nil {
				return err
			}
			pass(cmd.OutOrStdout(), "Added %s account %s (%s)", typ, account.Name, ui.RenderAccent(account.UUID))
			return nil
		})
	},
}

var accountLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List accounts and their calendars",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			out := cmd.OutOrStdout()
			taskLists, err := a.DB.TaskListAccounts(ctx)
			if err != nil {
				return err
			}
			for _, account := range taskLists {
				fmt.Fprintf(out, "%s %s\n", ui.RenderAccent("tasklist"), account.Account)
				lists, err := a.DB.TaskListsForAccount(ctx, account.Account)
				if err != nil {
					return err
				}
				for _, list := range lists {
					fmt.Fprintf(out, "   %s %s\n", list.RemoteID, ui.RenderMuted(list.Title))
				}
			}

			calendars, err := a.DB.CalendarAccounts(ctx)
			if err != nil {
				return err
			}
			for _, account := range calendars {
				fmt.Fprintf(out, "%s %s %s\n", ui.RenderAccent(string(account.Type)), account.Name, ui.RenderMuted(account.UUID))
				cals, err := a.DB.CalendarsForAccount(ctx, account.UUID)
				if err != nil {
					return err
				}
				for _, cal := range cals {
					fmt.Fprintf(out, "   %s %s\n", cal.UUID, ui.RenderMuted(cal.Name))
				}
			}
			if len(taskLists) == 0 && len(calendars) == 0 {
				fmt.Fprintln(out, ui.RenderMuted("No accounts"))
			}
			return nil
		})
	},
}

var accountRmCmd = &cobra.Command{
	Use:   "rm <uuid>",
	Short: "Remove a calendar account with its calendars, tasks and cached objects",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			account, err := a.DB.GetCalendarAccount(ctx, args[0])
			if err != nil {
				return err
			}
			if err := confirm(cmd, "Remove account "+account.Name+"?", "Every calendar and task of the account is removed."); err != nil {
				return err
			}
			if err := a.Deleter.DeleteCalendarAccount(ctx, account); err != nil {
				return err
			}
			pass(cmd.OutOrStdout(), "Removed account %s", ui.RenderAccent(account.Name))
			return nil
		})
	},
}

var calendarCmd = &cobra.Command{
	Use:     "calendar",
	GroupID: "containers",
	Short:   "Manage calendars",
}

var calendarCreateCmd = &cobra.Command{
	Use:   "create <account-uuid> <name>",
	Short: "Create a calendar",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cal := &schema.Calendar{
			Account: args[0],
			UUID:    uuid.NewString(),
			Name:    strings.Join(args[1:], " "),
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if _, err := a.DB.GetCalendarAccount(ctx, cal.Account); err != nil {
				return err
			}
			if err := a.DB.CreateCalendar(ctx, cal); err != nil {
				return err
			}
			a.Notifier.NotifyListsChanged()
			pass(cmd.OutOrStdout(), "Created calendar %s (%s)", cal.Name, ui.RenderAccent(cal.UUID))
			return nil
		})
	},
}

var calendarRmCmd = &cobra.Command{
	Use:   "rm <uuid>",
	Short: "Remove a calendar with its tasks and cached objects",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			cal, err := a.DB.GetCalendar(ctx, args[0])
			if err != nil {
				return err
			}
			if err := confirm(cmd, "Remove calendar "+cal.Name+"?", "Every task in the calendar is removed."); err != nil {
				return err
			}
			if err := a.Deleter.DeleteCalendar(ctx, cal); err != nil {
				return err
			}
			pass(cmd.OutOrStdout(), "Removed calendar %s", ui.RenderAccent(cal.Name))
			return nil
		})
	},
}

func init() {
	accountAddCmd.Flags().String("type", string(schema.AccountCalDAV), "account type")
	accountAddCmd.Flags().String("url", "", "server url")

	for _, c := range []*cobra.Command{taskListAccountRmCmd, taskListRmCmd, accountRmCmd, calendarRmCmd} {
		c.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
	}

	taskListAccountCmd.AddCommand(taskListAccountAddCmd, taskListAccountRmCmd)
	taskListCmd.AddCommand(taskListCreateCmd, taskListRmCmd)
	accountCmd.AddCommand(accountAddCmd, accountLsCmd, accountRmCmd)
	calendarCmd.AddCommand(calendarCreateCmd, calendarRmCmd)
	rootCmd.AddCommand(taskListAccountCmd, taskListCmd, accountCmd, calendarCmd)
}

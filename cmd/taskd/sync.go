package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/taskd/internal/app"
	"github.com/mschirtzinger/taskd/internal/prefs"
	"github.com/mschirtzinger/taskd/internal/schema"
	"github.com/mschirtzinger/taskd/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Request a sync",
	Long: `Request a sync with every enabled backend. Nothing happens when no
task list or calendar account is configured.

Without --now the request is debounced together with other requests.
With --device the sync runs immediately on behalf of the device task
provider, whether or not a backend is configured.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		now, _ := cmd.Flags().GetBool("now")
		device, _ := cmd.Flags().GetBool("device")

		var opened *app.App
		err := withApp(cmd, func(ctx context.Context, a *app.App) error {
			opened = a
			if device {
				a.Sync.SyncDeviceTasks()
				return nil
			}
			a.Sync.RequestSync(now)
			return nil
		})
		if err != nil {
			return err
		}

		// Close ran the queued jobs, so a sync that was requested is done.
		out := cmd.OutOrStdout()
		if opened.Jobs.Runs() == 0 {
			warn(out, "No sync backend enabled")
			return nil
		}
		pass(out, "Sync complete")
		return nil
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			taskLists, err := a.DB.TaskListAccounts(ctx)
			if err != nil {
				return err
			}
			calendars, err := a.DB.CalendarAccounts(ctx, schema.CalendarSyncTypes...)
			if err != nil {
				return err
			}
			device, err := a.DB.CalendarAccounts(ctx, schema.DeviceSyncTypes...)
			if err != nil {
				return err
			}
			total, deleted, err := a.DB.TaskCounts(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "\n%s Sync Status\n\n", ui.RenderAccent("⟳"))
			fmt.Fprintf(out, "Task list accounts: %d\n", len(taskLists))
			fmt.Fprintf(out, "Calendar accounts: %d\n", len(calendars))
			fmt.Fprintf(out, "Device accounts: %d\n", len(device))
			fmt.Fprintf(out, "Tasks: %d (%d deleted, awaiting purge)\n", total, deleted)

			last := a.Prefs.Time(prefs.KeyLastSync)
			if last.IsZero() {
				fmt.Fprintf(out, "Last sync: %s\n", ui.RenderMuted("never"))
			} else {
				fmt.Fprintf(out, "Last sync: %s\n", last.Local().Format("2006-01-02 15:04:05"))
			}
			fmt.Fprintf(out, "Device sync ongoing: %t\n\n", a.Prefs.Bool(prefs.KeySyncOngoing, false))
			return nil
		})
	},
}

// syncStatusSetCmd reports the device provider's own sync state.
func syncStatusSetCmd(use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: fmt.Sprintf("Report that the device provider sync is %s", use),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				a.Sync.NotifyExternalSyncStatus(active)
				return nil
			})
		},
	}
}

func init() {
	syncCmd.Flags().Bool("now", false, "sync immediately instead of debouncing")
	syncCmd.Flags().Bool("device", false, "sync on behalf of the device task provider")
	syncCmd.AddCommand(syncStatusCmd, syncStatusSetCmd("active", true), syncStatusSetCmd("inactive", false))
	rootCmd.AddCommand(syncCmd)
}

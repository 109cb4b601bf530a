// Command taskd manages tasks and triggers background sync.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/mschirtzinger/taskd/internal/app"
	"github.com/mschirtzinger/taskd/internal/config"
	"github.com/mschirtzinger/taskd/internal/logging"
	"github.com/mschirtzinger/taskd/internal/ui"
)

var (
	cfgFile string
	v       = config.New()
	cfg     *config.Config
	logger  *log.Logger
)

var rootCmd = &cobra.Command{
	Use:   "taskd",
	Short: "Task manager with cascading deletes and debounced sync",
	Long: `taskd keeps tasks in a local SQLite database and schedules sync with
remote task list and calendar accounts.

Run 'taskd daemon' to serve change notifications and sync periodically;
every other command works against the database directly.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
			ui.DisableColor()
		}

		flags := cmd.Root().PersistentFlags()
		for key, name := range map[string]string{
			config.KeyDBPath:   "db",
			config.KeyLogLevel: "log-level",
		} {
			if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
				return err
			}
		}

		loaded, err := config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded

		// One-shot commands only report problems unless asked.
		level := "warn"
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			level = cfg.Log.Level
		}
		logger, err = logging.New(os.Stderr, level)
		return err
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "tasks", Title: "Tasks:"},
		&cobra.Group{ID: "containers", Title: "Lists and accounts:"},
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "advanced", Title: "Advanced:"},
	)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default $XDG_CONFIG_HOME/taskd/taskd.toml)")
	flags.String("db", "", "task database path")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.BoolP("verbose", "v", false, "log at the configured level")
	flags.Bool("no-color", false, "disable colored output")
}

// withApp opens the components, runs fn and closes them. Close flushes
// pending sync requests, so a sync requested by fn runs before exit.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	a, err := app.Open(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	err = fn(ctx, a)
	return errors.Join(err, a.Close())
}

// confirm asks before a destructive command unless --yes was given.
func confirm(cmd *cobra.Command, title, description string) error {
	if yes, _ := cmd.Flags().GetBool("yes"); yes {
		return nil
	}
	return ui.Confirm(title, description)
}

func pass(w io.Writer, format string, args ...any) {
	ui.Fprintf(w, ui.RenderPass, "✓", format, args...)
}

func warn(w io.Writer, format string, args ...any) {
	ui.Fprintf(w, ui.RenderWarn, "⚠", format, args...)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, ui.ErrNotConfirmed) {
			fmt.Fprintln(os.Stderr, "Aborted")
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderFail("Error:"), err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/mschirtzinger/taskd/internal/config"
	"github.com/mschirtzinger/taskd/internal/daemon"
	"github.com/mschirtzinger/taskd/internal/logging"
	"github.com/mschirtzinger/taskd/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "advanced",
	Short:   "Run the sync daemon (foreground)",
	Long: `Run the taskd daemon in the foreground.

The daemon:
  1. Serves change notifications on ws://localhost:<port>/ws
  2. Watches the database for changes made by other taskd commands
  3. Requests a sync on the sync.schedule cron spec
  4. Flushes pending sync requests on Ctrl+C or SIGTERM

WebSocket messages: refresh, refresh_list, sync_status, sync_complete.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := v.BindPFlag(config.KeyDashboardPort, cmd.Flags().Lookup("port")); err != nil {
			return err
		}
		cfg.Dashboard.Port = v.GetInt(config.KeyDashboardPort)
		if err := cfg.Validate(); err != nil {
			return err
		}

		dlogger, closer, err := daemonLogger()
		if err != nil {
			return err
		}
		defer closer.Close()

		d, err := daemon.New(daemon.Config{Config: cfg, Logger: dlogger})
		if err != nil {
			return err
		}

		fmt.Printf("%s Starting taskd daemon...\n", ui.RenderAccent("🚀"))
		fmt.Printf("   Database: %s\n", cfg.DB.Path)
		fmt.Printf("   WebSocket: ws://localhost:%d/ws\n", cfg.Dashboard.Port)
		if cfg.Log.File != "" {
			fmt.Printf("   Log: %s\n", cfg.Log.File)
		}
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := d.Run(ctx); err != nil {
			return fmt.Errorf("daemon stopped with error: %w", err)
		}
		fmt.Println("Daemon stopped")
		return nil
	},
}

// daemonLogger logs at the configured level, to log.file when set.
func daemonLogger() (*log.Logger, io.Closer, error) {
	if cfg.Log.File != "" {
		return logging.NewFile(cfg.Log.File, cfg.Log.Level)
	}
	l, err := logging.New(os.Stderr, cfg.Log.Level)
	return l, io.NopCloser(nil), err
}

func init() {
	daemonCmd.Flags().IntP("port", "p", config.Default().Dashboard.Port, "notification port")
	rootCmd.AddCommand(daemonCmd)
}

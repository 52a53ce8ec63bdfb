package cli

import (
	"fmt"
	"syscall"
	"time"

	"github.com/harun/synmem/internal/daemon"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newStopCmd(root *rootOptions) *cobra.Command {
	var timeout int

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the synmem daemon service",
		Long: `Stop the synmem daemon service gracefully.
Sends SIGTERM to the daemon and waits for it to shut down.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			lm := daemon.NewLifecycleManager(cfg.DataDir, zerolog.Nop())
			return stopDaemon(cmd, lm, time.Duration(timeout)*time.Second)
		},
	}

	cmd.Flags().IntVar(&timeout, "timeout", 30, "timeout in seconds to wait for daemon to stop")

	return cmd
}

func stopDaemon(cmd *cobra.Command, lm *daemon.LifecycleManager, timeout time.Duration) error {
	out := cmd.OutOrStdout()

	if !lm.IsRunning() {
		if err := lm.RemoveStale(); err != nil {
			return fmt.Errorf("failed to remove stale PID file: %w", err)
		}
		fmt.Fprintln(out, "Daemon is not running")
		return nil
	}

	if err := lm.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send SIGTERM: %w", err)
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !lm.IsRunning() {
			_ = lm.RemoveStale()
			fmt.Fprintln(out, "Daemon stopped successfully")
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	fmt.Fprintln(out, "Timeout reached, sending SIGKILL...")
	if err := lm.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to send SIGKILL: %w", err)
	}
	_ = lm.RemoveStale()
	fmt.Fprintln(out, "Daemon killed")
	return nil
}

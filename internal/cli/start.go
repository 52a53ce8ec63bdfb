package cli

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/harun/synmem/internal/daemon"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// detachTimeout bounds the wait for a detached daemon to write its PID file.
const detachTimeout = 10 * time.Second

func newStartCmd(root *rootOptions) *cobra.Command {
	var detach bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the synmem daemon service",
		Long: `Start the synmem daemon service. The daemon watches the ingest spool,
runs scheduled maintenance and serves metrics. It runs in the foreground
until interrupted unless --detach is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}

			lm := daemon.NewLifecycleManager(cfg.DataDir, zerolog.Nop())
			if lm.IsRunning() {
				return fmt.Errorf("%w (PID file: %s)", daemon.ErrAlreadyRunning, lm.PIDFile())
			}

			if detach {
				return startDetached(cmd, root, lm)
			}

			log, err := root.newLogger(cfg, true)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			defer log.Close()

			d, err := daemon.New(cfg, log)
			if err != nil {
				return err
			}
			if err := d.Start(); err != nil {
				return err
			}
			d.Wait()
			return nil
		},
	}

	cmd.Flags().BoolVarP(&detach, "detach", "d", false, "run the daemon in the background")

	return cmd
}

// startDetached re-executes the binary in a new session and waits until the
// child has written its PID file.
func startDetached(cmd *cobra.Command, root *rootOptions, lm *daemon.LifecycleManager) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate executable: %w", err)
	}

	args := []string{"start"}
	if root.configFile != "" {
		args = append(args, "--config", root.configFile)
	}
	if root.logLevel != "" {
		args = append(args, "--log-level", root.logLevel)
	}

	child := exec.Command(exe, args...)
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := child.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	exited := make(chan error, 1)
	go func() { exited <- child.Wait() }()

	deadline := time.After(detachTimeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case err := <-exited:
			if err == nil {
				err = errors.New("exited before writing its PID file")
			}
			return fmt.Errorf("daemon failed to start: %w", err)
		case <-deadline:
			return fmt.Errorf("daemon did not start within %s", detachTimeout)
		case <-ticker.C:
			if pid, err := lm.GetPID(); err == nil && pid == child.Process.Pid {
				fmt.Fprintf(cmd.OutOrStdout(), "Daemon started (PID %d)\n", pid)
				return nil
			}
		}
	}
}

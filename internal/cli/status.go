package cli

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/harun/synmem/internal/config"
	"github.com/harun/synmem/internal/daemon"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// daemonStatus is the JSON form of the status command
type daemonStatus struct {
	Running  bool   `json:"running"`
	PID      int    `json:"pid,omitempty"`
	Uptime   string `json:"uptime,omitempty"`
	Memories *int   `json:"memories,omitempty"`
}

func newStatusCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Long:  `Show the current status of the synmem daemon service.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			lm := daemon.NewLifecycleManager(cfg.DataDir, zerolog.Nop())

			status := daemonStatus{Running: lm.IsRunning()}
			if status.Running {
				status.PID, _ = lm.GetPID()
				if startedAt, err := lm.StartedAt(); err == nil {
					status.Uptime = formatDuration(time.Since(startedAt))
				}
				if count, ok := healthMemories(cfg); ok {
					status.Memories = &count
				}
			}

			if root.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), status)
			}

			out := cmd.OutOrStdout()
			if !status.Running {
				fmt.Fprintln(out, "Status: stopped")
				return nil
			}
			fmt.Fprintln(out, "Status: running")
			fmt.Fprintf(out, "PID: %d\n", status.PID)
			if status.Uptime != "" {
				fmt.Fprintf(out, "Uptime: %s\n", status.Uptime)
			}
			if status.Memories != nil {
				fmt.Fprintf(out, "Memories: %d\n", *status.Memories)
			}
			return nil
		},
	}
}

// healthMemories asks the daemon's health endpoint for the record count
func healthMemories(cfg *config.Config) (int, bool) {
	if !cfg.Metrics.Enabled {
		return 0, false
	}
	client := &http.Client{Timeout: 2 * time.Second}
	url := "http://" + net.JoinHostPort(cfg.Metrics.Host, strconv.Itoa(cfg.Metrics.Port)) + "/health"
	resp, err := client.Get(url)
	if err != nil {
		return 0, false
	}
	defer resp.Body.Close()

	var health struct {
		Memories *int `json:"memories"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil || health.Memories == nil {
		return 0, false
	}
	return *health.Memories, true
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

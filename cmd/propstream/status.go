// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PropStream Contributors

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

// serverStatus holds what the status command learned about a running
// instance.
type serverStatus struct {
	Reachable              bool    `json:"reachable"`
	Ready                  bool    `json:"ready"`
	ConnectedIdentityCount int     `json:"connectedIdentityCount,omitempty"`
	ActiveConnectionCount  int     `json:"activeConnectionCount,omitempty"`
	ProcessUptimeSeconds   float64 `json:"processUptime,omitempty"`
	MemoryUsageBytes       uint64  `json:"memoryUsage,omitempty"`
	Error                  string  `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	addr       string
	jsonOutput bool
}

// newStatusCmd creates the status subcommand with all flags configured.
func newStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show status of a running notification server",
		Long:  `Query the observability endpoints of a running instance and report its health.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	// Register flags
	cmd.Flags().StringVar(&cfg.addr, "addr", "127.0.0.1:9100", "observability address of the running instance")
	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")

	return cmd
}

// runStatus executes the status command.
func runStatus(cmd *cobra.Command, cfg *statusConfig) error {
	status := queryServerStatus(cfg.addr)

	if cfg.jsonOutput {
		data, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal status: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Println(formatStatus(cfg.addr, status))
	return nil
}

// queryServerStatus fetches the readiness probe and statsz snapshot from
// the observability server.
func queryServerStatus(addr string) serverStatus {
	var status serverStatus

	client := &http.Client{Timeout: 2 * time.Second}

	readyResp, err := client.Get(fmt.Sprintf("http://%s/healthz/readiness", addr))
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	defer func() { _ = readyResp.Body.Close() }()

	status.Reachable = true
	status.Ready = readyResp.StatusCode == http.StatusOK

	statszResp, err := client.Get(fmt.Sprintf("http://%s/statsz", addr))
	if err != nil {
		// Readiness answered but statsz did not; report what we have.
		status.Error = fmt.Sprintf("failed to fetch statsz: %v", err)
		return status
	}
	defer func() { _ = statszResp.Body.Close() }()

	var stats struct {
		ConnectedIdentityCount int     `json:"connectedIdentityCount"`
		ActiveConnectionCount  int     `json:"activeConnectionCount"`
		ProcessUptimeSeconds   float64 `json:"processUptime"`
		MemoryUsageBytes       uint64  `json:"memoryUsage"`
	}
	if err := json.NewDecoder(statszResp.Body).Decode(&stats); err != nil {
		status.Error = fmt.Sprintf("failed to decode statsz response: %v", err)
		return status
	}

	status.ConnectedIdentityCount = stats.ConnectedIdentityCount
	status.ActiveConnectionCount = stats.ActiveConnectionCount
	status.ProcessUptimeSeconds = stats.ProcessUptimeSeconds
	status.MemoryUsageBytes = stats.MemoryUsageBytes

	return status
}

// formatStatus renders a short human-readable report.
func formatStatus(addr string, status serverStatus) string {
	if !status.Reachable {
		return fmt.Sprintf("propstream at %s: unreachable (%s)", addr, status.Error)
	}

	state := "not ready"
	if status.Ready {
		state = "ready"
	}

	out := fmt.Sprintf("propstream at %s: %s\n", addr, state)
	out += fmt.Sprintf("  connections: %d (%d identities)\n",
		status.ActiveConnectionCount, status.ConnectedIdentityCount)
	out += fmt.Sprintf("  uptime:      %s\n", formatUptime(int64(status.ProcessUptimeSeconds)))
	out += fmt.Sprintf("  memory:      %.1f MiB", float64(status.MemoryUsageBytes)/(1024*1024))
	if status.Error != "" {
		out += fmt.Sprintf("\n  warning:     %s", status.Error)
	}
	return out
}

// formatUptime formats seconds into a human-readable duration.
func formatUptime(seconds int64) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	if seconds < 3600 {
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

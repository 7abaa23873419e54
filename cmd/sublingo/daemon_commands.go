package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sublingo/internal/daemonctl"
	"sublingo/internal/deps"
	"sublingo/internal/ipc"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the sublingo daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			configPath := ""
			if ctx.configFlag != nil {
				configPath = strings.TrimSpace(*ctx.configFlag)
			}
			result, err := daemonctl.EnsureStarted(ctx.socketPath(), exe, configPath, 10*time.Second)
			if err != nil {
				return err
			}

			if result.Launched {
				fmt.Fprintln(stdout, "Daemon not running, launching...")
			}
			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintln(stdout, "Daemon started")
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon already running")
			}
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the sublingo daemon (completely terminates the process)",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), 5*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if !result.StopAcknowledged {
				fmt.Fprintln(stdout, "Stop request sent")
			} else {
				fmt.Fprintln(stdout, "Stopping daemon pipeline...")
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Stopping daemon process (pid %d)...\n", result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and pipeline status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			status, dialErr := fetchDaemonStatus(ctx)

			for _, line := range renderSectionHeader("Daemon", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, line := range daemonStatusLines(status, dialErr, colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Dependencies", colorize) {
				fmt.Fprintln(stdout, line)
			}
			checks := deps.CheckBinaries(deps.SystemRequirements(cfg))
			for _, line := range dependencyLines(checks, colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Paths", colorize) {
				fmt.Fprintln(stdout, line)
			}
			if cfg != nil {
				fmt.Fprintln(stdout, directoryStatusLine("Work Directory", cfg.Paths.WorkDir, colorize))
				fmt.Fprintln(stdout, directoryStatusLine("Ingest Directory", cfg.Paths.IngestDir, colorize))
				fmt.Fprintln(stdout, directoryStatusLine("Log Directory", cfg.Paths.LogDir, colorize))
				fmt.Fprintln(stdout, lexiconStatusLine(cfg.Paths.LexiconCSV, colorize))
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Task Status", colorize) {
				fmt.Fprintln(stdout, line)
			}
			if status == nil {
				fmt.Fprintln(stdout, "Task stats unavailable (daemon not running)")
				return nil
			}
			rows := buildTaskStatsRows(status.TaskStats)
			if len(rows) == 0 {
				fmt.Fprintln(stdout, "No tasks")
				return nil
			}
			table := renderTable([]string{"Stage", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
			fmt.Fprint(stdout, table)
			return nil
		},
	}

	return []*cobra.Command{startCmd, stopCmd, statusCmd}
}

func fetchDaemonStatus(ctx *commandContext) (*ipc.StatusResponse, error) {
	client, err := ctx.dialClient()
	if err != nil {
		return nil, err
	}
	defer client.Close()
	return client.Status()
}

func daemonStatusLines(status *ipc.StatusResponse, dialErr error, colorize bool) []string {
	if status == nil {
		detail := "Not running"
		if dialErr != nil && !strings.Contains(dialErr.Error(), "not found") {
			detail = dialErr.Error()
		}
		return []string{renderStatusLine("Sublingo", statusError, detail, colorize)}
	}

	lines := []string{
		renderStatusLine("Sublingo", statusOK, fmt.Sprintf("Running (pid %d)", status.PID), colorize),
		renderStatusLine("Database", statusInfo, status.DBPath, colorize),
		renderStatusLine("Subscribers", statusInfo, fmt.Sprintf("%d", status.Subscribers), colorize),
	}
	for _, backend := range status.Backends {
		detail := fmt.Sprintf("%s (max %d concurrent)", backend.Capability, backend.ConcurrencyLimit)
		lines = append(lines, renderStatusLine(backend.Name, statusOK, detail, colorize))
	}
	return lines
}

func dependencyLines(checks []deps.Status, colorize bool) []string {
	lines := make([]string, 0, len(checks)+1)
	missing := make([]string, 0)
	for _, dep := range checks {
		if dep.Available {
			message := "Ready"
			if dep.Command != "" {
				message = fmt.Sprintf("Ready (command: %s)", dep.Command)
			}
			lines = append(lines, renderStatusLine(dep.Name, statusOK, message, colorize))
			continue
		}

		detail := strings.TrimSpace(dep.Detail)
		if detail == "" {
			detail = "not available"
		}
		kind := statusError
		if dep.Optional {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, detail, colorize))
		if !dep.Optional {
			missing = append(missing, dep.Name)
		}
	}
	if len(missing) > 0 {
		lines = append(lines, renderStatusLine("Missing dependencies", statusWarn, fmt.Sprintf("%s (see README.md for install steps)", strings.Join(missing, ", ")), colorize))
	}
	return lines
}

func directoryStatusLine(label, path string, colorize bool) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return renderStatusLine(label, statusWarn, "not configured", colorize)
	}
	info, err := os.Stat(path)
	if err != nil {
		return renderStatusLine(label, statusError, fmt.Sprintf("%s (missing)", path), colorize)
	}
	if !info.IsDir() {
		return renderStatusLine(label, statusError, fmt.Sprintf("%s (not a directory)", path), colorize)
	}
	return renderStatusLine(label, statusOK, path, colorize)
}

func lexiconStatusLine(path string, colorize bool) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return renderStatusLine("Lexicon", statusWarn, "not configured", colorize)
	}
	if _, err := os.Stat(path); err != nil {
		return renderStatusLine("Lexicon", statusError, fmt.Sprintf("%s (missing)", path), colorize)
	}
	return renderStatusLine("Lexicon", statusOK, path, colorize)
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	candidate := filepath.Join(filepath.Dir(exe), "sublingod")
	if _, statErr := os.Stat(candidate); statErr == nil {
		return candidate, nil
	}
	if found, lookErr := exec.LookPath("sublingod"); lookErr == nil {
		return found, nil
	}
	return "", fmt.Errorf("sublingod binary not found next to %s or on PATH", exe)
}

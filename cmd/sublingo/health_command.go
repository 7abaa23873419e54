package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"sublingo/internal/ipc"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Show task database health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				health, err := client.DatabaseHealth()
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, health)
				}

				stdout := cmd.OutOrStdout()
				colorize := shouldColorize(stdout)
				for _, line := range renderSectionHeader("Database Health", colorize) {
					fmt.Fprintln(stdout, line)
				}

				fmt.Fprintln(stdout, renderStatusLine("Path", statusInfo, health.DBPath, colorize))
				fmt.Fprintln(stdout, boolStatusLine("Exists", health.DatabaseExists, "", colorize))
				fmt.Fprintln(stdout, boolStatusLine("Readable", health.DatabaseReadable, "", colorize))
				fmt.Fprintln(stdout, renderStatusLine("Schema version", statusInfo, health.SchemaVersion, colorize))
				fmt.Fprintln(stdout, boolStatusLine("Tasks table", health.TableExists, "", colorize))
				if len(health.MissingColumns) > 0 {
					fmt.Fprintln(stdout, renderStatusLine("Columns", statusError, fmt.Sprintf("missing %s", strings.Join(health.MissingColumns, ", ")), colorize))
				} else {
					fmt.Fprintln(stdout, renderStatusLine("Columns", statusOK, fmt.Sprintf("%d present", len(health.ColumnsPresent)), colorize))
				}
				fmt.Fprintln(stdout, boolStatusLine("Integrity check", health.IntegrityCheck, "", colorize))
				fmt.Fprintln(stdout, renderStatusLine("Total tasks", statusInfo, fmt.Sprintf("%d", health.TotalTasks), colorize))
				if strings.TrimSpace(health.Error) != "" {
					fmt.Fprintln(stdout, renderStatusLine("Error", statusError, health.Error, colorize))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit health report as JSON")
	return cmd
}

func boolStatusLine(label string, ok bool, detail string, colorize bool) string {
	kind := statusOK
	message := "yes"
	if !ok {
		kind = statusError
		message = "no"
	}
	if detail != "" {
		message = detail
	}
	return renderStatusLine(label, kind, message, colorize)
}

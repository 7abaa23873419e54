package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"sublingo/internal/ipc"
)

func newPlanCommand(ctx *commandContext) *cobra.Command {
	var userRef string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "plan <videoPath>",
		Short: "Segment a video into chunks and enqueue a task per chunk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			videoPath := strings.TrimSpace(args[0])
			if videoPath == "" {
				return errors.New("video path is required")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.VideoPlan(userRef, videoPath)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Tasks)
				}
				if len(resp.Tasks) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No chunks planned")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Planned %d chunks for %s\n", len(resp.Tasks), videoPath)
				table := renderTable(
					[]string{"ID", "User", "Video", "Chunk", "Stage", "Progress", "Updated"},
					buildTaskListRows(resp.Tasks),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignLeft},
				)
				fmt.Fprint(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&userRef, "user", "u", "", "User the chunks belong to")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit planned tasks as JSON")
	return cmd
}

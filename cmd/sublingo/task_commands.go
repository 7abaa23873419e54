package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"sublingo/internal/ipc"
)

func newTaskCommand(ctx *commandContext) *cobra.Command {
	taskCmd := &cobra.Command{
		Use:   "task",
		Short: "Inspect and manage chunk tasks",
	}

	taskCmd.AddCommand(newTaskListCommand(ctx))
	taskCmd.AddCommand(newTaskShowCommand(ctx))
	taskCmd.AddCommand(newTaskAddCommand(ctx))
	taskCmd.AddCommand(newTaskRetryCommand(ctx))
	taskCmd.AddCommand(newTaskCancelCommand(ctx))
	taskCmd.AddCommand(newTaskClearCommand(ctx))

	return taskCmd
}

func newTaskListCommand(ctx *commandContext) *cobra.Command {
	var listStages []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List chunk tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TaskList(listStages)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Tasks)
				}
				if len(resp.Tasks) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No tasks")
					return nil
				}
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

	cmd.Flags().StringSliceVarP(&listStages, "stage", "s", nil, "Filter by pipeline stage (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit tasks as JSON")
	return cmd
}

func newTaskShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <taskID>",
		Short: "Show details for one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TaskDescribe(strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Task)
				}
				for _, line := range buildTaskDetailLines(resp.Task) {
					fmt.Fprintln(cmd.OutOrStdout(), line)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit task as JSON")
	return cmd
}

func newTaskAddCommand(ctx *commandContext) *cobra.Command {
	var req ipc.TaskAddRequest

	cmd := &cobra.Command{
		Use:   "add <videoRef>",
		Short: "Enqueue one chunk task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.VideoRef = strings.TrimSpace(args[0])
			if req.VideoRef == "" {
				return errors.New("video reference is required")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TaskAdd(req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued task %s (%s chunk %d)\n",
					resp.Task.ID, resp.Task.VideoRef, resp.Task.ChunkIndex)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&req.UserRef, "user", "u", "", "User the chunk belongs to")
	cmd.Flags().Float64Var(&req.StartSec, "start", 0, "Chunk start offset in seconds")
	cmd.Flags().Float64Var(&req.EndSec, "end", 0, "Chunk end offset in seconds")
	cmd.Flags().StringVar(&req.Transcription, "transcription-model", "", "Transcription backend override")
	cmd.Flags().StringVar(&req.Translation, "translation-model", "", "Translation backend override")
	cmd.Flags().StringVar(&req.SourceLang, "source-lang", "", "Source language override")
	cmd.Flags().StringVar(&req.TargetLang, "target-lang", "", "Target language override")
	return cmd
}

func newTaskRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <taskID>",
		Short: "Requeue a failed or stalled task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TaskRetry(strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Task %s requeued (attempt %d)\n", resp.Task.ID, resp.Task.Attempts)
				return nil
			})
		},
	}
}

func newTaskCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <taskID>",
		Short: "Request cooperative cancellation of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				id := strings.TrimSpace(args[0])
				if _, err := client.TaskCancel(id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancel requested for task %s\n", id)
				return nil
			})
		},
	}
}

func newTaskClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-completed",
		Short: "Remove completed tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TaskClearCompleted()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d completed tasks\n", resp.Removed)
				return nil
			})
		},
	}
}

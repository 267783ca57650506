package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/engine"
	"github.com/becomeliminal/nim-memory/workflow"
)

func newAskCmd(a *app) *cobra.Command {
	var (
		userID      string
		threadID    string
		useWorkflow bool
		quiet       bool
	)

	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Run one chat turn from the terminal",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			message := strings.Join(args, " ")
			out := cmd.OutOrStdout()

			if useWorkflow {
				c, err := client.Dial(client.Options{
					HostPort:  a.cfg.Temporal.HostPort,
					Namespace: a.cfg.Temporal.Namespace,
				})
				if err != nil {
					return fmt.Errorf("unable to create Temporal client: %w", err)
				}
				defer c.Close()

				result, err := workflow.Execute(ctx, c, a.cfg.Temporal.TaskQueue, workflow.TurnInput{
					UserID:   userID,
					ThreadID: threadID,
					Message:  message,
				})
				if err != nil {
					return err
				}
				fmt.Fprintln(out, result.Response)
				return nil
			}

			rt := newRuntime(ctx, a.cfg, a.logger)
			defer rt.close()

			responder, err := rt.responder()
			if err != nil {
				return err
			}
			mgr := rt.managers()(ctx, core.Namespace{UserID: userID, ThreadID: threadID})

			input := engine.Input{
				UserMessage: message,
				OnDelta:     func(chunk string) { fmt.Fprint(out, chunk) },
			}
			if !quiet {
				input.Progress = func(step, status, detail string) {
					fmt.Fprintf(os.Stderr, "[%s] %s: %s\n", step, status, detail)
				}
			}
			result, err := rt.engine(responder).Run(ctx, mgr, input)
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			if !quiet {
				fmt.Fprintf(os.Stderr, "context: %s\n", result.Context.Summary)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "cli", "User id")
	cmd.Flags().StringVar(&threadID, "thread", "default", "Thread id")
	cmd.Flags().BoolVar(&useWorkflow, "workflow", false, "Run the turn as a Temporal workflow")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output")
	return cmd
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/workflow"
)

func newWorkerCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run a Temporal worker for turn workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			tc := a.cfg.Temporal

			rt := newRuntime(ctx, a.cfg, a.logger)
			defer rt.close()

			responder, err := rt.responder()
			if err != nil {
				return err
			}

			c, err := client.Dial(client.Options{
				HostPort:  tc.HostPort,
				Namespace: tc.Namespace,
			})
			if err != nil {
				return fmt.Errorf("unable to create Temporal client: %w", err)
			}
			defer c.Close()

			w := worker.New(c, tc.TaskQueue, worker.Options{})
			workflow.Register(w, workflow.NewActivities(workflow.ActivitiesConfig{
				Sessions:      memory.NewSessions(rt.managers()),
				Responder:     responder,
				Conversations: rt.backends.Conversations,
				Logger:        a.logger,
			}))

			a.logger.Info("temporal worker starting",
				zap.String("host", tc.HostPort),
				zap.String("task_queue", tc.TaskQueue))
			return w.Run(worker.InterruptCh())
		},
	}
}

package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/server"
)

func newFactsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "facts <user>",
		Short: "Print a user's fact sheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt := newRuntime(ctx, a.cfg, a.logger)
			defer rt.close()

			mgr := rt.managers()(ctx, core.Namespace{UserID: args[0], ThreadID: server.DefaultThreadID})
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(mgr.GetUserFacts(ctx))
		},
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	var page, pageSize int

	cmd := &cobra.Command{
		Use:   "history <user> <thread>",
		Short: "Print one page of a conversation, oldest first",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt := newRuntime(ctx, a.cfg, a.logger)
			defer rt.close()

			mgr := rt.managers()(ctx, core.Namespace{UserID: args[0], ThreadID: args[1]})
			printTurns(cmd.OutOrStdout(), mgr.FetchHistory(ctx, page, pageSize))
			return nil
		},
	}

	cmd.Flags().IntVar(&page, "page", 0, "Page number, starting at 0")
	cmd.Flags().IntVar(&pageSize, "page-size", memory.DefaultPageSize, "Turns per page")
	return cmd
}

func printTurns(w io.Writer, turns []core.Turn) {
	if len(turns) == 0 {
		fmt.Fprintln(w, "No messages.")
		return
	}
	for _, t := range turns {
		speaker := "User"
		if t.Role == core.RoleAssistant {
			speaker = "Assistant"
		}
		fmt.Fprintf(w, "%s  %s: %s\n", t.Timestamp.Format("2006-01-02 15:04:05"), speaker, t.Content)
	}
}

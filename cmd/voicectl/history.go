package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <session-key>",
		Short: "Print a journaled conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := opts.build(ctx, cmd.ErrOrStderr(), true)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			if a.Journal == nil {
				return errors.New("journal.table is not configured")
			}

			msgs, err := a.Journal.History(ctx, args[0], limit)
			if err != nil {
				return err
			}
			turns, err := a.Journal.TurnCount(ctx, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "conversation %s: %d turns\n", args[0], turns)
			for _, m := range msgs {
				fmt.Fprintf(out, "you: %s\n", m.Text)
				if m.Intent != "" {
					fmt.Fprintf(out, "assistant [%s]: %s\n", m.Intent, m.Answer)
				} else {
					fmt.Fprintf(out, "assistant: %s\n", m.Answer)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of turns to print")
	return cmd
}

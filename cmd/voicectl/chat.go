package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"glass-voice/internal/usecase"
)

func newChatCmd(opts *rootOptions) *cobra.Command {
	var sessionKey string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the assistant from the terminal",
		Long:  "Reads one utterance per line. /interrupt barges in on the last reply, /quit ends the conversation.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.build(cmd.Context(), cmd.ErrOrStderr(), false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if sessionKey == "" {
				sessionKey = uuid.NewString()
			}
			return runChat(cmd, a.Service, sessionKey)
		},
	}
	cmd.Flags().StringVar(&sessionKey, "session", "", "session key (default: random)")
	return cmd
}

func runChat(cmd *cobra.Command, svc *usecase.ConversationService, key string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	scanner := bufio.NewScanner(cmd.InOrStdin())

	prompt(out)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
		case "/quit", "/exit":
			res := svc.End(ctx, key)
			say(out, res.Reply)
			return nil
		case "/interrupt":
			res := svc.Interrupt(ctx, key)
			fmt.Fprintf(out, "(interrupted: %d)\n", res.Interruptions)
		default:
			resp, err := svc.Process(ctx, usecase.ProcessInput{SessionKey: key, Text: line, Final: true})
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				break
			}
			say(out, resp.Reply)
			if resp.Action != "" {
				fmt.Fprintf(out, "  [%s]\n", resp.Action)
			}
		}
		prompt(out)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	svc.End(ctx, key)
	return nil
}

func prompt(w io.Writer) { fmt.Fprint(w, "you> ") }

func say(w io.Writer, reply string) {
	if reply == "" {
		return
	}
	fmt.Fprintf(w, "assistant: %s\n", reply)
}

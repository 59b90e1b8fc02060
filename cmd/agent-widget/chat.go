package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"agent-widget/internal/config"
	"agent-widget/internal/logging"
	"agent-widget/internal/session"

	"github.com/spf13/cobra"
)

func newChatCmd(loader *config.Loader) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Line based chat on stdin and stdout",
		Long:  "Reads one message per line. /reset starts a new conversation and /quit exits.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loader.Load()
			if err != nil {
				return err
			}
			logger, err := logging.NewConsole(cmd.ErrOrStderr(), cfg.LogLevel)
			if err != nil {
				return err
			}
			a := &app{cfg: cfg, logger: logger}
			defer a.Close()
			if err := a.openJournal(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			s := a.newSession()
			defer s.Close()
			return runChat(ctx, s, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func runChat(ctx context.Context, s *session.Session, in io.Reader, out io.Writer) error {
	st := s.State()
	printAgent(out, st.Transcript)
	seen := len(st.Transcript)

	scanner := bufio.NewScanner(in)
	for {
		if st.Ended {
			fmt.Fprintln(out, "-- conversation ended, /reset to start over or /quit to exit")
		}
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := scanner.Text()

		switch strings.TrimSpace(line) {
		case "":
			continue
		case "/quit":
			return nil
		case "/reset":
			s.ResetAndNotify(ctx)
			st = s.State()
			printAgent(out, st.Transcript)
			seen = len(st.Transcript)
			continue
		}

		if err := s.Send(ctx, line); err != nil {
			fmt.Fprintf(out, "-- %v\n", err)
			continue
		}
		if ctx.Err() != nil {
			return nil
		}

		st = s.State()
		if seen < len(st.Transcript) {
			printAgent(out, st.Transcript[seen:])
		}
		seen = len(st.Transcript)
	}
}

func printAgent(out io.Writer, msgs []session.Message) {
	for _, m := range msgs {
		if m.Role != session.RoleAgent {
			continue
		}
		fmt.Fprintf(out, "agent: %s\n", m.Text)
	}
}

package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"agent-widget/internal/config"
	"agent-widget/internal/journal"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/x/ansi"
	"github.com/spf13/cobra"
)

func newJournalCmd(loader *config.Loader) *cobra.Command {
	var (
		limit     int
		sessionID string
	)
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "List the most recent recorded webhook exchanges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loader.Load()
			if err != nil {
				return err
			}
			if cfg.JournalPath == "" {
				return errors.New("no journal configured (use --journal or AGENT_WIDGET_JOURNAL)")
			}
			store, err := journal.Open(cfg.JournalPath)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.Recent(cmd.Context(), sessionID, limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No exchanges recorded.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderEntries(entries))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of exchanges to list")
	cmd.Flags().StringVar(&sessionID, "session", "", "only list exchanges of this session")
	return cmd
}

func renderEntries(entries []journal.Entry) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		outcome := strconv.Itoa(e.Status)
		if e.Err != "" {
			outcome = ansi.Truncate(e.Err, 40, "…")
		}
		rows = append(rows, []string{
			e.At.Local().Format(time.DateTime),
			ansi.Truncate(e.SessionID, 8, ""),
			string(e.Kind),
			ansi.Truncate(e.Endpoint, 48, "…"),
			outcome,
			fmt.Sprintf("%dms", e.DurationMS),
		})
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("AT", "SESSION", "KIND", "ENDPOINT", "RESULT", "TOOK").
		Rows(rows...).
		String()
}

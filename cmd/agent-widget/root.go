package main

import (
	"os"

	"agent-widget/internal/config"
	"agent-widget/internal/export"
	"agent-widget/internal/logging"
	"agent-widget/internal/ui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "agent-widget",
		Short:         "Chat with a webhook driven sales agent from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	loader, err := config.NewLoader(cmd.PersistentFlags())
	if err != nil {
		cmd.RunE = func(*cobra.Command, []string) error { return err }
		return cmd
	}

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		cfg, err := loader.Load()
		if err != nil {
			return err
		}
		return runWidget(cfg)
	}

	cmd.AddCommand(
		newChatCmd(loader),
		newProxyCmd(loader),
		newJournalCmd(loader),
	)
	return cmd
}

func runWidget(cfg config.AppConfig) error {
	logger, logFile, err := logging.NewFile(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		return err
	}
	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, logFile)
	defer a.Close()

	if err := a.openJournal(); err != nil {
		return err
	}
	exp, err := export.New(cfg.ExportDir)
	if err != nil {
		return err
	}

	s := a.newSession()
	defer s.Close()

	logger.Info().
		Str("session_id", s.ID()).
		Str("endpoint", cfg.WebhookURL).
		Msg("widget started")

	p := tea.NewProgram(ui.NewModel(cfg, s, exp, logger), tea.WithAltScreen(), tea.WithOutput(os.Stdout))
	_, err = p.Run()
	return err
}

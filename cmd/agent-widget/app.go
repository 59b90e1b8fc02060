package main

import (
	"errors"
	"io"
	"net/http"

	"agent-widget/internal/config"
	"agent-widget/internal/journal"
	"agent-widget/internal/session"
	"agent-widget/internal/webhook"

	"github.com/rs/zerolog"
)

// app holds what every command builds from the resolved configuration.
type app struct {
	cfg     config.AppConfig
	logger  zerolog.Logger
	journal *journal.Store
	closers []io.Closer
}

func (a *app) openJournal() error {
	if a.cfg.JournalPath == "" {
		return nil
	}
	store, err := journal.Open(a.cfg.JournalPath)
	if err != nil {
		return err
	}
	a.journal = store
	a.closers = append(a.closers, store)
	return nil
}

func (a *app) newSession() *session.Session {
	rw := a.cfg.Rewriter()

	var opts []webhook.Option
	if a.journal != nil {
		opts = append(opts, webhook.WithRecorder(a.journal))
	}
	client := webhook.NewClient(&http.Client{}, rw, a.logger, opts...)

	return session.New(client, session.Options{
		InitialEndpoint: a.cfg.WebhookURL,
		Greeting:        a.cfg.Greeting,
		TypingDelay:     a.cfg.TypingDelay,
		Normalize:       rw.Normalize,
		Logger:          &a.logger,
	})
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}

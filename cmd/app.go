package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/KaramelBytes/docqa-cli/internal/logging"
	"github.com/KaramelBytes/docqa-cli/internal/qa"
	"github.com/KaramelBytes/docqa-cli/internal/session"
	"github.com/KaramelBytes/docqa-cli/internal/store"
	"github.com/KaramelBytes/docqa-cli/internal/ui"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app is the per-command object graph.
type app struct {
	log     *zap.Logger
	client  *qa.Client
	store   store.Store
	console *ui.Console
	session *session.Manager
}

// newApp wires logger, service client, store, console and session manager.
// onChange, when set, receives every session snapshot.
func newApp(cmd *cobra.Command, onChange func(session.Snapshot)) (*app, error) {
	c, err := requireConfig()
	if err != nil {
		return nil, err
	}
	logPath, err := c.LogPath()
	if err != nil {
		return nil, err
	}
	statePath, err := c.StatePath()
	if err != nil {
		return nil, err
	}
	log, err := logging.New(logging.Options{File: logPath, Level: c.LogLevel, Console: debug})
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	var st store.Store
	if ephemeral {
		st = store.NewMemoryStore()
	} else {
		fs, err := store.NewFileStore(statePath)
		if err != nil {
			return nil, err
		}
		st = fs
	}

	client := qa.NewClient(c.ServiceURL, time.Duration(c.HTTPTimeoutSec)*time.Second, log.Named("qa"))
	log.Debug("service configured", zap.String("base_url", client.BaseURL()), zap.Bool("ephemeral", ephemeral))

	return &app{
		log:     log,
		client:  client,
		store:   st,
		console: ui.NewConsole(cmd.OutOrStdout(), c.Color && !color.NoColor),
		session: session.NewManager(client, st, session.Options{
			Logger:   log.Named("session"),
			OnChange: onChange,
		}),
	}, nil
}

func (a *app) close() {
	_ = a.log.Sync()
}

// sessionError pairs the message in the session's error slot with the cause.
func (a *app) sessionError(err error) error {
	if msg := a.session.Err(); msg != "" {
		return fmt.Errorf("%s (%w)", msg, err)
	}
	return err
}

// openDocument starts the session and activates docID, or the remembered
// document when docID is empty. A failed history load leaves the document
// active with no turns.
func (a *app) openDocument(cmd *cobra.Command, docID string) error {
	if err := a.session.StartWith(cmd.Context(), docID); err != nil {
		if errors.Is(err, session.ErrUnknownDocument) {
			return fmt.Errorf("document %s is not listed by the service", docID)
		}
		return a.sessionError(err)
	}
	if _, ok := a.session.ActiveDocument(); !ok {
		return errors.New("no active document: pass --doc or upload a PDF first")
	}
	return nil
}

// Package app wires the websess services together.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/xinggaoya/websess/internal/actions"
	"github.com/xinggaoya/websess/internal/api"
	"github.com/xinggaoya/websess/internal/config"
	"github.com/xinggaoya/websess/internal/db"
	"github.com/xinggaoya/websess/internal/nav"
	"github.com/xinggaoya/websess/internal/page"
	"github.com/xinggaoya/websess/internal/session"
	"github.com/xinggaoya/websess/internal/state"
	"github.com/xinggaoya/websess/internal/storage"
)

// App holds one instance ("tab") of the session keeper and its
// collaborators.
type App struct {
	Config     *config.Config
	Store      *storage.Store
	Nav        *nav.Navigator
	Client     api.Client
	Dispatcher *state.Store
	Manager    *session.Manager
	Handlers   *actions.Handlers

	conn *sql.DB
}

// New builds an App from cfg. payload may be nil when no app shell was
// loaded.
func New(ctx context.Context, cfg *config.Config, payload *page.Source) (*App, error) {
	if !cfg.IsConfigured() {
		return nil, fmt.Errorf("no base URL configured - set base_url in %s or pass --server", config.GlobalConfig())
	}

	conn, err := db.Connect(ctx, cfg.DataDirectory)
	if err != nil {
		return nil, err
	}

	navigator, err := nav.New(cfg.BaseURL)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("invalid base URL %q: %w", cfg.BaseURL, err)
	}

	broker := storage.NewBroker()
	store := storage.New(conn, broker)
	client := api.New(cfg.BaseURL)
	dispatcher := state.NewStore()

	manager := session.NewManager(client, store, navigator, session.Options{
		Interval: cfg.CheckInterval(),
		Payload:  payload,
	})

	return &App{
		Config:     cfg,
		Store:      store,
		Nav:        navigator,
		Client:     client,
		Dispatcher: dispatcher,
		Manager:    manager,
		Handlers:   actions.New(client, dispatcher, navigator, manager),
		conn:       conn,
	}, nil
}

// Shutdown stops the keeper and releases the database. The session itself
// stays valid; only [actions.Handlers.Logout] ends it.
func (a *App) Shutdown() {
	a.Manager.Close()
	if err := a.conn.Close(); err != nil {
		slog.Error("Failed to close database", "error", err)
	}
}

// Package actions holds the thin handlers that translate UI intents into
// server calls and state dispatches. Every handler is a single attempt:
// failures surface a display message and leave the retry to the user.
package actions

import (
	"context"
	"log/slog"
	"time"

	"github.com/xinggaoya/websess/internal/api"
	"github.com/xinggaoya/websess/internal/event"
	"github.com/xinggaoya/websess/internal/nav"
	"github.com/xinggaoya/websess/internal/session"
	"github.com/xinggaoya/websess/internal/state"
)

// Action types dispatched by the handlers.
const (
	ActionLogin  = "session/login"
	ActionInvite = "session/invite"
	ActionLogout = "session/logout"
)

const (
	loginPath  = "/api/v1/login"
	invitePath = "/api/v1/invites/accept"
)

// Handlers wires the action handlers to their collaborators.
type Handlers struct {
	client     api.Client
	dispatcher state.Dispatcher
	nav        *nav.Navigator
	manager    *session.Manager
}

// New returns handlers dispatching to d.
func New(client api.Client, d state.Dispatcher, navigator *nav.Navigator, manager *session.Manager) *Handlers {
	return &Handlers{
		client:     client,
		dispatcher: d,
		nav:        navigator,
		manager:    manager,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

// Login exchanges credentials for a token, stores it, and navigates to the
// return URL carried by the login route (or the app root).
func (h *Handlers) Login(ctx context.Context, email, password string) error {
	h.dispatcher.Dispatch(state.Action{Type: ActionLogin, Status: state.StatusStart})

	var resp tokenResponse
	if err := h.client.Post(ctx, loginPath, loginRequest{Email: email, Password: password}, &resp); err != nil {
		slog.Error("Login request failed", "error", err)
		h.dispatcher.Dispatch(state.Action{Type: ActionLogin, Status: state.StatusFail, Payload: api.ErrorText(err)})
		return err
	}

	tok := session.NewToken(resp.Token, resp.ExpiresIn, time.Now())
	if err := h.manager.SetToken(ctx, tok); err != nil {
		slog.Error("Failed to store token after login", "error", err)
	}
	event.SessionStarted()

	h.dispatcher.Dispatch(state.Action{Type: ActionLogin, Status: state.StatusSuccess})
	// The return URL came in through a query parameter; force it back onto
	// the application's own host before navigating.
	h.nav.Push(h.nav.EnsurePath(h.nav.ExtractRedirect(h.nav.Current())), false)
	return nil
}

type inviteRequest struct {
	InviteToken string `json:"invite_token"`
	Password    string `json:"password"`
}

// AcceptInvite redeems an invite token, then sends the user to the login
// view with the app root as the return URL.
func (h *Handlers) AcceptInvite(ctx context.Context, inviteToken, password string) error {
	h.dispatcher.Dispatch(state.Action{Type: ActionInvite, Status: state.StatusStart})

	if err := h.client.Post(ctx, invitePath, inviteRequest{InviteToken: inviteToken, Password: password}, nil); err != nil {
		slog.Error("Invite acceptance failed", "error", err)
		h.dispatcher.Dispatch(state.Action{Type: ActionInvite, Status: state.StatusFail, Payload: api.ErrorText(err)})
		return err
	}
	event.InviteAccepted()

	h.dispatcher.Dispatch(state.Action{Type: ActionInvite, Status: state.StatusSuccess})
	h.nav.Push(h.nav.CreateRedirect("/"), false)
	return nil
}

// Logout ends the session through the manager. The manager handles the
// server call, navigation, and state wipe; the dispatch always completes.
func (h *Handlers) Logout(ctx context.Context) {
	h.dispatcher.Dispatch(state.Action{Type: ActionLogout, Status: state.StatusStart})
	h.manager.Logout(ctx)
	h.dispatcher.Dispatch(state.Action{Type: ActionLogout, Status: state.StatusSuccess})
}

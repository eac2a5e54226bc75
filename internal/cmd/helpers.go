package cmd

import (
	"github.com/xinggaoya/websess/internal/app"
	"github.com/xinggaoya/websess/internal/state"
)

// lastFailureMessage returns the display message the handlers attached to
// the most recent failed action of the given type.
func lastFailureMessage(a *app.App, actionType string) string {
	act, ok := a.Dispatcher.Last(actionType)
	if !ok || act.Status != state.StatusFail {
		return "request failed"
	}
	if msg, ok := act.Payload.(string); ok && msg != "" {
		return msg
	}
	return "request failed"
}

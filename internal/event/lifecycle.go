package event

import (
	"time"
)

var keeperStartTime time.Time

func KeeperStarted() {
	keeperStartTime = time.Now()
	send("keeper started")
}

func KeeperStopped() {
	duration := time.Since(keeperStartTime).Truncate(time.Second)
	send(
		"keeper stopped",
		"keeper duration pretty", duration.String(),
		"keeper duration in seconds", int64(duration.Seconds()),
	)
	Flush()
}

func SessionStarted() {
	send("session started")
}

func TokenRenewed() {
	send("token renewed")
}

func RenewalFailed() {
	send("renewal failed")
}

func LogoutRequested() {
	send("logout requested")
}

// LogoutForced reports a logout the keeper decided on its own. reason is one
// of "renewal_failed", "server_rejected", or "cross_tab_clear".
func LogoutForced(reason string) {
	send("logout forced", "reason", reason)
}

func InviteAccepted() {
	send("invite accepted")
}

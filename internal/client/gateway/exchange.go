package gateway

import (
	"context"

	"github.com/jay/dadmail-client/internal/logging"
)

// phase is the position of one logical request in its lifecycle:
//
//	Sent -> Done
//	Sent -> AuthFailed -> Done                        (no refresh possible)
//	Sent -> AuthFailed -> Refreshing -> Done          (refresh exhausted)
//	Sent -> AuthFailed -> [Refreshing ->] Replayed -> Done
type phase int

const (
	phaseSent phase = iota
	phaseAuthFailed
	phaseRefreshing
	phaseReplayed
	phaseDone
)

func (p phase) String() string {
	switch p {
	case phaseSent:
		return "sent"
	case phaseAuthFailed:
		return "auth_failed"
	case phaseRefreshing:
		return "refreshing"
	case phaseReplayed:
		return "replayed"
	case phaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// exchange is one logical request. The encoded body is kept so a replay
// sends the same bytes.
type exchange struct {
	id    string
	req   Request
	body  []byte
	phase phase
	sends int
	log   logging.Logger
}

func (x *exchange) advance(ctx context.Context, next phase) {
	if next == x.phase {
		return
	}
	x.log.Debug(ctx, "exchange transition", "from", x.phase.String(), "to", next.String())
	x.phase = next
}

package peer

import (
	"github.com/samrock5000/nakamoto-cash/errors"
)

// HandshakeState tracks version negotiation progress for one connection.
// The states form a single forward path; any out-of-order event is a
// protocol violation rather than a silently tolerated reordering.
type HandshakeState uint8

const (
	// StateConnecting is the initial state before any version exchange.
	StateConnecting HandshakeState = iota

	// StateVersionSent means our version message is on the wire.
	StateVersionSent

	// StateVersionReceived means the remote version has arrived after ours
	// was sent.
	StateVersionReceived

	// StateReady means verack has been exchanged and chain-relevant
	// traffic is permitted.
	StateReady

	// StateDisconnected is terminal.
	StateDisconnected
)

func (s HandshakeState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateVersionSent:
		return "version-sent"
	case StateVersionReceived:
		return "version-received"
	case StateReady:
		return "ready"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// handshakeEvent is an input to the handshake state machine.
type handshakeEvent uint8

const (
	eventVersionSent handshakeEvent = iota
	eventVersionReceived
	eventVerAckReceived
	eventDisconnect
)

func (e handshakeEvent) String() string {
	switch e {
	case eventVersionSent:
		return "version-sent"
	case eventVersionReceived:
		return "version-received"
	case eventVerAckReceived:
		return "verack-received"
	case eventDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// transition is the single transition function for the handshake machine.
// Disconnect is accepted from any state; everything else must arrive in
// order.
func (s HandshakeState) transition(event handshakeEvent) (HandshakeState, error) {
	if event == eventDisconnect {
		return StateDisconnected, nil
	}

	switch {
	case s == StateConnecting && event == eventVersionSent:
		return StateVersionSent, nil
	case s == StateVersionSent && event == eventVersionReceived:
		return StateVersionReceived, nil
	case s == StateVersionReceived && event == eventVerAckReceived:
		return StateReady, nil
	default:
		return s, errors.NewProtocolError("handshake event %s not valid in state %s", event, s)
	}
}

package peer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samrock5000/nakamoto-cash/errors"
)

func TestHandshakeHappyPath(t *testing.T) {
	s := StateConnecting

	s, err := s.transition(eventVersionSent)
	require.NoError(t, err)
	assert.Equal(t, StateVersionSent, s)

	s, err = s.transition(eventVersionReceived)
	require.NoError(t, err)
	assert.Equal(t, StateVersionReceived, s)

	s, err = s.transition(eventVerAckReceived)
	require.NoError(t, err)
	assert.Equal(t, StateReady, s)
}

func TestHandshakeOutOfOrder(t *testing.T) {
	tests := []struct {
		name  string
		state HandshakeState
		event handshakeEvent
	}{
		{"verack before version", StateConnecting, eventVerAckReceived},
		{"version received before sent", StateConnecting, eventVersionReceived},
		{"verack before version received", StateVersionSent, eventVerAckReceived},
		{"duplicate version sent", StateVersionSent, eventVersionSent},
		{"event after ready", StateReady, eventVersionReceived},
		{"event after disconnect", StateDisconnected, eventVersionSent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := tt.state.transition(tt.event)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrProtocol))

			// An invalid event leaves the state unchanged.
			assert.Equal(t, tt.state, next)
		})
	}
}

func TestHandshakeDisconnectFromAnyState(t *testing.T) {
	for _, state := range []HandshakeState{StateConnecting, StateVersionSent, StateVersionReceived, StateReady} {
		next, err := state.transition(eventDisconnect)
		require.NoError(t, err)
		assert.Equal(t, StateDisconnected, next)
	}
}

package settings

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSettingsDefaults(t *testing.T) {
	s := NewSettings()
	require.NotNil(t, s)
	require.NotNil(t, s.ChainCfgParams)

	assert.Equal(t, 125, s.P2P.MaxPeers)
	assert.Equal(t, uint32(100), s.P2P.BanThreshold)
	assert.Equal(t, 24*time.Hour, s.P2P.BanDuration)
	assert.Equal(t, 30*time.Second, s.Sync.RequestTimeout)
	assert.Equal(t, 16, s.Sync.MaxBlocksInFlight)
	assert.Equal(t, 100, s.Sync.MaxReorgDepth)
	assert.Equal(t, 2000, s.Sync.MaxHeadersPerBatch)
}

func TestExcessiveMessageSizeAboveLegacyDefault(t *testing.T) {
	s := NewSettings()

	// The ceiling must be above the historical 32MiB limit so large-block
	// networks can be followed.
	assert.Greater(t, s.P2P.ExcessiveMessageSize, uint32(32*1024*1024))
}

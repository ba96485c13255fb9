package p2p

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samrock5000/nakamoto-cash/ulogger"
)

func newTestBanList(t *testing.T) *BanList {
	t.Helper()

	b := NewBanList(ulogger.TestLogger{})
	t.Cleanup(b.Stop)

	return b
}

func TestBanListAddAndCheck(t *testing.T) {
	b := newTestBanList(t)

	require.NoError(t, b.Add("192.168.1.10", time.Now().Add(time.Hour)))

	assert.True(t, b.IsBanned("192.168.1.10"))
	assert.False(t, b.IsBanned("192.168.1.11"))
}

func TestBanListSubnet(t *testing.T) {
	b := newTestBanList(t)

	require.NoError(t, b.Add("10.1.0.0/16", time.Now().Add(time.Hour)))

	assert.True(t, b.IsBanned("10.1.2.3"))
	assert.True(t, b.IsBanned("10.1.255.255"))
	assert.False(t, b.IsBanned("10.2.0.1"))
}

func TestBanListIPv6(t *testing.T) {
	b := newTestBanList(t)

	require.NoError(t, b.Add("2001:db8::1", time.Now().Add(time.Hour)))

	assert.True(t, b.IsBanned("2001:db8::1"))
	assert.False(t, b.IsBanned("2001:db8::2"))
}

func TestBanListExpiry(t *testing.T) {
	b := newTestBanList(t)

	require.NoError(t, b.Add("192.168.1.10", time.Now().Add(50*time.Millisecond)))
	assert.True(t, b.IsBanned("192.168.1.10"))

	require.Eventually(t, func() bool {
		return !b.IsBanned("192.168.1.10")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBanListRemove(t *testing.T) {
	b := newTestBanList(t)

	require.NoError(t, b.Add("192.168.1.10", time.Now().Add(time.Hour)))
	require.True(t, b.IsBanned("192.168.1.10"))

	require.NoError(t, b.Remove("192.168.1.10"))
	assert.False(t, b.IsBanned("192.168.1.10"))
}

func TestBanListInvalidInput(t *testing.T) {
	b := newTestBanList(t)

	assert.Error(t, b.Add("not-an-ip", time.Now().Add(time.Hour)))
	assert.Error(t, b.Add("10.0.0.0/99", time.Now().Add(time.Hour)))
	assert.Error(t, b.Add("192.168.1.10", time.Now().Add(-time.Hour)))

	assert.False(t, b.IsBanned("garbage"))
}

func TestBanListEvents(t *testing.T) {
	b := newTestBanList(t)
	events := b.Subscribe()

	require.NoError(t, b.Add("192.168.1.10", time.Now().Add(time.Hour)))

	select {
	case event := <-events:
		assert.Equal(t, "add", event.Action)
		assert.Equal(t, "192.168.1.10", event.Key)
	case <-time.After(time.Second):
		t.Fatal("no ban event received")
	}

	require.NoError(t, b.Remove("192.168.1.10"))

	select {
	case event := <-events:
		assert.Equal(t, "remove", event.Action)
	case <-time.After(time.Second):
		t.Fatal("no remove event received")
	}
}

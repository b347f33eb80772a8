package profile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestChatMuteActive(t *testing.T) {
	now := time.Now()

	var missing *ChatMute
	require.False(t, missing.Active(now))

	indefinite := &ChatMute{OwnerID: "bob", PeerID: "alice"}
	require.True(t, indefinite.Active(now))

	until := now.Add(time.Hour)
	timed := &ChatMute{OwnerID: "bob", PeerID: "alice", MutedUntil: &until}
	require.True(t, timed.Active(now))

	expired := now.Add(-time.Minute)
	lapsed := &ChatMute{OwnerID: "bob", PeerID: "alice", MutedUntil: &expired}
	require.False(t, lapsed.Active(now))
}

package media

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestChannelNameIsOrderIndependent(t *testing.T) {
	require.Equal(t, ChannelName("alice", "bob"), ChannelName("bob", "alice"))
	require.Equal(t, "call-alice-bob", ChannelName("bob", "alice"))
}

func TestChannelNameIncludes(t *testing.T) {
	name := ChannelName("alice", "bob")

	require.True(t, ChannelNameIncludes(name, "alice"))
	require.True(t, ChannelNameIncludes(name, "bob"))
	require.False(t, ChannelNameIncludes(name, "carol"))
	require.False(t, ChannelNameIncludes("dm-alice-bob", "alice"))
}

func TestChannelNameIncludesUUIDStyleIDs(t *testing.T) {
	a := "0b92cc1a-4f0e-4d2f-9a31-6a2a2c9f1d10"
	b := "ffca8e52-1d5c-49a8-8f48-27c31b7b9a01"
	name := ChannelName(a, b)

	require.True(t, ChannelNameIncludes(name, a))
	require.True(t, ChannelNameIncludes(name, b))
	require.False(t, ChannelNameIncludes(name, "0b92cc1a"))
}

func TestParticipantIDEmbedsJoinTime(t *testing.T) {
	joinedAt := time.UnixMilli(1700000000000)

	require.Equal(t, "alice-1700000000000", NewParticipantID("alice", joinedAt))
}

func TestIsGhost(t *testing.T) {
	stale := NewParticipantID("alice", time.UnixMilli(1700000000000))
	remote := NewParticipantID("bob", time.UnixMilli(1700000000500))

	require.True(t, IsGhost(stale, "alice"))
	require.False(t, IsGhost(remote, "alice"))
}

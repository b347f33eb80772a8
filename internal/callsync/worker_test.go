package callsync

import (
	"testing"

	"github.com/nestline/callsync/internal/callrecord"
	"github.com/nestline/callsync/internal/media"
	"github.com/stretchr/testify/require"
)

func TestRelevantCallChange(t *testing.T) {
	client := &Client{UserID: "alice"}

	require.True(t, client.relevantCallChange(&callrecord.CallAttempt{
		CallerID:   "alice",
		ReceiverID: "bob",
	}))

	require.True(t, client.relevantCallChange(&callrecord.CallAttempt{
		CallerID:   "bob",
		ReceiverID: "alice",
	}))

	require.False(t, client.relevantCallChange(&callrecord.CallAttempt{
		CallerID:   "bob",
		ReceiverID: "carol",
	}))
}

func TestRelevantCallChangeFallsBackToChannelName(t *testing.T) {
	client := &Client{UserID: "alice"}

	// Rows written before the caller/receiver columns existed carry only the
	// channel name.
	require.True(t, client.relevantCallChange(&callrecord.CallAttempt{
		ChannelName: media.ChannelName("alice", "bob"),
	}))

	require.False(t, client.relevantCallChange(&callrecord.CallAttempt{
		ChannelName: media.ChannelName("carol", "bob"),
	}))
}

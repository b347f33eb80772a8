package callrecord

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsTerminal(t *testing.T) {
	live := []Status{StatusPending, StatusRinging, StatusActive}
	for _, status := range live {
		require.False(t, status.IsTerminal(), string(status))
	}

	terminal := []Status{
		StatusEnded,
		StatusDeclined,
		StatusRejected,
		StatusMissed,
		StatusBusy,
		StatusCancelled,
	}
	for _, status := range terminal {
		require.True(t, status.IsTerminal(), string(status))
	}
}

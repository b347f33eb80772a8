package feed

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/nestline/callsync/internal/callrecord"
	"github.com/stretchr/testify/require"
)

func callRowJSON(t *testing.T, row callrecord.CallAttempt) []byte {
	t.Helper()

	raw, err := json.Marshal(&row)
	require.NoError(t, err)

	return raw
}

func TestDecodeEnvelopeAndCallChange(t *testing.T) {
	row := callrecord.CallAttempt{
		ID:          "call-1",
		CallerID:    "alice",
		ReceiverID:  "bob",
		Kind:        callrecord.KindAudio,
		Status:      callrecord.StatusPending,
		ChannelName: "call-alice-bob",
	}

	env := Envelope{
		Op:    OpInsert,
		Table: TableCalls,
		Row:   callRowJSON(t, row),
	}

	raw, err := json.Marshal(&env)
	require.NoError(t, err)

	decoded, err := DecodeEnvelope(raw)
	require.NoError(t, err)
	require.Equal(t, OpInsert, decoded.Op)

	change, err := DecodeCallChange(decoded)
	require.NoError(t, err)
	require.Equal(t, "call-1", change.Row.ID)
	require.Equal(t, callrecord.StatusPending, change.Row.Status)
}

func TestDecodeEnvelopeRejectsUnknownOp(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{"op":"delete","table":"calls","row":{}}`))
	require.Error(t, err)
}

func TestDecodeEnvelopeRejectsUnknownTable(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{"op":"insert","table":"experts","row":{}}`))
	require.Error(t, err)
}

func TestDecodeEnvelopeRejectsGarbage(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`not json`))
	require.Error(t, err)
}

func TestDecodeCallChangeRejectsWrongTable(t *testing.T) {
	env := &Envelope{Op: OpInsert, Table: TableMessages, Row: []byte(`{}`)}

	_, err := DecodeCallChange(env)
	require.Error(t, err)
}

func TestDecodeCallChangeRejectsInvalidRow(t *testing.T) {
	env := &Envelope{
		Op:    OpUpdate,
		Table: TableCalls,
		Row:   []byte(`{"id":"call-2"}`),
	}

	_, err := DecodeCallChange(env)
	require.Error(t, err)
}

func TestDecodeCallChangeRejectsUnknownKind(t *testing.T) {
	row := callrecord.CallAttempt{
		ID:         "call-3",
		CallerID:   "alice",
		ReceiverID: "bob",
		Kind:       "screen",
		Status:     callrecord.StatusPending,
	}

	env := &Envelope{Op: OpInsert, Table: TableCalls, Row: callRowJSON(t, row)}

	_, err := DecodeCallChange(env)
	require.Error(t, err)
}

package callsync

import (
	"context"

	"github.com/nestline/callsync/internal/callrecord"
	"github.com/nestline/callsync/internal/signal"
)

// StartCall places an outgoing call to partnerID. Returns signal.ErrBusy when
// a call is already in progress locally.
func (client *Client) StartCall(ctx context.Context, partnerID string, kind callrecord.Kind) error {
	return client.Reducer.StartCall(ctx, partnerID, kind)
}

// AnswerCall accepts the current incoming call and joins the media session.
func (client *Client) AnswerCall(ctx context.Context) error {
	return client.Reducer.AnswerCall(ctx)
}

// RejectCall declines the current incoming call. A non-empty reason is
// recorded as a threaded reply on the caller's chat log entry.
func (client *Client) RejectCall(ctx context.Context, reason string) error {
	return client.Reducer.RejectCall(ctx, reason)
}

// EndCallSession ends the current call with the given terminal status.
// Calling it with no call in progress is a no-op; durationSeconds zero means
// "measure from the local session clock".
func (client *Client) EndCallSession(ctx context.Context, status callrecord.Status, durationSeconds int) error {
	return client.Reducer.EndCallSession(ctx, status, durationSeconds)
}

// SetMuted toggles the local audio tracks of the active media session.
func (client *Client) SetMuted(muted bool) {
	client.Sessions.SetMuted(muted)
}

// State returns the current observable call state snapshot.
func (client *Client) State() signal.Snapshot {
	return client.Reducer.State()
}

// OnStateChange registers a callback invoked after every state transition.
// The callback runs outside the reducer lock and must not block.
func (client *Client) OnStateChange(handler func(signal.Snapshot)) {
	client.Reducer.SetChangeHandler(handler)
}

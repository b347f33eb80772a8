package media

import (
	"context"
)

// SessionHandlers receives remote-party events from the media SDK. Handler
// invocations may arrive on SDK-owned goroutines.
type SessionHandlers struct {
	OnRemotePublished   func(participantID string)
	OnRemoteUnpublished func(participantID string)
	OnRemoteLeft        func(participantID string)
}

// Track is a local capture handle (microphone or camera). It is exclusively
// owned by the session controller for one attempt's lifetime and must be
// closed on every exit path.
type Track interface {
	Kind() string
	Muted() bool
	SetMuted(muted bool)
	Close() error
}

// Session is one joined media channel.
type Session interface {
	Publish(ctx context.Context, tracks []Track) error
	Leave(ctx context.Context) error
}

// Adapter is the boundary to the external real-time media SDK. Everything
// beyond join/leave/publish/subscribe (capture, encode, transport) lives on
// the far side of this interface.
type Adapter interface {
	AcquireAudioTrack(ctx context.Context) (Track, error)
	AcquireVideoTrack(ctx context.Context) (Track, error)
	Join(ctx context.Context, appID, channelName, token, participantID string, handlers SessionHandlers) (Session, error)
}

package media

import (
	"context"
	"sync"
)

// Headless returns an Adapter that joins nothing and captures nothing. It
// keeps the signaling path runnable on machines with no media hardware, for
// soak runs against a real feed and database.
func Headless() Adapter {
	return headlessAdapter{}
}

type headlessAdapter struct{}

func (headlessAdapter) AcquireAudioTrack(_ context.Context) (Track, error) {
	return &headlessTrack{kind: "audio"}, nil
}

func (headlessAdapter) AcquireVideoTrack(_ context.Context) (Track, error) {
	return &headlessTrack{kind: "video"}, nil
}

func (headlessAdapter) Join(
	_ context.Context,
	_, _, _, _ string,
	_ SessionHandlers,
) (Session, error) {
	return headlessSession{}, nil
}

type headlessTrack struct {
	kind string

	mu    sync.Mutex
	muted bool
}

func (t *headlessTrack) Kind() string {
	return t.kind
}

func (t *headlessTrack) Muted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.muted
}

func (t *headlessTrack) SetMuted(muted bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.muted = muted
}

func (t *headlessTrack) Close() error {
	return nil
}

type headlessSession struct{}

func (headlessSession) Publish(_ context.Context, _ []Track) error {
	return nil
}

func (headlessSession) Leave(_ context.Context) error {
	return nil
}

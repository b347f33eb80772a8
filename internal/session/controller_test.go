package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nestline/callsync/internal/callrecord"
	"github.com/nestline/callsync/internal/media"
	"github.com/stretchr/testify/require"
)

type fakeTrack struct {
	kind string

	mu     sync.Mutex
	muted  bool
	closed bool
}

func (t *fakeTrack) Kind() string { return t.kind }

func (t *fakeTrack) Muted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.muted
}

func (t *fakeTrack) SetMuted(muted bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.muted = muted
}

func (t *fakeTrack) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true

	return nil
}

func (t *fakeTrack) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.closed
}

type fakeSession struct {
	mu        sync.Mutex
	published []media.Track
	left      bool

	// tracksClosedOnLeave records whether local tracks were already released
	// when Leave was invoked.
	tracksClosedOnLeave bool
}

func (s *fakeSession) Publish(_ context.Context, tracks []media.Track) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.published = tracks

	return nil
}

func (s *fakeSession) Leave(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.left = true

	s.tracksClosedOnLeave = true
	for _, track := range s.published {
		ft := track.(*fakeTrack)
		if !ft.isClosed() {
			s.tracksClosedOnLeave = false
		}
	}

	return nil
}

type fakeAdapter struct {
	mu       sync.Mutex
	audioErr error
	videoErr error
	joinErr  error
	session  *fakeSession
	handlers media.SessionHandlers
	tracks   []*fakeTrack
	joined   string
}

func (a *fakeAdapter) AcquireAudioTrack(_ context.Context) (media.Track, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.audioErr != nil {
		return nil, a.audioErr
	}

	track := &fakeTrack{kind: "audio"}
	a.tracks = append(a.tracks, track)

	return track, nil
}

func (a *fakeAdapter) AcquireVideoTrack(_ context.Context) (media.Track, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.videoErr != nil {
		return nil, a.videoErr
	}

	track := &fakeTrack{kind: "video"}
	a.tracks = append(a.tracks, track)

	return track, nil
}

func (a *fakeAdapter) Join(
	_ context.Context,
	_, channelName, _, participantID string,
	handlers media.SessionHandlers,
) (media.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.joinErr != nil {
		return nil, a.joinErr
	}

	a.session = &fakeSession{}
	a.handlers = handlers
	a.joined = channelName + "/" + participantID

	return a.session, nil
}

func audioAttempt(id string) *callrecord.CallAttempt {
	return &callrecord.CallAttempt{
		ID:          id,
		CallerID:    "alice",
		ReceiverID:  "bob",
		Kind:        callrecord.KindAudio,
		ChannelName: media.ChannelName("alice", "bob"),
	}
}

func TestStartPublishesAudioTrack(t *testing.T) {
	adapter := &fakeAdapter{}
	controller := NewController(adapter, "alice")

	status := controller.Start(context.Background(), audioAttempt("call-1"))
	require.Empty(t, status)
	require.True(t, controller.Active())

	require.Len(t, adapter.session.published, 1)
	require.Equal(t, "audio", adapter.session.published[0].Kind())
}

func TestStartVideoCallAcquiresBothTracks(t *testing.T) {
	adapter := &fakeAdapter{}
	controller := NewController(adapter, "alice")

	attempt := audioAttempt("call-2")
	attempt.Kind = callrecord.KindVideo

	status := controller.Start(context.Background(), attempt)
	require.Empty(t, status)
	require.Len(t, adapter.session.published, 2)
}

func TestStartContinuesWhenCaptureFails(t *testing.T) {
	adapter := &fakeAdapter{audioErr: errors.New("permission denied")}
	controller := NewController(adapter, "alice")

	status := controller.Start(context.Background(), audioAttempt("call-3"))

	// Media failure degrades the call, it does not abort signaling.
	require.Contains(t, status, "media unavailable")
	require.True(t, controller.Active())
	require.NotEmpty(t, adapter.joined)
}

func TestStartContinuesWhenJoinFails(t *testing.T) {
	adapter := &fakeAdapter{joinErr: errors.New("network unreachable")}
	controller := NewController(adapter, "alice")

	status := controller.Start(context.Background(), audioAttempt("call-4"))
	require.Equal(t, "media channel unavailable", status)
	require.True(t, controller.Active())
}

func TestTeardownMeasuresDurationFromLocalClock(t *testing.T) {
	adapter := &fakeAdapter{}
	controller := NewController(adapter, "alice")

	base := time.Now()
	controller.now = func() time.Time { return base }

	controller.Start(context.Background(), audioAttempt("call-5"))

	controller.now = func() time.Time { return base.Add(12 * time.Second) }

	duration := controller.Teardown(context.Background())
	require.Equal(t, 12, duration)
	require.False(t, controller.Active())
}

func TestTeardownReleasesTracksBeforeLeaving(t *testing.T) {
	adapter := &fakeAdapter{}
	controller := NewController(adapter, "alice")

	controller.Start(context.Background(), audioAttempt("call-6"))
	controller.Teardown(context.Background())

	require.True(t, adapter.session.left)
	require.True(t, adapter.session.tracksClosedOnLeave)

	for _, track := range adapter.tracks {
		require.True(t, track.isClosed())
	}
}

func TestTeardownIsIdempotent(t *testing.T) {
	adapter := &fakeAdapter{}
	controller := NewController(adapter, "alice")

	base := time.Now()
	controller.now = func() time.Time { return base }

	controller.Start(context.Background(), audioAttempt("call-7"))

	controller.now = func() time.Time { return base.Add(5 * time.Second) }

	require.Equal(t, 5, controller.Teardown(context.Background()))
	require.Equal(t, 0, controller.Teardown(context.Background()))
}

func TestSetMutedTogglesAudioOnly(t *testing.T) {
	adapter := &fakeAdapter{}
	controller := NewController(adapter, "alice")

	attempt := audioAttempt("call-8")
	attempt.Kind = callrecord.KindVideo

	controller.Start(context.Background(), attempt)

	controller.SetMuted(true)

	for _, track := range adapter.tracks {
		if track.Kind() == "audio" {
			require.True(t, track.Muted())
		} else {
			require.False(t, track.Muted())
		}
	}

	controller.SetMuted(false)

	for _, track := range adapter.tracks {
		require.False(t, track.Muted())
	}
}

func TestRemoteLeaveEndsCall(t *testing.T) {
	adapter := &fakeAdapter{}
	controller := NewController(adapter, "alice")

	ended := false
	controller.SetRemoteEndHandler(func() { ended = true })

	controller.Start(context.Background(), audioAttempt("call-9"))

	adapter.handlers.OnRemoteLeft(media.NewParticipantID("bob", time.Now()))
	require.True(t, ended)
}

func TestGhostLeaveIsIgnored(t *testing.T) {
	adapter := &fakeAdapter{}
	controller := NewController(adapter, "alice")

	ended := false
	controller.SetRemoteEndHandler(func() { ended = true })

	controller.Start(context.Background(), audioAttempt("call-10"))

	// A stale session of the local user leaving must not end the call.
	adapter.handlers.OnRemoteLeft(media.NewParticipantID("alice", time.Now().Add(-time.Minute)))
	require.False(t, ended)
}

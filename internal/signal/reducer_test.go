package signal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nestline/callsync/internal/callrecord"
	"github.com/nestline/callsync/internal/profile"
	"github.com/stretchr/testify/require"
)

type statusWrite struct {
	ID      string
	Updates map[string]any
}

type fakeRecords struct {
	mu        sync.Mutex
	created   []*callrecord.CallAttempt
	updates   []statusWrite
	createErr error
	updateErr error
}

func (f *fakeRecords) CreateAttempt(_ context.Context, attempt *callrecord.CallAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.created = append(f.created, attempt)

	return f.createErr
}

func (f *fakeRecords) UpdateAttempt(_ context.Context, id string, updates map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.updates = append(f.updates, statusWrite{ID: id, Updates: updates})

	return f.updateErr
}

func (f *fakeRecords) statusWrites(id string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var statuses []string

	for _, w := range f.updates {
		if w.ID == id {
			statuses = append(statuses, w.Updates["status"].(string))
		}
	}

	return statuses
}

type fakeProfiles struct {
	mu            sync.Mutex
	mute          *profile.ChatMute
	onProfileRead func()
}

func (f *fakeProfiles) GetProfileByID(_ context.Context, userID string) (*profile.Profile, error) {
	f.mu.Lock()
	hook := f.onProfileRead
	f.mu.Unlock()

	if hook != nil {
		hook()
	}

	return &profile.Profile{UserID: userID, DisplayName: "Someone"}, nil
}

func (f *fakeProfiles) GetMute(_ context.Context, _, _ string) (*profile.ChatMute, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.mute, nil
}

type loggedCall struct {
	CallID   string
	Status   callrecord.Status
	Duration int
	CallerID string
}

type fakeLogger struct {
	mu      sync.Mutex
	calls   []loggedCall
	replies []string
}

func (f *fakeLogger) LogCallMessage(
	callID string,
	status callrecord.Status,
	_ string,
	_ callrecord.Kind,
	duration int,
	callerID string,
) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, loggedCall{
		CallID:   callID,
		Status:   status,
		Duration: duration,
		CallerID: callerID,
	})
}

func (f *fakeLogger) ReplyToCallLog(_ context.Context, callID, _, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.replies = append(f.replies, body)

	return nil
}

type fakeSessions struct {
	mu        sync.Mutex
	starts    int
	teardowns int
	duration  int

	// optional single-use gate so a test can act while Start is in flight
	startEntered chan struct{}
	startRelease chan struct{}
}

func (f *fakeSessions) Start(_ context.Context, _ *callrecord.CallAttempt) string {
	f.mu.Lock()
	f.starts++
	entered := f.startEntered
	release := f.startRelease
	f.mu.Unlock()

	if entered != nil {
		close(entered)
	}

	if release != nil {
		<-release
	}

	return "ok"
}

func (f *fakeSessions) Teardown(_ context.Context) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.teardowns++

	return f.duration
}

type reducerFixture struct {
	reducer  *Reducer
	records  *fakeRecords
	profiles *fakeProfiles
	log      *fakeLogger
	sessions *fakeSessions
}

func newReducerFixture(t *testing.T, self string) *reducerFixture {
	t.Helper()

	records := &fakeRecords{}
	profiles := &fakeProfiles{}
	log := &fakeLogger{}
	sessions := &fakeSessions{}

	reducer := NewReducer(self, records, profiles, log, sessions)

	return &reducerFixture{
		reducer:  reducer,
		records:  records,
		profiles: profiles,
		log:      log,
		sessions: sessions,
	}
}

func pendingRow(id, callerID, receiverID string) callrecord.CallAttempt {
	return callrecord.CallAttempt{
		ID:         id,
		CallerID:   callerID,
		ReceiverID: receiverID,
		Kind:       callrecord.KindAudio,
		Status:     callrecord.StatusPending,
	}
}

func TestStartCallCreatesPendingAttempt(t *testing.T) {
	f := newReducerFixture(t, "alice")
	ctx := context.Background()

	err := f.reducer.StartCall(ctx, "bob", callrecord.KindVideo)
	require.NoError(t, err)

	require.Len(t, f.records.created, 1)
	attempt := f.records.created[0]
	require.Equal(t, "alice", attempt.CallerID)
	require.Equal(t, "bob", attempt.ReceiverID)
	require.Equal(t, callrecord.StatusPending, attempt.Status)
	require.Equal(t, callrecord.KindVideo, attempt.Kind)
	require.NotEmpty(t, attempt.ChannelName)

	require.Len(t, f.log.calls, 1)
	require.Equal(t, callrecord.StatusPending, f.log.calls[0].Status)

	require.True(t, f.reducer.State().IsCalling)
}

func TestStartCallWhileBusyFails(t *testing.T) {
	f := newReducerFixture(t, "alice")
	ctx := context.Background()

	require.NoError(t, f.reducer.StartCall(ctx, "bob", callrecord.KindAudio))

	err := f.reducer.StartCall(ctx, "carol", callrecord.KindAudio)
	require.ErrorIs(t, err, ErrBusy)
	require.Len(t, f.records.created, 1)
}

func TestStartCallStoreFailureKeepsLocalState(t *testing.T) {
	f := newReducerFixture(t, "alice")
	f.records.createErr = errors.New("connection refused")

	err := f.reducer.StartCall(context.Background(), "bob", callrecord.KindAudio)
	require.NoError(t, err)
	require.True(t, f.reducer.State().IsCalling)
	require.Len(t, f.log.calls, 1)
}

func TestInboundPendingRings(t *testing.T) {
	f := newReducerFixture(t, "bob")
	ctx := context.Background()

	f.reducer.handleInboundPending(ctx, pendingRow("call-1", "alice", "bob"))

	snap := f.reducer.State()
	require.NotNil(t, snap.Incoming)
	require.Equal(t, "call-1", snap.Incoming.Attempt.ID)
	require.Equal(t, "Someone", snap.Incoming.CallerProfile.DisplayName)

	require.Equal(t, []string{"ringing"}, f.records.statusWrites("call-1"))
	require.Empty(t, f.log.calls)
}

func TestInboundPendingWhileBusyWritesBusy(t *testing.T) {
	f := newReducerFixture(t, "bob")
	ctx := context.Background()

	require.NoError(t, f.reducer.StartCall(ctx, "carol", callrecord.KindAudio))

	f.reducer.handleInboundPending(ctx, pendingRow("call-2", "alice", "bob"))

	require.Equal(t, []string{"busy"}, f.records.statusWrites("call-2"))
	require.Nil(t, f.reducer.State().Incoming)
	require.True(t, f.reducer.State().IsCalling)
}

func TestInboundPendingDuplicateDeliveryIsNoop(t *testing.T) {
	f := newReducerFixture(t, "bob")
	ctx := context.Background()

	row := pendingRow("call-1", "alice", "bob")
	f.reducer.handleInboundPending(ctx, row)
	f.reducer.handleInboundPending(ctx, row)

	require.Equal(t, []string{"ringing"}, f.records.statusWrites("call-1"))
	require.NotNil(t, f.reducer.State().Incoming)
}

func TestInboundPendingBusyRaceAfterProfileFetch(t *testing.T) {
	f := newReducerFixture(t, "bob")
	ctx := context.Background()

	// Local user places an outgoing call while the caller profile is being
	// fetched for the inbound one.
	f.profiles.onProfileRead = func() {
		require.NoError(t, f.reducer.StartCall(ctx, "carol", callrecord.KindAudio))
	}

	f.reducer.handleInboundPending(ctx, pendingRow("call-3", "alice", "bob"))

	require.Equal(t, []string{"busy"}, f.records.statusWrites("call-3"))
	require.Nil(t, f.reducer.State().Incoming)
}

func TestInboundPendingSuppressedByMute(t *testing.T) {
	f := newReducerFixture(t, "bob")
	f.profiles.mute = &profile.ChatMute{OwnerID: "bob", PeerID: "alice"}

	f.reducer.handleInboundPending(context.Background(), pendingRow("call-4", "alice", "bob"))

	// Soft drop: no ringing, no busy, caller times out on its own.
	require.Empty(t, f.records.updates)
	require.Nil(t, f.reducer.State().Incoming)
}

func TestTombstoneSuppressesLatePendingInsert(t *testing.T) {
	f := newReducerFixture(t, "bob")
	ctx := context.Background()

	ended := pendingRow("call-5", "alice", "bob")
	ended.Status = callrecord.StatusCancelled

	// Terminal update arrives before the insert it belongs to.
	f.reducer.handleUpdate(ctx, ended)
	f.reducer.handleInboundPending(ctx, pendingRow("call-5", "alice", "bob"))

	require.Empty(t, f.records.updates)
	require.Nil(t, f.reducer.State().Incoming)
}

func TestRingTimeoutMarksMissedOnce(t *testing.T) {
	f := newReducerFixture(t, "bob")
	f.reducer.ringTimeout = 10 * time.Millisecond

	f.reducer.handleInboundPending(context.Background(), pendingRow("call-6", "alice", "bob"))
	require.NotNil(t, f.reducer.State().Incoming)

	require.Eventually(t, func() bool {
		return f.reducer.State().Incoming == nil
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, []string{"ringing", "missed"}, f.records.statusWrites("call-6"))

	// A second firing would find no incoming state and do nothing.
	f.reducer.onRingTimeout("call-6")
	require.Equal(t, []string{"ringing", "missed"}, f.records.statusWrites("call-6"))
}

func TestAnswerCallActivatesSession(t *testing.T) {
	f := newReducerFixture(t, "bob")
	ctx := context.Background()

	f.reducer.handleInboundPending(ctx, pendingRow("call-7", "alice", "bob"))

	err := f.reducer.AnswerCall(ctx)
	require.NoError(t, err)

	snap := f.reducer.State()
	require.Nil(t, snap.Incoming)
	require.NotNil(t, snap.Active)
	require.True(t, snap.Active.IsIncoming)
	require.Equal(t, "ok", snap.MediaStatus)
	require.Equal(t, 1, f.sessions.starts)

	var answered *statusWrite

	for i := range f.records.updates {
		if f.records.updates[i].ID == "call-7" && f.records.updates[i].Updates["status"] == "active" {
			answered = &f.records.updates[i]
		}
	}

	require.NotNil(t, answered)
	require.NotNil(t, answered.Updates["started_at"])

	// The receiver never writes the chat log.
	require.Empty(t, f.log.calls)
}

func TestAnswerCallWithoutIncomingFails(t *testing.T) {
	f := newReducerFixture(t, "bob")

	err := f.reducer.AnswerCall(context.Background())
	require.ErrorIs(t, err, ErrNoIncomingCall)
}

func TestRejectCallWithoutReasonDeclines(t *testing.T) {
	f := newReducerFixture(t, "bob")
	ctx := context.Background()

	f.reducer.handleInboundPending(ctx, pendingRow("call-8", "alice", "bob"))

	require.NoError(t, f.reducer.RejectCall(ctx, ""))

	require.Equal(t, []string{"ringing", "declined"}, f.records.statusWrites("call-8"))
	require.Empty(t, f.log.replies)
	require.Nil(t, f.reducer.State().Incoming)
}

func TestRejectCallWithReasonPostsReply(t *testing.T) {
	f := newReducerFixture(t, "bob")
	ctx := context.Background()

	f.reducer.handleInboundPending(ctx, pendingRow("call-9", "alice", "bob"))

	require.NoError(t, f.reducer.RejectCall(ctx, "in a meeting"))

	require.Equal(t, []string{"ringing", "rejected"}, f.records.statusWrites("call-9"))
	require.Equal(t, []string{"in a meeting"}, f.log.replies)
}

func TestEndCallSessionWithNoCallIsNoop(t *testing.T) {
	f := newReducerFixture(t, "alice")

	err := f.reducer.EndCallSession(context.Background(), callrecord.StatusEnded, 0)
	require.NoError(t, err)
	require.Empty(t, f.records.updates)
	require.Zero(t, f.sessions.teardowns)
}

func TestEndActiveCallUsesLocalDuration(t *testing.T) {
	f := newReducerFixture(t, "alice")
	ctx := context.Background()
	f.sessions.duration = 12

	require.NoError(t, f.reducer.StartCall(ctx, "bob", callrecord.KindAudio))
	callID := f.records.created[0].ID

	active := *f.records.created[0]
	active.Status = callrecord.StatusActive
	f.reducer.handleUpdate(ctx, active)

	require.NotNil(t, f.reducer.State().Active)
	require.Equal(t, 1, f.sessions.starts)

	require.NoError(t, f.reducer.EndCallSession(ctx, callrecord.StatusEnded, 0))

	require.Equal(t, 1, f.sessions.teardowns)

	last := f.records.updates[len(f.records.updates)-1]
	require.Equal(t, callID, last.ID)
	require.Equal(t, "ended", last.Updates["status"])
	require.Equal(t, 12, last.Updates["duration_seconds"])
	require.NotNil(t, last.Updates["ended_at"])

	// Caller side freezes the log entry.
	frozen := f.log.calls[len(f.log.calls)-1]
	require.Equal(t, callrecord.StatusEnded, frozen.Status)
	require.Equal(t, 12, frozen.Duration)

	require.Nil(t, f.reducer.State().Active)
}

func TestEndCallSessionIsIdempotent(t *testing.T) {
	f := newReducerFixture(t, "alice")
	ctx := context.Background()

	require.NoError(t, f.reducer.StartCall(ctx, "bob", callrecord.KindAudio))
	callID := f.records.created[0].ID

	require.NoError(t, f.reducer.EndCallSession(ctx, callrecord.StatusCancelled, 0))
	require.NoError(t, f.reducer.EndCallSession(ctx, callrecord.StatusCancelled, 0))

	require.Equal(t, []string{"cancelled"}, f.records.statusWrites(callID))
}

func TestCallerObservesTerminalUpdate(t *testing.T) {
	f := newReducerFixture(t, "alice")
	ctx := context.Background()

	require.NoError(t, f.reducer.StartCall(ctx, "bob", callrecord.KindAudio))
	callID := f.records.created[0].ID

	declined := *f.records.created[0]
	declined.Status = callrecord.StatusDeclined
	f.reducer.handleUpdate(ctx, declined)

	require.False(t, f.reducer.State().IsCalling)
	require.Equal(t, []string{"declined"}, f.records.statusWrites(callID))

	frozen := f.log.calls[len(f.log.calls)-1]
	require.Equal(t, callrecord.StatusDeclined, frozen.Status)
}

func TestIncomingWithdrawnByCaller(t *testing.T) {
	f := newReducerFixture(t, "bob")
	ctx := context.Background()

	f.reducer.handleInboundPending(ctx, pendingRow("call-10", "alice", "bob"))

	cancelled := pendingRow("call-10", "alice", "bob")
	cancelled.Status = callrecord.StatusCancelled
	f.reducer.handleUpdate(ctx, cancelled)

	require.Nil(t, f.reducer.State().Incoming)
	// The caller already wrote the terminal status; the receiver does not.
	require.Equal(t, []string{"ringing"}, f.records.statusWrites("call-10"))
}

func TestActiveCallEndedRemotely(t *testing.T) {
	f := newReducerFixture(t, "bob")
	ctx := context.Background()

	f.reducer.handleInboundPending(ctx, pendingRow("call-11", "alice", "bob"))
	require.NoError(t, f.reducer.AnswerCall(ctx))

	ended := pendingRow("call-11", "alice", "bob")
	ended.Status = callrecord.StatusEnded
	ended.DurationSeconds = 30
	f.reducer.handleUpdate(ctx, ended)

	require.Nil(t, f.reducer.State().Active)
	require.Equal(t, 1, f.sessions.teardowns)

	// Receiver side: status write happens, chat log stays caller-owned.
	require.Empty(t, f.log.calls)
}

func TestCallerTimesOutWithoutAcknowledgement(t *testing.T) {
	f := newReducerFixture(t, "alice")
	f.reducer.ringTimeout = 10 * time.Millisecond

	// Receiver is offline or muting: no event ever comes back on the feed.
	require.NoError(t, f.reducer.StartCall(context.Background(), "bob", callrecord.KindAudio))
	callID := f.records.created[0].ID

	require.Eventually(t, func() bool {
		writes := f.records.statusWrites(callID)
		return len(writes) == 1 && writes[0] == "missed"
	}, time.Second, 5*time.Millisecond)

	require.False(t, f.reducer.State().IsCalling)

	require.Eventually(t, func() bool {
		f.log.mu.Lock()
		defer f.log.mu.Unlock()

		return len(f.log.calls) == 2 && f.log.calls[1].Status == callrecord.StatusMissed
	}, time.Second, 5*time.Millisecond)
}

func TestCallerTimeoutIsNoopAfterAnswer(t *testing.T) {
	f := newReducerFixture(t, "alice")
	ctx := context.Background()

	require.NoError(t, f.reducer.StartCall(ctx, "bob", callrecord.KindAudio))
	callID := f.records.created[0].ID

	active := *f.records.created[0]
	active.Status = callrecord.StatusActive
	f.reducer.handleUpdate(ctx, active)

	f.reducer.onCallerTimeout(callID)

	require.NotNil(t, f.reducer.State().Active)
	require.Empty(t, f.records.statusWrites(callID))
}

func TestCancelDuringAnswerStillEndsCall(t *testing.T) {
	f := newReducerFixture(t, "bob")
	ctx := context.Background()

	f.sessions.startEntered = make(chan struct{})
	f.sessions.startRelease = make(chan struct{})

	f.reducer.handleInboundPending(ctx, pendingRow("call-12", "alice", "bob"))

	answerDone := make(chan error, 1)

	go func() {
		answerDone <- f.reducer.AnswerCall(ctx)
	}()

	<-f.sessions.startEntered

	// Caller hangs up while the answer is still bringing up media.
	cancelled := pendingRow("call-12", "alice", "bob")
	cancelled.Status = callrecord.StatusCancelled
	f.reducer.handleUpdate(ctx, cancelled)

	close(f.sessions.startRelease)
	require.NoError(t, <-answerDone)

	require.Nil(t, f.reducer.State().Active)
	require.Equal(t, 1, f.sessions.teardowns)
	require.Equal(t, []string{"ringing", "active", "cancelled"}, f.records.statusWrites("call-12"))
}

func TestChangeHandlerRegistrationDuringEvents(t *testing.T) {
	f := newReducerFixture(t, "bob")

	done := make(chan struct{})

	go func() {
		defer close(done)

		f.reducer.handleInboundPending(context.Background(), pendingRow("call-13", "alice", "bob"))
	}()

	f.reducer.SetChangeHandler(func(Snapshot) {})

	<-done
	require.NotNil(t, f.reducer.State().Incoming)
}

func TestStateChangeHandlerFires(t *testing.T) {
	f := newReducerFixture(t, "alice")

	var (
		mu        sync.Mutex
		snapshots []Snapshot
	)

	f.reducer.SetChangeHandler(func(s Snapshot) {
		mu.Lock()
		defer mu.Unlock()

		snapshots = append(snapshots, s)
	})

	require.NoError(t, f.reducer.StartCall(context.Background(), "bob", callrecord.KindAudio))

	mu.Lock()
	defer mu.Unlock()

	require.NotEmpty(t, snapshots)
	require.True(t, snapshots[len(snapshots)-1].IsCalling)
}

package signal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nestline/callsync/internal/callrecord"
	"github.com/nestline/callsync/internal/config"
	"github.com/nestline/callsync/internal/feed"
	"github.com/nestline/callsync/internal/logging"
	"github.com/nestline/callsync/internal/media"
	"github.com/nestline/callsync/internal/profile"
	"github.com/nestline/callsync/internal/prometheus"
	"go.uber.org/zap"
)

const storeWriteTimeout = 10 * time.Second

var (
	ErrBusy           = errors.New("another call attempt is already in progress")
	ErrNoIncomingCall = errors.New("no incoming call to act on")
)

// RecordStore is the calls-table surface the reducer needs.
type RecordStore interface {
	CreateAttempt(ctx context.Context, attempt *callrecord.CallAttempt) error
	UpdateAttempt(ctx context.Context, id string, updates map[string]any) error
}

// ProfileStore resolves caller profiles and the local user's mute policy.
type ProfileStore interface {
	GetProfileByID(ctx context.Context, userID string) (*profile.Profile, error)
	GetMute(ctx context.Context, ownerID, peerID string) (*profile.ChatMute, error)
}

// CallLogger is the chat-log surface. LogCallMessage is fire-and-forget; the
// writer serializes and deduplicates behind it.
type CallLogger interface {
	LogCallMessage(callID string, status callrecord.Status, partnerID string, kind callrecord.Kind, duration int, callerID string)
	ReplyToCallLog(ctx context.Context, callID, partnerID, body string) error
}

// SessionManager drives the media-session lifecycle on Active transitions.
type SessionManager interface {
	Start(ctx context.Context, attempt *callrecord.CallAttempt) string
	Teardown(ctx context.Context) int
}

// Reducer owns the per-attempt call state machine for one client. It consumes
// local user intents and change-feed events, deduplicates races via the
// tombstone set and status checks, and drives the ring timeout. Every store
// call is a suspension point: the relevant local state is re-validated after
// each one rather than assumed fresh.
type Reducer struct {
	Self     string
	Records  RecordStore
	Profiles ProfileStore
	Log      CallLogger
	Sessions SessionManager

	mu          sync.Mutex
	state       localState
	tombstones  tombstoneSet
	guard       bool
	pendingEnd  *pendingTerminal
	ringTimer   *time.Timer
	mediaStatus string

	ringTimeout time.Duration
	now         func() time.Time
	onChange    func(Snapshot)
}

func NewReducer(
	self string,
	records RecordStore,
	profiles ProfileStore,
	log CallLogger,
	sessions SessionManager,
) *Reducer {
	return &Reducer{
		Self:        self,
		Records:     records,
		Profiles:    profiles,
		Log:         log,
		Sessions:    sessions,
		tombstones:  make(tombstoneSet),
		ringTimeout: time.Duration(config.Conf.RingTimeoutSeconds) * time.Second,
		now:         time.Now,
	}
}

// SetChangeHandler registers the observable-state callback. It is invoked
// outside the reducer lock after every transition.
func (r *Reducer) SetChangeHandler(handler func(Snapshot)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.onChange = handler
}

// State returns the current observable snapshot.
func (r *Reducer) State() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.snapshotLocked()
}

// StartCall creates a new outbound attempt. Rejected locally when this client
// is already busy. The store write proceeds optimistically: a failed create
// is logged but local state still shows Calling.
func (r *Reducer) StartCall(ctx context.Context, partnerID string, kind callrecord.Kind) error {
	r.mu.Lock()
	if r.state.Busy() {
		r.mu.Unlock()
		return ErrBusy
	}

	now := r.now()

	attempt := &callrecord.CallAttempt{
		ID:          uuid.New().String(),
		CallerID:    r.Self,
		ReceiverID:  partnerID,
		Kind:        kind,
		Status:      callrecord.StatusPending,
		ChannelName: media.ChannelName(r.Self, partnerID),
		CreatedAt:   &now,
	}

	r.state.Outgoing = attempt

	// A receiver that is offline, crashed, or muting this caller never
	// acknowledges, so the caller bounds the indeterminate state itself.
	attemptID := attempt.ID
	r.ringTimer = time.AfterFunc(r.ringTimeout, func() {
		r.onCallerTimeout(attemptID)
	})
	r.mu.Unlock()

	err := r.Records.CreateAttempt(ctx, attempt)
	if err != nil {
		logging.Logger.Error("failed to create call attempt, proceeding with local state",
			zap.String("call_id", attempt.ID),
			zap.String("error", err.Error()),
		)
	}

	r.Log.LogCallMessage(attempt.ID, callrecord.StatusPending, partnerID, kind, 0, r.Self)

	logging.Logger.Info("outbound call started",
		zap.String("call_id", attempt.ID),
		zap.String("receiver_id", partnerID),
		zap.String("call_kind", string(kind)),
	)

	r.notify()

	return nil
}

// AnswerCall accepts the current incoming call: clears the ring timer, writes
// active + started_at, and brings up the media session. The receiver side
// never writes the chat log.
func (r *Reducer) AnswerCall(ctx context.Context) error {
	r.mu.Lock()
	if r.guard {
		r.mu.Unlock()
		return nil
	}

	incoming := r.state.Incoming
	if incoming == nil {
		r.mu.Unlock()
		return ErrNoIncomingCall
	}

	r.guard = true

	r.stopRingTimerLocked()
	r.state.Incoming = nil

	attempt := incoming.Attempt
	attempt.Status = callrecord.StatusActive

	r.state.Active = &ActiveCall{
		Attempt:    attempt,
		Partner:    incoming.CallerProfile,
		IsIncoming: true,
	}
	r.mu.Unlock()

	startedAt := r.now()

	prometheus.RingDuration.Observe(startedAt.Sub(incoming.RingStartedAt).Seconds())

	err := r.Records.UpdateAttempt(ctx, attempt.ID, map[string]any{
		"status":     string(callrecord.StatusActive),
		"started_at": &startedAt,
	})
	if err != nil {
		logging.Logger.Error("failed to write answer, proceeding with local state",
			zap.String("call_id", attempt.ID),
			zap.String("error", err.Error()),
		)
	}

	mediaStatus := r.Sessions.Start(ctx, &attempt)

	r.mu.Lock()
	r.mediaStatus = mediaStatus
	r.guard = false
	pending := r.pendingEnd
	r.pendingEnd = nil
	r.mu.Unlock()

	// The other side hung up while the answer was in flight.
	if pending != nil {
		return r.EndCallSession(ctx, pending.Status, pending.Duration)
	}

	r.notify()

	return nil
}

// RejectCall declines the current incoming call. With a reason, the attempt
// is marked rejected and the reason is posted as a reply to the caller's log
// entry; without one it is marked declined. A failed store write still clears
// the local incoming-call state.
func (r *Reducer) RejectCall(ctx context.Context, reason string) error {
	r.mu.Lock()
	if r.guard {
		r.mu.Unlock()
		return nil
	}

	incoming := r.state.Incoming
	if incoming == nil {
		r.mu.Unlock()
		return ErrNoIncomingCall
	}

	r.guard = true

	r.stopRingTimerLocked()
	r.state.Incoming = nil
	r.mu.Unlock()

	status := callrecord.StatusDeclined
	if reason != "" {
		status = callrecord.StatusRejected
	}

	r.writeStatus(ctx, incoming.Attempt.ID, status, 0)

	prometheus.CallOutcomes.WithLabelValues(string(status)).Inc()

	if reason != "" {
		err := r.Log.ReplyToCallLog(ctx, incoming.Attempt.ID, incoming.Attempt.CallerID, reason)
		if err != nil {
			logging.Logger.Warn("failed to post reject reason",
				zap.String("call_id", incoming.Attempt.ID),
				zap.String("error", err.Error()),
			)
		}
	}

	r.mu.Lock()
	r.guard = false
	r.mu.Unlock()

	r.notify()

	return nil
}

// EndCallSession drives the current attempt to the given terminal status.
// Safe to invoke from local hangup, a remote-left media event, or an observed
// terminal update; only the first invocation per attempt performs the
// repository write and log freeze. durationSeconds is authoritative when
// non-zero, otherwise the session controller's locally measured duration is
// used.
func (r *Reducer) EndCallSession(ctx context.Context, status callrecord.Status, durationSeconds int) error {
	r.mu.Lock()
	if r.guard {
		// A guarded intent is mid-flight. The terminal transition must not be
		// lost (the feed has already acknowledged the event), so park it for
		// the intent to apply on completion.
		if attempt, _ := r.currentAttemptLocked(); attempt != nil {
			r.pendingEnd = &pendingTerminal{Status: status, Duration: durationSeconds}
		}
		r.mu.Unlock()

		return nil
	}

	attempt, wasActive := r.currentAttemptLocked()
	if attempt == nil {
		r.mu.Unlock()
		return nil
	}

	r.guard = true

	r.stopRingTimerLocked()
	r.state.clear()
	r.pendingEnd = nil
	r.mediaStatus = ""

	isCaller := attempt.CallerID == r.Self
	r.mu.Unlock()

	if wasActive {
		localDuration := r.Sessions.Teardown(ctx)
		if durationSeconds == 0 {
			durationSeconds = localDuration
		}
	}

	r.writeStatus(ctx, attempt.ID, status, durationSeconds)

	if isCaller {
		r.Log.LogCallMessage(attempt.ID, status, attempt.ReceiverID, attempt.Kind, durationSeconds, attempt.CallerID)
	}

	prometheus.CallOutcomes.WithLabelValues(string(status)).Inc()

	logging.Logger.Info("call reached terminal status",
		zap.String("call_id", attempt.ID),
		zap.String("status", string(status)),
		zap.Int("duration_seconds", durationSeconds),
	)

	r.mu.Lock()
	r.guard = false
	r.mu.Unlock()

	r.notify()

	return nil
}

// HandleCallChange reduces one change-feed event. Events may be duplicated or
// arrive in any order; every branch is guarded so redelivery is a no-op.
func (r *Reducer) HandleCallChange(ctx context.Context, change *feed.CallChange) {
	switch change.Op {
	case feed.OpInsert:
		if change.Row.ReceiverID == r.Self && change.Row.Status == callrecord.StatusPending {
			r.handleInboundPending(ctx, change.Row)
		}
	case feed.OpUpdate:
		r.handleUpdate(ctx, change.Row)
	}
}

func (r *Reducer) handleInboundPending(ctx context.Context, row callrecord.CallAttempt) {
	r.mu.Lock()
	if r.tombstones.consume(row.ID) {
		r.mu.Unlock()

		logging.Logger.Debug("suppressed stale pending insert",
			zap.String("call_id", row.ID),
		)

		return
	}

	if r.state.Busy() {
		duplicate := r.currentAttemptIDLocked() == row.ID
		r.mu.Unlock()

		// Redelivered insert for the attempt already on screen: no-op.
		if !duplicate {
			r.writeStatus(ctx, row.ID, callrecord.StatusBusy, 0)
		}

		return
	}
	r.mu.Unlock()

	mute, err := r.Profiles.GetMute(ctx, r.Self, row.CallerID)
	if err != nil {
		logging.Logger.Warn("failed to read mute policy",
			zap.String("call_id", row.ID),
			zap.String("error", err.Error()),
		)
	}

	if mute.Active(r.now()) {
		// Soft drop: no acknowledgement, the caller times out naturally.
		logging.Logger.Info("inbound call suppressed by mute policy",
			zap.String("call_id", row.ID),
			zap.String("caller_id", row.CallerID),
		)

		return
	}

	callerProfile, err := r.Profiles.GetProfileByID(ctx, row.CallerID)
	if err != nil {
		logging.Logger.Warn("ringing without caller profile",
			zap.String("call_id", row.ID),
			zap.String("caller_id", row.CallerID),
			zap.String("error", err.Error()),
		)
	}

	r.mu.Lock()
	// The profile fetch suspended us; local state may have changed underneath.
	if r.tombstones.consume(row.ID) {
		r.mu.Unlock()
		return
	}

	if r.state.Busy() {
		duplicate := r.currentAttemptIDLocked() == row.ID
		r.mu.Unlock()

		if !duplicate {
			r.writeStatus(ctx, row.ID, callrecord.StatusBusy, 0)
		}

		return
	}

	r.state.Incoming = &IncomingCall{
		Attempt:       row,
		CallerProfile: callerProfile,
		RingStartedAt: r.now(),
	}

	attemptID := row.ID
	r.ringTimer = time.AfterFunc(r.ringTimeout, func() {
		r.onRingTimeout(attemptID)
	})
	r.mu.Unlock()

	r.writeStatus(ctx, row.ID, callrecord.StatusRinging, 0)

	logging.Logger.Info("inbound call ringing",
		zap.String("call_id", row.ID),
		zap.String("caller_id", row.CallerID),
		zap.String("call_kind", string(row.Kind)),
	)

	r.notify()
}

func (r *Reducer) handleUpdate(ctx context.Context, row callrecord.CallAttempt) {
	r.mu.Lock()

	switch {
	case r.state.Outgoing != nil && r.state.Outgoing.ID == row.ID:
		r.mu.Unlock()
		r.handleOutgoingUpdate(ctx, row)

	case r.state.Active != nil && r.state.Active.Attempt.ID == row.ID:
		r.mu.Unlock()

		if row.Status.IsTerminal() {
			_ = r.EndCallSession(ctx, row.Status, row.DurationSeconds)
		}

	case r.state.Incoming != nil && r.state.Incoming.Attempt.ID == row.ID:
		if !row.Status.IsTerminal() {
			r.mu.Unlock()
			return
		}

		// Caller gave up before we answered.
		r.stopRingTimerLocked()
		r.state.Incoming = nil
		r.mu.Unlock()

		prometheus.CallOutcomes.WithLabelValues(string(row.Status)).Inc()

		logging.Logger.Info("incoming call withdrawn by caller",
			zap.String("call_id", row.ID),
			zap.String("status", string(row.Status)),
		)

		r.notify()

	default:
		// Not ours to display. Remember terminal outcomes addressed to us so
		// a late-arriving pending insert for the same attempt is suppressed.
		if row.Status.IsTerminal() && row.ReceiverID == r.Self {
			r.tombstones.add(row.ID)
		}
		r.mu.Unlock()
	}
}

func (r *Reducer) handleOutgoingUpdate(ctx context.Context, row callrecord.CallAttempt) {
	switch {
	case row.Status == callrecord.StatusRinging:
		r.notify()

	case row.Status == callrecord.StatusActive:
		r.mu.Lock()
		if r.state.Outgoing == nil || r.state.Outgoing.ID != row.ID {
			r.mu.Unlock()
			return
		}

		r.stopRingTimerLocked()
		r.state.Outgoing = nil
		r.state.Active = &ActiveCall{
			Attempt:    row,
			IsIncoming: false,
		}
		r.mu.Unlock()

		mediaStatus := r.Sessions.Start(ctx, &row)

		r.mu.Lock()
		r.mediaStatus = mediaStatus
		r.mu.Unlock()

		logging.Logger.Info("outbound call answered",
			zap.String("call_id", row.ID),
		)

		r.notify()

	case row.Status.IsTerminal():
		_ = r.EndCallSession(ctx, row.Status, row.DurationSeconds)
	}
}

// onRingTimeout fires once per ring timer. The state check makes redelivery
// after an answer, reject, or cancel a no-op.
func (r *Reducer) onRingTimeout(attemptID string) {
	r.mu.Lock()
	incoming := r.state.Incoming
	if incoming == nil || incoming.Attempt.ID != attemptID {
		r.mu.Unlock()
		return
	}

	r.state.Incoming = nil
	r.ringTimer = nil
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), storeWriteTimeout)
	defer cancel()

	r.writeStatus(ctx, attemptID, callrecord.StatusMissed, 0)

	prometheus.CallOutcomes.WithLabelValues(string(callrecord.StatusMissed)).Inc()

	logging.Logger.Info("incoming call missed",
		zap.String("call_id", attemptID),
	)

	r.notify()
}

// onCallerTimeout fires once per outbound attempt that was never answered,
// declined, or marked busy. The state check makes it a no-op after any
// observed transition.
func (r *Reducer) onCallerTimeout(attemptID string) {
	r.mu.Lock()
	outgoing := r.state.Outgoing
	if outgoing == nil || outgoing.ID != attemptID {
		r.mu.Unlock()
		return
	}

	r.state.Outgoing = nil
	r.ringTimer = nil

	receiverID := outgoing.ReceiverID
	kind := outgoing.Kind
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), storeWriteTimeout)
	defer cancel()

	r.writeStatus(ctx, attemptID, callrecord.StatusMissed, 0)

	r.Log.LogCallMessage(attemptID, callrecord.StatusMissed, receiverID, kind, 0, r.Self)

	prometheus.CallOutcomes.WithLabelValues(string(callrecord.StatusMissed)).Inc()

	logging.Logger.Info("outbound call unanswered",
		zap.String("call_id", attemptID),
	)

	r.notify()
}

// writeStatus performs a best-effort status write. Failures are logged and
// swallowed: local state has already moved on and UI liveness wins over
// strict consistency.
func (r *Reducer) writeStatus(ctx context.Context, id string, status callrecord.Status, durationSeconds int) {
	updates := map[string]any{
		"status": string(status),
	}

	if status.IsTerminal() {
		endedAt := r.now()
		updates["ended_at"] = &endedAt
		updates["duration_seconds"] = durationSeconds
	}

	err := r.Records.UpdateAttempt(ctx, id, updates)
	if err != nil {
		logging.Logger.Error("call status write failed, proceeding with local state",
			zap.String("call_id", id),
			zap.String("status", string(status)),
			zap.String("error", err.Error()),
		)
	}
}

func (r *Reducer) currentAttemptLocked() (*callrecord.CallAttempt, bool) {
	switch {
	case r.state.Active != nil:
		attempt := r.state.Active.Attempt
		return &attempt, true
	case r.state.Outgoing != nil:
		return r.state.Outgoing, false
	case r.state.Incoming != nil:
		attempt := r.state.Incoming.Attempt
		return &attempt, false
	default:
		return nil, false
	}
}

func (r *Reducer) currentAttemptIDLocked() string {
	attempt, _ := r.currentAttemptLocked()
	if attempt == nil {
		return ""
	}

	return attempt.ID
}

func (r *Reducer) stopRingTimerLocked() {
	if r.ringTimer != nil {
		r.ringTimer.Stop()
		r.ringTimer = nil
	}
}

func (r *Reducer) snapshotLocked() Snapshot {
	return Snapshot{
		Incoming:    r.state.Incoming,
		Active:      r.state.Active,
		IsCalling:   r.state.Outgoing != nil,
		MediaStatus: r.mediaStatus,
	}
}

func (r *Reducer) notify() {
	r.mu.Lock()
	handler := r.onChange
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	if handler == nil {
		return
	}

	handler(snapshot)
}

package session

import (
	"context"
	"sync"
	"time"

	"github.com/nestline/callsync/internal/callrecord"
	"github.com/nestline/callsync/internal/config"
	"github.com/nestline/callsync/internal/logging"
	"github.com/nestline/callsync/internal/media"
	"github.com/nestline/callsync/internal/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Controller owns the media-session lifecycle for one active call at a time:
// local capture handles, the joined channel, and the duration clock. Duration
// is always measured from the locally held start timestamp, never from a
// round trip to the store.
type Controller struct {
	Adapter media.Adapter
	Self    string
	AppID   string

	mu        sync.Mutex
	active    bool
	sess      media.Session
	tracks    []media.Track
	startedAt time.Time

	now         func() time.Time
	onRemoteEnd func()
}

func NewController(adapter media.Adapter, self string) *Controller {
	return &Controller{
		Adapter: adapter,
		Self:    self,
		AppID:   config.Conf.MediaAppID,
		now:     time.Now,
	}
}

// SetRemoteEndHandler wires the callback invoked when the remote party leaves
// the channel. There is no reconnection grace period: one leave event ends
// the call.
func (controller *Controller) SetRemoteEndHandler(handler func()) {
	controller.onRemoteEnd = handler
}

func (controller *Controller) Active() bool {
	controller.mu.Lock()
	defer controller.mu.Unlock()

	return controller.active
}

// Start brings up the media session for an attempt that just went active.
// The returned status string is empty on full success; otherwise it describes
// a media problem (permission denied, join failure) that the presentation
// layer may surface. Signaling proceeds regardless.
func (controller *Controller) Start(ctx context.Context, attempt *callrecord.CallAttempt) string {
	controller.mu.Lock()
	if controller.active {
		controller.mu.Unlock()
		return ""
	}

	controller.active = true
	controller.startedAt = controller.now()
	controller.mu.Unlock()

	prometheus.ActiveCalls.Inc()

	tracks, mediaStatus := controller.acquireTracks(ctx, attempt.Kind)

	participantID := media.NewParticipantID(controller.Self, controller.now())

	handlers := media.SessionHandlers{
		OnRemotePublished: func(participantID string) {
			logging.Logger.Debug("remote track published",
				zap.String("call_id", attempt.ID),
				zap.String("participant_id", participantID),
			)
		},
		OnRemoteUnpublished: func(participantID string) {
			logging.Logger.Debug("remote track unpublished",
				zap.String("call_id", attempt.ID),
				zap.String("participant_id", participantID),
			)
		},
		OnRemoteLeft: controller.handleRemoteLeft,
	}

	sess, err := controller.Adapter.Join(
		ctx,
		controller.AppID,
		attempt.ChannelName,
		"",
		participantID,
		handlers,
	)
	if err != nil {
		logging.Logger.Error("failed to join media channel",
			zap.String("call_id", attempt.ID),
			zap.String("channel_name", attempt.ChannelName),
			zap.String("error", err.Error()),
		)

		if mediaStatus == "" {
			mediaStatus = "media channel unavailable"
		}
	}

	if sess != nil && len(tracks) > 0 {
		err = sess.Publish(ctx, tracks)
		if err != nil {
			logging.Logger.Error("failed to publish local tracks",
				zap.String("call_id", attempt.ID),
				zap.String("error", err.Error()),
			)
		}
	}

	controller.mu.Lock()
	controller.sess = sess
	controller.tracks = tracks
	controller.mu.Unlock()

	return mediaStatus
}

// Teardown releases local media and leaves the channel, returning the call
// duration in seconds from the local start timestamp. Hardware release never
// waits on network success. Idempotent: a second teardown returns 0 and does
// nothing.
func (controller *Controller) Teardown(ctx context.Context) int {
	controller.mu.Lock()
	if !controller.active {
		controller.mu.Unlock()
		return 0
	}

	controller.active = false
	sess := controller.sess
	tracks := controller.tracks
	startedAt := controller.startedAt
	controller.sess = nil
	controller.tracks = nil
	controller.mu.Unlock()

	// Hardware handles first.
	for _, track := range tracks {
		err := track.Close()
		if err != nil {
			logging.Logger.Error("failed to release local track",
				zap.String("track_kind", track.Kind()),
				zap.String("error", err.Error()),
			)
		}
	}

	if sess != nil {
		err := sess.Leave(ctx)
		if err != nil {
			logging.Logger.Error("failed to leave media channel", zap.String("error", err.Error()))
		}
	}

	duration := int(controller.now().Sub(startedAt) / time.Second)

	prometheus.ActiveCalls.Dec()
	prometheus.CallDuration.Observe(float64(duration))

	return duration
}

// SetMuted toggles the published audio track.
func (controller *Controller) SetMuted(muted bool) {
	controller.mu.Lock()
	defer controller.mu.Unlock()

	for _, track := range controller.tracks {
		if track.Kind() == "audio" {
			track.SetMuted(muted)
		}
	}
}

func (controller *Controller) acquireTracks(ctx context.Context, kind callrecord.Kind) ([]media.Track, string) {
	var audioTrack, videoTrack media.Track

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		track, err := controller.Adapter.AcquireAudioTrack(groupCtx)
		audioTrack = track

		return err
	})

	if kind == callrecord.KindVideo {
		group.Go(func() error {
			track, err := controller.Adapter.AcquireVideoTrack(groupCtx)
			videoTrack = track

			return err
		})
	}

	err := group.Wait()

	mediaStatus := ""
	if err != nil {
		logging.Logger.Warn("failed to acquire local media",
			zap.String("call_kind", string(kind)),
			zap.String("error", err.Error()),
		)

		mediaStatus = "media unavailable: " + err.Error()
	}

	tracks := make([]media.Track, 0, 2)

	if audioTrack != nil {
		tracks = append(tracks, audioTrack)
	}

	if videoTrack != nil {
		tracks = append(tracks, videoTrack)
	}

	return tracks, mediaStatus
}

func (controller *Controller) handleRemoteLeft(participantID string) {
	if media.IsGhost(participantID, controller.Self) {
		logging.Logger.Debug("ignoring ghost participant leave",
			zap.String("participant_id", participantID),
		)

		return
	}

	logging.Logger.Info("remote party left media channel",
		zap.String("participant_id", participantID),
	)

	if controller.onRemoteEnd != nil {
		controller.onRemoteEnd()
	}
}

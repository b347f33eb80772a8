package callsync

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
	"github.com/nestline/callsync/internal/callrecord"
	"github.com/nestline/callsync/internal/feed"
	"github.com/nestline/callsync/internal/logging"
	"github.com/nestline/callsync/internal/media"
	"github.com/nestline/callsync/internal/prometheus"
	"go.uber.org/zap"
)

// MessageHandler fans change-feed messages out to the worker pool. Kafka
// offers no ordering across partitions and redelivers on rebalance, so the
// reducer downstream treats every event as possibly duplicated and stale.
func (client *Client) MessageHandler(ctx context.Context, msg *sarama.ConsumerMessage) {
	err := client.WorkerPool.Submit(func() {
		client.processChangeEvent(ctx, msg)
	})
	if err != nil {
		logging.Logger.Error("[MessageHandler] Failed to submit task to worker pool",
			zap.Error(err),
			zap.Int64("offset", msg.Offset),
			zap.Int("pool_running", client.WorkerPool.Running()),
		)
	}
}

func (client *Client) processChangeEvent(ctx context.Context, msg *sarama.ConsumerMessage) {
	defer client.handlePanic(msg)

	env, err := feed.DecodeEnvelope(msg.Value)
	if err != nil {
		logging.Logger.Warn("[processChangeEvent] Skipping undecodable change event",
			zap.Error(err),
			zap.Int64("offset", msg.Offset),
		)
		return
	}

	client.recordFeedLatency(env.EmittedAt)

	if env.Table != feed.TableCalls {
		return
	}

	change, err := feed.DecodeCallChange(env)
	if err != nil {
		change = client.resolveLegacyCallChange(ctx, env)
		if change == nil {
			logging.Logger.Warn("[processChangeEvent] Skipping undecodable call change",
				zap.Error(err),
				zap.Int64("offset", msg.Offset),
			)
			return
		}
	}

	if !client.relevantCallChange(&change.Row) {
		return
	}

	client.Reducer.HandleCallChange(ctx, change)
}

// resolveLegacyCallChange re-reads the authoritative row for change events
// written by older producers whose rows lack the caller/receiver columns.
// Resolution is by id when present, otherwise by the newest attempt on the
// event's channel name.
func (client *Client) resolveLegacyCallChange(ctx context.Context, env *feed.Envelope) *feed.CallChange {
	var partial struct {
		ID          string `json:"id"`
		ChannelName string `json:"channel_name"`
	}

	err := json.Unmarshal(env.Row, &partial)
	if err != nil {
		return nil
	}

	var row *callrecord.CallAttempt

	switch {
	case partial.ID != "":
		row, err = client.Records.GetAttemptByID(ctx, partial.ID)
	case media.ChannelNameIncludes(partial.ChannelName, client.UserID):
		row, err = client.Records.GetAttemptByChannelName(ctx, partial.ChannelName)
	default:
		return nil
	}

	if err != nil || row == nil {
		return nil
	}

	logging.Logger.Info("[processChangeEvent] Resolved legacy call change from store",
		zap.String("call_id", row.ID),
		zap.String("op", env.Op),
	)

	return &feed.CallChange{Op: env.Op, Row: *row}
}

// relevantCallChange drops events addressed to other users. The channel-name
// check covers rows written before the caller/receiver columns existed.
func (client *Client) relevantCallChange(row *callrecord.CallAttempt) bool {
	if row.ReceiverID == client.UserID || row.CallerID == client.UserID {
		return true
	}

	return media.ChannelNameIncludes(row.ChannelName, client.UserID)
}

func (client *Client) recordFeedLatency(emittedAt string) {
	emitted, err := time.Parse(time.RFC3339Nano, emittedAt)
	if err != nil {
		return
	}

	latency := time.Since(emitted).Seconds()
	if latency < 0 {
		return
	}

	prometheus.FeedEventLatency.Observe(latency)
}

func (client *Client) handlePanic(msg *sarama.ConsumerMessage) {
	if r := recover(); r != nil {
		logging.Logger.Error("[processChangeEvent] PANIC recovered in worker",
			zap.Any("panic", r),
			zap.Int64("offset", msg.Offset),
			zap.String("stack_trace", string(debug.Stack())),
		)
	}
}

package chatlog

import (
	"context"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/uuid"
	"github.com/nestline/callsync/internal/config"
	"github.com/nestline/callsync/internal/logging"
	"go.uber.org/zap"
)

// LocateCallLog finds the call_log entry for an attempt with a bounded
// fixed-backoff retry. The entry is written asynchronously by the caller side
// and may not be visible yet when the receiver goes looking for it.
func (w *Writer) LocateCallLog(ctx context.Context, callID string) (*LogEntry, error) {
	var entry *LogEntry

	err := retry.Do(
		func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			found, err := w.Store.FindCallLog(ctx, callID)
			if err != nil {
				return err
			}

			entry = found

			return nil
		},
		retry.Attempts(config.Conf.LogLocateMaxAttempts),
		retry.DelayType(retry.FixedDelay),
		retry.Delay(time.Duration(config.Conf.LogLocateDelayMillis)*time.Millisecond),
	)
	if err != nil {
		logging.Logger.Warn("call log entry not located after all retry attempts",
			zap.String("call_id", callID),
			zap.String("error", err.Error()),
		)

		return nil, err
	}

	return entry, nil
}

// ReplyToCallLog posts a text message into the shared thread, reply-linked to
// the attempt's call_log entry.
func (w *Writer) ReplyToCallLog(ctx context.Context, callID, partnerID, body string) error {
	entry, err := w.LocateCallLog(ctx, callID)
	if err != nil {
		return err
	}

	now := time.Now()

	reply := &LogEntry{
		ID:          uuid.New().String(),
		ThreadID:    ThreadKey(w.Self, partnerID),
		SenderID:    w.Self,
		MessageType: MessageTypeText,
		Body:        body,
		ReplyToID:   &entry.ID,
		CreatedAt:   &now,
	}

	return w.Store.InsertMessage(ctx, reply)
}

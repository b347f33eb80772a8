package chatlog

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/nestline/callsync/internal/callrecord"
	"github.com/nestline/callsync/internal/logging"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const writeTimeout = 10 * time.Second

// Store is the message-thread surface the writer needs.
type Store interface {
	InsertMessage(ctx context.Context, entry *LogEntry) error
	UpdateMessage(ctx context.Context, id string, updates map[string]any) error
	FindCallLog(ctx context.Context, callID string) (*LogEntry, error)
}

type logTask struct {
	callID    string
	status    callrecord.Status
	partnerID string
	kind      callrecord.Kind
	duration  int
	callerID  string

	flush chan struct{}
}

// Writer maintains exactly one log entry per call attempt in the shared
// thread. All writes are serialized through a single goroutine so that two
// near-simultaneous invocations ("calling" immediately followed by "ended")
// cannot create two rows. Only caller-side code paths log call outcomes.
type Writer struct {
	Store Store
	Self  string

	tasks chan logTask
	done  chan struct{}

	// loop-goroutine-owned
	openEntryID string
	openCallID  string
}

func NewWriter(store Store, self string) *Writer {
	writer := &Writer{
		Store: store,
		Self:  self,
		tasks: make(chan logTask, 16),
		done:  make(chan struct{}),
	}

	go writer.loop()

	return writer
}

// LogCallMessage enqueues a call-log write for the attempt. Start statuses
// open the entry, terminal statuses freeze it. Anything else is dropped.
func (w *Writer) LogCallMessage(
	callID string,
	status callrecord.Status,
	partnerID string,
	kind callrecord.Kind,
	duration int,
	callerID string,
) {
	select {
	case w.tasks <- logTask{
		callID:    callID,
		status:    status,
		partnerID: partnerID,
		kind:      kind,
		duration:  duration,
		callerID:  callerID,
	}:
	case <-w.done:
		logging.Logger.Warn("call log writer is closed, dropping log write",
			zap.String("call_id", callID),
			zap.String("status", string(status)),
		)
	}
}

// Flush blocks until every write enqueued before it has been processed.
func (w *Writer) Flush() {
	flushed := make(chan struct{})

	select {
	case w.tasks <- logTask{flush: flushed}:
		<-flushed
	case <-w.done:
	}
}

func (w *Writer) Close() {
	w.Flush()
	close(w.done)
}

func (w *Writer) loop() {
	for {
		select {
		case <-w.done:
			return
		case task := <-w.tasks:
			if task.flush != nil {
				close(task.flush)
				continue
			}

			w.process(task)
		}
	}
}

func (w *Writer) process(task logTask) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	switch {
	case w.openEntryID == "" && isStartStatus(task.status):
		w.openEntry(ctx, task)
	case w.openEntryID != "" && task.status.IsTerminal():
		w.freezeEntry(ctx, task)
	default:
		logging.Logger.Debug("call log write has no effect",
			zap.String("call_id", task.callID),
			zap.String("status", string(task.status)),
			zap.String("open_entry_id", w.openEntryID),
		)
	}
}

func (w *Writer) openEntry(ctx context.Context, task logTask) {
	payload, err := marshalPayload(task)
	if err != nil {
		return
	}

	now := time.Now()

	entry := &LogEntry{
		ID:          uuid.New().String(),
		ThreadID:    ThreadKey(w.Self, task.partnerID),
		SenderID:    w.Self,
		MessageType: MessageTypeCallLog,
		CallID:      task.callID,
		Payload:     payload,
		CreatedAt:   &now,
	}

	err = w.Store.InsertMessage(ctx, entry)
	if err != nil {
		logging.Logger.Error("failed to insert call log entry",
			zap.String("call_id", task.callID),
			zap.String("status", string(task.status)),
			zap.String("error", err.Error()),
		)

		return
	}

	w.openEntryID = entry.ID
	w.openCallID = task.callID
}

func (w *Writer) freezeEntry(ctx context.Context, task logTask) {
	if task.callID != w.openCallID {
		logging.Logger.Warn("terminal log write does not match open entry",
			zap.String("call_id", task.callID),
			zap.String("open_call_id", w.openCallID),
		)

		return
	}

	payload, err := marshalPayload(task)
	if err != nil {
		return
	}

	err = w.Store.UpdateMessage(ctx, w.openEntryID, map[string]any{
		"payload": payload,
	})
	if err != nil {
		logging.Logger.Error("failed to freeze call log entry",
			zap.String("call_id", task.callID),
			zap.String("status", string(task.status)),
			zap.String("error", err.Error()),
		)
	}

	// Frozen (or dropped on failure) either way: a stale terminal rewrite is
	// worse than a missing one.
	w.openEntryID = ""
	w.openCallID = ""
}

func marshalPayload(task logTask) (datatypes.JSON, error) {
	payload := LogPayload{
		Status:   task.status,
		CallKind: task.kind,
		Duration: task.duration,
		CallerID: task.callerID,
	}

	payloadBytes, err := json.Marshal(&payload)
	if err != nil {
		logging.Logger.Error("failed to marshal call log payload",
			zap.String("call_id", task.callID),
			zap.String("error", err.Error()),
		)

		return nil, err
	}

	return datatypes.JSON(payloadBytes), nil
}

func isStartStatus(status callrecord.Status) bool {
	switch status {
	case callrecord.StatusPending, callrecord.StatusRinging, callrecord.StatusActive:
		return true
	default:
		return false
	}
}

package signal

import (
	"time"

	"github.com/nestline/callsync/internal/callrecord"
	"github.com/nestline/callsync/internal/profile"
)

// IncomingCall is an inbound attempt currently ringing on this client.
type IncomingCall struct {
	Attempt       callrecord.CallAttempt
	CallerProfile *profile.Profile
	RingStartedAt time.Time
}

// ActiveCall is the attempt this client currently has media up for.
type ActiveCall struct {
	Attempt    callrecord.CallAttempt
	Partner    *profile.Profile
	IsIncoming bool
}

// localState is the per-client ephemeral call state. At most one of
// Incoming/Active/Outgoing is meaningful at a time; the busy policy enforces
// that before any of them is set.
type localState struct {
	Incoming *IncomingCall
	Active   *ActiveCall
	Outgoing *callrecord.CallAttempt
}

func (s *localState) Busy() bool {
	return s.Incoming != nil || s.Active != nil || s.Outgoing != nil
}

func (s *localState) clear() {
	s.Incoming = nil
	s.Active = nil
	s.Outgoing = nil
}

// pendingTerminal holds a terminal transition observed while the session
// guard was held (a feed event landing mid-answer). It is applied as soon as
// the guarded intent finishes instead of being dropped.
type pendingTerminal struct {
	Status   callrecord.Status
	Duration int
}

// tombstoneSet remembers attempt ids observed to reach a terminal status
// before their pending insert was processed. Entries are read-once.
type tombstoneSet map[string]struct{}

func (t tombstoneSet) add(id string) {
	t[id] = struct{}{}
}

// consume removes and reports the id in one step.
func (t tombstoneSet) consume(id string) bool {
	_, ok := t[id]
	if ok {
		delete(t, id)
	}

	return ok
}

// Snapshot is the observable state surface handed to the presentation layer.
type Snapshot struct {
	Incoming    *IncomingCall
	Active      *ActiveCall
	IsCalling   bool
	MediaStatus string
}

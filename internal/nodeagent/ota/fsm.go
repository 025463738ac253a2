package ota

import (
	"context"

	"github.com/looplab/fsm"

	"github.com/autopeer-io/nodeagent/internal/nodeagent/session"
	fsmutil "github.com/autopeer-io/nodeagent/internal/pkg/util/fsm"
)

// Update states.
const (
	StateIdle            = "idle"
	StateInfoPending     = "info_pending"
	StateUpdateRequested = "update_requested"
	StateDownloading     = "downloading"
	StateSucceeded       = "succeeded"
	StateFailed          = "failed"
)

// States lists every update state.
var States = []string{
	StateIdle, StateInfoPending, StateUpdateRequested,
	StateDownloading, StateSucceeded, StateFailed,
}

const (
	// EventRequest (Active) starts an attempt when desired differs from current.
	EventRequest = "request"
	// EventAnnounced moves on once the running firmware was announced in this session.
	EventAnnounced = "announced"
	// EventAbort drops back to idle when the session is lost before the download.
	EventAbort = "abort"
	// EventStart enters the download once the transfer source accepted the request.
	EventStart = "start"
	// EventComplete commits a verified image.
	EventComplete = "complete"
	// EventFail ends the attempt.
	EventFail = "fail"
	// EventReset (Active) leaves failed on a re-push.
	EventReset = "reset"
)

// machine wraps the update FSM. Callbacks receive the session state as Args[0]
// and, for EventFail, the cause as Args[1].
type machine struct {
	*fsm.FSM
}

func newMachine(c *Coordinator) *machine {
	m := &machine{}

	events := fsm.Events{
		{Name: EventRequest, Src: []string{StateIdle}, Dst: StateInfoPending},
		{Name: EventAnnounced, Src: []string{StateInfoPending}, Dst: StateUpdateRequested},
		{Name: EventAbort, Src: []string{StateInfoPending, StateUpdateRequested}, Dst: StateIdle},
		{Name: EventStart, Src: []string{StateUpdateRequested}, Dst: StateDownloading},
		{Name: EventComplete, Src: []string{StateDownloading}, Dst: StateSucceeded},
		{Name: EventFail, Src: []string{StateDownloading}, Dst: StateFailed},
		{Name: EventReset, Src: []string{StateFailed}, Dst: StateIdle},
	}

	callbacks := fsm.Callbacks{
		// Guards (before_...)
		"before_" + EventRequest:   fsmutil.Guard(c.guardRequest),
		"before_" + EventAnnounced: fsmutil.Guard(guardAnnounced),

		// Side-Effects (enter_...)
		"enter_" + StateInfoPending: fsmutil.WrapEvent(c.enterInfoPending),
		"enter_" + StateDownloading: fsmutil.WrapEvent(c.enterDownloading),
		"enter_" + StateSucceeded:   fsmutil.WrapEvent(c.enterSucceeded),
		"enter_" + StateFailed:      fsmutil.WrapEvent(c.enterFailed),
		"enter_" + StateIdle:        fsmutil.WrapEvent(c.enterIdle),

		"enter_state": func(_ context.Context, e *fsm.Event) { observeState(e.Src, e.Dst) },
	}

	m.FSM = fsm.NewFSM(StateIdle, events, callbacks)
	return m
}

func sessionArg(e *fsm.Event) session.State {
	if len(e.Args) > 0 {
		if st, ok := e.Args[0].(session.State); ok {
			return st
		}
	}
	return session.Initial()
}

func causeArg(e *fsm.Event) error {
	if len(e.Args) > 1 {
		if err, ok := e.Args[1].(error); ok {
			return err
		}
	}
	return nil
}

func guardAnnounced(_ context.Context, e *fsm.Event) (bool, error) {
	st := sessionArg(e)
	return st.Connected() && st.FirmwareInfoSent, nil
}

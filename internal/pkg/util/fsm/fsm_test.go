package fsm

import (
	"context"
	"errors"
	"testing"

	"github.com/looplab/fsm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDoor(allow *bool, enterErr error) *fsm.FSM {
	return fsm.NewFSM("closed",
		fsm.Events{
			{Name: "open", Src: []string{"closed"}, Dst: "open"},
			{Name: "close", Src: []string{"open"}, Dst: "closed"},
		},
		fsm.Callbacks{
			"before_open": Guard(func(context.Context, *fsm.Event) (bool, error) {
				return *allow, nil
			}),
			"enter_open": WrapEvent(func(context.Context, *fsm.Event) error {
				return enterErr
			}),
		},
	)
}

func TestGuardCancelsTransition(t *testing.T) {
	allow := false
	f := newDoor(&allow, nil)

	err := f.Event(context.Background(), "open")
	require.Error(t, err)
	assert.False(t, IsRealError(err))
	assert.Equal(t, "closed", f.Current())

	allow = true
	require.NoError(t, f.Event(context.Background(), "open"))
	assert.Equal(t, "open", f.Current())
}

func TestWrapEventSurfacesError(t *testing.T) {
	allow := true
	boom := errors.New("boom")
	f := newDoor(&allow, boom)

	err := f.Event(context.Background(), "open")
	assert.ErrorIs(t, err, boom)
	assert.True(t, IsRealError(err))
	assert.Equal(t, "open", f.Current())
}

func TestIsRealError(t *testing.T) {
	assert.False(t, IsRealError(nil))
	assert.False(t, IsRealError(fsm.NoTransitionError{}))
	assert.False(t, IsRealError(fsm.CanceledError{}))
	assert.True(t, IsRealError(fsm.CanceledError{Err: errors.New("lookup failed")}))
	assert.True(t, IsRealError(fsm.InvalidEventError{Event: "x", State: "y"}))
}

func TestGuardErrorIsReal(t *testing.T) {
	lookup := errors.New("lookup failed")
	f := fsm.NewFSM("closed",
		fsm.Events{{Name: "open", Src: []string{"closed"}, Dst: "open"}},
		fsm.Callbacks{
			"before_open": Guard(func(context.Context, *fsm.Event) (bool, error) {
				return false, lookup
			}),
		},
	)

	err := f.Event(context.Background(), "open")
	require.Error(t, err)
	assert.True(t, IsRealError(err))

	var canceled fsm.CanceledError
	require.ErrorAs(t, err, &canceled)
	assert.Equal(t, lookup, canceled.Err)
	assert.Equal(t, "closed", f.Current())
}

package fsm

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
)

// WrapEvent adapts an error-returning callback to fsm.Callback by storing the
// error on the event.
func WrapEvent(fn func(ctx context.Context, event *fsm.Event) error) fsm.Callback {
	return func(ctx context.Context, event *fsm.Event) {
		if err := fn(ctx, event); err != nil {
			event.Err = err
		}
	}
}

// Guard adapts a predicate to a "before_" callback. A false result or an error
// cancels the transition.
func Guard(fn func(ctx context.Context, event *fsm.Event) (bool, error)) fsm.Callback {
	return func(ctx context.Context, event *fsm.Event) {
		ok, err := fn(ctx, event)
		switch {
		case err != nil:
			event.Cancel(err)
		case !ok:
			event.Cancel()
		}
	}
}

// IsRealError reports whether err is more than a refused or no-op transition.
// A transition canceled by a guard that failed with an error is a real error.
func IsRealError(err error) bool {
	if err == nil {
		return false
	}

	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return false
	}

	var canceled fsm.CanceledError
	if errors.As(err, &canceled) {
		return canceled.Err != nil
	}

	return true
}

package session

import (
	"context"
	"time"

	"github.com/godomain/godomain/conn"
	"github.com/godomain/godomain/loop"
)

// ConnectionUpdateInterval is the period of the default connection driver.
const ConnectionUpdateInterval = 1000 * time.Millisecond

// InstallDefaultDriver registers the persistent timer that advances the
// connection state machine one step per firing. When the machine reaches a
// terminal state (run or error) the timer deregisters itself; installing
// further liveness or retry timers is the caller's responsibility.
//
// Installing the driver twice yields two independent timers; it is not
// deduplicated.
func (s *Session) InstallDefaultDriver() (*loop.Timer, error) {
	if s == nil {
		return nil, ErrNilSession
	}

	timer := s.loop.AddPeriodic(ConnectionUpdateInterval, func(ctx context.Context, t *loop.Timer) {
		state, err := s.connCtx.Machine.Advance(ctx)
		if err != nil {
			s.log.Error().Err(err).Str("state", state.String()).Msg("connection advance failed")
			s.connCtx.ReportError("advance", "", err)
		}
		if state.Terminal() {
			s.log.Debug().Str("state", state.String()).Msg("connection reached terminal state")
			s.loop.Remove(t)
		}
	})

	return timer, nil
}

// InstallDriver registers a caller-supplied persistent timer bound to this
// session, for custom polling or maintenance logic. It does not interact
// with the default driver's termination logic; the caller removes it via
// the session's loop.
func (s *Session) InstallDriver(cb loop.Callback, interval time.Duration) (*loop.Timer, error) {
	if s == nil {
		return nil, ErrNilSession
	}
	if cb == nil {
		s.log.Error().Msg("invalid callback for driver installation")
		return nil, ErrNoCallback
	}
	return s.loop.AddPeriodic(interval, cb), nil
}

// Run drives the event loop until no timers remain, Stop is called on the
// loop, or the context is done. Not needed when the session is attached to
// an application's own loop. Blocking.
func (s *Session) Run(ctx context.Context) error {
	if s == nil {
		return ErrNilSession
	}
	return s.loop.Run(ctx)
}

// RunOnce processes one batch of due timer events. May block until the
// earliest deadline.
func (s *Session) RunOnce(ctx context.Context) error {
	if s == nil {
		return ErrNilSession
	}
	return s.loop.RunOnce(ctx)
}

// InstallErrorHandler stores the single error-callback slot invoked on
// transport and state-machine failures. Replaces any previously installed
// handler.
func (s *Session) InstallErrorHandler(cb conn.ErrorCallback) error {
	if s == nil {
		return ErrNilSession
	}
	if cb == nil {
		s.log.Error().Msg("invalid callback for error handler installation")
		return ErrNoCallback
	}
	s.connCtx.OnError = cb
	return nil
}

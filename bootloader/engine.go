package bootloader

import (
	"context"
	"sync"
	"time"

	"github.com/hubflash/go-hubflash/protocol"
)

// engine is the request/response layer between the flash state machine
// and the raw transport. It correlates send acknowledgments to pending
// requests by message id, races responses against error frames,
// disconnects and timeouts, and funnels every fatal outcome through a
// single idempotent disconnect-and-abort.
type engine struct {
	transport Transport
	session   *session
	logger    Logger

	// cancel tears down the enclosing flash attempt
	cancel context.CancelFunc

	// pending tracks message ids awaiting a transport acknowledgment;
	// at most one outstanding request per id
	pending map[uint32]struct{}

	// connected is set once the transport link is established; until
	// then there is no connection to tear down on abort
	connected bool

	abortOnce sync.Once
}

func newEngine(transport Transport, session *session, logger Logger) *engine {
	return &engine{
		transport: transport,
		session:   session,
		logger:    logger,
		pending:   make(map[uint32]struct{}),
	}
}

// sendAndAwaitAck sends a framed request under a fresh message id and
// races the matching acknowledgment against a matching explicit
// failure. A failure triggers disconnect-and-abort and surfaces as
// TransportRejectedError.
func (e *engine) sendAndAwaitAck(ctx context.Context, frame []byte) error {
	id := e.session.nextMessageID()
	e.pending[id] = struct{}{}
	defer delete(e.pending, id)

	if err := e.transport.Send(id, frame); err != nil {
		e.disconnectAndAbort()
		return &TransportRejectedError{Cause: err}
	}

	for {
		select {
		case result := <-e.transport.SendResults():
			if _, ok := e.pending[result.ID]; !ok || result.ID != id {
				e.logDebug("dropping stale send result", "id", result.ID)
				continue
			}
			if result.Err != nil {
				e.disconnectAndAbort()
				return &TransportRejectedError{Cause: result.Err}
			}
			return nil
		case <-e.transport.Disconnected():
			e.disconnectAndAbort()
			return ErrDisconnected
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// awaitResponse waits for whichever of several outcomes occurs first:
// a response frame matching pred, a generic error frame, a disconnect,
// or the timeout. Exactly one wins; among simultaneously ready
// outcomes the most specific is favored, so queued frames are drained
// before the timer or disconnect is consulted.
//
// A timeout normally triggers disconnect-and-abort and returns
// ErrTimeout. With lenientTimeout the abort is skipped and plain
// ErrTimeout is returned: the erase acknowledgment is the one response
// kind whose absence is a known benign hardware quirk.
func (e *engine) awaitResponse(ctx context.Context, pred func([]byte) bool, timeout time.Duration, lenientTimeout bool) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		// Drain queued frames first so an already-arrived response or
		// error frame beats a concurrently expired timer.
		select {
		case frame := <-e.transport.Frames():
			if matched, result, err := e.handleFrame(frame, pred); matched {
				return result, err
			}
			continue
		default:
		}

		select {
		case frame := <-e.transport.Frames():
			if matched, result, err := e.handleFrame(frame, pred); matched {
				return result, err
			}
		case <-e.transport.Disconnected():
			e.disconnectAndAbort()
			return nil, ErrDisconnected
		case <-timer.C:
			if lenientTimeout {
				return nil, ErrTimeout
			}
			e.disconnectAndAbort()
			return nil, ErrTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// handleFrame resolves one inbound frame against the awaited predicate.
// Error frames win over everything; unrelated frames are dropped.
func (e *engine) handleFrame(frame []byte, pred func([]byte) bool) (matched bool, result []byte, err error) {
	if protocol.IsErrorFrame(frame) {
		cmd, parseErr := protocol.ParseErrorResponse(frame)
		if parseErr != nil {
			e.logDebug("malformed error frame", "frame", frame)
			cmd = 0
		}
		e.disconnectAndAbort()
		return true, nil, &protocol.HubRejectedError{Command: cmd}
	}
	if pred(frame) {
		return true, frame, nil
	}
	e.logDebug("dropping unrelated frame", "frame", frame)
	return false, nil, nil
}

// disconnectAndAbort issues a best-effort polite disconnect request,
// drops the connection and cancels the enclosing flash attempt.
// Failures before the link was ever established only cancel: there is
// no connection to be polite about, and none to drop. Idempotent:
// every failure branch calls it and only the first call acts.
func (e *engine) disconnectAndAbort() {
	e.abortOnce.Do(func() {
		if e.connected {
			select {
			case <-e.transport.Disconnected():
				// already gone, nothing to be polite about
			default:
				id := e.session.nextMessageID()
				if err := e.transport.Send(id, protocol.BuildDisconnectCmd()); err != nil {
					e.logDebug("disconnect request not sent", "error", err)
				}
			}
			if err := e.transport.Disconnect(); err != nil {
				e.logDebug("disconnect failed", "error", err)
			}
		}
		if e.cancel != nil {
			e.cancel()
		}
	})
}

func (e *engine) logDebug(msg string, keysAndValues ...interface{}) {
	if e.logger != nil {
		e.logger.Debug(msg, keysAndValues...)
	}
}

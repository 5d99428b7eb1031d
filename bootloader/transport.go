package bootloader

import "context"

// SendResult reports the transport-level outcome of one request.
// A nil Err means the transport acknowledged the request; a non-nil Err
// means the request was rejected before reaching the hub.
type SendResult struct {
	// ID is the message id the request was sent with
	ID uint32

	// Err is the transport failure, or nil on acknowledgment
	Err error
}

// Transport is a connection to a hub bootloader. Implementations move
// raw frames; they do not interpret them.
//
// The flash orchestrator owns the transport exclusively for the
// duration of one attempt. Frames and Disconnected must remain readable
// after Disconnect so that a pending race can observe the outcome.
type Transport interface {
	// Connect establishes the connection
	Connect(ctx context.Context) error

	// Disconnect drops the connection; safe to call when already
	// disconnected
	Disconnect() error

	// Send enqueues a request frame under the given message id.
	// The outcome is delivered on SendResults; an immediate error means
	// the frame was never queued.
	Send(id uint32, frame []byte) error

	// SendResults delivers one SendResult per Send call
	SendResults() <-chan SendResult

	// Frames delivers inbound response frames in arrival order
	Frames() <-chan []byte

	// Disconnected is closed when the connection drops
	Disconnected() <-chan struct{}
}

package bootloader

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hubflash/go-hubflash/protocol"
)

// session holds the mutable state of one flash attempt: the transfer
// position, the running XOR checksum, the identified hub and the
// message id source. It is discarded when the attempt ends.
//
// Only the single driving flow mutates a session, so no locking is
// needed; message ids come from a shared monotonic counter so they stay
// unique across attempts on the same Flasher.
type session struct {
	id       uuid.UUID
	started  time.Time
	counter  *atomic.Uint32
	info     *protocol.HubInfo
	offset   int
	total    int
	checksum byte
}

func newSession(counter *atomic.Uint32) *session {
	return &session{
		id:       uuid.New(),
		started:  time.Now(),
		counter:  counter,
		checksum: protocol.XorSeed,
	}
}

// nextMessageID returns a fresh message id. Ids are monotonic and never
// reused within a session.
func (s *session) nextMessageID() uint32 {
	return s.counter.Add(1)
}

// update folds a sent chunk into the session's transfer state.
func (s *session) update(payload []byte) {
	s.offset += len(payload)
	s.checksum = protocol.UpdateXorChecksum(s.checksum, payload)
}

// progress builds a Progress snapshot for the current state.
func (s *session) progress(phase Phase, fraction float64) Progress {
	return Progress{
		SessionID:   s.id,
		Phase:       phase,
		BytesSent:   s.offset,
		TotalBytes:  s.total,
		Fraction:    fraction,
		ElapsedTime: time.Since(s.started),
	}
}

package bootloader

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/hubflash/go-hubflash/protocol"
)

// fakeTransport is a scriptable in-memory Transport. Outbound frames
// are recorded; a hub script attached via onFrame can answer them on
// the inbound channel. Channels are buffered generously so a script
// never blocks the flow under test.
type fakeTransport struct {
	mu              sync.Mutex
	sentFrames      [][]byte
	connectCalls    int
	disconnectCalls int

	connectErr error
	sendErr    error

	// ackErrs maps a 1-based send ordinal to a transport-level failure
	// delivered on the SendResults channel
	ackErrs map[int]error

	// muteAcks suppresses send acknowledgments entirely
	muteAcks bool

	// onFrame runs synchronously for each sent frame after its
	// acknowledgment is queued
	onFrame func(frame []byte)

	sendResults  chan SendResult
	frames       chan []byte
	disconnected chan struct{}
	dropOnce     sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		ackErrs:      make(map[int]error),
		sendResults:  make(chan SendResult, 1024),
		frames:       make(chan []byte, 1024),
		disconnected: make(chan struct{}),
	}
}

func (t *fakeTransport) Connect(_ context.Context) error {
	t.mu.Lock()
	t.connectCalls++
	t.mu.Unlock()
	return t.connectErr
}

func (t *fakeTransport) Disconnect() error {
	t.mu.Lock()
	t.disconnectCalls++
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) Send(id uint32, frame []byte) error {
	if t.sendErr != nil {
		return t.sendErr
	}

	cp := append([]byte(nil), frame...)
	t.mu.Lock()
	t.sentFrames = append(t.sentFrames, cp)
	ordinal := len(t.sentFrames)
	t.mu.Unlock()

	if !t.muteAcks {
		t.sendResults <- SendResult{ID: id, Err: t.ackErrs[ordinal]}
	}
	if t.onFrame != nil {
		t.onFrame(cp)
	}
	return nil
}

func (t *fakeTransport) SendResults() <-chan SendResult { return t.sendResults }
func (t *fakeTransport) Frames() <-chan []byte          { return t.frames }
func (t *fakeTransport) Disconnected() <-chan struct{}  { return t.disconnected }

// reply queues an inbound frame.
func (t *fakeTransport) reply(frame ...byte) {
	t.frames <- frame
}

// dropConnection simulates the hub dropping the link.
func (t *fakeTransport) dropConnection() {
	t.dropOnce.Do(func() { close(t.disconnected) })
}

// sent returns a snapshot of all frames sent so far.
func (t *fakeTransport) sent() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]byte(nil), t.sentFrames...)
}

// countSent returns how many sent frames carry the given command byte.
func (t *fakeTransport) countSent(cmd byte) int {
	n := 0
	for _, frame := range t.sent() {
		if len(frame) > 0 && frame[0] == cmd {
			n++
		}
	}
	return n
}

// scriptedHub emulates a hub bootloader on the far side of a
// fakeTransport. It keeps its own running XOR checksum over received
// program payloads and answers commands the way real bootloaders do.
// Behavior knobs let tests inject specific failures.
type scriptedHub struct {
	hubType      protocol.HubType
	version      int32
	startAddress uint32
	endAddress   uint32

	// muteErase suppresses the erase acknowledgment entirely
	muteErase bool

	// eraseResult and initResult are the result codes for those commands
	eraseResult byte
	initResult  byte

	// badChecksum makes every checksum response wrong
	badChecksum bool

	// countDelta is added to the byte count in the terminal response
	countDelta int

	// rejectProgram answers the first program request with the generic
	// error frame instead of accepting it
	rejectProgram bool

	expected uint32
	received uint32
	checksum byte

	programFrames    int
	checksumRequests int
}

func newScriptedHub(hubType protocol.HubType) *scriptedHub {
	return &scriptedHub{
		hubType:      hubType,
		version:      0x01000000,
		startAddress: 0x08005000,
		endAddress:   0x080FFFFF,
	}
}

// attach wires the hub to a transport and returns that transport.
func (h *scriptedHub) attach(t *fakeTransport) *fakeTransport {
	t.onFrame = func(frame []byte) { h.handle(t, frame) }
	return t
}

func (h *scriptedHub) handle(t *fakeTransport, frame []byte) {
	switch frame[0] {
	case protocol.CmdGetInfo:
		resp := make([]byte, 1+protocol.GetInfoResponseSize)
		resp[0] = protocol.CmdGetInfo
		binary.LittleEndian.PutUint32(resp[1:5], uint32(h.version))
		binary.LittleEndian.PutUint32(resp[5:9], h.startAddress)
		binary.LittleEndian.PutUint32(resp[9:13], h.endAddress)
		resp[13] = byte(h.hubType)
		t.frames <- resp

	case protocol.CmdEraseFlash:
		if h.muteErase {
			return
		}
		t.reply(protocol.CmdEraseFlash, h.eraseResult)

	case protocol.CmdInitLoader:
		h.expected = binary.LittleEndian.Uint32(frame[1:5])
		h.received = 0
		h.checksum = protocol.XorSeed
		t.reply(protocol.CmdInitLoader, h.initResult)

	case protocol.CmdProgramFlash:
		h.programFrames++
		if h.rejectProgram {
			t.reply(protocol.CmdError, protocol.CmdProgramFlash, 0x01)
			return
		}
		payload := frame[protocol.ProgramHeaderSize:]
		h.received += uint32(len(payload))
		h.checksum = protocol.UpdateXorChecksum(h.checksum, payload)
		if h.received == h.expected {
			resp := make([]byte, 1+protocol.ProgramResponseSize)
			resp[0] = protocol.CmdProgramFlash
			binary.LittleEndian.PutUint32(resp[1:5], h.received+uint32(h.countDelta))
			resp[5] = h.checksum
			t.frames <- resp
		}

	case protocol.CmdGetChecksum:
		h.checksumRequests++
		cs := h.checksum
		if h.badChecksum {
			cs ^= 0xA5
		}
		t.reply(protocol.CmdGetChecksum, cs)

	case protocol.CmdStartApp, protocol.CmdDisconnect:
		// no response, per the protocol
	}
}

package bootloader

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubflash/go-hubflash/firmware"
	"github.com/hubflash/go-hubflash/protocol"
)

// Fixture geometry: a 4000 byte base binary plus a 4 byte length field,
// an 88 byte compiled program and the 4 byte checksum footer yields a
// 4096 byte image, exactly the declared flash capacity.
const (
	testBaseSize    = 4000
	testProgramSize = 88
	testImageSize   = 4096
)

// testCompiler stands in for the cross compiler and emits a fixed-size
// program regardless of source.
var testCompiler = firmware.CompilerFunc(
	func(_ context.Context, _ string, _ int, _ []string) ([]byte, error) {
		return make([]byte, testProgramSize), nil
	},
)

func testArchive(t *testing.T, hub protocol.HubType) []byte {
	t.Helper()

	meta := firmware.Metadata{
		FirmwareVersion:   "v3.5.0",
		DeviceID:          hub,
		ChecksumType:      firmware.ChecksumSum,
		MpyAbiVersion:     6,
		UserProgramOffset: testBaseSize,
		MaxFirmwareSize:   testImageSize,
	}
	rawMeta, err := json.Marshal(&meta)
	require.NoError(t, err)

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	f, err := w.Create(firmware.BaseBinaryName)
	require.NoError(t, err)
	_, err = f.Write(make([]byte, testBaseSize))
	require.NoError(t, err)

	f, err = w.Create(firmware.MetadataName)
	require.NoError(t, err)
	_, err = f.Write(rawMeta)
	require.NoError(t, err)

	require.NoError(t, w.Close())
	return buf.Bytes()
}

func newTestFlasher(transport Transport, opts ...Option) *Flasher {
	return New(transport, firmware.NewBuilder(testCompiler), opts...)
}

type fakeFetcher struct {
	archives map[protocol.HubType][]byte
	calls    []protocol.HubType
}

func (f *fakeFetcher) Fetch(_ context.Context, hub protocol.HubType) ([]byte, error) {
	f.calls = append(f.calls, hub)
	archive, ok := f.archives[hub]
	if !ok {
		return nil, &firmware.FetchError{URL: "test", StatusCode: 404}
	}
	return archive, nil
}

type fakeFileReader struct {
	files map[string][]byte
	err   error
}

func (f *fakeFileReader) ReadFile(_ context.Context, path string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.files[path]
	if !ok {
		return nil, errors.New("no such file")
	}
	return data, nil
}

func TestFlashHappyPath(t *testing.T) {
	hub := newScriptedHub(protocol.HubTypeTechnicHub)
	transport := hub.attach(newFakeTransport())

	var phases []Phase
	flasher := newTestFlasher(transport,
		WithProgressCallback(func(p Progress) {
			if len(phases) == 0 || phases[len(phases)-1] != p.Phase {
				phases = append(phases, p.Phase)
			}
		}),
	)

	err := flasher.Flash(context.Background(), Request{
		Archive: testArchive(t, protocol.HubTypeTechnicHub),
	})
	require.NoError(t, err)

	// 4096 bytes in 32 byte chunks is 128 program requests; checksum
	// verification runs after every 10th chunk, so chunks 10 through
	// 120 trigger 12 requests.
	assert.Equal(t, 128, hub.programFrames)
	assert.Equal(t, 12, hub.checksumRequests)
	assert.Equal(t, uint32(testImageSize), hub.received)

	assert.Equal(t, 1, transport.countSent(protocol.CmdStartApp))
	assert.Equal(t, 0, transport.countSent(protocol.CmdDisconnect))
	assert.Equal(t, 0, transport.disconnectCalls)

	assert.Equal(t, []Phase{
		PhaseBuilding, PhaseConnecting, PhaseIdentifying, PhaseErasing,
		PhaseInitializing, PhaseProgramming, PhaseFinalizing,
		PhaseRebooting, PhaseComplete,
	}, phases)
}

func TestFlashMoveHubChunking(t *testing.T) {
	hub := newScriptedHub(protocol.HubTypeMoveHub)
	transport := hub.attach(newFakeTransport())

	var last Progress
	flasher := newTestFlasher(transport,
		WithProgressCallback(func(p Progress) { last = p }),
	)

	err := flasher.Flash(context.Background(), Request{
		Archive: testArchive(t, protocol.HubTypeMoveHub),
	})
	require.NoError(t, err)

	// 4096 bytes in 14 byte chunks: 292 full chunks plus an 8 byte
	// tail. The final chunk is number 293 and never triggers a
	// checksum request, so only chunks 10 through 290 do.
	assert.Equal(t, 293, hub.programFrames)
	assert.Equal(t, 29, hub.checksumRequests)

	assert.Equal(t, PhaseComplete, last.Phase)
	assert.Equal(t, 1.0, last.Fraction)
	assert.Equal(t, testImageSize, last.BytesSent)
}

func TestFlashChunkLimit(t *testing.T) {
	hub := newScriptedHub(protocol.HubTypeTechnicHub)
	transport := hub.attach(newFakeTransport())
	flasher := newTestFlasher(transport,
		WithChunkLimit(protocol.ConservativeChunkSize),
	)

	err := flasher.Flash(context.Background(), Request{
		Archive: testArchive(t, protocol.HubTypeTechnicHub),
	})
	require.NoError(t, err)

	// The limit overrides the hub's 32 byte maximum.
	assert.Equal(t, 293, hub.programFrames)
}

func TestFlashChecksumMismatch(t *testing.T) {
	hub := newScriptedHub(protocol.HubTypeTechnicHub)
	hub.badChecksum = true
	transport := hub.attach(newFakeTransport())
	flasher := newTestFlasher(transport)

	err := flasher.Flash(context.Background(), Request{
		Archive: testArchive(t, protocol.HubTypeTechnicHub),
	})

	var hubErr *HubError
	require.ErrorAs(t, err, &hubErr)
	assert.Equal(t, ReasonChecksumMismatch, hubErr.Reason)

	// The first verification runs after the 10th chunk; nothing more
	// is streamed after the mismatch.
	assert.Equal(t, 10, hub.programFrames)
	assert.Equal(t, 1, hub.checksumRequests)
	assert.Equal(t, 1, transport.countSent(protocol.CmdDisconnect))
	assert.Equal(t, 1, transport.disconnectCalls)
}

func TestFlashEraseTimeoutTreatedAsSuccess(t *testing.T) {
	hub := newScriptedHub(protocol.HubTypeCityHub)
	hub.muteErase = true
	transport := hub.attach(newFakeTransport())
	flasher := newTestFlasher(transport,
		WithEraseTimeout(20*time.Millisecond),
	)

	err := flasher.Flash(context.Background(), Request{
		Archive: testArchive(t, protocol.HubTypeCityHub),
	})
	require.NoError(t, err)

	// City hubs take the erase variant flag.
	erase := transport.sent()[1]
	assert.Equal(t, []byte{protocol.CmdEraseFlash, 0x01}, erase)
	assert.Equal(t, uint32(testImageSize), hub.received)
}

func TestFlashEraseVariantFlagDefault(t *testing.T) {
	hub := newScriptedHub(protocol.HubTypeTechnicHub)
	transport := hub.attach(newFakeTransport())
	flasher := newTestFlasher(transport)

	err := flasher.Flash(context.Background(), Request{
		Archive: testArchive(t, protocol.HubTypeTechnicHub),
	})
	require.NoError(t, err)

	erase := transport.sent()[1]
	assert.Equal(t, []byte{protocol.CmdEraseFlash, 0x00}, erase)
}

func TestFlashEraseRejected(t *testing.T) {
	hub := newScriptedHub(protocol.HubTypeTechnicHub)
	hub.eraseResult = protocol.ResultError
	transport := hub.attach(newFakeTransport())
	flasher := newTestFlasher(transport)

	err := flasher.Flash(context.Background(), Request{
		Archive: testArchive(t, protocol.HubTypeTechnicHub),
	})

	var hubErr *HubError
	require.ErrorAs(t, err, &hubErr)
	assert.Equal(t, ReasonEraseFailed, hubErr.Reason)
	assert.Equal(t, 0, hub.programFrames)
}

func TestFlashInitRejected(t *testing.T) {
	hub := newScriptedHub(protocol.HubTypeTechnicHub)
	hub.initResult = protocol.ResultError
	transport := hub.attach(newFakeTransport())
	flasher := newTestFlasher(transport)

	err := flasher.Flash(context.Background(), Request{
		Archive: testArchive(t, protocol.HubTypeTechnicHub),
	})

	var hubErr *HubError
	require.ErrorAs(t, err, &hubErr)
	assert.Equal(t, ReasonInitFailed, hubErr.Reason)
	assert.Equal(t, 0, hub.programFrames)
}

func TestFlashCountMismatch(t *testing.T) {
	hub := newScriptedHub(protocol.HubTypeTechnicHub)
	hub.countDelta = 1
	transport := hub.attach(newFakeTransport())
	flasher := newTestFlasher(transport)

	err := flasher.Flash(context.Background(), Request{
		Archive: testArchive(t, protocol.HubTypeTechnicHub),
	})

	var hubErr *HubError
	require.ErrorAs(t, err, &hubErr)
	assert.Equal(t, ReasonCountMismatch, hubErr.Reason)
}

func TestFlashDeviceMismatch(t *testing.T) {
	hub := newScriptedHub(protocol.HubTypeTechnicHub)
	transport := hub.attach(newFakeTransport())
	flasher := newTestFlasher(transport)

	err := flasher.Flash(context.Background(), Request{
		Archive: testArchive(t, protocol.HubTypeMoveHub),
	})

	var mismatch *DeviceMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, protocol.HubTypeMoveHub, mismatch.Expected)
	assert.Equal(t, protocol.HubTypeTechnicHub, mismatch.Actual)
	assert.Equal(t, 1, transport.disconnectCalls)
	assert.Equal(t, 0, hub.programFrames)
}

func TestFlashHubRejectsProgramming(t *testing.T) {
	hub := newScriptedHub(protocol.HubTypeTechnicHub)
	hub.rejectProgram = true
	transport := hub.attach(newFakeTransport())
	flasher := newTestFlasher(transport)

	err := flasher.Flash(context.Background(), Request{
		Archive: testArchive(t, protocol.HubTypeTechnicHub),
	})

	var hubErr *HubError
	require.ErrorAs(t, err, &hubErr)
	assert.Equal(t, ReasonUnknownCommand, hubErr.Reason)

	var rejected *protocol.HubRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, byte(protocol.CmdProgramFlash), rejected.Command)
}

func TestFlashProgramFileReadFailure(t *testing.T) {
	readErr := errors.New("permission denied")
	transport := newFakeTransport()
	flasher := newTestFlasher(transport,
		WithFileReader(&fakeFileReader{err: readErr}),
	)

	err := flasher.Flash(context.Background(), Request{
		Archive:     testArchive(t, protocol.HubTypeTechnicHub),
		ProgramPath: "main.py",
	})

	require.ErrorIs(t, err, readErr)
	// A bad program path must fail before the hub is ever touched: no
	// connection, no frames, and no disconnect of a link that never was.
	assert.Equal(t, 0, transport.connectCalls)
	assert.Empty(t, transport.sent())
	assert.Equal(t, 0, transport.disconnectCalls)
}

func TestFlashConnectFailure(t *testing.T) {
	transport := newFakeTransport()
	transport.connectErr = errors.New("device unreachable")
	flasher := newTestFlasher(transport)

	err := flasher.Flash(context.Background(), Request{
		Archive: testArchive(t, protocol.HubTypeTechnicHub),
	})

	var connect *FailedToConnectError
	require.ErrorAs(t, err, &connect)

	// A failed connection attempt leaves nothing to tear down.
	assert.Empty(t, transport.sent())
	assert.Equal(t, 0, transport.disconnectCalls)
}

func TestFlashFetchesArchiveByHubType(t *testing.T) {
	hub := newScriptedHub(protocol.HubTypeTechnicHub)
	transport := hub.attach(newFakeTransport())

	fetcher := &fakeFetcher{archives: map[protocol.HubType][]byte{
		protocol.HubTypeTechnicHub: testArchive(t, protocol.HubTypeTechnicHub),
	}}
	flasher := newTestFlasher(transport, WithFetcher(fetcher))

	err := flasher.Flash(context.Background(), Request{})
	require.NoError(t, err)

	assert.Equal(t, []protocol.HubType{protocol.HubTypeTechnicHub}, fetcher.calls)
	assert.Equal(t, uint32(testImageSize), hub.received)
}

func TestFlashNoFirmwareForHub(t *testing.T) {
	hub := newScriptedHub(protocol.HubTypeEssentialHub)
	transport := hub.attach(newFakeTransport())
	flasher := newTestFlasher(transport)

	err := flasher.Flash(context.Background(), Request{})

	var noFirmware *NoFirmwareError
	require.ErrorAs(t, err, &noFirmware)
	assert.Equal(t, protocol.HubTypeEssentialHub, noFirmware.Hub)
	assert.Equal(t, 1, transport.disconnectCalls)
}

func TestFlashFetchFailure(t *testing.T) {
	hub := newScriptedHub(protocol.HubTypePrimeHub)
	transport := hub.attach(newFakeTransport())
	flasher := newTestFlasher(transport, WithFetcher(&fakeFetcher{}))

	err := flasher.Flash(context.Background(), Request{})

	var fetchErr *firmware.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, 404, fetchErr.StatusCode)
}

func TestFlashSequentialAttempts(t *testing.T) {
	archive := testArchive(t, protocol.HubTypeTechnicHub)

	flasher := newTestFlasher(
		newScriptedHub(protocol.HubTypeTechnicHub).attach(newFakeTransport()),
	)

	// A Flasher is reusable; rebuild the transport wiring per attempt
	// the way a caller reconnecting to a hub would.
	for i := 0; i < 2; i++ {
		hub := newScriptedHub(protocol.HubTypeTechnicHub)
		transport := hub.attach(newFakeTransport())
		flasher.transport = transport

		err := flasher.Flash(context.Background(), Request{Archive: archive})
		require.NoError(t, err)
		assert.Equal(t, uint32(testImageSize), hub.received)
	}
}

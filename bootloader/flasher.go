package bootloader

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/hubflash/go-hubflash/firmware"
	"github.com/hubflash/go-hubflash/protocol"
)

// Request describes one flash attempt.
type Request struct {
	// Archive is a pre-supplied packaged firmware archive. When nil,
	// the matching archive is fetched by detected hub type after
	// identification (the standard install flow).
	Archive []byte

	// ProgramPath is an optional custom user program source file,
	// read through the configured FileReader before the image is built
	ProgramPath string

	// HubName is an optional custom hub name to embed in the firmware
	HubName string
}

// Flasher drives the complete firmware flash sequence over a hub's
// BLE bootloader: connect, identify, erase, initialize, stream the
// image in chunks with periodic integrity checks, finalize and reboot.
//
// A Flasher may be reused for sequential attempts; concurrent attempts
// on one Flasher are not coordinated and must be serialized by the
// caller.
type Flasher struct {
	transport Transport
	builder   *firmware.Builder
	config    Config

	// messageIDs is shared across attempts; ids only need per-session
	// uniqueness, monotonicity across attempts is a free extra
	messageIDs atomic.Uint32
}

// New creates a Flasher for the given transport and image builder.
//
// Example:
//
//	builder := firmware.NewBuilder(&firmware.CommandCompiler{Path: "mpy-cross"})
//	flasher := bootloader.New(transport, builder,
//	    bootloader.WithFetcher(&firmware.HTTPFetcher{BaseURL: releaseURL}),
//	    bootloader.WithProgressCallback(progressFunc),
//	)
func New(transport Transport, builder *firmware.Builder, opts ...Option) *Flasher {
	if transport == nil {
		panic("transport cannot be nil")
	}
	if builder == nil {
		panic("builder cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Flasher{
		transport: transport,
		builder:   builder,
		config:    cfg,
	}
}

// Flash runs one complete flash attempt. Any fatal condition cancels
// the remaining sequence, attempts a best-effort disconnect and
// surfaces a typed error from the package taxonomy; unexpected
// failures are wrapped in UnknownError.
func (f *Flasher) Flash(ctx context.Context, req Request) error {
	sess := newSession(&f.messageIDs)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eng := newEngine(f.transport, sess, f.config.Logger)
	eng.cancel = cancel

	f.logInfo("flash attempt started", "session", sess.id.String())

	err := f.flash(ctx, eng, sess, req)
	if err != nil {
		err = classify(err)
		// Every failure past connection leaves the transport disconnected.
		eng.disconnectAndAbort()
		f.logError("flash attempt failed", "session", sess.id.String(), "error", err)
		return err
	}

	f.logInfo("flash attempt succeeded", "session", sess.id.String(), "bytes", sess.total)
	return nil
}

// flash is the state machine body; Flash wraps it with abort handling.
func (f *Flasher) flash(ctx context.Context, eng *engine, sess *session, req Request) error {
	// Read the custom program before touching the device so a bad path
	// fails without any connection.
	var source string
	if req.ProgramPath != "" {
		data, err := f.config.FileReader.ReadFile(ctx, req.ProgramPath)
		if err != nil {
			return err
		}
		source = string(data)
	}

	// With a pre-supplied archive the image is built up front, fixing
	// the target hub type before the connection exists.
	var img *firmware.Image
	if req.Archive != nil {
		f.reportProgress(sess.progress(PhaseBuilding, 0))
		var err error
		img, err = f.builder.Build(ctx, req.Archive, source, req.HubName)
		if err != nil {
			return err
		}
	}

	f.reportProgress(sess.progress(PhaseConnecting, 0))
	if err := f.transport.Connect(ctx); err != nil {
		return &FailedToConnectError{Cause: err}
	}
	eng.connected = true

	info, err := f.identify(ctx, eng, sess)
	if err != nil {
		return err
	}

	if img != nil && img.DeviceID != info.HubType {
		return &DeviceMismatchError{Expected: img.DeviceID, Actual: info.HubType}
	}

	// Standard install flow: select the packaged archive matching the
	// detected hub type, then apply the same mismatch rule.
	if img == nil {
		img, err = f.fetchAndBuild(ctx, sess, info.HubType, source, req.HubName)
		if err != nil {
			return err
		}
		if img.DeviceID != info.HubType {
			return &DeviceMismatchError{Expected: img.DeviceID, Actual: info.HubType}
		}
	}

	sess.total = len(img.Data)

	if err := f.erase(ctx, eng, sess, info); err != nil {
		return err
	}
	if err := f.initialize(ctx, eng, sess); err != nil {
		return err
	}
	if err := f.program(ctx, eng, sess, info, img.Data); err != nil {
		return err
	}
	if err := f.finalize(ctx, eng, sess); err != nil {
		return err
	}

	// Reboot into the new firmware. The hub disconnects as a side
	// effect, so only the request acknowledgment is awaited.
	f.reportProgress(sess.progress(PhaseRebooting, 1))
	if err := eng.sendAndAwaitAck(ctx, protocol.BuildStartAppCmd()); err != nil {
		return err
	}

	f.reportProgress(sess.progress(PhaseComplete, 1))
	return nil
}

// identify requests hub info after connecting.
func (f *Flasher) identify(ctx context.Context, eng *engine, sess *session) (*protocol.HubInfo, error) {
	f.reportProgress(sess.progress(PhaseIdentifying, 0))

	if err := eng.sendAndAwaitAck(ctx, protocol.BuildGetInfoCmd()); err != nil {
		return nil, err
	}
	frame, err := eng.awaitResponse(ctx, isResponseTo(protocol.CmdGetInfo), f.config.RequestTimeout, false)
	if err != nil {
		return nil, err
	}
	info, err := protocol.ParseGetInfoResponse(frame)
	if err != nil {
		return nil, err
	}

	sess.info = info
	f.logDebug("hub identified",
		"session", sess.id.String(),
		"hub", info.HubType.String(),
		"bootloader_version", info.Version,
		"flash_start", fmt.Sprintf("0x%08X", info.StartAddress),
		"flash_end", fmt.Sprintf("0x%08X", info.EndAddress),
	)
	return info, nil
}

// fetchAndBuild retrieves the packaged archive for the detected hub
// type and builds the image from it.
func (f *Flasher) fetchAndBuild(ctx context.Context, sess *session, hub protocol.HubType, source, hubName string) (*firmware.Image, error) {
	if f.config.Fetcher == nil {
		return nil, &NoFirmwareError{Hub: hub}
	}

	archive, err := f.config.Fetcher.Fetch(ctx, hub)
	if err != nil {
		return nil, err
	}

	f.reportProgress(sess.progress(PhaseBuilding, 0))
	return f.builder.Build(ctx, archive, source, hubName)
}

// erase wipes the firmware flash region. A missing acknowledgment is
// treated as success: several bootloaders erase correctly but never
// answer, and failing here would abort working flashes.
func (f *Flasher) erase(ctx context.Context, eng *engine, sess *session, info *protocol.HubInfo) error {
	f.reportProgress(sess.progress(PhaseErasing, 0))

	variant := info.HubType.NeedsEraseWorkaround()
	if err := eng.sendAndAwaitAck(ctx, protocol.BuildEraseCmd(variant)); err != nil {
		return err
	}

	frame, err := eng.awaitResponse(ctx, isResponseTo(protocol.CmdEraseFlash), f.config.EraseTimeout, true)
	if errors.Is(err, ErrTimeout) {
		f.logInfo("no erase acknowledgment, assuming success", "session", sess.id.String())
		return nil
	}
	if err != nil {
		return err
	}

	result, err := protocol.ParseResultResponse(frame, protocol.CmdEraseFlash)
	if err != nil {
		return err
	}
	if result != protocol.ResultOK {
		return &HubError{Reason: ReasonEraseFailed, Detail: fmt.Sprintf("result 0x%02X", result)}
	}
	return nil
}

// initialize announces the total image size to the loader.
func (f *Flasher) initialize(ctx context.Context, eng *engine, sess *session) error {
	f.reportProgress(sess.progress(PhaseInitializing, 0))

	if err := eng.sendAndAwaitAck(ctx, protocol.BuildInitCmd(uint32(sess.total))); err != nil {
		return err
	}
	frame, err := eng.awaitResponse(ctx, isResponseTo(protocol.CmdInitLoader), f.config.RequestTimeout, false)
	if err != nil {
		return err
	}
	result, err := protocol.ParseResultResponse(frame, protocol.CmdInitLoader)
	if err != nil {
		return err
	}
	if result != protocol.ResultOK {
		return &HubError{Reason: ReasonInitFailed, Detail: fmt.Sprintf("result 0x%02X", result)}
	}
	return nil
}

// program streams the image in chunks, maintaining the running XOR
// checksum and cross-checking it against the hub every 10th chunk.
// The final chunk is exempt: its response already carries the final
// count and checksum, verified in finalize.
func (f *Flasher) program(ctx context.Context, eng *engine, sess *session, info *protocol.HubInfo, image []byte) error {
	chunkSize := info.HubType.MaxChunkSize()
	if f.config.ChunkLimit > 0 && f.config.ChunkLimit < chunkSize {
		chunkSize = f.config.ChunkLimit
	}

	f.logDebug("programming", "session", sess.id.String(), "bytes", len(image), "chunk_size", chunkSize)

	chunk := 0
	for sess.offset < len(image) {
		end := sess.offset + chunkSize
		if end > len(image) {
			end = len(image)
		}
		payload := image[sess.offset:end]

		frame, err := protocol.BuildProgramCmd(info.StartAddress+uint32(sess.offset), payload)
		if err != nil {
			return err
		}
		if err := eng.sendAndAwaitAck(ctx, frame); err != nil {
			return err
		}

		sess.update(payload)
		chunk++
		f.reportProgress(sess.progress(PhaseProgramming, float64(sess.offset)/float64(len(image))))

		final := sess.offset == len(image)
		if !final && chunk%10 == 0 {
			if err := f.verifyChecksum(ctx, eng, sess); err != nil {
				return err
			}
		}
	}

	return nil
}

// verifyChecksum asks the hub for its running checksum and compares it
// to the host accumulator.
func (f *Flasher) verifyChecksum(ctx context.Context, eng *engine, sess *session) error {
	if err := eng.sendAndAwaitAck(ctx, protocol.BuildGetChecksumCmd()); err != nil {
		return err
	}
	frame, err := eng.awaitResponse(ctx, isResponseTo(protocol.CmdGetChecksum), f.config.ProgramTimeout, false)
	if err != nil {
		return err
	}
	remote, err := protocol.ParseChecksumResponse(frame)
	if err != nil {
		return err
	}
	if remote != sess.checksum {
		return &HubError{
			Reason: ReasonChecksumMismatch,
			Detail: fmt.Sprintf("hub 0x%02X, host 0x%02X at offset %d", remote, sess.checksum, sess.offset),
		}
	}
	return nil
}

// finalize awaits the terminal program response and verifies the
// reported byte count and checksum against the session state.
func (f *Flasher) finalize(ctx context.Context, eng *engine, sess *session) error {
	f.reportProgress(sess.progress(PhaseFinalizing, 1))

	frame, err := eng.awaitResponse(ctx, isProgramResult, f.config.ProgramTimeout, false)
	if err != nil {
		return err
	}
	result, err := protocol.ParseProgramResponse(frame)
	if err != nil {
		return err
	}

	if int(result.Count) != sess.total {
		return &HubError{
			Reason: ReasonCountMismatch,
			Detail: fmt.Sprintf("hub received %d bytes, sent %d", result.Count, sess.total),
		}
	}
	if result.Checksum != sess.checksum {
		return &HubError{
			Reason: ReasonChecksumMismatch,
			Detail: fmt.Sprintf("hub 0x%02X, host 0x%02X", result.Checksum, sess.checksum),
		}
	}
	return nil
}

// isResponseTo returns a frame predicate matching responses to cmd.
func isResponseTo(cmd byte) func([]byte) bool {
	return func(frame []byte) bool {
		return protocol.IsResponseTo(frame, cmd)
	}
}

// isProgramResult matches only the terminal program response, not the
// short per-chunk echoes some bootloader versions emit.
func isProgramResult(frame []byte) bool {
	return protocol.IsResponseTo(frame, protocol.CmdProgramFlash) &&
		len(frame) == 1+protocol.ProgramResponseSize
}

// classify maps raw failures onto the package error taxonomy.
// Known typed errors pass through; a hub error frame becomes
// HubError(UnknownCommand); anything else is wrapped as UnknownError.
func classify(err error) error {
	var (
		rejected      *protocol.HubRejectedError
		hubErr        *HubError
		mismatch      *DeviceMismatchError
		noFirmware    *NoFirmwareError
		failedConnect *FailedToConnectError
		transportRej  *TransportRejectedError
		fetchErr      *firmware.FetchError
		archiveErr    *firmware.ArchiveError
		metaErr       *firmware.UnsupportedMetadataError
		tooLarge      *firmware.FirmwareTooLargeError
		compileErr    *firmware.CompileError
		nameErr       *firmware.NameTooLongError
	)

	switch {
	case errors.As(err, &rejected):
		return &HubError{Reason: ReasonUnknownCommand, Cause: err}
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrDisconnected),
		errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &hubErr), errors.As(err, &mismatch),
		errors.As(err, &noFirmware), errors.As(err, &failedConnect),
		errors.As(err, &transportRej), errors.As(err, &fetchErr),
		errors.As(err, &archiveErr), errors.As(err, &metaErr),
		errors.As(err, &tooLarge), errors.As(err, &compileErr),
		errors.As(err, &nameErr):
		return err
	default:
		return &UnknownError{Cause: err}
	}
}

func (f *Flasher) reportProgress(progress Progress) {
	if f.config.ProgressCallback != nil {
		f.config.ProgressCallback(progress)
	}
}

func (f *Flasher) logDebug(msg string, keysAndValues ...interface{}) {
	if f.config.Logger != nil {
		f.config.Logger.Debug(msg, keysAndValues...)
	}
}

func (f *Flasher) logInfo(msg string, keysAndValues ...interface{}) {
	if f.config.Logger != nil {
		f.config.Logger.Info(msg, keysAndValues...)
	}
}

func (f *Flasher) logError(msg string, keysAndValues ...interface{}) {
	if f.config.Logger != nil {
		f.config.Logger.Error(msg, keysAndValues...)
	}
}

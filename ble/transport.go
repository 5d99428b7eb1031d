package ble

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/hubflash/go-hubflash/bootloader"
)

// GATT identifiers of the hub bootloader service.
const (
	// ServiceUUID is the bootloader GATT service
	ServiceUUID = "00001625-1212-efde-1623-785feabcd123"

	// CharacteristicUUID is the bootloader's single command
	// characteristic; requests go out as writes without response,
	// responses come back as notifications
	CharacteristicUUID = "00001626-1212-efde-1623-785feabcd123"
)

// DefaultScanTimeout bounds the advertisement scan during Connect.
const DefaultScanTimeout = 30 * time.Second

// Transport implements bootloader.Transport over Bluetooth Low Energy.
// It scans for a hub advertising the bootloader service, connects and
// moves raw frames over the bootloader characteristic.
type Transport struct {
	adapter     *bluetooth.Adapter
	name        string
	scanTimeout time.Duration

	mu        sync.Mutex
	device    bluetooth.Device
	char      bluetooth.DeviceCharacteristic
	connected bool

	sendResults  chan bootloader.SendResult
	frames       chan []byte
	disconnected chan struct{}
	dropOnce     sync.Once
}

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithDeviceName restricts scanning to hubs advertising the given
// local name. An empty name matches any hub advertising the
// bootloader service.
func WithDeviceName(name string) TransportOption {
	return func(t *Transport) { t.name = name }
}

// WithScanTimeout bounds the advertisement scan. Default is 30s.
func WithScanTimeout(timeout time.Duration) TransportOption {
	return func(t *Transport) {
		if timeout > 0 {
			t.scanTimeout = timeout
		}
	}
}

// NewTransport creates a Transport on the platform's default BLE
// adapter.
func NewTransport(opts ...TransportOption) *Transport {
	t := &Transport{
		adapter:      bluetooth.DefaultAdapter,
		scanTimeout:  DefaultScanTimeout,
		sendResults:  make(chan bootloader.SendResult, 16),
		frames:       make(chan []byte, 64),
		disconnected: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Connect scans for a hub in bootloader mode, connects and subscribes
// to response notifications.
func (t *Transport) Connect(ctx context.Context) error {
	if err := t.adapter.Enable(); err != nil {
		return fmt.Errorf("enable ble adapter: %w", err)
	}

	serviceUUID, err := bluetooth.ParseUUID(ServiceUUID)
	if err != nil {
		return err
	}
	charUUID, err := bluetooth.ParseUUID(CharacteristicUUID)
	if err != nil {
		return err
	}

	result, err := t.scan(ctx, serviceUUID)
	if err != nil {
		return err
	}

	t.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if !connected {
			t.drop()
		}
	})

	device, err := t.adapter.Connect(result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return fmt.Errorf("connect to %s: %w", result.Address, err)
	}

	services, err := device.DiscoverServices([]bluetooth.UUID{serviceUUID})
	if err != nil {
		_ = device.Disconnect()
		return fmt.Errorf("discover bootloader service: %w", err)
	}
	if len(services) == 0 {
		_ = device.Disconnect()
		return fmt.Errorf("hub does not expose the bootloader service")
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{charUUID})
	if err != nil {
		_ = device.Disconnect()
		return fmt.Errorf("discover bootloader characteristic: %w", err)
	}
	if len(chars) == 0 {
		_ = device.Disconnect()
		return fmt.Errorf("hub does not expose the bootloader characteristic")
	}
	char := chars[0]

	err = char.EnableNotifications(func(buf []byte) {
		frame := append([]byte(nil), buf...)
		select {
		case t.frames <- frame:
		default:
			// inbound queue full; the protocol never gets this far
			// behind, drop rather than block the BLE stack
		}
	})
	if err != nil {
		_ = device.Disconnect()
		return fmt.Errorf("enable notifications: %w", err)
	}

	t.mu.Lock()
	t.device = device
	t.char = char
	t.connected = true
	t.mu.Unlock()
	return nil
}

// scan waits for an advertisement carrying the bootloader service.
func (t *Transport) scan(ctx context.Context, serviceUUID bluetooth.UUID) (bluetooth.ScanResult, error) {
	found := make(chan bluetooth.ScanResult, 1)
	scanErr := make(chan error, 1)

	go func() {
		err := t.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !result.AdvertisementPayload.HasServiceUUID(serviceUUID) {
				return
			}
			if t.name != "" && result.LocalName() != t.name {
				return
			}
			select {
			case found <- result:
			default:
			}
			_ = adapter.StopScan()
		})
		if err != nil {
			scanErr <- err
		}
	}()

	timer := time.NewTimer(t.scanTimeout)
	defer timer.Stop()

	select {
	case result := <-found:
		return result, nil
	case err := <-scanErr:
		return bluetooth.ScanResult{}, fmt.Errorf("scan: %w", err)
	case <-timer.C:
		_ = t.adapter.StopScan()
		return bluetooth.ScanResult{}, fmt.Errorf("no hub in bootloader mode found within %s", t.scanTimeout)
	case <-ctx.Done():
		_ = t.adapter.StopScan()
		return bluetooth.ScanResult{}, ctx.Err()
	}
}

// Disconnect drops the connection. Safe to call when already
// disconnected.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	device := t.device
	wasConnected := t.connected
	t.connected = false
	t.mu.Unlock()

	t.drop()
	if !wasConnected {
		return nil
	}
	return device.Disconnect()
}

// Send writes a request frame to the bootloader characteristic.
// BLE writes without response have no delivery report, so the write
// outcome doubles as the acknowledgment on SendResults.
func (t *Transport) Send(id uint32, frame []byte) error {
	t.mu.Lock()
	char := t.char
	connected := t.connected
	t.mu.Unlock()

	if !connected {
		return fmt.Errorf("not connected")
	}

	_, err := char.WriteWithoutResponse(frame)
	t.sendResults <- bootloader.SendResult{ID: id, Err: err}
	return nil
}

// SendResults implements bootloader.Transport.
func (t *Transport) SendResults() <-chan bootloader.SendResult {
	return t.sendResults
}

// Frames implements bootloader.Transport.
func (t *Transport) Frames() <-chan []byte {
	return t.frames
}

// Disconnected implements bootloader.Transport.
func (t *Transport) Disconnected() <-chan struct{} {
	return t.disconnected
}

func (t *Transport) drop() {
	t.dropOnce.Do(func() { close(t.disconnected) })
}

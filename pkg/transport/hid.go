package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/sstallion/go-hid"

	"github.com/openmicromirror/dlpc900ctl/pkg/logger"
)

// DefaultVendorID and DefaultProductID identify the DLPC900 over USB.
const (
	DefaultVendorID  = 0x0451
	DefaultProductID = 0xC900
)

var hidInitOnce sync.Once
var hidInitErr error

// HIDTransport is the real Transport backed by github.com/sstallion/go-hid.
type HIDTransport struct {
	log *logger.Logger
	dev *hid.Device
	mu  sync.Mutex
}

// OpenHID opens a DLPC900 by OS device path (preferred, stable across
// reboots on multi-DMD systems) or, if path is empty, by VID/PID of the
// first matching device.
func OpenHID(path string, log *logger.Logger) (*HIDTransport, error) {
	hidInitOnce.Do(func() { hidInitErr = hid.Init() })
	if hidInitErr != nil {
		return nil, fmt.Errorf("transport: hid init: %w", hidInitErr)
	}

	var dev *hid.Device
	var err error
	if path != "" {
		dev, err = hid.OpenPath(path)
	} else {
		dev, err = hid.Open(DefaultVendorID, DefaultProductID, "")
	}
	if err != nil {
		return nil, fmt.Errorf("transport: open device: %w", err)
	}

	return &HIDTransport{
		log: log.WithComponent("transport.hid"),
		dev: dev,
	}, nil
}

// SendFrame writes one 64-byte report to the device.
func (t *HIDTransport) SendFrame(frame [FrameSize]byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, err := t.dev.Write(frame[:])
	if err != nil {
		return fmt.Errorf("transport: write: %w", err)
	}
	if n != FrameSize {
		t.log.Warn("short write", logger.Int("wrote", n), logger.Int("want", FrameSize))
	}
	return nil
}

// ReadFrame reads one report, blocking at most timeout.
func (t *HIDTransport) ReadFrame(timeout time.Duration) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	buf := make([]byte, FrameSize)
	n, err := t.dev.ReadWithTimeout(buf, timeout)
	if err != nil {
		return nil, fmt.Errorf("transport: read: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("transport: read timed out after %s", timeout)
	}
	return buf[:n], nil
}

// Close releases the device handle.
func (t *HIDTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dev.Close()
}

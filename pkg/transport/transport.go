// Package transport abstracts the USB-HID link to a DLPC900 controller:
// sending fixed-size reports and reading replies with a deadline.
package transport

import "time"

// FrameSize is the fixed USB-HID report length used on the wire.
const FrameSize = 64

// Transport sends and receives raw 64-byte USB-HID reports. Implementations
// are not required to be safe for concurrent use; callers serialize access
// (see pkg/protocol's framer).
type Transport interface {
	// SendFrame writes one 64-byte report to the device.
	SendFrame(frame [FrameSize]byte) error

	// ReadFrame reads one report from the device, blocking at most
	// timeout before returning a timeout error.
	ReadFrame(timeout time.Duration) ([]byte, error)

	// Close releases the underlying device handle.
	Close() error
}

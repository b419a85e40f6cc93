// Package lut programs the DLPC900's pattern lookup table: mode
// transitions (start/stop/pause), LUT sizing, per-entry exposure/trigger
// definitions, and the raw pattern-memory load commands that push
// compressed bitmaps into the controller's pattern memory.
package lut

import (
	"encoding/binary"
	"sync"

	"github.com/openmicromirror/dlpc900ctl/pkg/protocol"
)

// State is the controller's position in the on-the-fly pattern
// programming sequence.
type State int

const (
	StateStopped State = iota
	StateConfigured
	StateLoaded
	StateArmed
	StateRunning
)

// String returns the human-readable name of a State.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateConfigured:
		return "configured"
	case StateLoaded:
		return "loaded"
	case StateArmed:
		return "armed"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Controller drives the PAT_CONFIG/MBOX_DATA/PATMEM_LOAD/PAT_START_STOP
// command group and tracks the sequence's programming state.
type Controller struct {
	f *protocol.Framer

	mu    sync.RWMutex
	state State
}

// New wraps a Framer with pattern-LUT programming operations.
func New(f *protocol.Framer) *Controller {
	return &Controller{f: f, state: StateStopped}
}

// State returns the controller's current position in the programming
// sequence.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// sequence bytes for PAT_START_STOP bypass the framer's normal
// auto-incrementing counter; the controller expects these fixed values.
const (
	startStopSeqStop  = 0x05
	startStopSeqPause = 0x00
	startStopSeqStart = 0x08
)

// Stop halts the running pattern sequence. No reply is awaited, matching
// the original control library's behavior for this command.
func (c *Controller) Stop() error {
	err := c.f.Send(protocol.Packet{
		Opcode:   protocol.OpPatStartStop,
		Sequence: startStopSeqStop,
		Payload:  []byte{0x00},
	})
	if err != nil {
		return err
	}
	c.setState(StateStopped)
	return nil
}

// Pause suspends the sequence at its current pattern.
func (c *Controller) Pause() error {
	return c.f.Send(protocol.Packet{
		Opcode:   protocol.OpPatStartStop,
		Sequence: startStopSeqPause,
		Payload:  []byte{0x01},
	})
}

// Start begins (or resumes) the pattern sequence.
func (c *Controller) Start() error {
	err := c.f.Send(protocol.Packet{
		Opcode:   protocol.OpPatStartStop,
		Sequence: startStopSeqStart,
		Payload:  []byte{0x02},
	})
	if err != nil {
		return err
	}
	c.setState(StateRunning)
	return nil
}

// Configure sets the number of LUT entries in use and how many times the
// sequence repeats (0 means repeat forever). Stop the sequence first.
func (c *Controller) Configure(numPatterns int, numRepeat uint32) error {
	if numPatterns < 0 || numPatterns > protocol.MaxLUTIndex {
		return &protocol.ValidationError{Field: "numPatterns", Reason: "must be between 0 and 511"}
	}

	payload := make([]byte, 6)
	binary.LittleEndian.PutUint16(payload[0:2], uint16(numPatterns))
	binary.LittleEndian.PutUint32(payload[2:6], numRepeat)

	_, err := c.f.SendAndAwaitReply(protocol.Packet{Opcode: protocol.OpPatConfig, Payload: payload})
	if err != nil {
		return err
	}
	c.setState(StateConfigured)
	return nil
}

// Definition describes one LUT entry's exposure and trigger behavior,
// the fields sent by MBOX_DATA.
type Definition struct {
	SequencePositionIndex int
	ExposureMicros        uint32
	DarkTimeMicros        uint16
	WaitForTrigger        bool
	ClearAfterTrigger     bool
	DisableTrigger2       bool
	StoredImageIndex      byte
	StoredImageBitIndex   byte
}

// miscByte packs the clear/LED-enable/wait-for-trigger bits expected by
// MBOX_DATA. The controller always runs 1-bit-depth patterns with LEDs
// under pattern control, so the bit-depth and LED-enable fields are fixed.
func miscByte(d Definition) byte {
	var b byte
	if d.ClearAfterTrigger {
		b |= 0x01
	}
	b |= 0x10 // LED enable code, fixed at 1-bit depth
	if d.WaitForTrigger {
		b |= 0x80
	}
	return b
}

// Define writes a single LUT entry's exposure, dark time, and trigger
// configuration. Display mode must be set first; Configure follows once
// every entry has been defined.
func (c *Controller) Define(d Definition) error {
	payload := make([]byte, 12)
	binary.LittleEndian.PutUint16(payload[0:2], uint16(d.SequencePositionIndex))

	var exposure [4]byte
	binary.LittleEndian.PutUint32(exposure[:], d.ExposureMicros)
	copy(payload[2:5], exposure[:3])

	payload[5] = miscByte(d)

	binary.LittleEndian.PutUint16(payload[6:8], d.DarkTimeMicros)
	payload[8] = 0

	if d.DisableTrigger2 {
		payload[9] = 0x00
	} else {
		payload[9] = 0x01
	}
	payload[10] = d.StoredImageIndex
	payload[11] = 8 * d.StoredImageBitIndex

	_, err := c.f.SendAndAwaitReply(protocol.Packet{Opcode: protocol.OpMboxData, Payload: payload})
	return err
}

// LoadInit announces an upcoming pattern-memory load: the index it will
// occupy and the total byte length (header + compressed body) to expect.
// primaryController selects the master vs. secondary controller opcode,
// relevant only for dual-controller (DLP9000) panels.
func (c *Controller) LoadInit(patternIndex int, patternLength int, primaryController bool) error {
	op := protocol.OpPatMemLoadInitMaster
	if !primaryController {
		op = protocol.OpPatMemLoadInitSecondary
	}

	payload := make([]byte, 6)
	binary.LittleEndian.PutUint16(payload[0:2], uint16(patternIndex))
	binary.LittleEndian.PutUint32(payload[2:6], uint32(patternLength))

	_, err := c.f.SendAndAwaitReply(protocol.Packet{Opcode: op, Payload: payload})
	return err
}

// LoadData streams a pattern's 48-byte header plus compressed body to
// pattern memory, chunked into pieces no larger than
// protocol.MaxCommandPayload, each prefixed with its own length.
func (c *Controller) LoadData(header []byte, body []byte, primaryController bool) error {
	op := protocol.OpPatMemLoadDataMaster
	if !primaryController {
		op = protocol.OpPatMemLoadDataSecondary
	}

	data := make([]byte, 0, len(header)+len(body))
	data = append(data, header...)
	data = append(data, body...)

	for offset := 0; offset < len(data); offset += protocol.MaxCommandPayload {
		end := offset + protocol.MaxCommandPayload
		if end > len(data) {
			end = len(data)
		}
		chunk := data[offset:end]

		payload := make([]byte, 2+len(chunk))
		binary.LittleEndian.PutUint16(payload[0:2], uint16(len(chunk)))
		copy(payload[2:], chunk)

		if err := c.f.Send(protocol.Packet{Opcode: op, Payload: payload}); err != nil {
			return err
		}
	}

	c.setState(StateLoaded)
	return nil
}

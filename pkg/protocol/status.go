package protocol

import "fmt"

// StatusBits reports which named status conditions are currently set,
// decoded from a single status byte against a bit-name table.
type StatusBits map[string]bool

func decodeStatusByte(b byte, names [8]string) StatusBits {
	bits := make(StatusBits, 8)
	for i, name := range names {
		bits[name] = b&(1<<uint(i)) != 0
	}
	return bits
}

// ReadErrorCode retrieves the error code of the last executed command.
func (f *Framer) ReadErrorCode() (int, string, error) {
	reply, err := f.SendAndAwaitReply(Packet{Opcode: OpReadErrorCode, Read: true})
	if err != nil {
		return 0, "", err
	}
	if len(reply.Payload) == 0 {
		return 0, "", &ProtocolError{Reason: "empty Read_Error_Code reply"}
	}
	code := int(reply.Payload[0])
	return code, ErrorDescription(code), nil
}

// ReadErrorDescription retrieves the free-text description of the last
// error, NUL-terminated in the reply payload.
func (f *Framer) ReadErrorDescription() (string, error) {
	reply, err := f.SendAndAwaitReply(Packet{Opcode: OpReadErrorDescription, Read: true})
	if err != nil {
		return "", err
	}

	end := len(reply.Payload)
	for i, b := range reply.Payload {
		if b == 0 {
			end = i
			break
		}
	}
	return string(reply.Payload[:end]), nil
}

// GetHardwareStatus reports the controller's hardware self-test status.
func (f *Framer) GetHardwareStatus() (StatusBits, error) {
	reply, err := f.SendAndAwaitReply(Packet{Opcode: OpGetHardwareStatus, Read: true})
	if err != nil {
		return nil, err
	}
	if len(reply.Payload) == 0 {
		return nil, &ProtocolError{Reason: "empty Get_Hardware_Status reply"}
	}
	return decodeStatusByte(reply.Payload[0], HardwareStatusBits), nil
}

// GetSystemStatus reports whether the controller's internal memory test
// passed.
func (f *Framer) GetSystemStatus() (bool, error) {
	reply, err := f.SendAndAwaitReply(Packet{Opcode: OpGetSystemStatus, Read: true})
	if err != nil {
		return false, err
	}
	if len(reply.Payload) == 0 {
		return false, &ProtocolError{Reason: "empty Get_System_Status reply"}
	}
	return reply.Payload[0] != 0, nil
}

// GetMainStatus reports the DMD's current operating status (parked,
// sequencer running, video frozen, and so on).
func (f *Framer) GetMainStatus() (StatusBits, error) {
	reply, err := f.SendAndAwaitReply(Packet{Opcode: OpGetMainStatus, Read: true})
	if err != nil {
		return nil, err
	}
	if len(reply.Payload) == 0 {
		return nil, &ProtocolError{Reason: "empty Get_Main_Status reply"}
	}
	return decodeStatusByte(reply.Payload[0], MainStatusBits), nil
}

// FirmwareVersion holds the four version/revision fields reported by
// Get_Firmware_Version, each encoded as four bytes: patch (LE16), minor,
// major.
type FirmwareVersion struct {
	App             string
	API             string
	SoftwareConfig  string
	SequencerConfig string
}

func decodeVersionField(b []byte) string {
	patch := int(b[0]) | int(b[1])<<8
	minor := int(b[2])
	major := int(b[3])
	return fmt.Sprintf("%d.%d.%d", major, minor, patch)
}

// GetFirmwareVersion retrieves the controller's firmware version fields.
func (f *Framer) GetFirmwareVersion() (FirmwareVersion, error) {
	reply, err := f.SendAndAwaitReply(Packet{Opcode: OpGetFirmwareVersion, Read: true})
	if err != nil {
		return FirmwareVersion{}, err
	}
	if len(reply.Payload) < 16 {
		return FirmwareVersion{}, &ProtocolError{Reason: "Get_Firmware_Version reply shorter than 16 bytes"}
	}

	return FirmwareVersion{
		App:             decodeVersionField(reply.Payload[0:4]),
		API:             decodeVersionField(reply.Payload[4:8]),
		SoftwareConfig:  decodeVersionField(reply.Payload[8:12]),
		SequencerConfig: decodeVersionField(reply.Payload[12:16]),
	}, nil
}

// dmdTypeNames maps the Get_Firmware_Type DMD-type byte to a model name.
var dmdTypeNames = map[int]string{
	0: "unknown",
	1: "DLP6500",
	2: "DLP9000",
	3: "DLP670S",
	4: "DLP500YX",
	5: "DLP5500",
}

// FirmwareType reports the controller's reported DMD model and firmware
// build tag.
type FirmwareType struct {
	DMDType     string
	FirmwareTag string
}

// GetFirmwareType retrieves the DMD type code and firmware tag string.
func (f *Framer) GetFirmwareType() (FirmwareType, error) {
	reply, err := f.SendAndAwaitReply(Packet{Opcode: OpGetFirmwareType, Read: true})
	if err != nil {
		return FirmwareType{}, err
	}
	if len(reply.Payload) == 0 {
		return FirmwareType{}, &ProtocolError{Reason: "empty Get_Firmware_Type reply"}
	}

	typeCode := int(reply.Payload[0])
	name, ok := dmdTypeNames[typeCode]
	if !ok {
		return FirmwareType{}, &ProtocolError{Reason: fmt.Sprintf("unknown DMD type code %d", typeCode)}
	}

	end := len(reply.Payload)
	for i := 1; i < len(reply.Payload); i++ {
		if reply.Payload[i] == 0 {
			end = i
			break
		}
	}

	return FirmwareType{DMDType: name, FirmwareTag: string(reply.Payload[1:end])}, nil
}

// SetPatternMode writes the display mode and reads it back to confirm the
// controller actually switched, returning a ModeActivationError if not.
func (f *Framer) SetPatternMode(mode PatternMode) error {
	_, err := f.SendAndAwaitReply(Packet{Opcode: OpDispMode, Payload: []byte{byte(mode)}})
	if err != nil {
		return err
	}
	SleepModeSettle()

	observed, err := f.GetPatternMode()
	if err != nil {
		return err
	}
	if observed != mode {
		return &ModeActivationError{
			Requested: mode.String(),
			Observed:  observed.String(),
		}
	}
	return nil
}

// GetPatternMode reads back the controller's current display mode.
func (f *Framer) GetPatternMode() (PatternMode, error) {
	reply, err := f.SendAndAwaitReply(Packet{Opcode: OpDispMode, Read: true})
	if err != nil {
		return 0, err
	}
	if len(reply.Payload) == 0 {
		return 0, &ProtocolError{Reason: "empty DISP_MODE reply"}
	}
	return PatternMode(reply.Payload[0]), nil
}

// String renders the mode's name, as used in logs and status dashboards.
func (m PatternMode) String() string {
	switch m {
	case PatternModeVideo:
		return "video"
	case PatternModePreStored:
		return "pre-stored"
	case PatternModeVideoPattern:
		return "video-pattern"
	case PatternModeOnTheFly:
		return "on-the-fly"
	default:
		return fmt.Sprintf("unknown(%d)", byte(m))
	}
}

// SetTriggerOut configures delay and polarity for an output trigger.
// triggerNumber must be 1 (advance-frame trigger) or 2 (enable trigger).
func (f *Framer) SetTriggerOut(triggerNumber int, invert bool, risingEdgeDelayUs, fallingEdgeDelayUs int16) error {
	var op Opcode
	switch triggerNumber {
	case 1:
		op = OpTrigOut1Ctl
	case 2:
		op = OpTrigOut2Ctl
	default:
		return &ValidationError{Field: "triggerNumber", Reason: "must be 1 or 2"}
	}

	payload := []byte{0, 0, 0, 0, 0}
	if invert {
		payload[0] = 1
	}
	payload[1] = byte(risingEdgeDelayUs)
	payload[2] = byte(risingEdgeDelayUs >> 8)
	payload[3] = byte(fallingEdgeDelayUs)
	payload[4] = byte(fallingEdgeDelayUs >> 8)

	_, err := f.SendAndAwaitReply(Packet{Opcode: op, Payload: payload})
	return err
}

// TriggerIn1 reports trigger input 1's ("advance frame") delay and edge
// mode.
type TriggerIn1 struct {
	DelayMicros int
	FallingEdge bool
}

// GetTriggerIn1 reads trigger input 1's configuration.
func (f *Framer) GetTriggerIn1() (TriggerIn1, error) {
	reply, err := f.SendAndAwaitReply(Packet{Opcode: OpTrigIn1Ctl, Read: true})
	if err != nil {
		return TriggerIn1{}, err
	}
	if len(reply.Payload) < 3 {
		return TriggerIn1{}, &ProtocolError{Reason: "TRIG_IN1_CTL reply shorter than 3 bytes"}
	}
	delay := int(reply.Payload[0]) | int(reply.Payload[1])<<8
	return TriggerIn1{DelayMicros: delay, FallingEdge: reply.Payload[2] != 0}, nil
}

// SetTriggerIn1 configures trigger input 1's delay (minimum
// MinExposureMicros) and the edge that advances the displayed pattern.
func (f *Framer) SetTriggerIn1(delayMicros int, fallingEdge bool) error {
	if delayMicros < MinExposureMicros {
		return &ValidationError{Field: "delayMicros", Reason: fmt.Sprintf("must be >= %d", MinExposureMicros)}
	}

	edge := byte(0)
	if fallingEdge {
		edge = 1
	}
	payload := []byte{byte(delayMicros), byte(delayMicros >> 8), edge}

	_, err := f.SendAndAwaitReply(Packet{Opcode: OpTrigIn1Ctl, Payload: payload})
	return err
}

// GetTriggerIn2 reads trigger input 2's ("enable") polarity: true means
// falling edge starts/stops the sequence.
func (f *Framer) GetTriggerIn2() (bool, error) {
	reply, err := f.SendAndAwaitReply(Packet{Opcode: OpTrigIn2Ctl, Read: true})
	if err != nil {
		return false, err
	}
	if len(reply.Payload) == 0 {
		return false, &ProtocolError{Reason: "empty TRIG_IN2_CTL reply"}
	}
	return reply.Payload[0] != 0, nil
}

// SetTriggerIn2 sets trigger input 2's polarity.
func (f *Framer) SetTriggerIn2(fallingEdge bool) error {
	edge := byte(0)
	if fallingEdge {
		edge = 1
	}
	_, err := f.SendAndAwaitReply(Packet{Opcode: OpTrigIn2Ctl, Payload: []byte{edge}})
	return err
}

// SetPowerMode writes the controller's power state (wake, standby, or a
// full reset).
func (f *Framer) SetPowerMode(mode PowerMode) error {
	_, err := f.SendAndAwaitReply(Packet{Opcode: OpPowerControl, Payload: []byte{byte(mode)}})
	return err
}

// SetIdleMode enables or disables idle display blanking.
func (f *Framer) SetIdleMode(mode IdleMode) error {
	_, err := f.SendAndAwaitReply(Packet{Opcode: OpIdleMode, Payload: []byte{byte(mode)}})
	return err
}

// SetInputSource selects the port feeding display data and its bit width.
func (f *Framer) SetInputSource(source InputSource, portWidth byte) error {
	_, err := f.SendAndAwaitReply(Packet{Opcode: OpInputSource, Payload: []byte{byte(source), portWidth}})
	return err
}

// GetInputSource reads back the active input source and port width.
func (f *Framer) GetInputSource() (InputSource, byte, error) {
	reply, err := f.SendAndAwaitReply(Packet{Opcode: OpInputSource, Read: true})
	if err != nil {
		return 0, 0, err
	}
	if len(reply.Payload) < 2 {
		return 0, 0, &ProtocolError{Reason: "Input_Source_Sel reply shorter than 2 bytes"}
	}
	return InputSource(reply.Payload[0]), reply.Payload[1], nil
}

// SetPortClock selects the pixel clock source for the active input port.
func (f *Framer) SetPortClock(clock PortClock) error {
	_, err := f.SendAndAwaitReply(Packet{Opcode: OpPortClock, Payload: []byte{byte(clock)}})
	return err
}

// GetPortClock reads back the configured pixel clock source.
func (f *Framer) GetPortClock() (PortClock, error) {
	reply, err := f.SendAndAwaitReply(Packet{Opcode: OpPortClock, Read: true})
	if err != nil {
		return 0, err
	}
	if len(reply.Payload) == 0 {
		return 0, &ProtocolError{Reason: "empty Port_Clock_Select reply"}
	}
	return PortClock(reply.Payload[0]), nil
}

// SetSourceLock enables or disables HDMI/DisplayPort source-lock, which
// holds the display mode fixed to the detected video format.
func (f *Framer) SetSourceLock(locked bool) error {
	v := byte(0)
	if locked {
		v = 1
	}
	_, err := f.SendAndAwaitReply(Packet{Opcode: OpSourceLock, Payload: []byte{v}})
	return err
}

// GetSourceLock reads back the HDMI/DisplayPort source-lock state.
func (f *Framer) GetSourceLock() (bool, error) {
	reply, err := f.SendAndAwaitReply(Packet{Opcode: OpSourceLock, Read: true})
	if err != nil {
		return false, err
	}
	if len(reply.Payload) == 0 {
		return false, &ProtocolError{Reason: "empty source-lock reply"}
	}
	return reply.Payload[0] != 0, nil
}

// SetLongAxisImageFlip enables or disables a flip of the image along its
// long axis.
func (f *Framer) SetLongAxisImageFlip(flip bool) error {
	return f.setAxisFlip(OpLongAxisImageFlip, flip)
}

// GetLongAxisImageFlip reads back the long-axis flip state.
func (f *Framer) GetLongAxisImageFlip() (bool, error) {
	return f.getAxisFlip(OpLongAxisImageFlip)
}

// SetShortAxisImageFlip enables or disables a flip of the image along its
// short axis.
func (f *Framer) SetShortAxisImageFlip(flip bool) error {
	return f.setAxisFlip(OpShortAxisImageFlip, flip)
}

// GetShortAxisImageFlip reads back the short-axis flip state.
func (f *Framer) GetShortAxisImageFlip() (bool, error) {
	return f.getAxisFlip(OpShortAxisImageFlip)
}

func (f *Framer) setAxisFlip(op Opcode, flip bool) error {
	v := byte(0)
	if flip {
		v = 1
	}
	_, err := f.SendAndAwaitReply(Packet{Opcode: op, Payload: []byte{v}})
	return err
}

func (f *Framer) getAxisFlip(op Opcode) (bool, error) {
	reply, err := f.SendAndAwaitReply(Packet{Opcode: op, Read: true})
	if err != nil {
		return false, err
	}
	if len(reply.Payload) == 0 {
		return false, &ProtocolError{Reason: "empty axis-flip reply"}
	}
	return reply.Payload[0] != 0, nil
}

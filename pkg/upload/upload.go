// Package upload implements the on-the-fly and pre-stored pattern-sequence
// upload orchestrators: the state machine that drives the pattern
// combiner, codec, and LUT controller together to program a full
// sequence onto the DLPC900.
package upload

import (
	"fmt"

	"github.com/openmicromirror/dlpc900ctl/pkg/codec"
	"github.com/openmicromirror/dlpc900ctl/pkg/logger"
	"github.com/openmicromirror/dlpc900ctl/pkg/lut"
	"github.com/openmicromirror/dlpc900ctl/pkg/panel"
	"github.com/openmicromirror/dlpc900ctl/pkg/pattern"
	"github.com/openmicromirror/dlpc900ctl/pkg/protocol"
)

// Request describes one on-the-fly pattern-sequence upload.
type Request struct {
	Patterns [][]byte // N binary patterns, each Height*Width flat, values 0/1

	// ExposuresMicros and DarkMicros are either length 1 (broadcast to
	// every pattern) or length len(Patterns).
	ExposuresMicros []uint32
	DarkMicros      []uint32

	Triggered         bool
	ClearAfterTrigger bool
	BitDepth          int
	NumRepeats        uint32
	Compression       codec.Mode
}

// Result summarizes a completed upload, enough for a caller to record an
// audit entry or publish a status event without re-deriving it.
type Result struct {
	PatternCount       int
	CombinedImageCount int
	Triggered          bool
	Armed              bool
}

// Orchestrator drives a PanelProfile's pattern-LUT controller through a
// full upload sequence. Not safe for concurrent upload calls, matching
// the rest of the driver's single-HID-handle concurrency contract.
type Orchestrator struct {
	profile panel.Profile
	framer  *protocol.Framer
	lut     *lut.Controller
	log     *logger.Logger

	// lastCompression is set for the duration of one UploadOnTheFly call
	// so uploadImage/encodeHalf don't need to thread the mode through
	// every call.
	lastCompression codec.Mode
}

// New wraps a panel profile, framer, and LUT controller with upload
// orchestration.
func New(profile panel.Profile, framer *protocol.Framer, lutCtl *lut.Controller, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		profile: profile,
		framer:  framer,
		lut:     lutCtl,
		log:     log.WithComponent("upload.orchestrator"),
	}
}

// resolveBroadcast expands a length-1-or-N slice to exactly n entries.
func resolveBroadcast(values []uint32, n int, field string) ([]uint32, error) {
	switch len(values) {
	case 0:
		return nil, &protocol.ValidationError{Field: field, Reason: "must supply at least one value"}
	case 1:
		out := make([]uint32, n)
		for i := range out {
			out[i] = values[0]
		}
		return out, nil
	case n:
		return values, nil
	default:
		return nil, &protocol.ValidationError{Field: field, Reason: fmt.Sprintf("must have length 1 or %d, got %d", n, len(values))}
	}
}

func encodeHalf(img *pattern.Image, mode codec.Mode) ([]byte, []byte, error) {
	var body []byte
	var err error
	switch mode {
	case codec.ModeERLE:
		body, err = codec.EncodeERLE(img)
	case codec.ModeRLE:
		body, err = codec.EncodeRLE(img)
	case codec.ModeUncompressed:
		body = uncompressedBody(img)
	default:
		return nil, nil, &protocol.ValidationError{Field: "Compression", Reason: "unknown compression mode"}
	}
	if err != nil {
		return nil, nil, err
	}

	header := codec.Header{
		Width:      uint16(img.Width),
		Height:     uint16(img.Height),
		BodyLength: uint32(len(body)),
		Mode:       mode,
	}
	return header.Encode(), body, nil
}

// uncompressedBody lays out BGR triples row-major, for compression mode
// "none".
func uncompressedBody(img *pattern.Image) []byte {
	out := make([]byte, 0, img.Width*img.Height*3)
	for row := 0; row < img.Height; row++ {
		for col := 0; col < img.Width; col++ {
			r, g, b := img.At(row, col)
			out = append(out, b, g, r)
		}
	}
	return out
}

// uploadImage sends one combined image's init+data commands, splitting
// into primary/secondary halves for dual-controller panels.
func (o *Orchestrator) uploadImage(img *pattern.Image, index int) error {
	if !o.profile.DualController {
		header, body, err := encodeHalf(img, o.lastCompression)
		if err != nil {
			return err
		}
		if err := o.lut.LoadInit(index, len(header)+len(body), true); err != nil {
			return err
		}
		return o.lut.LoadData(header, body, true)
	}

	left, right, err := img.HalfSplit()
	if err != nil {
		return err
	}

	leftHeader, leftBody, err := encodeHalf(left, o.lastCompression)
	if err != nil {
		return err
	}
	if err := o.lut.LoadInit(index, len(leftHeader)+len(leftBody), true); err != nil {
		return err
	}
	if err := o.lut.LoadData(leftHeader, leftBody, true); err != nil {
		return err
	}

	rightHeader, rightBody, err := encodeHalf(right, o.lastCompression)
	if err != nil {
		return err
	}
	if err := o.lut.LoadInit(index, len(rightHeader)+len(rightBody), false); err != nil {
		return err
	}
	return o.lut.LoadData(rightHeader, rightBody, false)
}

// UploadOnTheFly programs req's patterns into on-the-fly display memory
// and starts (or arms, if triggered) the sequence.
func (o *Orchestrator) UploadOnTheFly(req Request) (Result, error) {
	n := len(req.Patterns)
	if n == 0 {
		return Result{}, &protocol.ValidationError{Field: "Patterns", Reason: "must supply at least one pattern"}
	}
	if req.BitDepth != 1 {
		return Result{}, &protocol.ValidationError{Field: "BitDepth", Reason: "only bit depth 1 is supported"}
	}

	exposures, err := resolveBroadcast(req.ExposuresMicros, n, "ExposuresMicros")
	if err != nil {
		return Result{}, err
	}
	for i, us := range exposures {
		if us < protocol.MinExposureMicros {
			return Result{}, &protocol.ValidationError{Field: "ExposuresMicros", Reason: fmt.Sprintf("entry %d (%d us) below minimum %d us", i, us, protocol.MinExposureMicros)}
		}
	}
	darkTimes, err := resolveBroadcast(req.DarkMicros, n, "DarkMicros")
	if err != nil {
		return Result{}, err
	}

	o.lastCompression = req.Compression

	if err := o.lut.Stop(); err != nil {
		return Result{}, err
	}
	if err := o.framer.SetPatternMode(protocol.PatternModeOnTheFly); err != nil {
		return Result{}, err
	}
	if err := o.lut.Stop(); err != nil {
		return Result{}, err
	}

	for i := 0; i < n; i++ {
		imageIndex := i / pattern.PerImage
		bitIndex := i % pattern.PerImage
		def := lut.Definition{
			SequencePositionIndex: i,
			ExposureMicros:        exposures[i],
			DarkTimeMicros:        uint16(darkTimes[i]),
			WaitForTrigger:        req.Triggered,
			ClearAfterTrigger:     req.ClearAfterTrigger,
			DisableTrigger2:       true,
			StoredImageIndex:      byte(imageIndex),
			StoredImageBitIndex:   byte(bitIndex),
		}
		if err := o.lut.Define(def); err != nil {
			return Result{}, err
		}
	}

	if err := o.lut.Configure(n, req.NumRepeats); err != nil {
		return Result{}, err
	}

	images, err := pattern.Combine(req.Patterns, o.profile.Width, o.profile.Height)
	if err != nil {
		return Result{}, err
	}

	// Upload in reverse order: the controller's image memory is a stack.
	for j := len(images) - 1; j >= 0; j-- {
		if err := o.uploadImage(images[j], j); err != nil {
			return Result{}, err
		}
	}

	if err := o.lut.Configure(n, req.NumRepeats); err != nil {
		return Result{}, err
	}

	if err := o.lut.Start(); err != nil {
		return Result{}, err
	}
	armed := false
	if req.Triggered {
		if err := o.lut.Stop(); err != nil {
			return Result{}, err
		}
		armed = true
	}

	return Result{
		PatternCount:       n,
		CombinedImageCount: len(images),
		Triggered:          req.Triggered,
		Armed:              armed,
	}, nil
}

// PreStoredRequest describes a sequence built from firmware-resident
// pattern indices instead of host-uploaded bitmaps.
type PreStoredRequest struct {
	ImageIndices    []int // firmware pattern image index per LUT entry
	BitIndices      []int // firmware pattern bit index per LUT entry
	ExposuresMicros []uint32
	DarkMicros      []uint32
	Triggered       bool
	NumRepeats      uint32
}

// UploadPreStored configures a pattern sequence from firmware-resident
// images: lut_define and lut_configure only, no bitmap upload.
func (o *Orchestrator) UploadPreStored(req PreStoredRequest) (Result, error) {
	n := len(req.ImageIndices)
	if n == 0 || len(req.BitIndices) != n {
		return Result{}, &protocol.ValidationError{Field: "ImageIndices", Reason: "ImageIndices and BitIndices must be equal, non-zero length"}
	}

	exposures, err := resolveBroadcast(req.ExposuresMicros, n, "ExposuresMicros")
	if err != nil {
		return Result{}, err
	}
	darkTimes, err := resolveBroadcast(req.DarkMicros, n, "DarkMicros")
	if err != nil {
		return Result{}, err
	}

	if err := o.lut.Stop(); err != nil {
		return Result{}, err
	}
	if err := o.framer.SetPatternMode(protocol.PatternModePreStored); err != nil {
		return Result{}, err
	}
	if err := o.lut.Stop(); err != nil {
		return Result{}, err
	}

	for i := 0; i < n; i++ {
		def := lut.Definition{
			SequencePositionIndex: i,
			ExposureMicros:        exposures[i],
			DarkTimeMicros:        uint16(darkTimes[i]),
			WaitForTrigger:        req.Triggered,
			DisableTrigger2:       true,
			StoredImageIndex:      byte(req.ImageIndices[i]),
			StoredImageBitIndex:   byte(req.BitIndices[i]),
		}
		if err := o.lut.Define(def); err != nil {
			return Result{}, err
		}
	}

	if err := o.lut.Configure(n, req.NumRepeats); err != nil {
		return Result{}, err
	}
	if err := o.lut.Configure(n, req.NumRepeats); err != nil {
		return Result{}, err
	}

	if err := o.lut.Start(); err != nil {
		return Result{}, err
	}
	armed := false
	if req.Triggered {
		if err := o.lut.Stop(); err != nil {
			return Result{}, err
		}
		armed = true
	}

	return Result{PatternCount: n, Triggered: req.Triggered, Armed: armed}, nil
}

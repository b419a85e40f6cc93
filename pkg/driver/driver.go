// Package driver composes the transport, framer, LUT controller, and
// upload orchestrator behind one aggregate, and wires uploads through to
// the audit store, MQTT publisher, and metrics collector.
//
// The original control code varied behavior by subclassing a base driver
// per panel model and held the HID handle as ambient global state. This
// package replaces both: one PanelProfile value picks the geometry, and
// one Driver instance owns the HID handle for its entire lifetime,
// composed directly rather than through inheritance (spec.md §9).
package driver

import (
	"fmt"
	"sync"
	"time"

	"github.com/openmicromirror/dlpc900ctl/pkg/codec"
	"github.com/openmicromirror/dlpc900ctl/pkg/logger"
	"github.com/openmicromirror/dlpc900ctl/pkg/lut"
	"github.com/openmicromirror/dlpc900ctl/pkg/metrics"
	"github.com/openmicromirror/dlpc900ctl/pkg/mqttpub"
	"github.com/openmicromirror/dlpc900ctl/pkg/panel"
	"github.com/openmicromirror/dlpc900ctl/pkg/presets"
	"github.com/openmicromirror/dlpc900ctl/pkg/protocol"
	"github.com/openmicromirror/dlpc900ctl/pkg/store"
	"github.com/openmicromirror/dlpc900ctl/pkg/transport"
	"github.com/openmicromirror/dlpc900ctl/pkg/upload"
	"github.com/openmicromirror/dlpc900ctl/pkg/web"
)

// Config configures a Driver's hardware identity and optional collaborators.
// Only Profile and Transport are required; Presets, Metrics, Store, and
// MQTT may be left nil/zero if that concern is disabled.
type Config struct {
	Profile   panel.Profile
	Transport transport.Transport
	Presets   *presets.Resolver
	Metrics   *metrics.Collector
	Store     *store.UploadRepository
	MQTT      *mqttpub.Publisher
}

// Driver is the single aggregate owning the HID handle and every
// component built on top of it. Not safe for concurrent Upload calls;
// callers serialize access, matching the single-HID-handle concurrency
// contract (spec.md §5).
type Driver struct {
	profile panel.Profile
	t       transport.Transport
	framer  *protocol.Framer
	lutCtl  *lut.Controller
	upload  *upload.Orchestrator
	presets *presets.Resolver
	metrics *metrics.Collector
	store   *store.UploadRepository
	mqtt    *mqttpub.Publisher
	log     *logger.Logger

	mu     sync.Mutex
	closed bool
}

// New composes a Driver from an already-open Transport and the optional
// collaborators in cfg.
func New(cfg Config, log *logger.Logger) *Driver {
	log = log.WithComponent("driver")
	framer := protocol.NewFramer(cfg.Transport, log)
	lutCtl := lut.New(framer)

	return &Driver{
		profile: cfg.Profile,
		t:       cfg.Transport,
		framer:  framer,
		lutCtl:  lutCtl,
		upload:  upload.New(cfg.Profile, framer, lutCtl, log),
		presets: cfg.Presets,
		metrics: cfg.Metrics,
		store:   cfg.Store,
		mqtt:    cfg.MQTT,
		log:     log,
	}
}

// Open opens the real HID transport (by device path, or by VID/PID if
// path is empty) and composes a Driver around it.
func Open(path string, cfg Config, log *logger.Logger) (*Driver, error) {
	t, err := transport.OpenHID(path, log)
	if err != nil {
		return nil, err
	}
	cfg.Transport = t
	return New(cfg, log), nil
}

// ChannelRequest describes a preset-driven upload, as issued from the
// command line: resolve channels+mode to firmware pattern indices, then
// program them as a pre-stored sequence.
type ChannelRequest struct {
	Channels []string
	Mode     string

	// Indices, if non-empty, is programmed verbatim instead of resolving
	// Channels/Mode against the preset map — the CLI front end uses this
	// after it has applied --pattern_indices/--noff_before/--noff_after/
	// --blank to the resolved index list.
	Indices []int

	NumRepeats      uint32
	ExposuresMicros []uint32
	DarkMicros      []uint32
	Triggered       bool
}

// UploadChannels resolves ch against the configured preset map and
// programs the resulting firmware pattern indices as a pre-stored
// sequence, recording the outcome to the audit store and publishing it
// over MQTT if those collaborators are configured.
func (d *Driver) UploadChannels(ch ChannelRequest) (upload.Result, error) {
	indices := ch.Indices
	if len(indices) == 0 {
		if d.presets == nil {
			return upload.Result{}, &protocol.ValidationError{Field: "Channels", Reason: "no preset channel map configured"}
		}
		resolved, err := d.presets.ResolveMany(ch.Channels, ch.Mode)
		if err != nil {
			return upload.Result{}, err
		}
		indices = resolved
	}

	imageIndices := make([]int, len(indices))
	bitIndices := make([]int, len(indices))
	for i, idx := range indices {
		imageIndices[i] = idx
		bitIndices[i] = 0
	}

	req := upload.PreStoredRequest{
		ImageIndices:    imageIndices,
		BitIndices:      bitIndices,
		ExposuresMicros: ch.ExposuresMicros,
		DarkMicros:      ch.DarkMicros,
		Triggered:       ch.Triggered,
		NumRepeats:      ch.NumRepeats,
	}

	result, uploadErr := d.upload.UploadPreStored(req)
	d.recordUpload(ch, indices, "pre-stored", codec.ModeUncompressed, result, uploadErr)
	return result, uploadErr
}

// UploadOnTheFly programs req's host-supplied patterns as an on-the-fly
// sequence, recording the outcome the same way UploadChannels does.
func (d *Driver) UploadOnTheFly(channel string, req upload.Request) (upload.Result, error) {
	result, err := d.upload.UploadOnTheFly(req)
	d.recordUpload(ChannelRequest{Channels: []string{channel}, NumRepeats: req.NumRepeats, Triggered: req.Triggered}, nil, "on-the-fly", req.Compression, result, err)
	return result, err
}

func (d *Driver) recordUpload(ch ChannelRequest, indices []int, mode string, compression codec.Mode, result upload.Result, uploadErr error) {
	channel := ""
	if len(ch.Channels) > 0 {
		channel = ch.Channels[0]
	}
	success := uploadErr == nil

	if d.metrics != nil {
		d.metrics.UploadCompleted(success)
	}

	if d.store != nil {
		rec := &store.UploadRecord{
			Channel:        channel,
			Mode:           mode,
			PatternIndices: store.EncodeIndices(indices),
			NumPatterns:    result.PatternCount,
			NumRepeats:     ch.NumRepeats,
			Compression:    compression.String(),
			Triggered:      result.Triggered,
			Success:        success,
		}
		if ctrlErr, ok := uploadErr.(*protocol.ControllerError); ok {
			rec.ErrorCode = ctrlErr.Code
			rec.ErrorDescription = ctrlErr.Description
		}
		if err := d.store.Record(rec); err != nil {
			d.log.Warn("failed to record upload", logger.Error(err))
		}
	}

	if d.mqtt != nil {
		if success {
			_ = d.mqtt.PublishUploadCompleted(mqttpub.UploadCompletedEvent{
				Channel:            channel,
				Mode:               mode,
				PatternCount:       result.PatternCount,
				CombinedImageCount: result.CombinedImageCount,
				Triggered:          result.Triggered,
				Armed:              result.Armed,
				Timestamp:          time.Now(),
			})
		} else {
			_ = d.mqtt.PublishUploadFailed(mqttpub.UploadFailedEvent{
				Channel:   channel,
				Mode:      mode,
				Reason:    uploadErr.Error(),
				Timestamp: time.Now(),
			})
		}
	}
}

// Status implements web.StatusProvider, reporting the controller's
// current display mode and status-bit reads for the dashboard.
func (d *Driver) Status() (web.HardwareStatus, error) {
	mode, err := d.framer.GetPatternMode()
	if err != nil {
		return web.HardwareStatus{}, err
	}
	hw, err := d.framer.GetHardwareStatus()
	if err != nil {
		return web.HardwareStatus{}, err
	}
	sys, err := d.framer.GetSystemStatus()
	if err != nil {
		return web.HardwareStatus{}, err
	}
	main, err := d.framer.GetMainStatus()
	if err != nil {
		return web.HardwareStatus{}, err
	}

	return web.HardwareStatus{
		DisplayMode: mode.String(),
		Hardware:    hw,
		System:      sys,
		Main:        main,
	}, nil
}

// Framer exposes the underlying Framer for callers that need direct
// status/config command access (e.g. a CLI --status printer).
func (d *Driver) Framer() *protocol.Framer {
	return d.framer
}

// Profile returns the panel geometry this Driver was built for.
func (d *Driver) Profile() panel.Profile {
	return d.profile
}

// Presets returns the configured preset resolver, or nil if none was set.
func (d *Driver) Presets() *presets.Resolver {
	return d.presets
}

// Close issues a standby command and closes the transport. Safe to call
// multiple times; every call after the first is a no-op (spec.md §5).
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	if err := d.framer.SetPowerMode(protocol.PowerModeStandby); err != nil {
		d.log.Warn("standby command failed during close", logger.Error(err))
	}
	if err := d.t.Close(); err != nil {
		return fmt.Errorf("driver: close transport: %w", err)
	}
	return nil
}

// Command dlpctl is the CLI front end for programming a DLPC900 pattern
// sequence from named presets: positional channels, a mode, and a set of
// flags controlling repeat count, off-frame padding, and trigger
// behavior.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/openmicromirror/dlpc900ctl/pkg/config"
	"github.com/openmicromirror/dlpc900ctl/pkg/driver"
	"github.com/openmicromirror/dlpc900ctl/pkg/logger"
	"github.com/openmicromirror/dlpc900ctl/pkg/metrics"
	"github.com/openmicromirror/dlpc900ctl/pkg/mqttpub"
	"github.com/openmicromirror/dlpc900ctl/pkg/panel"
	"github.com/openmicromirror/dlpc900ctl/pkg/presets"
	"github.com/openmicromirror/dlpc900ctl/pkg/protocol"
	"github.com/openmicromirror/dlpc900ctl/pkg/store"
	"github.com/openmicromirror/dlpc900ctl/pkg/web"
)

var version = "dev"

func main() {
	configFile := pflag.String("config", "", "path to configuration file")
	devicePath := pflag.String("device-path", "", "override the configured HID device path")
	dryRun := pflag.Bool("dry-run", false, "resolve and validate the sequence without opening the device")
	showStatus := pflag.Bool("status", false, "print hardware status and exit")
	mqttBroker := pflag.String("mqtt-broker", "", "override the configured MQTT broker URL")
	showVersion := pflag.Bool("version", false, "print version and exit")

	mode := pflag.String("modes", "", "preset mode name (defaults to each channel's \"default\" mode)")
	patternIndices := pflag.IntSlice("pattern_indices", nil, "select a subset of the resolved pattern indices by position")
	nrepeats := pflag.Uint32("nrepeats", 1, "number of times to repeat the programmed sequence")
	noffBefore := pflag.Int("noff_before", 0, "number of off frames to prepend")
	noffAfter := pflag.Int("noff_after", 0, "number of off frames to append")
	blank := pflag.Bool("blank", false, "insert an off frame after every pattern")
	triggered := pflag.Bool("triggered", false, "wait for an external trigger between patterns")
	illuminationTime := pflag.Uint32("illumination_time", 105, "per-pattern illumination time in microseconds (ignored if triggered)")
	verbose := pflag.Bool("verbose", false, "print more detailed programming information")

	pflag.Parse()
	channels := pflag.Args()

	if *showVersion {
		fmt.Printf("dlpctl %s\n", version)
		os.Exit(0)
	}

	log := logger.New(logger.Config{Level: "info", Format: "text"})

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Error("failed to load configuration", logger.Error(err))
		os.Exit(1)
	}
	log = logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	if *devicePath != "" {
		cfg.Device.Path = *devicePath
	}
	if *mqttBroker != "" {
		cfg.MQTT.Enabled = true
		cfg.MQTT.Broker = *mqttBroker
	}

	profile, err := resolveProfile(cfg.Panel.Profile)
	if err != nil {
		log.Error("invalid panel profile", logger.Error(err))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup

	metricsCollector := metrics.NewCollector()
	if cfg.Metrics.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			srv := metrics.NewPrometheusServer(metrics.PrometheusConfig{
				Enabled: cfg.Metrics.Enabled,
				Port:    cfg.Metrics.Port,
				Path:    cfg.Metrics.Path,
			}, metricsCollector, log.WithComponent("metrics"))
			if err := srv.Start(ctx); err != nil && err != context.Canceled {
				log.Error("prometheus server error", logger.Error(err))
			}
		}()
	}

	db, err := store.NewDB(store.Config{Path: cfg.Store.Path}, log.WithComponent("store"))
	if err != nil {
		log.Error("failed to open audit database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()
	repo := store.NewUploadRepository(db.GetDB())

	var mqttPublisher *mqttpub.Publisher
	if cfg.MQTT.Enabled {
		mqttPublisher = mqttpub.New(mqttpub.Config{
			Enabled:     cfg.MQTT.Enabled,
			Broker:      cfg.MQTT.Broker,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			QoS:            cfg.MQTT.QoS,
			Retained:       cfg.MQTT.Retained,
			ConnectTimeout: 5 * time.Second,
		}, log.WithComponent("mqtt"))

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := mqttPublisher.Start(ctx); err != nil && err != context.Canceled {
				log.Error("mqtt publisher error", logger.Error(err))
			}
		}()
	}

	var resolver *presets.Resolver
	if cfg.Presets != nil {
		resolver, err = presets.NewResolver(cfg.Presets)
		if err != nil {
			log.Error("invalid preset channel map", logger.Error(err))
			os.Exit(1)
		}
	}

	if *dryRun {
		if err := validateSequence(resolver, channels, *mode, *patternIndices); err != nil {
			log.Error("dry run validation failed", logger.Error(err))
			os.Exit(1)
		}
		log.Info("dry run: sequence resolves cleanly, no device opened")
		os.Exit(0)
	}

	d, err := driver.Open(cfg.Device.Path, driver.Config{
		Profile: profile,
		Presets: resolver,
		Metrics: metricsCollector,
		Store:   repo,
		MQTT:    mqttPublisher,
	}, log.WithComponent("driver"))
	if err != nil {
		log.Error("failed to open DLPC900", logger.Error(err))
		os.Exit(1)
	}
	defer d.Close()

	var webServer *web.Server
	if cfg.Web.Enabled {
		webServer = web.NewServer(web.Config{
			Enabled: cfg.Web.Enabled,
			Host:    cfg.Web.Host,
			Port:    cfg.Web.Port,
		}, log.WithComponent("web")).WithStatusProvider(d)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := webServer.Start(ctx); err != nil && err != context.Canceled {
				log.Error("web server error", logger.Error(err))
			}
		}()
	}

	if *showStatus {
		status, err := d.Status()
		if err != nil {
			log.Error("failed to read status", logger.Error(err))
			os.Exit(1)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(status)
		cancel()
		if mqttPublisher != nil {
			mqttPublisher.Stop()
		}
		wg.Wait()
		return
	}

	if len(channels) == 0 {
		log.Error("at least one channel is required")
		os.Exit(1)
	}

	indices, err := buildIndices(resolver, channels, *mode, *patternIndices, *noffBefore, *noffAfter, *blank)
	if err != nil {
		log.Error("failed to resolve pattern sequence", logger.Error(err))
		os.Exit(1)
	}
	if *verbose {
		log.Info("resolved pattern sequence",
			logger.String("channels", fmt.Sprint(channels)),
			logger.Int("pattern_count", len(indices)))
	}

	exposures := []uint32{*illuminationTime}
	if *triggered {
		exposures = []uint32{protocol.MinExposureMicros}
	}

	result, err := d.UploadChannels(driver.ChannelRequest{
		Channels:        channels,
		Mode:            *mode,
		Indices:         indices,
		NumRepeats:      *nrepeats,
		ExposuresMicros: exposures,
		DarkMicros:      []uint32{0},
		Triggered:       *triggered,
	})
	if err != nil {
		log.Error("upload failed", logger.Error(err))
		cancel()
		if mqttPublisher != nil {
			mqttPublisher.Stop()
		}
		wg.Wait()
		os.Exit(1)
	}
	log.Info("upload complete",
		logger.Int("pattern_count", result.PatternCount),
		logger.Bool("triggered", result.Triggered),
		logger.Bool("armed", result.Armed))

	if webServer == nil {
		cancel()
		if mqttPublisher != nil {
			mqttPublisher.Stop()
		}
		wg.Wait()
		return
	}

	sig := <-sigChan
	log.Info("received shutdown signal", logger.String("signal", sig.String()))
	cancel()
	if mqttPublisher != nil {
		mqttPublisher.Stop()
	}
	wg.Wait()
}

func resolveProfile(name string) (panel.Profile, error) {
	switch name {
	case "dlp6500", "":
		return panel.DLP6500Profile(), nil
	case "dlp9000":
		return panel.DLP9000Profile(), nil
	default:
		return panel.Profile{}, fmt.Errorf("unknown panel profile %q", name)
	}
}

// buildIndices resolves each channel's own pattern indices, applies
// --pattern_indices subsetting and --noff_before/--noff_after/--blank
// off-frame padding against that channel's own "off" preset, and only
// then concatenates the per-channel sequences — mirroring
// get_dmd_sequence in the original control library, which pads each
// channel's own f_inds entry before the final np.hstack. A single
// channel's sequence would never be padded with another channel's
// off-pattern under this scheme; the old single-pass implementation did
// exactly that for multi-channel invocations.
func buildIndices(resolver *presets.Resolver, channels []string, mode string, subset []int, noffBefore, noffAfter int, blank bool) ([]int, error) {
	if resolver == nil {
		return nil, fmt.Errorf("no preset channel map configured")
	}

	var out []int
	for _, channel := range channels {
		resolved, err := resolver.Resolve(channel, mode)
		if err != nil {
			return nil, err
		}

		if len(subset) > 0 {
			picked := make([]int, 0, len(subset))
			for _, pos := range subset {
				if pos < 0 || pos >= len(resolved) {
					return nil, fmt.Errorf("pattern_indices entry %d out of range [0,%d) for channel %q", pos, len(resolved), channel)
				}
				picked = append(picked, resolved[pos])
			}
			resolved = picked
		}

		var offIdx int
		haveOff := false
		if noffBefore > 0 || noffAfter > 0 || blank {
			off, err := resolver.Resolve(channel, "off")
			if err != nil {
				return nil, fmt.Errorf("off-frame padding requested but channel %q has no \"off\" mode: %w", channel, err)
			}
			if len(off) == 0 {
				return nil, fmt.Errorf("channel %q \"off\" mode has no indices", channel)
			}
			offIdx = off[0]
			haveOff = true
		}

		channelOut := make([]int, 0, len(resolved)+noffBefore+noffAfter)
		for i := 0; i < noffBefore; i++ {
			channelOut = append(channelOut, offIdx)
		}
		for _, idx := range resolved {
			channelOut = append(channelOut, idx)
			if blank && haveOff {
				channelOut = append(channelOut, offIdx)
			}
		}
		for i := 0; i < noffAfter; i++ {
			channelOut = append(channelOut, offIdx)
		}

		out = append(out, channelOut...)
	}
	return out, nil
}

// validateSequence performs the same resolution buildIndices does,
// without requiring an open device, for --dry-run.
func validateSequence(resolver *presets.Resolver, channels []string, mode string, subset []int) error {
	if len(channels) == 0 {
		return fmt.Errorf("at least one channel is required")
	}
	_, err := buildIndices(resolver, channels, mode, subset, 0, 0, false)
	return err
}

package config

import "fmt"

// validate validates the configuration
func validate(cfg *Config) error {
	// Validate panel config
	switch cfg.Panel.Profile {
	case "dlp6500", "dlp9000":
	default:
		return fmt.Errorf("panel.profile must be dlp6500 or dlp9000, got %q", cfg.Panel.Profile)
	}

	// Validate device config
	if cfg.Device.Path == "" && (cfg.Device.VendorID == 0 || cfg.Device.ProductID == 0) {
		return fmt.Errorf("device.path or both device.vendor_id and device.product_id must be set")
	}

	// Validate store config
	if cfg.Store.Path == "" {
		return fmt.Errorf("store.path must not be empty")
	}

	// Validate web config
	if cfg.Web.Enabled {
		if cfg.Web.Port <= 0 || cfg.Web.Port > 65535 {
			return fmt.Errorf("web.port must be between 1 and 65535")
		}
	}

	// Validate MQTT config
	if cfg.MQTT.Enabled {
		if cfg.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
		}
	}

	// Validate metrics config
	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port <= 0 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be between 1 and 65535")
		}
	}

	// Validate the channel map, if present
	if cfg.Presets != nil {
		if err := cfg.Presets.Validate(); err != nil {
			return fmt.Errorf("presets: %w", err)
		}
	}

	return nil
}

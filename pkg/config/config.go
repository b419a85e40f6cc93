package config

import (
	"fmt"
	"os"

	"github.com/openmicromirror/dlpc900ctl/pkg/presets"
	"github.com/spf13/viper"
)

// Config represents the driver's persisted configuration
type Config struct {
	Device  DeviceConfig        `mapstructure:"device"`
	Panel   PanelConfig         `mapstructure:"panel"`
	Presets presets.ChannelMap  `mapstructure:"presets"`
	Store   StoreConfig         `mapstructure:"store"`
	Web     WebConfig           `mapstructure:"web"`
	MQTT    MQTTConfig          `mapstructure:"mqtt"`
	Logging LoggingConfig       `mapstructure:"logging"`
	Metrics MetricsConfig       `mapstructure:"metrics"`
}

// DeviceConfig identifies the USB-HID device. Path, when set, selects the
// device to open; otherwise the device is opened by the DLPC900's fixed
// VID/PID (transport.DefaultVendorID/DefaultProductID). VendorID and
// ProductID are only checked by validation.
type DeviceConfig struct {
	VendorID  uint16 `mapstructure:"vendor_id"`
	ProductID uint16 `mapstructure:"product_id"`
	Path      string `mapstructure:"path"` // explicit OS device path, overrides VID/PID lookup
}

// PanelConfig selects the panel profile the controller drives
type PanelConfig struct {
	Profile string `mapstructure:"profile"` // "dlp6500" or "dlp9000"
}

// StoreConfig holds audit-database configuration
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// WebConfig holds status-dashboard server configuration
type WebConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// MQTTConfig holds MQTT publisher configuration
type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	QoS         byte   `mapstructure:"qos"`
	Retained    bool   `mapstructure:"retained"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig holds Prometheus exporter configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// Load loads configuration from file and environment variables
func Load(configFile string) (*Config, error) {
	// Set defaults
	setDefaults()

	// Set config file
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("dlpctl")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath("/etc/dlpctl")
	}

	// Environment variables
	viper.SetEnvPrefix("DLPCTL")
	viper.AutomaticEnv()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is OK, use defaults
		} else if os.IsNotExist(err) {
			// File explicitly specified but doesn't exist - that's also OK
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal to struct
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Device defaults: the DLPC900's USB VID/PID
	viper.SetDefault("device.vendor_id", 0x0451)
	viper.SetDefault("device.product_id", 0xC900)

	// Panel defaults
	viper.SetDefault("panel.profile", "dlp6500")

	// Store defaults
	viper.SetDefault("store.path", "dlpctl.db")

	// Web defaults
	viper.SetDefault("web.enabled", true)
	viper.SetDefault("web.host", "0.0.0.0")
	viper.SetDefault("web.port", 8081)

	// MQTT defaults
	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.topic_prefix", "dlpctl")
	viper.SetDefault("mqtt.client_id", "dlpctl")
	viper.SetDefault("mqtt.qos", 1)
	viper.SetDefault("mqtt.retained", false)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.port", 9100)
	viper.SetDefault("metrics.path", "/metrics")
}

// Package mqttpub publishes upload and hardware-status events to an MQTT
// broker for operators and dashboards subscribed to the driver's topics.
package mqttpub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/openmicromirror/dlpc900ctl/pkg/logger"
)

// Config holds MQTT publisher configuration.
type Config struct {
	Enabled     bool
	Broker      string // e.g. "tcp://localhost:1883"
	TopicPrefix string
	ClientID    string
	Username    string
	Password    string
	QoS         byte
	Retained    bool
	ConnectTimeout time.Duration
}

// Publisher publishes driver events to MQTT topics under TopicPrefix.
type Publisher struct {
	config Config
	log    *logger.Logger
	client mqtt.Client
}

// UploadStartedEvent is published when an upload operation begins.
type UploadStartedEvent struct {
	Channel     string    `json:"channel"`
	Mode        string    `json:"mode"`
	PatternCount int      `json:"pattern_count"`
	Timestamp   time.Time `json:"timestamp"`
}

// UploadCompletedEvent is published when an upload finishes successfully.
type UploadCompletedEvent struct {
	Channel            string    `json:"channel"`
	Mode               string    `json:"mode"`
	PatternCount       int       `json:"pattern_count"`
	CombinedImageCount int       `json:"combined_image_count"`
	Triggered          bool      `json:"triggered"`
	Armed              bool      `json:"armed"`
	Timestamp          time.Time `json:"timestamp"`
}

// UploadFailedEvent is published when an upload is rejected or errors out.
type UploadFailedEvent struct {
	Channel   string    `json:"channel"`
	Mode      string    `json:"mode"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// HardwareStatusEvent is published on a status poll or mode change.
type HardwareStatusEvent struct {
	DisplayMode string    `json:"display_mode"`
	Hardware    uint32    `json:"hardware_status"`
	System      uint32    `json:"system_status"`
	Timestamp   time.Time `json:"timestamp"`
}

// New creates a new MQTT publisher. The client is not connected until
// Start is called.
func New(config Config, log *logger.Logger) *Publisher {
	if log == nil {
		log = logger.New(logger.Config{Level: "info", Format: "text"})
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	return &Publisher{
		config: config,
		log:    log.WithComponent("mqttpub"),
	}
}

// Start connects to the configured broker. It is a no-op if the
// publisher is disabled.
func (p *Publisher) Start(ctx context.Context) error {
	if !p.config.Enabled {
		p.log.Info("mqtt publisher disabled")
		return nil
	}

	opts := mqtt.NewClientOptions().
		AddBroker(p.config.Broker).
		SetClientID(p.config.ClientID).
		SetConnectTimeout(p.config.ConnectTimeout).
		SetAutoReconnect(true)
	if p.config.Username != "" {
		opts.SetUsername(p.config.Username)
		opts.SetPassword(p.config.Password)
	}

	p.client = mqtt.NewClient(opts)

	p.log.Info("connecting to mqtt broker",
		logger.String("broker", p.config.Broker),
		logger.String("client_id", p.config.ClientID))

	token := p.client.Connect()
	if !token.WaitTimeout(p.config.ConnectTimeout) {
		return fmt.Errorf("mqttpub: connect to %s timed out", p.config.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqttpub: connect to %s: %w", p.config.Broker, err)
	}

	p.log.Info("mqtt publisher connected")
	return nil
}

// Stop disconnects from the broker, if connected.
func (p *Publisher) Stop() {
	if p.client != nil && p.client.IsConnected() {
		p.log.Info("disconnecting from mqtt broker")
		p.client.Disconnect(250)
	}
}

// PublishUploadStarted publishes an upload-started event.
func (p *Publisher) PublishUploadStarted(event UploadStartedEvent) error {
	return p.publish("upload/started", event)
}

// PublishUploadCompleted publishes an upload-completed event.
func (p *Publisher) PublishUploadCompleted(event UploadCompletedEvent) error {
	return p.publish("upload/completed", event)
}

// PublishUploadFailed publishes an upload-failed event.
func (p *Publisher) PublishUploadFailed(event UploadFailedEvent) error {
	return p.publish("upload/failed", event)
}

// PublishHardwareStatus publishes a hardware-status event.
func (p *Publisher) PublishHardwareStatus(event HardwareStatusEvent) error {
	return p.publish("status/hardware", event)
}

func (p *Publisher) publish(suffix string, event interface{}) error {
	if !p.config.Enabled {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.log.Error("failed to serialize mqtt event",
			logger.String("topic", suffix),
			logger.Error(err))
		return err
	}

	topic := p.formatTopic(suffix)
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("mqttpub: not connected, dropping publish to %s", topic)
	}

	token := p.client.Publish(topic, p.config.QoS, p.config.Retained, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		p.log.Error("failed to publish mqtt event",
			logger.String("topic", topic),
			logger.Error(err))
		return err
	}

	p.log.Debug("published mqtt event",
		logger.String("topic", topic),
		logger.Int("payload_size", len(payload)))
	return nil
}

func (p *Publisher) formatTopic(suffix string) string {
	prefix := strings.TrimSuffix(p.config.TopicPrefix, "/")
	if prefix == "" {
		return suffix
	}
	return fmt.Sprintf("%s/%s", prefix, suffix)
}

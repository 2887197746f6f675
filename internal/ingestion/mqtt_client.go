package ingestion

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	pkgmqtt "courier-sync/pkg/mqtt"
)

// MQTTIngestionConfig describes the tracking topic and MQTT connection
// parameters.
type MQTTIngestionConfig struct {
	ClientConfig  *pkgmqtt.Config
	TrackingTopic string
	QoS           byte
}

// MQTTIngestionClient wires MQTT tracking messages into the processor.
type MQTTIngestionClient struct {
	cfg       *MQTTIngestionConfig
	client    *pkgmqtt.Client
	processor *Processor
	log       *zap.Logger

	mu            sync.Mutex
	started       bool
	subscriptions []string
}

// NewMQTTIngestionClient builds a new MQTT client for the tracking feed.
func NewMQTTIngestionClient(cfg *MQTTIngestionConfig, processor *Processor, log *zap.Logger) (*MQTTIngestionClient, error) {
	if cfg == nil || cfg.ClientConfig == nil {
		return nil, errors.New("mqtt ingestion config is not configured")
	}
	if processor == nil {
		return nil, errors.New("processor is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &MQTTIngestionClient{
		cfg:       cfg,
		client:    pkgmqtt.NewClient(cfg.ClientConfig, log),
		processor: processor,
		log:       log,
	}, nil
}

// Start establishes the MQTT connection and subscribes to the tracking
// topic.
func (c *MQTTIngestionClient) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return nil
	}

	if c.cfg.TrackingTopic == "" {
		return errors.New("no MQTT tracking topic configured")
	}

	if err := c.client.Connect(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	if err := c.client.Subscribe(c.cfg.TrackingTopic, c.cfg.QoS, c.handleTrackingMessage); err != nil {
		c.client.Disconnect()
		return fmt.Errorf("subscribe failed for topic %s: %w", c.cfg.TrackingTopic, err)
	}
	c.subscriptions = append(c.subscriptions, c.cfg.TrackingTopic)
	c.log.Info("listening for tracking messages", zap.String("topic", c.cfg.TrackingTopic))

	c.started = true
	return nil
}

// Stop unsubscribes and disconnects from the broker.
func (c *MQTTIngestionClient) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return
	}

	if len(c.subscriptions) > 0 {
		if err := c.client.Unsubscribe(c.subscriptions...); err != nil {
			c.log.Warn("failed to unsubscribe from mqtt topics", zap.Error(err))
		}
	}

	c.client.Disconnect()
	c.started = false
	c.subscriptions = nil
}

// handleTrackingMessage decodes a fix and hands it to the processor.
func (c *MQTTIngestionClient) handleTrackingMessage(_ string, payload []byte) {
	msg, err := ParseTrackingMessage(payload)
	if err != nil {
		c.log.Debug("invalid tracking payload", zap.Error(err))
		return
	}

	c.processor.ProcessTrackingMessage(msg)
}

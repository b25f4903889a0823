package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/eddielth/air-monitor/airquality"
	"github.com/eddielth/air-monitor/config"
	"github.com/eddielth/air-monitor/logger"
	"github.com/eddielth/air-monitor/transformer"
)

const (
	connectTimeout   = 10 * time.Second
	subscribeTimeout = 5 * time.Second
	handleTimeout    = 10 * time.Second
)

// Client represents an MQTT client
type Client struct {
	client  mqtt.Client
	config  config.MQTTConfig
	handler MessageHandler
}

// MessageHandler is the callback function type for handling MQTT messages
type MessageHandler func(topic string, payload []byte)

// SampleSink accepts decoded samples
type SampleSink interface {
	Accept(ctx context.Context, s airquality.SensorSample, transport string) error
}

// Manager ingests samples from device topics and publishes fan commands
type Manager struct {
	client *Client
}

// NewManager creates a new MQTT manager
func NewManager(cfg config.MQTTConfig, transformerManager *transformer.Manager, sink SampleSink) (*Manager, error) {
	mqttClient, err := newClient(cfg, createMessageHandler(transformerManager, sink))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MQTT client: %w", err)
	}

	return &Manager{client: mqttClient}, nil
}

// Start connects to the broker. Subscriptions are made by the
// on-connect handler so they survive reconnects.
func (m *Manager) Start() error {
	if err := m.client.Connect(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	return nil
}

// Stop stops the MQTT service
func (m *Manager) Stop() {
	m.client.Disconnect()
}

// Name identifies the MQTT command publisher as an actuator
func (m *Manager) Name() string {
	return "mqtt"
}

// Apply publishes st as a retained command so that late subscribers
// (the fan controller after a reboot) get the current state.
func (m *Manager) Apply(ctx context.Context, st airquality.ActuatorState) error {
	payload, err := encodeCommand(st)
	if err != nil {
		return err
	}
	return m.client.Publish(ctx, m.client.config.CommandTopic, payload)
}

// FanCommand is the payload published on the command topic
type FanCommand struct {
	Desired   bool              `json:"desired"`
	Source    airquality.Source `json:"source"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func encodeCommand(st airquality.ActuatorState) ([]byte, error) {
	payload, err := json.Marshal(FanCommand{
		Desired:   st.Desired,
		Source:    st.Source,
		UpdatedAt: st.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("encode fan command: %w", err)
	}
	return payload, nil
}

// createMessageHandler creates an MQTT message handler function
func createMessageHandler(transformerManager *transformer.Manager, sink SampleSink) MessageHandler {
	return func(topic string, payload []byte) {
		deviceType := GetDeviceTypeFromTopic(topic)
		if deviceType == "" {
			logger.Warn("unable to determine device type from topic %s", topic)
			return
		}
		deviceName := GetDeviceNameFromTopic(topic)

		logger.Debug("received data from %s/%s: %s", deviceType, deviceName, string(payload))

		sample, err := transformerManager.Transform(deviceType, deviceName, payload, time.Now().UTC())
		if err != nil {
			logger.Error("failed to transform data [%s]: %v", deviceType, err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
		defer cancel()

		if err := sink.Accept(ctx, sample, "mqtt"); err != nil {
			logger.Error("rejected sample from %s: %v", topic, err)
		}
	}
}

// newClient creates a new MQTT client
func newClient(cfg config.MQTTConfig, handler MessageHandler) (*Client, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("MQTT broker address cannot be empty")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = fmt.Sprintf("air-monitor-%d", time.Now().Unix())
	}

	c := &Client{config: cfg, handler: handler}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		c.subscribeAll()
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Error("MQTT connection lost: %v", err)
	})
	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		logger.Info("trying to reconnect to MQTT broker...")
	})

	c.client = mqtt.NewClient(opts)
	return c, nil
}

// Connect connects to the MQTT broker
func (c *Client) Connect() error {
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("connection to MQTT broker timed out")
	}
	if err := token.Error(); err != nil {
		return err
	}

	logger.Info("connected to MQTT broker: %s", c.config.Broker)
	return nil
}

func (c *Client) subscribeAll() {
	for _, topic := range c.config.Topics {
		if err := c.Subscribe(topic); err != nil {
			logger.Warn("failed to subscribe to topic %s: %v", topic, err)
		}
	}
}

// Subscribe subscribes to the specified topic
func (c *Client) Subscribe(topic string) error {
	token := c.client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		logger.Debug("received message from topic %s", msg.Topic())
		c.handler(msg.Topic(), msg.Payload())
	})

	if !token.WaitTimeout(subscribeTimeout) {
		return fmt.Errorf("subscription to topic %s timed out", topic)
	}

	if err := token.Error(); err != nil {
		return err
	}

	logger.Info("successfully subscribed to topic: %s", topic)
	return nil
}

// Publish sends a retained QoS 1 message and waits for the broker ack
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	if topic == "" {
		return errors.New("publish topic cannot be empty")
	}

	token := c.client.Publish(topic, 1, true, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publish to %s: %w", topic, ctx.Err())
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	logger.Debug("published to %s: %s", topic, string(payload))
	return nil
}

// Disconnect disconnects from the MQTT broker
func (c *Client) Disconnect() {
	c.client.Disconnect(250)
	logger.Info("disconnected from MQTT broker")
}

var topicPattern = regexp.MustCompile(`^devices/([^/]+)/([^/]+)`)

// GetDeviceTypeFromTopic extracts the device type from the topic
// The topic format is assumed to be: devices/{device_type}/{device_name}
func GetDeviceTypeFromTopic(topic string) string {
	if matches := topicPattern.FindStringSubmatch(topic); len(matches) > 1 {
		return matches[1]
	}

	parts := strings.Split(topic, "/")
	if len(parts) >= 2 && parts[0] == "devices" {
		return parts[1]
	}

	return ""
}

// GetDeviceNameFromTopic extracts the device name, "" when absent
func GetDeviceNameFromTopic(topic string) string {
	if matches := topicPattern.FindStringSubmatch(topic); len(matches) > 2 {
		return matches[2]
	}
	return ""
}

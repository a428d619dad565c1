package align

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ScanHandler is called when a scan message arrives on a sensor topic.
// Parameters: sensorID, decoded cloud (nil on decode failure), decode error.
type ScanHandler func(sensorID string, cloud *Cloud, err error)

// MQTTClient manages the MQTT connection and per-sensor scan subscriptions
type MQTTClient struct {
	client      mqtt.Client
	config      *Config
	scanHandler ScanHandler
	isConnected bool
	mu          sync.RWMutex
}

// InitMQTT initializes an MQTT client for the configured sensors.
// If neither the MQTT_BROKER env var nor config.MQTT.Broker is set, MQTT is
// disabled and (nil, nil) is returned.
func InitMQTT(config *Config, handler ScanHandler) (*MQTTClient, error) {
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" && config != nil && config.MQTT.Broker != "" {
		broker = config.MQTT.Broker
	}
	if broker == "" {
		log.Println("MQTT disabled: MQTT_BROKER not set")
		return nil, nil
	}
	if config == nil || len(config.Sensors) == 0 {
		return nil, fmt.Errorf("MQTT enabled but no sensor configuration provided")
	}

	c := &MQTTClient{
		config:      config,
		scanHandler: handler,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)

	clientID := os.Getenv("MQTT_CLIENT_ID")
	if clientID == "" && config.MQTT.ClientID != "" {
		clientID = config.MQTT.ClientID
	}
	if clientID == "" {
		clientID = "cloudalign"
	}
	opts.SetClientID(clientID)

	username := os.Getenv("MQTT_USERNAME")
	if username == "" && config.MQTT.Username != "" {
		username = config.MQTT.Username
	}
	if username != "" {
		opts.SetUsername(username)
		password := os.Getenv("MQTT_PASSWORD")
		if password == "" && config.MQTT.Password != "" {
			password = config.MQTT.Password
		}
		opts.SetPassword(password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetKeepAlive(30 * time.Second)

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Printf("MQTT connected to %s", broker)
		c.mu.Lock()
		c.isConnected = true
		c.mu.Unlock()
		c.subscribeAll()
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Printf("MQTT connection lost: %v", err)
		c.mu.Lock()
		c.isConnected = false
		c.mu.Unlock()
	})

	c.client = mqtt.NewClient(opts)
	if token := c.client.Connect(); token.WaitTimeout(10*time.Second) && token.Error() != nil {
		return nil, fmt.Errorf("connecting to MQTT broker: %w", token.Error())
	}

	return c, nil
}

// NewMQTTClientWithClient wraps an existing (or mock) client; used by tests
func NewMQTTClientWithClient(client mqtt.Client, config *Config, handler ScanHandler) *MQTTClient {
	return &MQTTClient{
		client:      client,
		config:      config,
		scanHandler: handler,
	}
}

// subscribeAll subscribes to every configured sensor topic. Re-run on each
// (re)connect since the broker drops subscriptions with the session.
func (c *MQTTClient) subscribeAll() {
	for _, sensor := range c.config.Sensors {
		sensorID := sensor.ID
		topic := sensor.Topic
		token := c.client.Subscribe(topic, 0, func(client mqtt.Client, msg mqtt.Message) {
			c.handleScanMessage(sensorID, msg.Payload())
		})
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			log.Printf("Failed to subscribe to %s for sensor %s: %v", topic, sensorID, token.Error())
			continue
		}
		log.Printf("Subscribed to %s for sensor %s", topic, sensorID)
	}
}

// Subscribe runs the initial subscription pass; exposed so tests can drive
// the client without a broker connection callback
func (c *MQTTClient) Subscribe() {
	c.subscribeAll()
}

// handleScanMessage decodes a scan payload and hands it to the handler
func (c *MQTTClient) handleScanMessage(sensorID string, payload []byte) {
	cloud, err := DecodeScan(payload)
	if err != nil {
		log.Printf("Failed to decode scan from sensor %s: %v", sensorID, err)
		if c.scanHandler != nil {
			c.scanHandler(sensorID, nil, err)
		}
		return
	}
	cloud.SensorID = sensorID
	if c.scanHandler != nil {
		c.scanHandler(sensorID, cloud, nil)
	}
}

// IsConnected reports the connection state
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

// Client returns the underlying MQTT client, for building a Publisher on the
// same connection
func (c *MQTTClient) Client() mqtt.Client {
	return c.client
}

// Disconnect cleanly closes the connection
func (c *MQTTClient) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(250)
	}
	c.mu.Lock()
	c.isConnected = false
	c.mu.Unlock()
}

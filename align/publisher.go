package align

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// PoseUpdate is the wire format of a published sensor pose
type PoseUpdate struct {
	SensorID    string     `json:"sensor_id"`
	Translation Vec3       `json:"translation"`
	Rotation    Quaternion `json:"rotation"`
	Yaw         float64    `json:"yaw"`
	Cost        float64    `json:"cost"`
	Pairs       int        `json:"pairs"`
	Converged   bool       `json:"converged"`
	Timestamp   int64      `json:"timestamp"`
}

// Publisher publishes solved sensor poses to MQTT
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	poses         map[string]*PoseUpdate
	mu            sync.RWMutex
}

// NewPublisher creates a pose publisher. If client is nil, publishing is
// disabled (for testing).
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	if env := os.Getenv("MQTT_PUBLISH_PREFIX"); env != "" {
		prefix = env
	}
	if prefix == "" {
		prefix = "cloudalign"
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,    // pose updates are fire and forget
		retain:        true, // retain the latest pose per sensor
		poses:         make(map[string]*PoseUpdate),
	}
}

// PublishPose publishes a sensor's solved pose to its individual topic and
// refreshes the combined poses topic
func (p *Publisher) PublishPose(sensorID string, result AlignResult) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	update := &PoseUpdate{
		SensorID:    sensorID,
		Translation: result.Pose.Translation(),
		Rotation:    QuaternionFromRotation(result.Pose.RotationMatrix()),
		Yaw:         result.Pose.Yaw(),
		Cost:        result.FinalCost,
		Pairs:       result.Pairs,
		Converged:   result.Converged,
		Timestamp:   time.Now().Unix(),
	}

	p.mu.Lock()
	p.poses[sensorID] = update
	p.mu.Unlock()

	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("marshaling pose update: %w", err)
	}

	topic := fmt.Sprintf("%s/pose/%s", p.publishPrefix, sensorID)
	if token := p.client.Publish(topic, p.qos, p.retain, payload); token.Wait() && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}

	return p.publishCombined()
}

// publishCombined publishes all known poses as a single retained message
func (p *Publisher) publishCombined() error {
	p.mu.RLock()
	combined := make([]*PoseUpdate, 0, len(p.poses))
	for _, u := range p.poses {
		combined = append(combined, u)
	}
	p.mu.RUnlock()

	payload, err := json.Marshal(combined)
	if err != nil {
		return fmt.Errorf("marshaling combined poses: %w", err)
	}

	topic := fmt.Sprintf("%s/poses", p.publishPrefix)
	if token := p.client.Publish(topic, p.qos, p.retain, payload); token.Wait() && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// GetPose returns the last published update for a sensor, or nil
func (p *Publisher) GetPose(sensorID string) *PoseUpdate {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.poses[sensorID]
}

package align

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSensorConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{Broker: "mqtt://localhost:1883"},
		Sensors: []SensorConfig{
			{ID: "lidar-a", Topic: "scans/a"},
			{ID: "lidar-b", Topic: "scans/b"},
		},
	}
}

func TestMQTTScanDelivery(t *testing.T) {
	mock := NewMockClient()

	type received struct {
		sensorID string
		cloud    *Cloud
		err      error
	}
	var got []received
	handler := func(sensorID string, cloud *Cloud, err error) {
		got = append(got, received{sensorID, cloud, err})
	}

	client := NewMQTTClientWithClient(mock, testSensorConfig(), handler)
	client.Subscribe()

	payload := []byte(`{"points": [[1, 2, 3], [4, 5, 6]]}`)
	mock.SimulateMessage("scans/a", payload)

	require.Len(t, got, 1)
	assert.NoError(t, got[0].err)
	require.NotNil(t, got[0].cloud)
	// The subscription's sensor ID wins over anything in the payload
	assert.Equal(t, "lidar-a", got[0].sensorID)
	assert.Equal(t, "lidar-a", got[0].cloud.SensorID)
	assert.Len(t, got[0].cloud.Points, 2)

	mock.SimulateMessage("scans/b", payload)
	require.Len(t, got, 2)
	assert.Equal(t, "lidar-b", got[1].sensorID)
}

func TestMQTTBadScanPayload(t *testing.T) {
	mock := NewMockClient()

	var gotErr error
	var gotCloud *Cloud
	handler := func(sensorID string, cloud *Cloud, err error) {
		gotCloud = cloud
		gotErr = err
	}

	client := NewMQTTClientWithClient(mock, testSensorConfig(), handler)
	client.Subscribe()

	mock.SimulateMessage("scans/a", []byte(`not json`))

	require.Error(t, gotErr)
	assert.Nil(t, gotCloud)
}

func TestMQTTSubscribeFailureIsNonFatal(t *testing.T) {
	mock := NewMockClient()
	mock.SetSubscribeError(errors.New("broker rejected"))

	client := NewMQTTClientWithClient(mock, testSensorConfig(), nil)
	// Must not panic; failed subscriptions are logged and skipped
	client.Subscribe()

	mock.SimulateMessage("scans/a", []byte(`{"points": [[0,0,0]]}`))
}

func TestMQTTDisconnect(t *testing.T) {
	mock := NewMockClient()
	client := NewMQTTClientWithClient(mock, testSensorConfig(), nil)

	client.Disconnect()
	assert.False(t, client.IsConnected())
	assert.False(t, mock.IsConnected())
}

func TestInitMQTTDisabledWithoutBroker(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")
	config := testSensorConfig()
	config.MQTT.Broker = ""

	client, err := InitMQTT(config, nil)
	require.NoError(t, err)
	assert.Nil(t, client)
}

package main

import (
	"fmt"
	"log"
	"sync"

	"github.com/kwv/cloudalign/align"
)

// App encapsulates the service state and dependencies
type App struct {
	Config     *align.Config
	MQTTClient *align.MQTTClient
	Publisher  *align.Publisher

	mu      sync.RWMutex
	clouds  map[string]*align.Cloud
	results map[string]*align.AlignResult
	poses   map[string]align.Pose

	// CLI flags
	ConfigFile string
	HTTPPort   int
	MqttMode   bool
	HTTPMode   bool
	Verbose    bool
}

// AppOptions carries parsed CLI options
type AppOptions struct {
	ConfigFile string
	HTTPPort   int
	MqttMode   bool
	HTTPMode   bool
	Verbose    bool
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		clouds:  make(map[string]*align.Cloud),
		results: make(map[string]*align.AlignResult),
		poses:   make(map[string]align.Pose),
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.HTTPPort = opts.HTTPPort
	a.MqttMode = opts.MqttMode
	a.HTTPMode = opts.HTTPMode
	a.Verbose = opts.Verbose
}

// HandleScan receives a decoded scan from the MQTT layer, caches it, and
// re-aligns the sensor against the reference cloud
func (a *App) HandleScan(sensorID string, cloud *align.Cloud, err error) {
	if err != nil {
		log.Printf("Ignoring bad scan from %s: %v", sensorID, err)
		return
	}

	maxPoints := a.Config.Solver.MaxPoints
	if maxPoints <= 0 {
		maxPoints = 600
	}
	cloud = cloud.Downsample(maxPoints)

	a.mu.Lock()
	a.clouds[sensorID] = cloud
	a.mu.Unlock()

	refID := a.Config.EffectiveReference()
	if sensorID == refID {
		// Reference moved; re-align every other sensor against it
		a.mu.RLock()
		others := make([]string, 0, len(a.clouds))
		for id := range a.clouds {
			if id != refID {
				others = append(others, id)
			}
		}
		a.mu.RUnlock()
		for _, id := range others {
			a.alignSensor(id)
		}
		return
	}

	a.alignSensor(sensorID)
}

// alignSensor registers one sensor's latest cloud onto the reference cloud
// and publishes the result
func (a *App) alignSensor(sensorID string) {
	refID := a.Config.EffectiveReference()

	a.mu.RLock()
	source := a.clouds[sensorID]
	target := a.clouds[refID]
	prev, hasPrev := a.poses[sensorID]
	a.mu.RUnlock()

	if source == nil || target == nil {
		return
	}

	cfg := a.Config.Solver.AlignConfig()
	cfg.Verbose = a.Verbose

	var initial *align.Pose
	if hasPrev {
		initial = &prev
	}

	result, err := align.AlignClouds(source, target, initial, cfg)
	if err != nil {
		log.Printf("Alignment of %s against %s failed: %v", sensorID, refID, err)
		return
	}

	a.mu.Lock()
	a.results[sensorID] = &result
	a.poses[sensorID] = result.Pose
	a.mu.Unlock()

	log.Printf("Aligned %s -> %s: cost=%.6g pairs=%d rounds=%d converged=%v",
		sensorID, refID, result.FinalCost, result.Pairs, result.Rounds, result.Converged)

	if a.Publisher != nil {
		if err := a.Publisher.PublishPose(sensorID, result); err != nil {
			log.Printf("Failed to publish pose for %s: %v", sensorID, err)
		}
	}
}

// GetCloud returns the latest cached cloud for a sensor, or nil
func (a *App) GetCloud(sensorID string) *align.Cloud {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.clouds[sensorID]
}

// GetResult returns the latest alignment result for a sensor, or nil
func (a *App) GetResult(sensorID string) *align.AlignResult {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.results[sensorID]
}

// GetResults returns a snapshot of all alignment results
func (a *App) GetResults() map[string]align.AlignResult {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]align.AlignResult, len(a.results))
	for id, r := range a.results {
		out[id] = *r
	}
	return out
}

// HasClouds reports whether any scans have arrived yet
func (a *App) HasClouds() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.clouds) > 0
}

// overlayFor gathers the inputs for an overlay export of one sensor
func (a *App) overlayFor(sensorID string) (*align.Cloud, *align.Cloud, align.Pose, *align.Pairings, error) {
	refID := a.Config.EffectiveReference()

	a.mu.RLock()
	source := a.clouds[sensorID]
	target := a.clouds[refID]
	result := a.results[sensorID]
	a.mu.RUnlock()

	if source == nil || target == nil {
		return nil, nil, align.IdentityPose(), nil, fmt.Errorf("no clouds for sensor %s", sensorID)
	}
	pose := align.IdentityPose()
	var pairs *align.Pairings
	if result != nil {
		pose = result.Pose
		pairs = result.Pairings
	}
	return source, target, pose, pairs, nil
}

package align

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the unified service configuration
type Config struct {
	MQTT          MQTTConfig     `yaml:"mqtt"`
	Sensors       []SensorConfig `yaml:"sensors"`
	Reference     string         `yaml:"reference"`
	PublishPrefix string         `yaml:"publish_prefix,omitempty"`
	Solver        SolverConfig   `yaml:"solver"`
}

// MQTTConfig holds broker connection settings
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// SensorConfig identifies one scan source and its topic
type SensorConfig struct {
	ID    string `yaml:"id"`
	Topic string `yaml:"topic"`
}

// SolverConfig exposes the registration tuning knobs in the config file
type SolverConfig struct {
	MaxIterations     int     `yaml:"max_iterations,omitempty"`
	MaxCost           float64 `yaml:"max_cost,omitempty"`
	MinDelta          float64 `yaml:"min_delta,omitempty"`
	Kernel            string  `yaml:"kernel,omitempty"`
	KernelParam       float64 `yaml:"kernel_param,omitempty"`
	MaxRounds         int     `yaml:"max_rounds,omitempty"`
	MaxDistance       float64 `yaml:"max_distance,omitempty"`
	OutlierPercentile float64 `yaml:"outlier_percentile,omitempty"`
	MaxPoints         int     `yaml:"max_points,omitempty"`
}

// LoadConfig loads the service configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if config.MQTT.Broker == "" {
		return nil, fmt.Errorf("mqtt.broker is required")
	}
	if len(config.Sensors) == 0 {
		return nil, fmt.Errorf("at least one sensor must be defined")
	}
	for i, sc := range config.Sensors {
		if sc.ID == "" {
			return nil, fmt.Errorf("sensor[%d].id is required", i)
		}
		if sc.Topic == "" {
			return nil, fmt.Errorf("sensor[%d].topic is required for %s", i, sc.ID)
		}
	}
	if config.Reference != "" && !config.HasSensor(config.Reference) {
		return nil, fmt.Errorf("reference %q is not a configured sensor", config.Reference)
	}
	if config.Solver.Kernel != "" {
		param := config.Solver.KernelParam
		if param == 0 {
			param = 1
		}
		if _, err := NewRobustKernel(KernelKind(config.Solver.Kernel), param); err != nil {
			return nil, fmt.Errorf("solver config: %w", err)
		}
	}

	return &config, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// HasSensor reports whether a sensor with the given ID is configured
func (c *Config) HasSensor(id string) bool {
	for _, sc := range c.Sensors {
		if sc.ID == id {
			return true
		}
	}
	return false
}

// EffectiveReference returns the configured reference sensor, or the first
// configured sensor when none is set
func (c *Config) EffectiveReference() string {
	if c.Reference != "" {
		return c.Reference
	}
	if len(c.Sensors) > 0 {
		return c.Sensors[0].ID
	}
	return ""
}

// AlignConfig converts the file-level solver settings into a full outer-loop
// configuration, filling gaps with defaults
func (s SolverConfig) AlignConfig() AlignConfig {
	cfg := DefaultAlignConfig()
	if s.MaxIterations > 0 {
		cfg.Solver.MaxIterations = s.MaxIterations
	}
	if s.MaxCost > 0 {
		cfg.Solver.MaxCost = s.MaxCost
	}
	if s.MinDelta > 0 {
		cfg.Solver.MinDelta = s.MinDelta
	}
	if s.Kernel != "" {
		cfg.Solver.Kernel = KernelKind(s.Kernel)
	}
	if s.KernelParam > 0 {
		cfg.Solver.KernelParam = s.KernelParam
	}
	if s.MaxRounds > 0 {
		cfg.MaxRounds = s.MaxRounds
	}
	if s.MaxDistance > 0 {
		cfg.Match.MaxDistance = s.MaxDistance
	}
	if s.OutlierPercentile > 0 {
		cfg.Match.OutlierPercentile = s.OutlierPercentile
	}
	return cfg
}

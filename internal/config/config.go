// Package config loads the gateway's YAML configuration, expanding
// ${VAR} environment references before parsing.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	CAN struct {
		Interface               string  `yaml:"interface"`
		Bitrate                 int     `yaml:"bitrate"`
		BufferSize              int     `yaml:"buffer_size"`
		BufferWarningThreshold  float64 `yaml:"buffer_warning_threshold"`
		CapturePath             string  `yaml:"capture_path"`
	} `yaml:"can"`

	Vehicle struct {
		VIN       string `yaml:"vin"`
		GatewayID string `yaml:"gateway_id"`
	} `yaml:"vehicle"`

	OBD2 struct {
		Enabled bool      `yaml:"enabled"`
		PIDs    []PIDSpec `yaml:"pids"`
	} `yaml:"obd2"`

	Buffer struct {
		DBPath string `yaml:"db_path"`
	} `yaml:"buffer"`

	MQTT struct {
		Endpoint     string `yaml:"endpoint"`
		Port         int    `yaml:"port"`
		KeepAlive    int    `yaml:"keep_alive"`
		QoS          byte   `yaml:"qos"`
		Certificates struct {
			CA     string `yaml:"ca"`
			Client string `yaml:"client"`
			Key    string `yaml:"key"`
		} `yaml:"certificates"`
		Topics struct {
			Telemetry string `yaml:"telemetry"`
			Status    string `yaml:"status"`
		} `yaml:"topics"`
	} `yaml:"mqtt"`

	Dashboard struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"dashboard"`

	Metrics struct {
		Enabled  bool   `yaml:"enabled"`
		URL      string `yaml:"url"`
		Org      string `yaml:"org"`
		Bucket   string `yaml:"bucket"`
		Token    string `yaml:"token"`
		Interval int    `yaml:"interval_seconds"`
	} `yaml:"metrics"`
}

// PIDSpec is one OBD-II PID's polling configuration.
type PIDSpec struct {
	PID        string `yaml:"pid"` // hex string, e.g. "0C"
	Name       string `yaml:"name"`
	IntervalMS int    `yaml:"interval_ms"`
	Enabled    bool   `yaml:"enabled"`
}

// LoadConfig reads filename, expands ${VAR} tokens against the process
// environment, and parses the result as YAML.
func LoadConfig(filename string) (*Config, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", filename, err)
	}

	expanded := os.Expand(string(raw), lookupEnv)

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", filename, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return &cfg, nil
}

// lookupEnv leaves ${VAR} untouched (rather than substituting an empty
// string) when VAR isn't set, so a missing secret fails loudly downstream
// instead of silently becoming an empty config value.
func lookupEnv(key string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return "${" + key + "}"
}

func (c *Config) validate() error {
	if c.CAN.Interface == "" {
		return fmt.Errorf("can.interface is required")
	}
	if len(c.Vehicle.VIN) != 17 {
		return fmt.Errorf("vehicle.vin must be 17 characters, got %d", len(c.Vehicle.VIN))
	}
	if c.Vehicle.GatewayID == "" {
		return fmt.Errorf("vehicle.gateway_id is required")
	}
	return nil
}

// Package config loads and validates the application configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Port         int `yaml:"port" validate:"gt=0"`
	ReadTimeout  int `yaml:"readTimeoutSec" validate:"gte=0"`
	WriteTimeout int `yaml:"writeTimeoutSec" validate:"gte=0"`
}

type GTFSConfig struct {
	Path     string `yaml:"path" validate:"required"`
	Timezone string `yaml:"timezone" validate:"omitempty"`
}

type RealtimeConfig struct {
	TripUpdatesURL      string `yaml:"tripUpdatesURL" validate:"omitempty,url"`
	VehiclePositionsURL string `yaml:"vehiclePositionsURL" validate:"omitempty,url"`
	AlertsURL           string `yaml:"alertsURL" validate:"omitempty,url"`
	RefreshSec          int    `yaml:"refreshSec" validate:"gte=0"`
	TimeoutSec          int    `yaml:"timeoutSec" validate:"gte=0"`
}

type AppConfig struct {
	Server   ServerConfig   `yaml:"server" validate:"required"`
	GTFS     GTFSConfig     `yaml:"gtfs" validate:"required"`
	Realtime RealtimeConfig `yaml:"realtime"`
}

// Load reads the configuration file, applying defaults after unmarshalling.
// A .env file, when present, is merged into the environment first so
// ARRIVALS_CONFIG can point at an alternate config path.
func Load(path string) (*AppConfig, error) {
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv("ARRIVALS_CONFIG")
	}
	paths := []string{path, "config.yml"}
	var data []byte
	var err error
	for _, p := range paths {
		if p == "" {
			continue
		}
		data, err = os.ReadFile(p)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()

	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30
	}
	if c.GTFS.Timezone == "" {
		c.GTFS.Timezone = "Europe/Sofia"
	}
	if c.Realtime.RefreshSec == 0 {
		c.Realtime.RefreshSec = 15
	}
	if c.Realtime.TimeoutSec == 0 {
		c.Realtime.TimeoutSec = 15
	}
}

// RefreshWindow returns the snapshot staleness threshold.
func (c *RealtimeConfig) RefreshWindow() time.Duration {
	return time.Duration(c.RefreshSec) * time.Second
}

// FetchTimeout returns the per-request timeout for upstream feed fetches.
func (c *RealtimeConfig) FetchTimeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

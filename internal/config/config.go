// internal/config/config.go
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tamzrod/plcpoll/internal/poller"
)

type Config struct {
	Log       LogConfig        `yaml:"log"`
	Endpoints []EndpointConfig `yaml:"endpoints"`
}

// ---- LOG ----

type LogConfig struct {
	Level string `yaml:"level"` // trace|debug|info|warning|error; default info
}

// ---- ENDPOINT ----

// EndpointConfig is one logical consumer of a controller. Endpoints that
// resolve to the same host/family/rack/slot/port share one connection.
type EndpointConfig struct {
	ID        string `yaml:"id"`
	Host      string `yaml:"host"` // serial device for rtu
	Port      int    `yaml:"port"`
	Family    string `yaml:"family"`
	Rack      int    `yaml:"rack"`
	Slot      int    `yaml:"slot"`
	Transport string `yaml:"transport"` // tcp|rtu
	TimeoutMs int    `yaml:"timeout_ms"`

	Serial SerialConfig `yaml:"serial"`
	Poll   PollConfig   `yaml:"poll"`

	// Device status block (optional, opt-in)
	Status     *StatusConfig `yaml:"status"`
	DeviceName string        `yaml:"device_name"`

	Items []ItemConfig `yaml:"items"`
}

// ---- SERIAL (rtu only) ----

type SerialConfig struct {
	BaudRate int    `yaml:"baud_rate"`
	DataBits int    `yaml:"data_bits"`
	Parity   string `yaml:"parity"` // N|E|O
	StopBits int    `yaml:"stop_bits"`
}

// ---- POLL ----

type PollConfig struct {
	IntervalMs int `yaml:"interval_ms"`
}

// ---- STATUS ----

type StatusConfig struct {
	Area       string `yaml:"area"`
	AreaNumber int    `yaml:"area_number"`
	Offset     int    `yaml:"offset"`
}

// ---- ITEM GEOMETRY ----

type ItemConfig struct {
	Name       string `yaml:"name"`
	Area       string `yaml:"area"`
	AreaNumber int    `yaml:"area_number"`
	Offset     int    `yaml:"offset"`
	Length     int    `yaml:"length"`

	// Copy every read into another region (optional)
	Mirror *MirrorConfig `yaml:"mirror"`
}

// Key converts item geometry to a poller.ItemKey.
func (it ItemConfig) Key() (poller.ItemKey, error) {
	area, err := poller.ParseArea(it.Area)
	if err != nil {
		return poller.ItemKey{}, err
	}
	return poller.ItemKey{
		Area:       area,
		AreaNumber: it.AreaNumber,
		Length:     it.Length,
		Offset:     it.Offset,
	}, nil
}

// ---- MIRROR ----

type MirrorConfig struct {
	Endpoint   string `yaml:"endpoint"` // endpoint id; empty = same endpoint
	Area       string `yaml:"area"`     // DB|Q
	AreaNumber int    `yaml:"area_number"`
	Offset     int    `yaml:"offset"`
}

// Load reads, validates and normalizes the file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(b)
}

// Parse is Load without the file.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	Normalize(&cfg)
	return &cfg, nil
}

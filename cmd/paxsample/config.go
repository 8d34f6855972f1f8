package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"

	yml "gopkg.in/yaml.v2"

	"github.jpl.nasa.gov/bdube/paxsample/polarimeter"
	"github.jpl.nasa.gov/bdube/paxsample/thorlabs"
)

const (
	// EnvPrefix marks environment variables which override the config file
	EnvPrefix = "PAXSAMPLE_"

	backendVISA = "visa"
	backendSim  = "sim"
)

// Config is the program configuration
type Config struct {
	// Backend is visa for real instruments or sim for simulated ones
	Backend string `koanf:"backend" yaml:"backend"`

	// TimeoutMS bounds each exchange with an open session
	TimeoutMS int `koanf:"timeout_ms" yaml:"timeout_ms"`

	// DiscoveryTimeoutMS bounds each exchange while probing Resources
	DiscoveryTimeoutMS int `koanf:"discovery_timeout_ms" yaml:"discovery_timeout_ms"`

	// MinIntervalMS is the minimum time between commands, 0 for no pacing
	MinIntervalMS int `koanf:"min_interval_ms" yaml:"min_interval_ms"`

	Handshaking bool `koanf:"handshaking" yaml:"handshaking"`
	Reset       bool `koanf:"reset" yaml:"reset"`
	IDQuery     bool `koanf:"id_query" yaml:"id_query"`

	// USB enables searching the USB bus during discovery
	USB bool `koanf:"usb" yaml:"usb"`

	// Resources are VISA resource names probed during discovery
	Resources []string `koanf:"resources" yaml:"resources"`

	MaxScans int  `koanf:"max_scans" yaml:"max_scans"`
	Debug    bool `koanf:"debug" yaml:"debug"`

	// DriverRevision is reported by the sim backend
	DriverRevision string `koanf:"driver_revision" yaml:"driver_revision"`

	// Sim are the instruments of the sim backend
	Sim []thorlabs.MockDevice `koanf:"sim" yaml:"sim"`
}

// DefaultConfig is used for anything the file and environment do not set
func DefaultConfig() Config {
	return Config{
		Backend:            backendVISA,
		TimeoutMS:          5000,
		DiscoveryTimeoutMS: 500,
		Handshaking:        true,
		Reset:              true,
		USB:                true,
		Resources:          []string{},
		MaxScans:           thorlabs.DefaultMaxScans,
		DriverRevision:     "3.2.1",
		Sim:                []thorlabs.MockDevice{thorlabs.DefaultMockDevice},
	}
}

// LoadConfig layers the defaults, the file at path and the environment.
// A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	k := koanf.New(".")
	c := Config{}
	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return c, err
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !errors.Is(err, fs.ErrNotExist) { // file missing, who cares
			return c, fmt.Errorf("error loading config: %w", err)
		}
	}
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil)
	if err != nil {
		return c, err
	}
	err = k.Unmarshal("", &c)
	return c, err
}

// Write encodes c as YAML
func (c Config) Write(w io.Writer) error {
	return yml.NewEncoder(w).Encode(c)
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// Driver builds the driver selected by Backend.  l, if not nil, traces
// communication.
func (c Config) Driver(l *log.Logger) (polarimeter.Driver, error) {
	switch strings.ToLower(c.Backend) {
	case backendSim, "mock":
		d := thorlabs.NewMockPAXDriver(c.Sim...)
		d.Revision = c.DriverRevision
		d.MaxScans = c.MaxScans
		return d, nil
	case backendVISA, "":
		d := thorlabs.NewPAXDriver()
		d.Timeout = ms(c.TimeoutMS)
		d.DiscoveryTimeout = ms(c.DiscoveryTimeoutMS)
		d.MinInterval = ms(c.MinIntervalMS)
		d.Handshaking = c.Handshaking
		d.USB = c.USB
		d.Resources = c.Resources
		d.MaxScans = c.MaxScans
		d.Logger = l
		return d, nil
	}
	return nil, fmt.Errorf("unknown backend %q, use %s or %s", c.Backend, backendVISA, backendSim)
}

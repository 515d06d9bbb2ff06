package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/womat/debug"
	"gopkg.in/yaml.v2"

	"rc433/pkg/port"
	"rc433/pkg/pulsebuffer"
	"rc433/pkg/syncpulse"
)

var ErrNoProtocol = errors.New("no protocol configured")

// Config holds the application configuration. Attention!
// To make it possible to overwrite fields with the -overwrite command
// line option each of the struct fields must be in the format
// first letter uppercase -> followed by CamelCase as in the config file.
// Config defines the struct of global config and the struct of the configuration file
type Config struct {
	Flag        FlagConfig        `yaml:"-"`
	Debug       DebugConfig       `yaml:"debug"`
	Webserver   WebserverConfig   `yaml:"webserver"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Receiver    ReceiverConfig    `yaml:"receiver"`
	Transmitter TransmitterConfig `yaml:"transmitter"`
	// ProtocolList are the configured protocols in the order of the config file.
	ProtocolList []ProtocolConfig `yaml:"protocols"`
	// Protocols are the resolved ProtocolList entries.
	Protocols []syncpulse.Protocol `yaml:"-"`
}

// FlagConfig defines the configured flags (parameters)
type FlagConfig struct {
	Version    bool
	LogLevel   string
	ConfigFile string
}

// WebserverConfig defines the struct of the webserver and webservice configuration and configuration file
type WebserverConfig struct {
	URL         string          `yaml:"url"`
	Webservices map[string]bool `yaml:"webservices"`
}

// MQTTConfig defines the struct of the mqtt client configuration and configuration file
type MQTTConfig struct {
	Connection string `yaml:"connection"`
	Topic      string `yaml:"topic"`
	// RepeatWindow suppresses the same packet received again within the window.
	RepeatWindow    time.Duration `yaml:"-"`
	RepeatWindowInt int           `yaml:"repeatwindow"`
}

// DebugConfig defines the struct of the debug configuration and configuration file
type DebugConfig struct {
	File       io.WriteCloser `yaml:"-"`
	Flag       int            `yaml:"-"`
	FlagString string         `yaml:"flag"`
	FileString string         `yaml:"file"`
}

// ReceiverConfig defines the receiver line and the receive chain.
type ReceiverConfig struct {
	Gpio       int    `yaml:"gpio"`
	Terminator string `yaml:"terminator"`
	// BufferSize is the count of 16 bit slots of the pulse buffer.
	BufferSize int `yaml:"buffersize"`
	// NoiseFilter is the minimum pulse duration in µs, 0 disables the noise filter.
	NoiseFilter     port.Microseconds `yaml:"noisefilter"`
	PollInterval    time.Duration     `yaml:"-"`
	PollIntervalInt int               `yaml:"pollinterval"`
}

// TransmitterConfig defines the transmitter line and timing (µs).
type TransmitterConfig struct {
	Gpio              int               `yaml:"gpio"`
	MaxDelayTolerance port.Microseconds `yaml:"maxdelaytolerance"`
	QuietBefore       port.Microseconds `yaml:"quietbefore"`
	QuietAfter        port.Microseconds `yaml:"quietafter"`
	Repetitions       int               `yaml:"repetitions"`
}

// ProtocolConfig is a built-in protocol (Preset) or a protocol with explicit timing.
type ProtocolConfig struct {
	Preset             string `yaml:"preset"`
	syncpulse.Protocol `yaml:",inline"`
}

func NewConfig() *Config {
	return &Config{
		Flag: FlagConfig{},
		Debug: DebugConfig{
			FileString: "stderr",
			FlagString: "standard",
		},
		Webserver: WebserverConfig{
			URL: "http://0.0.0.0:4000",
			Webservices: map[string]bool{
				"version": true,
				"health":  true,
				"data":    true,
				"stats":   true,
				"send":    true,
			},
		},
		MQTT: MQTTConfig{
			Connection:      "tcp://127.0.0.1:1883",
			Topic:           "rc433",
			RepeatWindowInt: 1000,
		},
		Receiver: ReceiverConfig{
			Gpio:            27,
			Terminator:      "none",
			BufferSize:      1024,
			NoiseFilter:     80,
			PollIntervalInt: 10,
		},
		Transmitter: TransmitterConfig{
			Gpio:              17,
			MaxDelayTolerance: 50,
			QuietBefore:       10000,
			QuietAfter:        10000,
			Repetitions:       4,
		},
		ProtocolList: []ProtocolConfig{
			{Preset: "emos-a"},
			{Preset: "emos-b"},
		},
	}
}

func (c *Config) LoadConfig() error {
	if err := c.readConfigFile(); err != nil {
		return fmt.Errorf("error reading config file %q: %w", c.Flag.ConfigFile, err)
	}

	if c.Flag.LogLevel != "" {
		c.Debug.FlagString = c.Flag.LogLevel
	}
	if err := c.setDebugConfig(); err != nil {
		return fmt.Errorf("unable to open debug file %q: %w", c.Debug.FileString, err)
	}

	return c.resolve()
}

// resolve converts the config file values and checks the protocols.
func (c *Config) resolve() error {
	c.MQTT.RepeatWindow = time.Duration(c.MQTT.RepeatWindowInt) * time.Millisecond
	c.Receiver.PollInterval = time.Duration(c.Receiver.PollIntervalInt) * time.Millisecond

	if c.Receiver.PollInterval <= 0 {
		c.Receiver.PollInterval = 10 * time.Millisecond
	}
	if c.Receiver.BufferSize < pulsebuffer.MinCapacity {
		return fmt.Errorf("receiver buffersize %d: %w", c.Receiver.BufferSize, pulsebuffer.ErrCapacity)
	}

	protocols, err := ResolveProtocols(c.ProtocolList)
	if err != nil {
		return err
	}
	c.Protocols = protocols
	return nil
}

// ResolveProtocols replaces presets by their definition and validates all protocols.
func ResolveProtocols(list []ProtocolConfig) ([]syncpulse.Protocol, error) {
	if len(list) == 0 {
		return nil, ErrNoProtocol
	}

	protocols := make([]syncpulse.Protocol, 0, len(list))
	for _, pc := range list {
		p := pc.Protocol
		if pc.Preset != "" {
			var err error
			if p, err = syncpulse.Lookup(pc.Preset); err != nil {
				return nil, err
			}
			if pc.Name != "" {
				p.Name = pc.Name
			}
		}

		if err := p.Validate(); err != nil {
			return nil, err
		}
		protocols = append(protocols, p)
	}

	return protocols, nil
}

// Protocol returns the resolved protocol name.
func (c *Config) Protocol(name string) (syncpulse.Protocol, error) {
	for _, p := range c.Protocols {
		if p.Name == name {
			return p, nil
		}
	}
	return syncpulse.Lookup(name)
}

func (c *Config) readConfigFile() error {
	file, err := os.Open(c.Flag.ConfigFile)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	decoder := yaml.NewDecoder(file)
	if err = decoder.Decode(c); err != nil {
		return err
	}

	return nil
}

func (c *Config) setDebugConfig() (err error) {
	// defines Debug section of global.Config
	switch c.Debug.FlagString {
	case "trace", "full":
		c.Debug.Flag = debug.Full
	case "debug":
		c.Debug.Flag = debug.Warning | debug.Info | debug.Error | debug.Fatal | debug.Debug
	case "standard":
		c.Debug.Flag = debug.Standard
	}

	switch c.Debug.FileString {
	case "stderr":
		c.Debug.File = os.Stderr
	case "stdout":
		c.Debug.File = os.Stdout
	default:
		if c.Debug.File, err = os.OpenFile(c.Debug.FileString, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666); err != nil {
			return
		}
	}

	return
}

// Package config loads the daemon configuration and the headset detection
// calibration from TOML files.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/pflag"
)

// Bus transport names.
const (
	BusMock   = "mock"
	BusI2C    = "i2c"
	BusSerial = "serial"
)

// BusConfig selects and parameterises the register bus.
type BusConfig struct {
	Type string `toml:"type"`
	// Device is the I2C adapter or serial port path.
	Device string `toml:"device"`
	// Addr is the control-port slave address; IntfAddr the audio
	// interface register block.
	Addr     uint16 `toml:"addr"`
	IntfAddr uint16 `toml:"intf_addr"`
	// IntfDevice is the serial port of the interface bridge. Empty disables
	// bus health scanning on serial transports.
	IntfDevice string `toml:"intf_device"`
	Baud       int    `toml:"baud"`
}

// HTTPConfig configures the control API.
type HTTPConfig struct {
	Listen  string `toml:"listen"`
	KeysDir string `toml:"keys_dir"`
}

// ZeroconfConfig configures the mDNS advertisement.
type ZeroconfConfig struct {
	Enabled bool   `toml:"enabled"`
	Name    string `toml:"name"`
}

// Config is the daemon configuration.
type Config struct {
	Bus         BusConfig      `toml:"bus"`
	IRQPin      string         `toml:"irq_pin"`
	ResetPin    string         `toml:"reset_pin"`
	Calibration string         `toml:"calibration"`
	LogLevel    string         `toml:"log_level"`
	HTTP        HTTPConfig     `toml:"http"`
	Zeroconf    ZeroconfConfig `toml:"zeroconf"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Bus: BusConfig{
			Type:     BusMock,
			Device:   "/dev/i2c-1",
			Addr:     0x0D,
			IntfAddr: 0x77,
			Baud:     115200,
		},
		Calibration: "/etc/codecd/calibration.toml",
		LogLevel:    "info",
		HTTP: HTTPConfig{
			Listen:  ":8090",
			KeysDir: "/var/lib/codecd",
		},
		Zeroconf: ZeroconfConfig{
			Enabled: true,
			Name:    "codecd",
		},
	}
}

// RegisterFlags adds the daemon flags to fs, bound to c's fields.
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Bus.Type, "bus", c.Bus.Type, "register bus: mock, i2c or serial")
	fs.StringVar(&c.Bus.Device, "device", c.Bus.Device, "I2C adapter or serial port")
	fs.Uint16Var(&c.Bus.Addr, "addr", c.Bus.Addr, "codec control-port I2C address")
	fs.Uint16Var(&c.Bus.IntfAddr, "intf-addr", c.Bus.IntfAddr, "audio interface I2C address")
	fs.StringVar(&c.Bus.IntfDevice, "intf-device", c.Bus.IntfDevice, "serial port of the interface bridge")
	fs.IntVar(&c.Bus.Baud, "baud", c.Bus.Baud, "serial bridge baud rate")
	fs.StringVar(&c.IRQPin, "irq-pin", c.IRQPin, "GPIO carrying the codec interrupt")
	fs.StringVar(&c.ResetPin, "reset-pin", c.ResetPin, "GPIO driving the codec reset")
	fs.StringVar(&c.Calibration, "calibration", c.Calibration, "headset detection calibration file")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level: debug, info, warn or error")
	fs.StringVar(&c.HTTP.Listen, "listen", c.HTTP.Listen, "HTTP listen address")
	fs.StringVar(&c.HTTP.KeysDir, "keys-dir", c.HTTP.KeysDir, "directory holding keys.json")
	fs.BoolVar(&c.Zeroconf.Enabled, "zeroconf", c.Zeroconf.Enabled, "advertise the API over mDNS")
	fs.StringVar(&c.Zeroconf.Name, "zeroconf-name", c.Zeroconf.Name, "mDNS instance name")
}

// Load reads path over the defaults and then reapplies every flag that was
// set explicitly in fs, so the command line wins over the file. A missing
// file is not an error. fs may be nil.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			slog.Info("config: no config file, using defaults", "path", path)
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if fs != nil {
		bound := pflag.NewFlagSet("config", pflag.ContinueOnError)
		cfg.RegisterFlags(bound)
		var setErr error
		fs.Visit(func(f *pflag.Flag) {
			if bound.Lookup(f.Name) == nil || setErr != nil {
				return
			}
			setErr = bound.Set(f.Name, f.Value.String())
		})
		if setErr != nil {
			return nil, fmt.Errorf("apply flags: %w", setErr)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values that cannot be caught by decoding.
func (c *Config) Validate() error {
	switch c.Bus.Type {
	case BusMock, BusI2C, BusSerial:
	default:
		return fmt.Errorf("config: unknown bus type %q", c.Bus.Type)
	}
	if c.Bus.Type != BusMock && c.Bus.Device == "" {
		return fmt.Errorf("config: bus %s needs a device", c.Bus.Type)
	}
	if c.Bus.Addr > 0x7F || c.Bus.IntfAddr > 0x7F {
		return fmt.Errorf("config: I2C addresses are 7-bit")
	}
	if c.HTTP.Listen == "" {
		return fmt.Errorf("config: http.listen is empty")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: log_level: %w", err)
	}
	return l, nil
}

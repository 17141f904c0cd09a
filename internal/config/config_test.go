package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/micro-nova/codecd/internal/codec"
	"github.com/micro-nova/codecd/internal/config"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "codecd.toml"), nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	def := config.Default()
	if cfg.Bus != def.Bus || cfg.HTTP != def.HTTP {
		t.Errorf("Load() = %+v, want defaults %+v", cfg, def)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "codecd.toml", `
irq_pin = "GPIO17"
log_level = "debug"

[bus]
type = "i2c"
device = "/dev/i2c-3"
addr = 0x0d

[http]
listen = "127.0.0.1:9000"
`)
	cfg, err := config.Load(path, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Bus.Type != config.BusI2C || cfg.Bus.Device != "/dev/i2c-3" || cfg.Bus.Addr != 0x0D {
		t.Errorf("bus = %+v", cfg.Bus)
	}
	if cfg.Bus.IntfAddr != 0x77 {
		t.Errorf("intf_addr = 0x%02x, want default 0x77", cfg.Bus.IntfAddr)
	}
	if cfg.IRQPin != "GPIO17" || cfg.HTTP.Listen != "127.0.0.1:9000" {
		t.Errorf("cfg = %+v", cfg)
	}
	if l, _ := cfg.Level(); l.String() != "DEBUG" {
		t.Errorf("level = %v", l)
	}
}

func TestFlagsOverrideFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "codecd.toml", `
[bus]
type = "serial"
device = "/dev/ttyUSB0"
baud = 57600
[http]
listen = ":1234"
`)
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.Default().RegisterFlags(fs)
	if err := fs.Parse([]string{"--listen", ":5555", "--zeroconf=false"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path, fs)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.Listen != ":5555" {
		t.Errorf("listen = %q, want flag value", cfg.HTTP.Listen)
	}
	if cfg.Zeroconf.Enabled {
		t.Error("zeroconf flag ignored")
	}
	if cfg.Bus.Type != config.BusSerial || cfg.Bus.Baud != 57600 {
		t.Errorf("unset flags clobbered file values: %+v", cfg.Bus)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad toml", "[bus\n", "parse config"},
		{"unknown bus", "[bus]\ntype = \"spi\"\n", "unknown bus type"},
		{"device required", "[bus]\ntype = \"i2c\"\ndevice = \"\"\n", "needs a device"},
		{"wide address", "[bus]\naddr = 0x1ff\n", "7-bit"},
		{"log level", "log_level = \"loud\"\n", "log_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "codecd.toml", tt.body)
			_, err := config.Load(path, nil)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestLoadCalibration(t *testing.T) {
	path := writeFile(t, t.TempDir(), "calibration.toml", `
bias = 3
mic_current = 2
tldoh_us = 250

[polling]
volt_b1 = 0xC0
`)
	cal, err := config.LoadCalibration(path)
	if err != nil {
		t.Fatalf("LoadCalibration() error = %v", err)
	}
	if cal.Bias != codec.MicBias3 || cal.MicCurrent != 2 {
		t.Errorf("cal = %+v", cal)
	}
	if cal.TLDOH != 250*time.Microsecond {
		t.Errorf("TLDOH = %v", cal.TLDOH)
	}
	if cal.SetupPlugRemovalDelay != time.Second {
		t.Errorf("SetupPlugRemovalDelay = %v, want default 1s", cal.SetupPlugRemovalDelay)
	}
	if cal.Polling.VoltB1 != 0xC0 || cal.Polling.VoltB2 != codec.DefaultPollingParams().VoltB2 {
		t.Errorf("polling = %+v", cal.Polling)
	}
}

func TestLoadCalibrationRejects(t *testing.T) {
	tests := []struct {
		name, body string
	}{
		{"bias zero", "bias = 0\n"},
		{"bias five", "bias = 5\n"},
		{"bias four cannot poll", "bias = 4\n"},
		{"current", "hph_current = 4\n"},
		{"byte overflow", "[polling]\nvolt_b1 = 300\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "calibration.toml", tt.body)
			if _, err := config.LoadCalibration(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSaveCalibration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "calibration.toml")
	want, err := config.DefaultCalibrationFile().Calibration()
	if err != nil {
		t.Fatal(err)
	}
	want.Bias = codec.MicBias1
	want.ShutdownPlugRemoval = 42 * time.Millisecond

	if err := config.SaveCalibration(path, want); err != nil {
		t.Fatalf("SaveCalibration() error = %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
	got, err := config.LoadCalibration(path)
	if err != nil {
		t.Fatal(err)
	}
	if *got != *want {
		t.Errorf("loaded %+v, want %+v", got, want)
	}

	bad := *want
	bad.Bias = codec.MicBias4
	if err := config.SaveCalibration(path, &bad); err == nil {
		t.Error("saved a calibration that cannot poll")
	}
}

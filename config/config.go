// Package config holds the key-path configuration, backed by viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/fornellas/fdm/printer"
)

// EnvPrefix is the prefix of environment variables overriding configuration keys, eg:
// FDM_SERIAL_BAUDRATE overrides "serial.baudrate".
const EnvPrefix = "FDM"

// Defaults holds the default value for all known keys.
var Defaults = map[string]any{
	"printer.build_volume.x":                220,
	"printer.build_volume.y":                220,
	"printer.build_volume.z":                250,
	"printer.max_feedrate.x":                500,
	"printer.max_feedrate.y":                500,
	"printer.max_feedrate.z":                5,
	"printer.max_feedrate.e":                25,
	"printer.max_acceleration.x":            3000,
	"printer.max_acceleration.y":            3000,
	"printer.max_acceleration.z":            100,
	"printer.max_acceleration.e":            10000,
	"printer.default_temperatures.extruder": 200,
	"printer.default_temperatures.bed":      60,
	"serial.port":                           printer.AutoPortName,
	"serial.baudrate":                       115200,
	"serial.timeout":                        "1s",
	"serial.auto_connect":                   false,
	"dispatcher.ack_timeout":                printer.DefaultDispatcherOptions.AckTimeout.String(),
	"dispatcher.command_delay":              printer.DefaultDispatcherOptions.CommandDelay.String(),
	"status.poll_interval":                  printer.DefaultHostOptions.StatusPollInterval.String(),
	"manual.feedrate":                       printer.DefaultHostOptions.Feedrate,
	"calibration.bed_leveling_points":       9,
	"calibration.probe_offset.z":            -1.5,
	"calibration.z_probe_speed":             5,
}

// Config is a key-path configuration store. Keys are case insensitive and "." separated, eg:
// "serial.baudrate".
type Config struct {
	v    *viper.Viper
	path string
}

// New creates a Config holding only defaults and environment overrides.
func New() *Config {
	v := viper.New()
	for key, value := range Defaults {
		v.SetDefault(key, value)
	}
	macros := map[string]any{}
	for name, commands := range printer.DefaultMacros {
		macros[name] = commands
	}
	v.SetDefault("macros", macros)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Config{v: v}
}

// DefaultPath returns the default configuration file path, under the user configuration directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: %w", err)
	}
	return filepath.Join(dir, "fdm", "config.yaml"), nil
}

// LoadDotEnv loads environment variables from .env files, without overriding variables already
// set. Missing files are ignored. Without paths, ".env" at the current directory is used.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: %s: %w", path, err)
		}
	}
	return nil
}

// Load creates a Config, reading path when it exists. The format is given by the file extension
// (yaml, json, toml...).
func Load(path string) (*Config, error) {
	c := New()
	c.path = path
	if path == "" {
		return c, nil
	}
	c.v.SetConfigFile(path)
	if err := c.v.ReadInConfig(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return c, nil
		}
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return c, nil
}

// Path returns the path given to Load.
func (c *Config) Path() string {
	return c.path
}

// Save writes all settings to path, or to the path given to Load when empty. Parent directories
// are created.
func (c *Config) Save(path string) error {
	if path == "" {
		path = c.path
	}
	if path == "" {
		return errors.New("config: save: no path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("config: save: %w", err)
	}
	if err := c.v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("config: save: %s: %w", path, err)
	}
	return nil
}

func (c *Config) Get(key string) any {
	return c.v.Get(key)
}

func (c *Config) Set(key string, value any) {
	c.v.Set(key, value)
}

func (c *Config) IsSet(key string) bool {
	return c.v.IsSet(key)
}

// Keys returns all known keys, sorted.
func (c *Config) Keys() []string {
	keys := c.v.AllKeys()
	sort.Strings(keys)
	return keys
}

// AllSettings returns all settings as a nested map.
func (c *Config) AllSettings() map[string]any {
	return c.v.AllSettings()
}

func (c *Config) Macros() map[string][]string {
	macros := map[string][]string{}
	for name, commands := range c.v.GetStringMapStringSlice("macros") {
		macros[strings.ToLower(name)] = commands
	}
	return macros
}

// PortName returns "serial.port".
func (c *Config) PortName() string {
	return c.v.GetString("serial.port")
}

// BaudRate returns "serial.baudrate".
func (c *Config) BaudRate() int {
	return c.v.GetInt("serial.baudrate")
}

// SerialTimeout returns "serial.timeout", the default response timeout of sent commands.
func (c *Config) SerialTimeout() time.Duration {
	return c.v.GetDuration("serial.timeout")
}

// BuildVolume returns "printer.build_volume" X, Y and Z.
func (c *Config) BuildVolume() (float64, float64, float64) {
	return c.v.GetFloat64("printer.build_volume.x"),
		c.v.GetFloat64("printer.build_volume.y"),
		c.v.GetFloat64("printer.build_volume.z")
}

// DefaultTemperature returns "printer.default_temperatures" for heater.
func (c *Config) DefaultTemperature(heater printer.Heater) float64 {
	return c.v.GetFloat64("printer.default_temperatures." + string(heater))
}

// HostOptions builds printer.HostOptions from the configuration.
func (c *Config) HostOptions() printer.HostOptions {
	options := printer.DefaultHostOptions
	options.Dispatcher.AckTimeout = c.v.GetDuration("dispatcher.ack_timeout")
	options.Dispatcher.CommandDelay = c.v.GetDuration("dispatcher.command_delay")
	options.StatusPollInterval = c.v.GetDuration("status.poll_interval")
	options.Feedrate = c.v.GetInt("manual.feedrate")
	options.Macros = c.Macros()
	return options
}

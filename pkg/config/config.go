// Package config loads the emulator configuration from a YAML file, a .env
// file and SERVOEMU_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Manu343726/servoemu/pkg/hw/servo/bus"
	"github.com/Manu343726/servoemu/pkg/hw/servo/device"
	"github.com/Manu343726/servoemu/pkg/hw/servo/emulator"
	"github.com/Manu343726/servoemu/pkg/hw/servo/faults"
	"github.com/Manu343726/servoemu/pkg/hw/servo/protocol"
	"github.com/Manu343726/servoemu/pkg/logging"
	"github.com/Manu343726/servoemu/pkg/transport"
	"github.com/Manu343726/servoemu/pkg/utils"
)

// EnvPrefix prefixes every environment override, e.g. SERVOEMU_FAULTS_PACKET_DROP_RATE
const EnvPrefix = "SERVOEMU"

var ErrInvalidConfig = errors.New("invalid configuration")

type Bus struct {
	Transport string `mapstructure:"transport" yaml:"transport"`
	// serial device, or symlink to the pseudo terminal
	Device         string        `mapstructure:"device" yaml:"device"`
	BaudRate       int           `mapstructure:"baud_rate" yaml:"baud_rate"`
	Address        string        `mapstructure:"address" yaml:"address"`
	Path           string        `mapstructure:"path" yaml:"path"`
	TickInterval   time.Duration `mapstructure:"tick_interval" yaml:"tick_interval"`
	MaxFrameLength int           `mapstructure:"max_frame_length" yaml:"max_frame_length"`
}

type Device struct {
	ID              int     `mapstructure:"id" yaml:"id"`
	ModelNumber     int     `mapstructure:"model_number" yaml:"model_number"`
	InitialPosition int     `mapstructure:"initial_position" yaml:"initial_position"`
	VelocityLimit   float64 `mapstructure:"velocity_limit" yaml:"velocity_limit"`
}

type DelayRange struct {
	MinMS int `mapstructure:"min_ms" yaml:"min_ms"`
	MaxMS int `mapstructure:"max_ms" yaml:"max_ms"`
}

type Faults struct {
	PacketDropRate         float64    `mapstructure:"packet_drop_rate" yaml:"packet_drop_rate"`
	ChecksumCorruptionRate float64    `mapstructure:"checksum_corruption_rate" yaml:"checksum_corruption_rate"`
	ResponseDelayRange     DelayRange `mapstructure:"response_delay_range" yaml:"response_delay_range"`
	TimeoutSimulation      bool       `mapstructure:"timeout_simulation" yaml:"timeout_simulation"`
	TimeoutDevices         []int      `mapstructure:"timeout_devices" yaml:"timeout_devices"`
	RandomSeed             int64      `mapstructure:"random_seed" yaml:"random_seed"`
}

type Config struct {
	Bus     Bus            `mapstructure:"bus" yaml:"bus"`
	Devices []Device       `mapstructure:"devices" yaml:"devices"`
	Faults  Faults         `mapstructure:"faults" yaml:"faults"`
	Logging logging.Config `mapstructure:"logging" yaml:"logging"`
}

func Default() Config {
	return Config{
		Bus: Bus{
			Transport:    string(transport.KindPTY),
			BaudRate:     transport.DefaultBaudRate,
			Address:      "127.0.0.1:8765",
			Path:         transport.DefaultWebsocketPath,
			TickInterval: emulator.DefaultTickInterval,
		},
		Devices: []Device{
			{ID: 1, ModelNumber: 777, InitialPosition: 2048, VelocityLimit: device.DefaultVelocityLimit},
		},
		Logging: logging.Default(),
	}
}

// Setup registers defaults and environment overrides on v
func Setup(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("bus.transport", defaults.Bus.Transport)
	v.SetDefault("bus.device", defaults.Bus.Device)
	v.SetDefault("bus.baud_rate", defaults.Bus.BaudRate)
	v.SetDefault("bus.address", defaults.Bus.Address)
	v.SetDefault("bus.path", defaults.Bus.Path)
	v.SetDefault("bus.tick_interval", defaults.Bus.TickInterval)
	v.SetDefault("bus.max_frame_length", protocol.DefaultMaxLength)

	devices := make([]map[string]any, 0, len(defaults.Devices))
	for _, d := range defaults.Devices {
		devices = append(devices, map[string]any{
			"id":               d.ID,
			"model_number":     d.ModelNumber,
			"initial_position": d.InitialPosition,
			"velocity_limit":   d.VelocityLimit,
		})
	}
	v.SetDefault("devices", devices)

	v.SetDefault("faults.packet_drop_rate", 0.0)
	v.SetDefault("faults.checksum_corruption_rate", 0.0)
	v.SetDefault("faults.response_delay_range.min_ms", 0)
	v.SetDefault("faults.response_delay_range.max_ms", 0)
	v.SetDefault("faults.timeout_simulation", false)
	v.SetDefault("faults.random_seed", 0)

	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)
	v.SetDefault("logging.file", defaults.Logging.File)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load decodes and validates the configuration held by v
func Load(v *viper.Viper) (Config, error) {
	var config Config

	if err := v.Unmarshal(&config); err != nil {
		return Config{}, utils.MakeError(ErrInvalidConfig, "%v", err)
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}

func (c Config) Validate() error {
	if _, err := transport.ParseKind(c.Bus.Transport); err != nil {
		return utils.MakeError(ErrInvalidConfig, "bus: %v", err)
	}
	if c.Bus.TickInterval < 0 {
		return utils.MakeError(ErrInvalidConfig, "bus: negative tick interval %v", c.Bus.TickInterval)
	}
	if len(c.Devices) == 0 {
		return utils.MakeError(ErrInvalidConfig, "no devices configured")
	}

	seen := make(map[int]bool, len(c.Devices))
	for i, d := range c.Devices {
		if err := d.Validate(); err != nil {
			return utils.MakeError(ErrInvalidConfig, "devices[%d]: %v", i, err)
		}
		if seen[d.ID] {
			return utils.MakeError(ErrInvalidConfig, "devices[%d]: duplicate id %d", i, d.ID)
		}
		seen[d.ID] = true
	}

	if _, err := c.Faults.ToFaults(); err != nil {
		return err
	}

	if err := c.Logging.Validate(); err != nil {
		return utils.MakeError(ErrInvalidConfig, "logging: %v", err)
	}

	return nil
}

func (d Device) Validate() error {
	if d.ID < 0 || d.ID > int(protocol.MaxDeviceID) {
		return utils.MakeError(ErrInvalidConfig, "id %d out of range [0, %d]", d.ID, protocol.MaxDeviceID)
	}
	if d.ModelNumber < 0 || d.ModelNumber > 0xFFFF {
		return utils.MakeError(ErrInvalidConfig, "model number %d does not fit in a register", d.ModelNumber)
	}
	if d.InitialPosition < 0 || d.InitialPosition > device.MaxPosition {
		return utils.MakeError(ErrInvalidConfig, "initial position %d out of range [0, %d]", d.InitialPosition, device.MaxPosition)
	}
	if d.VelocityLimit < 0 {
		return utils.MakeError(ErrInvalidConfig, "negative velocity limit %v", d.VelocityLimit)
	}
	return nil
}

// ToDevice converts a validated device entry
func (d Device) ToDevice() device.Config {
	return device.Config{
		ID:              byte(d.ID),
		ModelNumber:     uint16(d.ModelNumber),
		InitialPosition: uint16(d.InitialPosition),
		VelocityLimit:   d.VelocityLimit,
	}
}

// ToFaults converts and validates the fault section
func (f Faults) ToFaults() (faults.Config, error) {
	config := faults.Config{
		PacketDropRate:         f.PacketDropRate,
		ChecksumCorruptionRate: f.ChecksumCorruptionRate,
		ResponseDelay: faults.DelayRange{
			MinMS: f.ResponseDelayRange.MinMS,
			MaxMS: f.ResponseDelayRange.MaxMS,
		},
		TimeoutSimulation: f.TimeoutSimulation,
		RandomSeed:        f.RandomSeed,
	}

	for _, id := range f.TimeoutDevices {
		if id < 0 || id > int(protocol.MaxDeviceID) {
			return faults.Config{}, utils.MakeError(ErrInvalidConfig, "faults: timeout device %d out of range", id)
		}
		config.TimeoutDevices = append(config.TimeoutDevices, byte(id))
	}

	if err := config.Validate(); err != nil {
		return faults.Config{}, utils.MakeError(ErrInvalidConfig, "faults: %v", err)
	}

	return config, nil
}

func (b Bus) TransportOptions() transport.Options {
	kind, _ := transport.ParseKind(b.Transport)

	return transport.Options{
		Kind:     kind,
		Device:   b.Device,
		BaudRate: b.BaudRate,
		Address:  b.Address,
		Path:     b.Path,
	}
}

// EmulatorOptions returns the emulator options the configuration controls
func (c Config) EmulatorOptions() ([]emulator.Option, error) {
	faultConfig, err := c.Faults.ToFaults()
	if err != nil {
		return nil, err
	}

	return []emulator.Option{
		emulator.WithFaults(faultConfig),
		emulator.WithTickInterval(c.Bus.TickInterval),
		emulator.WithMaxFrameLength(c.Bus.MaxFrameLength),
	}, nil
}

// Registry builds the bus with every configured servo registered
func (c Config) Registry(logger *slog.Logger) (*bus.Registry, error) {
	registry := bus.NewRegistry(logger)

	for _, d := range c.Devices {
		if _, err := registry.Register(d.ToDevice()); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

func (c Config) YAML() (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

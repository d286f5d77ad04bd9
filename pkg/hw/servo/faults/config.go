package faults

import (
	"errors"
	"math"
	"slices"
	"time"

	"github.com/Manu343726/servoemu/pkg/hw/servo/protocol"
	"github.com/Manu343726/servoemu/pkg/utils"
)

var ErrInvalidConfig = errors.New("invalid fault configuration")

// DelayRange is an inclusive range of response delays in milliseconds
type DelayRange struct {
	MinMS int
	MaxMS int
}

func (r DelayRange) Min() time.Duration {
	return time.Duration(r.MinMS) * time.Millisecond
}

func (r DelayRange) Max() time.Duration {
	return time.Duration(r.MaxMS) * time.Millisecond
}

// Config is the fault policy applied to outbound responses. It is replaced
// as a whole, never edited while an Injector uses it.
type Config struct {
	// Probability in [0, 1] of dropping a response
	PacketDropRate float64
	// Probability in [0, 1] of corrupting the checksum of a response that was not dropped
	ChecksumCorruptionRate float64
	ResponseDelay          DelayRange
	// Silences every servo
	TimeoutSimulation bool
	// Silences only the listed servos
	TimeoutDevices []byte
	RandomSeed     int64
}

func validRate(rate float64) bool {
	return !math.IsNaN(rate) && rate >= 0 && rate <= 1
}

func (c Config) Validate() error {
	if !validRate(c.PacketDropRate) {
		return utils.MakeError(ErrInvalidConfig, "packet drop rate %v is outside [0, 1]", c.PacketDropRate)
	}
	if !validRate(c.ChecksumCorruptionRate) {
		return utils.MakeError(ErrInvalidConfig, "checksum corruption rate %v is outside [0, 1]", c.ChecksumCorruptionRate)
	}
	if c.ResponseDelay.MinMS < 0 {
		return utils.MakeError(ErrInvalidConfig, "negative minimum response delay %vms", c.ResponseDelay.MinMS)
	}
	if c.ResponseDelay.MinMS > c.ResponseDelay.MaxMS {
		return utils.MakeError(ErrInvalidConfig, "response delay range [%v, %v]ms is inverted", c.ResponseDelay.MinMS, c.ResponseDelay.MaxMS)
	}
	for _, id := range c.TimeoutDevices {
		if id > protocol.MaxDeviceID {
			return utils.MakeError(ErrInvalidConfig, "timeout device %d is not individually addressable", id)
		}
	}

	return nil
}

// TimesOut reports whether every response of the given servo must be swallowed
func (c Config) TimesOut(id byte) bool {
	return c.TimeoutSimulation || slices.Contains(c.TimeoutDevices, id)
}

// Clone returns a copy that shares no memory with c
func (c Config) Clone() Config {
	c.TimeoutDevices = slices.Clone(c.TimeoutDevices)
	return c
}

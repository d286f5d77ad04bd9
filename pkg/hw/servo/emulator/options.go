package emulator

import (
	"log/slog"
	"time"

	"github.com/Manu343726/servoemu/pkg/hw/servo/bus"
	"github.com/Manu343726/servoemu/pkg/hw/servo/faults"
)

// DefaultTickInterval is the period of the kinematics tick
const DefaultTickInterval = time.Millisecond

type Option func(*Emulator)

// WithLogger sets the logger of the emulator. Nil keeps logging disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Emulator) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithTickInterval(interval time.Duration) Option {
	return func(e *Emulator) {
		e.tickInterval = interval
	}
}

// WithFaults sets the initial fault configuration. It is validated by New.
func WithFaults(config faults.Config) Option {
	return func(e *Emulator) {
		e.faults = config
	}
}

// WithMaxFrameLength bounds the declared length the decoder accepts
func WithMaxFrameLength(length int) Option {
	return func(e *Emulator) {
		e.maxFrameLength = length
	}
}

// WithMiddleware wraps the bus dispatcher, e.g. to trace requests
func WithMiddleware(middleware func(bus.Dispatcher) bus.Dispatcher) Option {
	return func(e *Emulator) {
		e.dispatcher = middleware(e.dispatcher)
	}
}

// WithClock replaces time.Now as the time source of Run
func WithClock(clock func() time.Time) Option {
	return func(e *Emulator) {
		e.clock = clock
	}
}

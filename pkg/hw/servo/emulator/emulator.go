// Package emulator runs an emulated servo bus on a transport: it decodes the
// inbound byte stream, dispatches requests to the bus, ticks the servos and
// sends the responses through the fault injector.
package emulator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"gopkg.in/tomb.v2"

	"github.com/Manu343726/servoemu/pkg/hw/servo/bus"
	"github.com/Manu343726/servoemu/pkg/hw/servo/faults"
	"github.com/Manu343726/servoemu/pkg/hw/servo/protocol"
	"github.com/Manu343726/servoemu/pkg/transport"
	"github.com/Manu343726/servoemu/pkg/utils"
)

// ErrTransportClosed terminates Run when the transport fails
var ErrTransportClosed = errors.New("transport closed")

const readBufferSize = 256

// Emulator owns one bus and the transport it is attached to.
//
// Feed, Advance and Flush are the stages of the loop. Run calls them from its
// own goroutine; tests call them directly with a synthetic clock. All of them
// are serialized by a single lock, so servo state is never observed mid-update.
// Writes happen under a second lock taken before the first is released, so a
// stalled link keeps responses ordered without holding up the servos.
type Emulator struct {
	registry   *bus.Registry
	dispatcher bus.Dispatcher
	transport  transport.Transport
	logger     *slog.Logger

	faults         faults.Config
	tickInterval   time.Duration
	maxFrameLength int
	clock          func() time.Time

	mu       sync.Mutex
	writeMu  sync.Mutex
	decoder  *protocol.Decoder
	injector *faults.Injector

	counters counters
}

func New(registry *bus.Registry, link transport.Transport, options ...Option) (*Emulator, error) {
	e := &Emulator{
		registry:     registry,
		dispatcher:   registry,
		transport:    link,
		logger:       slog.New(slog.DiscardHandler),
		tickInterval: DefaultTickInterval,
		clock:        time.Now,
	}

	for _, option := range options {
		option(e)
	}

	injector, err := faults.NewInjector(e.faults)
	if err != nil {
		return nil, err
	}

	if e.tickInterval <= 0 {
		e.tickInterval = DefaultTickInterval
	}

	e.injector = injector
	e.decoder = protocol.NewDecoder(e.maxFrameLength)

	return e, nil
}

func (e *Emulator) Stats() Stats {
	return e.counters.snapshot()
}

// SetFaultConfig replaces the fault configuration as a whole. The new random
// source takes effect from the next response on.
func (e *Emulator) SetFaultConfig(config faults.Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.injector.Reload(config); err != nil {
		return err
	}

	e.logger.Info("fault configuration reloaded",
		"drop_rate", config.PacketDropRate,
		"corruption_rate", config.ChecksumCorruptionRate,
		"delay_ms", []int{config.ResponseDelay.MinMS, config.ResponseDelay.MaxMS},
		"timeout", config.TimeoutSimulation,
		"seed", config.RandomSeed)
	return nil
}

func (e *Emulator) FaultConfig() faults.Config {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.injector.Config()
}

// Inspect runs f with exclusive access to the bus
func (e *Emulator) Inspect(f func(registry *bus.Registry)) {
	e.mu.Lock()
	defer e.mu.Unlock()

	f(e.registry)
}

// Feed decodes inbound bytes and dispatches every complete request. Responses
// without delay are written before Feed returns.
func (e *Emulator) Feed(now time.Time, data []byte) error {
	e.mu.Lock()

	e.counters.bytesReceived.Add(uint64(len(data)))

	for _, result := range e.decoder.Feed(data) {
		if result.Err != nil {
			e.counters.malformedFrames.Add(1)
			e.logger.Debug("malformed frame discarded", "error", result.Err)
			continue
		}

		e.counters.framesDecoded.Add(1)
		e.dispatch(now, result.Packet)
	}

	return e.send(e.injector.Due(now))
}

func (e *Emulator) dispatch(now time.Time, request protocol.Packet) {
	response, err := e.dispatcher.Dispatch(request)
	if err != nil {
		e.logger.Debug("request rejected", "request", request.String(), "error", err)
	}
	if response == nil {
		if !request.IsBroadcast() && request.Instruction != protocol.InstSyncWrite {
			e.counters.unanswered.Add(1)
		}
		return
	}

	frame, err := response.Encode()
	if err != nil {
		e.counters.unanswered.Add(1)
		e.logger.Warn("response cannot be encoded", "response", response.String(), "error", err)
		return
	}

	decision := e.injector.Submit(now, response.ID, frame)

	switch decision.Outcome {
	case faults.Dropped:
		e.counters.responsesDropped.Add(1)
	case faults.TimedOut:
		e.counters.responsesTimedOut.Add(1)
	case faults.Delivered:
		if decision.Corrupted {
			e.counters.responsesCorrupted.Add(1)
		}
		if decision.Delay > 0 {
			e.counters.responsesDelayed.Add(1)
		}
	}

	if decision.Outcome != faults.Delivered || decision.Corrupted {
		e.logger.Debug("fault injected", "id", response.ID, "fault", decision.String())
	}
}

// Advance moves every servo to now
func (e *Emulator) Advance(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.registry.Advance(now)
}

// Flush writes every delayed response that is due
func (e *Emulator) Flush(now time.Time) error {
	e.mu.Lock()
	return e.send(e.injector.Due(now))
}

// send is called with mu held and releases it once the write lock is taken
func (e *Emulator) send(frames [][]byte) error {
	e.writeMu.Lock()
	e.mu.Unlock()
	defer e.writeMu.Unlock()

	for _, frame := range frames {
		if _, err := e.transport.Write(frame); err != nil {
			return utils.MakeError(ErrTransportClosed, "writing to %v: %v", e.transport.Name(), err)
		}
		e.counters.responsesSent.Add(1)
	}

	return nil
}

// Run drives the loop until ctx is done or the transport fails. The transport
// is closed on return and responses still waiting for their delay are lost.
// Closing the transport also releases a write stalled on a peer that stopped
// reading.
func (e *Emulator) Run(ctx context.Context) error {
	var t tomb.Tomb
	inbound := make(chan []byte, 16)

	t.Go(func() error {
		select {
		case <-ctx.Done():
			t.Kill(nil)
		case <-t.Dying():
		}

		if err := e.transport.Close(); err != nil {
			e.logger.Debug("closing transport", "error", err)
		}
		return nil
	})
	t.Go(func() error {
		return e.readLoop(&t, inbound)
	})
	t.Go(func() error {
		return e.loop(&t, inbound)
	})

	err := t.Wait()
	if err != nil {
		e.logger.Error("emulator stopped", "error", err, "stats", e.Stats())
	} else {
		e.logger.Info("emulator stopped", "stats", e.Stats())
	}

	return err
}

func (e *Emulator) readLoop(t *tomb.Tomb, inbound chan<- []byte) error {
	buffer := make([]byte, readBufferSize)

	for {
		n, err := e.transport.Read(buffer)
		if n > 0 {
			select {
			case inbound <- append([]byte(nil), buffer[:n]...):
			case <-t.Dying():
				return nil
			}
		}

		if err != nil {
			select {
			case <-t.Dying():
				return nil
			default:
				return utils.MakeError(ErrTransportClosed, "reading from %v: %v", e.transport.Name(), err)
			}
		}
	}
}

func (e *Emulator) loop(t *tomb.Tomb, inbound <-chan []byte) error {
	defer e.discardPending()

	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()

	e.logger.Info("emulator running", "transport", e.transport.Name(), "servos", e.registry.IDs(), "tick", e.tickInterval)
	e.Advance(e.clock())

	for {
		select {
		case <-t.Dying():
			return nil

		case data := <-inbound:
			if err := e.Feed(e.clock(), data); err != nil {
				return err
			}

		case <-ticker.C:
			now := e.clock()
			e.Advance(now)
			if err := e.Flush(now); err != nil {
				return err
			}
		}
	}
}

func (e *Emulator) discardPending() {
	e.mu.Lock()
	discarded := e.injector.Discard()
	e.mu.Unlock()

	e.counters.responsesDiscarded.Add(uint64(discarded))
}

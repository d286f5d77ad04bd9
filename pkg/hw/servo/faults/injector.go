// Package faults perturbs the responses of the emulated bus: it drops them,
// corrupts their checksum and delays them according to a Config, drawing
// every decision from a PRNG seeded by the configuration so that runs are
// reproducible.
package faults

import (
	"container/heap"
	"fmt"
	"math/rand/v2"
	"time"
)

// CorruptionMask is XORed into the checksum byte of corrupted frames
const CorruptionMask byte = 0xA5

// Outcome is the fate of one outbound frame
type Outcome int

const (
	Delivered Outcome = iota
	Dropped
	TimedOut
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Dropped:
		return "dropped"
	case TimedOut:
		return "timed out"
	default:
		return fmt.Sprintf("unknown(%d)", int(o))
	}
}

// Decision is what the injector does to one outbound frame
type Decision struct {
	Outcome   Outcome
	Corrupted bool
	Delay     time.Duration
}

func (d Decision) String() string {
	if d.Outcome != Delivered {
		return d.Outcome.String()
	}
	if d.Corrupted {
		return fmt.Sprintf("delivered corrupted after %v", d.Delay)
	}
	return fmt.Sprintf("delivered after %v", d.Delay)
}

// Injector applies a fault Config to outbound frames and holds the delayed
// ones until they are due. It is not safe for concurrent use.
type Injector struct {
	config   Config
	rng      *rand.Rand
	queue    frameQueue
	sequence uint64
}

func newRand(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), 0))
}

func NewInjector(config Config) (*Injector, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Injector{
		config: config.Clone(),
		rng:    newRand(config.RandomSeed),
	}, nil
}

func (i *Injector) Config() Config {
	return i.config.Clone()
}

// Reload replaces the configuration and reseeds the random source. Frames
// already scheduled keep their due time.
func (i *Injector) Reload(config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}

	i.config = config.Clone()
	i.rng = newRand(config.RandomSeed)
	return nil
}

// Decide draws the fate of the next response of the given servo. Draws happen
// in a fixed order (drop, corruption, delay) and only when they can matter.
func (i *Injector) Decide(id byte) Decision {
	if i.config.TimesOut(id) {
		return Decision{Outcome: TimedOut}
	}

	if i.rng.Float64() < i.config.PacketDropRate {
		return Decision{Outcome: Dropped}
	}

	decision := Decision{
		Outcome:   Delivered,
		Corrupted: i.rng.Float64() < i.config.ChecksumCorruptionRate,
		Delay:     i.config.ResponseDelay.Min(),
	}

	if spread := i.config.ResponseDelay.MaxMS - i.config.ResponseDelay.MinMS; spread > 0 {
		decision.Delay += time.Duration(i.rng.IntN(spread+1)) * time.Millisecond
	}

	return decision
}

// Submit decides the fate of a response frame from the given servo and
// schedules it for transmission at now + delay unless it is lost.
func (i *Injector) Submit(now time.Time, id byte, frame []byte) Decision {
	decision := i.Decide(id)
	if decision.Outcome != Delivered {
		return decision
	}

	frame = append([]byte(nil), frame...)
	if decision.Corrupted && len(frame) > 0 {
		frame[len(frame)-1] ^= CorruptionMask
	}

	heap.Push(&i.queue, scheduledFrame{
		due:      now.Add(decision.Delay),
		sequence: i.sequence,
		frame:    frame,
	})
	i.sequence++

	return decision
}

// Due removes and returns, in due order, every frame whose delay has elapsed
func (i *Injector) Due(now time.Time) [][]byte {
	var frames [][]byte

	for i.queue.Len() > 0 && !i.queue.peek().due.After(now) {
		frames = append(frames, heap.Pop(&i.queue).(scheduledFrame).frame)
	}

	return frames
}

// Pending returns the number of frames waiting for their delay to elapse
func (i *Injector) Pending() int {
	return i.queue.Len()
}

// NextDue returns the due time of the earliest scheduled frame
func (i *Injector) NextDue() (time.Time, bool) {
	if i.queue.Len() == 0 {
		return time.Time{}, false
	}
	return i.queue.peek().due, true
}

// Discard drops every scheduled frame and returns how many were lost
func (i *Injector) Discard() int {
	discarded := i.queue.Len()
	i.queue = nil
	return discarded
}

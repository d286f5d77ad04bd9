package faults

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/Manu343726/servoemu/pkg/hw/servo/protocol"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustInjector(t *testing.T, config Config) *Injector {
	t.Helper()

	injector, err := NewInjector(config)
	require.NoError(t, err)
	return injector
}

func statusFrame(t *testing.T, id byte, params ...byte) []byte {
	t.Helper()

	frame, err := protocol.Encode(id, 0, params...)
	require.NoError(t, err)
	return frame
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name   string
		config Config
		valid  bool
	}{
		{name: "zero value", config: Config{}, valid: true},
		{name: "extremes", config: Config{PacketDropRate: 1, ChecksumCorruptionRate: 1, ResponseDelay: DelayRange{MinMS: 5, MaxMS: 5}}, valid: true},
		{name: "negative drop rate", config: Config{PacketDropRate: -0.1}},
		{name: "drop rate above one", config: Config{PacketDropRate: 1.5}},
		{name: "nan corruption rate", config: Config{ChecksumCorruptionRate: math.NaN()}},
		{name: "inverted delay", config: Config{ResponseDelay: DelayRange{MinMS: 10, MaxMS: 1}}},
		{name: "negative delay", config: Config{ResponseDelay: DelayRange{MinMS: -1, MaxMS: 1}}},
		{name: "broadcast timeout device", config: Config{TimeoutDevices: []byte{protocol.BroadcastID}}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.config.Validate()
			if c.valid {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrInvalidConfig), "got %v", err)
			}
		})
	}

	_, err := NewInjector(Config{PacketDropRate: 2})
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestInjector_Determinism(t *testing.T) {
	config := Config{
		PacketDropRate:         0.3,
		ChecksumCorruptionRate: 0.3,
		ResponseDelay:          DelayRange{MinMS: 1, MaxMS: 20},
		RandomSeed:             1234,
	}

	run := func() []Decision {
		injector := mustInjector(t, config)
		decisions := make([]Decision, 0, 500)

		for i := 0; i < 500; i++ {
			decisions = append(decisions, injector.Decide(byte(i%4)))
		}
		return decisions
	}

	first, second := run(), run()
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("same seed produced different decisions (-first +second):\n%s", diff)
	}

	outcomes := map[Outcome]int{}
	corrupted := 0
	for _, decision := range first {
		outcomes[decision.Outcome]++
		if decision.Corrupted {
			corrupted++
		}
		if decision.Outcome == Delivered {
			assert.GreaterOrEqual(t, decision.Delay, time.Millisecond)
			assert.LessOrEqual(t, decision.Delay, 20*time.Millisecond)
		}
	}
	assert.NotZero(t, outcomes[Dropped])
	assert.NotZero(t, outcomes[Delivered])
	assert.NotZero(t, corrupted)

	other := mustInjector(t, Config{PacketDropRate: 0.3, ChecksumCorruptionRate: 0.3, ResponseDelay: DelayRange{MinMS: 1, MaxMS: 20}, RandomSeed: 4321})
	differs := false
	for _, decision := range first {
		if other.Decide(0) != decision {
			differs = true
			break
		}
	}
	assert.True(t, differs, "a different seed should change the decisions")
}

func TestInjector_ReloadReseeds(t *testing.T) {
	config := Config{PacketDropRate: 0.5, RandomSeed: 7}
	injector := mustInjector(t, config)

	first := []Decision{injector.Decide(1), injector.Decide(1), injector.Decide(1)}

	require.NoError(t, injector.Reload(config))
	second := []Decision{injector.Decide(1), injector.Decide(1), injector.Decide(1)}

	assert.Equal(t, first, second)
	assert.Error(t, injector.Reload(Config{ChecksumCorruptionRate: -1}))
	assert.Equal(t, config, injector.Config(), "a rejected reload keeps the previous configuration")
}

func TestInjector_Extremes(t *testing.T) {
	t.Run("drop everything", func(t *testing.T) {
		injector := mustInjector(t, Config{PacketDropRate: 1, RandomSeed: 99})

		for i := 0; i < 1000; i++ {
			decision := injector.Submit(time.Unix(0, 0), 1, statusFrame(t, 1))
			assert.Equal(t, Dropped, decision.Outcome)
		}
		assert.Zero(t, injector.Pending())
	})

	t.Run("no anomalies", func(t *testing.T) {
		injector := mustInjector(t, Config{RandomSeed: 99})
		now := time.Unix(0, 0)

		for i := 0; i < 1000; i++ {
			frame := statusFrame(t, 1, byte(i))
			decision := injector.Submit(now, 1, frame)
			assert.Equal(t, Decision{Outcome: Delivered}, decision)

			due := injector.Due(now)
			require.Len(t, due, 1)
			assert.Equal(t, frame, due[0])
		}
	})
}

func TestInjector_CorruptionOnlyTouchesChecksum(t *testing.T) {
	injector := mustInjector(t, Config{ChecksumCorruptionRate: 1})
	now := time.Unix(0, 0)

	frame := statusFrame(t, 3, 0x10, 0x20)
	original := append([]byte(nil), frame...)

	decision := injector.Submit(now, 3, frame)
	require.True(t, decision.Corrupted)
	assert.Equal(t, original, frame, "the caller's frame is not modified")

	due := injector.Due(now)
	require.Len(t, due, 1)
	corrupted := due[0]

	require.Len(t, corrupted, len(original))
	assert.Equal(t, original[:len(original)-1], corrupted[:len(corrupted)-1])
	assert.Equal(t, original[len(original)-1]^CorruptionMask, corrupted[len(corrupted)-1])

	results := protocol.NewDecoder(0).Feed(corrupted)
	require.Len(t, results, 1)
	assert.True(t, errors.Is(results[0].Err, protocol.ErrChecksumMismatch))
}

func TestInjector_Timeouts(t *testing.T) {
	t.Run("whole bus", func(t *testing.T) {
		injector := mustInjector(t, Config{TimeoutSimulation: true})

		for id := byte(0); id < 10; id++ {
			assert.Equal(t, TimedOut, injector.Submit(time.Unix(0, 0), id, statusFrame(t, id)).Outcome)
		}
		assert.Zero(t, injector.Pending())
	})

	t.Run("selected servos", func(t *testing.T) {
		injector := mustInjector(t, Config{TimeoutDevices: []byte{2}})

		assert.Equal(t, TimedOut, injector.Decide(2).Outcome)
		assert.Equal(t, Delivered, injector.Decide(1).Outcome)
		assert.Equal(t, Delivered, injector.Decide(3).Outcome)
	})

	t.Run("timeouts consume no random draws", func(t *testing.T) {
		config := Config{PacketDropRate: 0.5, TimeoutDevices: []byte{2}, RandomSeed: 5}
		withTimeouts := mustInjector(t, config)
		reference := mustInjector(t, Config{PacketDropRate: 0.5, RandomSeed: 5})

		for i := 0; i < 50; i++ {
			withTimeouts.Decide(2)
			assert.Equal(t, reference.Decide(1), withTimeouts.Decide(1))
		}
	})
}

func TestInjector_Delays(t *testing.T) {
	injector := mustInjector(t, Config{ResponseDelay: DelayRange{MinMS: 10, MaxMS: 10}})
	start := time.Unix(100, 0)

	first := statusFrame(t, 1)
	second := statusFrame(t, 2)

	assert.Equal(t, 10*time.Millisecond, injector.Submit(start, 1, first).Delay)
	assert.Equal(t, 10*time.Millisecond, injector.Submit(start, 2, second).Delay)
	assert.Equal(t, 2, injector.Pending())

	next, ok := injector.NextDue()
	require.True(t, ok)
	assert.Equal(t, start.Add(10*time.Millisecond), next)

	assert.Empty(t, injector.Due(start.Add(9*time.Millisecond)))
	assert.Equal(t, [][]byte{first, second}, injector.Due(start.Add(10*time.Millisecond)), "frames due together keep submission order")
	assert.Zero(t, injector.Pending())

	_, ok = injector.NextDue()
	assert.False(t, ok)
}

func TestInjector_DueOrder(t *testing.T) {
	injector := mustInjector(t, Config{ResponseDelay: DelayRange{MinMS: 0, MaxMS: 50}, RandomSeed: 3})
	start := time.Unix(0, 0)

	delays := map[byte]time.Duration{}
	for id := byte(0); id < 20; id++ {
		delays[id] = injector.Submit(start, id, statusFrame(t, id)).Delay
	}

	due := injector.Due(start.Add(time.Second))
	require.Len(t, due, 20)

	previous := time.Duration(-1)
	for _, frame := range due {
		delay := delays[frame[2]]
		assert.GreaterOrEqual(t, delay, previous)
		previous = delay
	}
}

func TestInjector_Discard(t *testing.T) {
	injector := mustInjector(t, Config{ResponseDelay: DelayRange{MinMS: 100, MaxMS: 200}})

	for id := byte(0); id < 5; id++ {
		injector.Submit(time.Unix(0, 0), id, statusFrame(t, id))
	}

	assert.Equal(t, 5, injector.Discard())
	assert.Zero(t, injector.Pending())
	assert.Empty(t, injector.Due(time.Unix(10, 0)))
}

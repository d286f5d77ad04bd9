// Package device simulates the kinematics of a single servo: the current
// position moves toward the goal position at most velocity limit units per
// second, and never overshoots.
package device

import (
	"math"
	"time"

	"github.com/Manu343726/servoemu/pkg/utils"
)

const (
	// DefaultVelocityLimit is used when a servo is configured without one (units per second)
	DefaultVelocityLimit = 1000.0
	// MaxPosition is the largest position representable in a position register
	MaxPosition = math.MaxUint16
)

// Config holds the construction parameters of a servo
type Config struct {
	ID              byte
	ModelNumber     uint16
	InitialPosition uint16
	// Units per second. Zero selects DefaultVelocityLimit.
	VelocityLimit float64
}

// State is a snapshot of a servo's kinematic state
type State struct {
	Position      float64
	Goal          float64
	Speed         float64
	VelocityLimit float64
	TorqueEnabled bool
	Moving        bool
}

// Model is the kinematic simulation of one servo. It is not safe for concurrent use.
type Model struct {
	id            byte
	current       float64
	goal          float64
	velocityLimit float64
	// goal speed register override, 0 when unset
	goalSpeed float64
	torque    bool
	speed     float64
	lastTick  time.Time
}

// New creates a servo at rest at its initial position
func New(cfg Config) *Model {
	velocityLimit := cfg.VelocityLimit
	if velocityLimit <= 0 {
		velocityLimit = DefaultVelocityLimit
	}

	return &Model{
		id:            cfg.ID,
		current:       float64(cfg.InitialPosition),
		goal:          float64(cfg.InitialPosition),
		velocityLimit: velocityLimit,
		torque:        true,
	}
}

func (m *Model) ID() byte {
	return m.id
}

// SetGoal changes the goal position. Motion starts on the next tick.
func (m *Model) SetGoal(goal uint16) {
	m.goal = float64(goal)
}

// SetGoalSpeed overrides the velocity limit with a nonzero value, or restores it with 0
func (m *Model) SetGoalSpeed(speed uint16) {
	m.goalSpeed = float64(speed)
}

// SetTorque enables or disables the motor. A servo without torque holds its position.
func (m *Model) SetTorque(enabled bool) {
	m.torque = enabled
	if !enabled {
		m.speed = 0
	}
}

func (m *Model) effectiveVelocity() float64 {
	if m.goalSpeed > 0 {
		return m.goalSpeed
	}
	return m.velocityLimit
}

// Tick advances the current position toward the goal by at most velocity * dt.
// Non-positive deltas are ignored.
func (m *Model) Tick(dt time.Duration) {
	if dt <= 0 {
		return
	}

	if !m.torque || m.current == m.goal {
		m.speed = 0
		return
	}

	remaining := m.goal - m.current
	step := m.effectiveVelocity() * dt.Seconds()

	if math.Abs(remaining) <= step {
		m.current = m.goal
		m.speed = math.Abs(remaining) / dt.Seconds()
		return
	}

	m.current += math.Copysign(step, remaining)
	m.speed = step / dt.Seconds()
}

// Advance ticks the servo by the wall clock time elapsed since the previous
// call. The first call only records the timestamp.
func (m *Model) Advance(now time.Time) {
	if !m.lastTick.IsZero() {
		m.Tick(now.Sub(m.lastTick))
	}
	m.lastTick = now
}

// Position returns the current position rounded to register units
func (m *Model) Position() uint16 {
	return uint16(utils.Clamp(math.Round(m.current), 0, MaxPosition))
}

func (m *Model) Goal() uint16 {
	return uint16(m.goal)
}

// Speed returns the magnitude of the last step divided by its delta, in units per second
func (m *Model) Speed() uint16 {
	return uint16(utils.Clamp(math.Round(m.speed), 0, MaxPosition))
}

// Load is not modeled: servos always report zero load
func (m *Model) Load() uint16 {
	return 0
}

func (m *Model) Moving() bool {
	return m.torque && m.current != m.goal
}

func (m *Model) State() State {
	return State{
		Position:      m.current,
		Goal:          m.goal,
		Speed:         m.speed,
		VelocityLimit: m.effectiveVelocity(),
		TorqueEnabled: m.torque,
		Moving:        m.Moving(),
	}
}

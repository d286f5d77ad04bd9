package bus

import (
	"github.com/Manu343726/servoemu/pkg/hw/servo/device"
	"github.com/Manu343726/servoemu/pkg/hw/servo/registers"
)

// Servo is one device on the bus: its control table and the kinematic model
// behind it. Both are owned by the Registry.
type Servo struct {
	Registers *registers.Table
	Model     *device.Model
}

func newServo(cfg device.Config) (*Servo, error) {
	table, err := registers.NewTable(registers.DefaultLayout())
	if err != nil {
		return nil, err
	}

	servo := &Servo{
		Registers: table,
		Model:     device.New(cfg),
	}

	// identity and the initial goal are published without going through the hook
	table.Store(registers.AddrID, uint16(cfg.ID))
	table.Store(registers.AddrGoalPosition, cfg.InitialPosition)
	if cfg.ModelNumber != 0 {
		table.Store(registers.AddrModelNumber, cfg.ModelNumber)
	}

	table.OnWrite(servo.onWrite)
	servo.Refresh()

	return servo, nil
}

func (s *Servo) ID() byte {
	return s.Model.ID()
}

// onWrite couples the read-write registers to the kinematic model. It runs
// inside the instruction that wrote the register.
func (s *Servo) onWrite(address byte, value uint16) {
	switch address {
	case registers.AddrGoalPosition:
		s.Model.SetGoal(value)
	case registers.AddrGoalSpeed:
		s.Model.SetGoalSpeed(value)
	case registers.AddrTorqueEnable:
		s.Model.SetTorque(value != 0)
	}
}

// Refresh publishes the model state into the read-only registers
func (s *Servo) Refresh() {
	moving := uint16(0)
	if s.Model.Moving() {
		moving = 1
	}

	s.Registers.Store(registers.AddrCurrentPosition, s.Model.Position())
	s.Registers.Store(registers.AddrCurrentSpeed, s.Model.Speed())
	s.Registers.Store(registers.AddrCurrentLoad, s.Model.Load())
	s.Registers.Store(registers.AddrMoving, moving)
}

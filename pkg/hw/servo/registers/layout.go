package registers

import (
	"fmt"
)

// Control table addresses of the emulated servo model
const (
	AddrModelNumber     byte = 3
	AddrID              byte = 5
	AddrTorqueEnable    byte = 40
	AddrGoalPosition    byte = 42
	AddrRunningTime     byte = 44
	AddrGoalSpeed       byte = 46
	AddrCurrentPosition byte = 56
	AddrCurrentSpeed    byte = 58
	AddrCurrentLoad     byte = 60
	AddrMoving          byte = 66
)

// Access is the access mode of a register
type Access int

const (
	ReadOnly Access = iota
	ReadWrite
)

func (a Access) String() string {
	switch a {
	case ReadOnly:
		return "RO"
	case ReadWrite:
		return "RW"
	default:
		return fmt.Sprintf("unknown(%d)", int(a))
	}
}

// Descriptor describes one register of a control table
type Descriptor struct {
	Name    string
	Address byte
	// Width in bytes, 1 or 2
	Width   int
	Access  Access
	Default uint16
}

// DefaultLayout is the control table every emulated servo exposes
func DefaultLayout() []Descriptor {
	return []Descriptor{
		{Name: "model_number", Address: AddrModelNumber, Width: 2, Access: ReadOnly, Default: 777},
		{Name: "id", Address: AddrID, Width: 1, Access: ReadOnly},
		{Name: "torque_enable", Address: AddrTorqueEnable, Width: 1, Access: ReadWrite, Default: 1},
		{Name: "goal_position", Address: AddrGoalPosition, Width: 2, Access: ReadWrite},
		{Name: "running_time", Address: AddrRunningTime, Width: 2, Access: ReadWrite},
		{Name: "goal_speed", Address: AddrGoalSpeed, Width: 2, Access: ReadWrite},
		{Name: "current_position", Address: AddrCurrentPosition, Width: 2, Access: ReadOnly},
		{Name: "current_speed", Address: AddrCurrentSpeed, Width: 2, Access: ReadOnly},
		{Name: "current_load", Address: AddrCurrentLoad, Width: 2, Access: ReadOnly},
		{Name: "moving", Address: AddrMoving, Width: 1, Access: ReadOnly},
	}
}

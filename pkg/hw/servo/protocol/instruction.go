package protocol

import "fmt"

// Instruction is the instruction code of a request frame
type Instruction byte

const (
	InstPing      Instruction = 0x01
	InstRead      Instruction = 0x02
	InstWrite     Instruction = 0x03
	InstRegWrite  Instruction = 0x04
	InstAction    Instruction = 0x05
	InstSyncWrite Instruction = 0x83
)

// String returns the mnemonic of an instruction
func (i Instruction) String() string {
	switch i {
	case InstPing:
		return "PING"
	case InstRead:
		return "READ"
	case InstWrite:
		return "WRITE"
	case InstRegWrite:
		return "REG_WRITE"
	case InstAction:
		return "ACTION"
	case InstSyncWrite:
		return "SYNC_WRITE"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", byte(i))
	}
}

// Known reports whether the instruction belongs to the supported instruction set
func (i Instruction) Known() bool {
	switch i {
	case InstPing, InstRead, InstWrite, InstRegWrite, InstAction, InstSyncWrite:
		return true
	default:
		return false
	}
}

// Instructions lists the supported instruction set
func Instructions() []Instruction {
	return []Instruction{InstPing, InstRead, InstWrite, InstRegWrite, InstAction, InstSyncWrite}
}

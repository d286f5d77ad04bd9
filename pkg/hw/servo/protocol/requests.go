package protocol

import (
	"github.com/Manu343726/servoemu/pkg/utils"
)

// Request is the decoded meaning of a request packet. Its implementations
// form a closed set: one type per supported instruction plus UnknownRequest.
type Request interface {
	Instruction() Instruction
	isRequest()
}

type PingRequest struct{}

// ReadRequest reads Length bytes starting at Address
type ReadRequest struct {
	Address byte
	Length  byte
}

// WriteRequest writes Data starting at Address
type WriteRequest struct {
	Address byte
	Data    []byte
}

// RegWriteRequest stages Data at Address until the next ACTION
type RegWriteRequest struct {
	Address byte
	Data    []byte
}

type ActionRequest struct{}

// SyncWriteEntry is the per-servo part of a SYNC_WRITE
type SyncWriteEntry struct {
	ID   byte
	Data []byte
}

// SyncWriteRequest writes Width bytes at Address on every listed servo
type SyncWriteRequest struct {
	Address byte
	Width   byte
	Entries []SyncWriteEntry
}

// UnknownRequest carries any instruction outside the supported set
type UnknownRequest struct {
	Code   Instruction
	Params []byte
}

func (PingRequest) Instruction() Instruction      { return InstPing }
func (ReadRequest) Instruction() Instruction      { return InstRead }
func (WriteRequest) Instruction() Instruction     { return InstWrite }
func (RegWriteRequest) Instruction() Instruction  { return InstRegWrite }
func (ActionRequest) Instruction() Instruction    { return InstAction }
func (SyncWriteRequest) Instruction() Instruction { return InstSyncWrite }
func (r UnknownRequest) Instruction() Instruction { return r.Code }

func (PingRequest) isRequest()      {}
func (ReadRequest) isRequest()      {}
func (WriteRequest) isRequest()     {}
func (RegWriteRequest) isRequest()  {}
func (ActionRequest) isRequest()    {}
func (SyncWriteRequest) isRequest() {}
func (UnknownRequest) isRequest()   {}

// DecodeRequest interprets the parameters of a request packet.
// Malformed parameters return an error wrapping ErrInvalidParams.
func DecodeRequest(p Packet) (Request, error) {
	params := p.Params

	switch p.Instruction {
	case InstPing:
		return PingRequest{}, nil

	case InstRead:
		if len(params) != 2 || params[1] == 0 {
			return nil, utils.MakeError(ErrInvalidParams, "READ expects [address, length>0], got %d bytes", len(params))
		}
		return ReadRequest{Address: params[0], Length: params[1]}, nil

	case InstWrite, InstRegWrite:
		if len(params) < 2 {
			return nil, utils.MakeError(ErrInvalidParams, "%v expects [address, data...], got %d bytes", p.Instruction, len(params))
		}
		if p.Instruction == InstWrite {
			return WriteRequest{Address: params[0], Data: params[1:]}, nil
		}
		return RegWriteRequest{Address: params[0], Data: params[1:]}, nil

	case InstAction:
		return ActionRequest{}, nil

	case InstSyncWrite:
		return decodeSyncWrite(params)

	default:
		return UnknownRequest{Code: p.Instruction, Params: params}, nil
	}
}

func decodeSyncWrite(params []byte) (Request, error) {
	if len(params) < 2 || params[1] == 0 {
		return nil, utils.MakeError(ErrInvalidParams, "SYNC_WRITE expects [address, width>0, groups...]")
	}

	address, width := params[0], params[1]
	groups := params[2:]
	groupSize := int(width) + 1

	if len(groups)%groupSize != 0 {
		return nil, utils.MakeError(ErrInvalidParams, "SYNC_WRITE payload of %d bytes is not a multiple of %d", len(groups), groupSize)
	}

	request := SyncWriteRequest{
		Address: address,
		Width:   width,
		Entries: make([]SyncWriteEntry, 0, len(groups)/groupSize),
	}

	for offset := 0; offset < len(groups); offset += groupSize {
		request.Entries = append(request.Entries, SyncWriteEntry{
			ID:   groups[offset],
			Data: groups[offset+1 : offset+groupSize],
		})
	}

	return request, nil
}

// Ping builds a PING request
func Ping(id byte) Packet {
	return Packet{ID: id, Instruction: InstPing}
}

// Read builds a READ request for length bytes at address
func Read(id byte, address byte, length byte) Packet {
	return Packet{ID: id, Instruction: InstRead, Params: []byte{address, length}}
}

// Write builds a WRITE request
func Write(id byte, address byte, data ...byte) Packet {
	return Packet{ID: id, Instruction: InstWrite, Params: append([]byte{address}, data...)}
}

// RegWrite builds a REG_WRITE request
func RegWrite(id byte, address byte, data ...byte) Packet {
	return Packet{ID: id, Instruction: InstRegWrite, Params: append([]byte{address}, data...)}
}

// Action builds an ACTION request. Use BroadcastID to commit on every servo.
func Action(id byte) Packet {
	return Packet{ID: id, Instruction: InstAction}
}

// SyncWrite builds a broadcast SYNC_WRITE. Every entry must carry exactly width bytes.
func SyncWrite(address byte, width byte, entries ...SyncWriteEntry) (Packet, error) {
	params := []byte{address, width}

	for _, entry := range entries {
		if len(entry.Data) != int(width) {
			return Packet{}, utils.MakeError(ErrInvalidParams, "servo %d: %d data bytes, expected %d", entry.ID, len(entry.Data), width)
		}

		params = append(params, entry.ID)
		params = append(params, entry.Data...)
	}

	return Packet{ID: BroadcastID, Instruction: InstSyncWrite, Params: params}, nil
}

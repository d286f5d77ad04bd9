// Package protocol implements the framing spoken on a serial servo bus.
//
// Every message, request or response, uses the same layout:
//
//	[0xFF][0xFF][id][length][instruction][params...][checksum]
//
// where length counts the instruction, the parameters and the checksum
// (len(params) + 2), and the checksum is the one's complement of the low
// byte of id + length + instruction + sum(params). Responses carry the
// servo status byte in the instruction slot.
package protocol

import (
	"errors"
	"fmt"

	"github.com/Manu343726/servoemu/pkg/utils"
)

const (
	// Header is the sentinel byte, sent twice, that opens every frame
	Header byte = 0xFF
	// BroadcastID addresses every servo on the bus. Broadcast requests never get a response.
	BroadcastID byte = 0xFE
	// MaxDeviceID is the highest individually addressable servo id
	MaxDeviceID byte = 0xFD
	// DefaultMaxLength is the largest declared length the decoder accepts before resynchronizing
	DefaultMaxLength = 64

	headerSize = 4
)

var (
	ErrMalformedFrame   = errors.New("malformed frame")
	ErrChecksumMismatch = fmt.Errorf("%w: checksum mismatch", ErrMalformedFrame)
	ErrInvalidLength    = fmt.Errorf("%w: invalid length", ErrMalformedFrame)
	ErrFrameTooLong     = errors.New("frame exceeds maximum length")
	ErrInvalidParams    = errors.New("invalid instruction parameters")
)

// Packet is one decoded frame
type Packet struct {
	ID          byte
	Instruction Instruction
	Params      []byte
}

// Length returns the value of the length field for this packet
func (p Packet) Length() int {
	return len(p.Params) + 2
}

// IsBroadcast reports whether the packet is addressed to every servo
func (p Packet) IsBroadcast() bool {
	return p.ID == BroadcastID
}

// Checksum returns the checksum byte of the encoded packet
func (p Packet) Checksum() byte {
	return Checksum(p.ID, byte(p.Length()), byte(p.Instruction), p.Params)
}

// Encode serializes the packet into its wire representation
func (p Packet) Encode() ([]byte, error) {
	if p.Length() > DefaultMaxLength {
		return nil, utils.MakeError(ErrFrameTooLong, "%v parameter bytes, length %v > %v", len(p.Params), p.Length(), DefaultMaxLength)
	}

	frame := make([]byte, 0, headerSize+p.Length())
	frame = append(frame, Header, Header, p.ID, byte(p.Length()), byte(p.Instruction))
	frame = append(frame, p.Params...)
	frame = append(frame, p.Checksum())

	return frame, nil
}

func (p Packet) String() string {
	return fmt.Sprintf("id=%d %v params=[%v]", p.ID, p.Instruction, utils.FormatHexBytes(p.Params))
}

// Encode builds the wire representation of a packet
func Encode(id byte, instruction Instruction, params ...byte) ([]byte, error) {
	packet := Packet{
		ID:          id,
		Instruction: instruction,
		Params:      params,
	}

	return packet.Encode()
}

// Checksum computes the frame checksum: the one's complement of the low byte of the field sum
func Checksum(id byte, length byte, instruction byte, params []byte) byte {
	sum := id + length + instruction

	for _, b := range params {
		sum += b
	}

	return ^sum
}

// NewStatus builds a status (response) packet. Status 0 means no error flags.
func NewStatus(id byte, status byte, params []byte) Packet {
	return Packet{
		ID:          id,
		Instruction: Instruction(status),
		Params:      params,
	}
}

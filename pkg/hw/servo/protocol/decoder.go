package protocol

import (
	"fmt"

	"github.com/Manu343726/servoemu/pkg/utils"
)

type decoderState int

const (
	stateSeekingHeader decoderState = iota
	stateReadingID
	stateReadingLength
	stateReadingBody
)

func (s decoderState) String() string {
	switch s {
	case stateSeekingHeader:
		return "seeking_header"
	case stateReadingID:
		return "reading_id"
	case stateReadingLength:
		return "reading_length"
	case stateReadingBody:
		return "reading_body"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Result is the outcome of one frame seen by the decoder: either a
// complete packet or a discarded malformed frame (Err wraps ErrMalformedFrame)
type Result struct {
	Packet Packet
	Err    error
}

// Decoder reassembles packets from a byte stream delivered in arbitrary
// chunks. It keeps the partial frame between calls to Feed.
type Decoder struct {
	state     decoderState
	headers   int
	id        byte
	length    byte
	body      []byte
	maxLength int
}

// NewDecoder returns a decoder that rejects declared lengths above maxLength.
// A non-positive maxLength selects DefaultMaxLength.
func NewDecoder(maxLength int) *Decoder {
	if maxLength <= 0 || maxLength > 0xFF {
		maxLength = DefaultMaxLength
	}

	return &Decoder{
		maxLength: maxLength,
	}
}

// Feed consumes a chunk of the byte stream and returns every frame it completed
func (d *Decoder) Feed(data []byte) []Result {
	var results []Result

	for _, b := range data {
		if result, done := d.step(b); done {
			results = append(results, result)
		}
	}

	return results
}

// Reset drops any partially received frame
func (d *Decoder) Reset() {
	d.state = stateSeekingHeader
	d.headers = 0
	d.body = nil
}

// Buffered returns how many bytes of an incomplete frame the decoder holds
func (d *Decoder) Buffered() int {
	switch d.state {
	case stateSeekingHeader:
		return d.headers
	case stateReadingID:
		return 2
	case stateReadingLength:
		return 3
	default:
		return headerSize + len(d.body)
	}
}

func (d *Decoder) step(b byte) (Result, bool) {
	switch d.state {
	case stateSeekingHeader:
		if b == Header {
			d.headers++
		} else {
			d.headers = 0
		}

		if d.headers >= 2 {
			d.state = stateReadingID
		}

	case stateReadingID:
		// 0xFF is never a valid id: treat runs of sentinels as a longer preamble
		if b == Header {
			return Result{}, false
		}

		d.id = b
		d.state = stateReadingLength

	case stateReadingLength:
		if int(b) < 2 || int(b) > d.maxLength {
			d.Reset()
			err := utils.MakeError(ErrInvalidLength, "id %d declared length %d (valid range 2..%d)", d.id, b, d.maxLength)

			// the rejected length byte may itself open the next frame
			d.step(b)
			return Result{Err: err}, true
		}

		d.length = b
		// instruction, params and checksum
		d.body = make([]byte, 0, int(b))
		d.state = stateReadingBody

	case stateReadingBody:
		d.body = append(d.body, b)

		if len(d.body) == int(d.length) {
			return d.validate(), true
		}
	}

	return Result{}, false
}

func (d *Decoder) validate() Result {
	body := d.body
	id := d.id
	length := d.length
	d.Reset()

	instruction := body[0]
	params := body[1 : len(body)-1]
	if len(params) == 0 {
		params = nil
	}
	received := body[len(body)-1]
	expected := Checksum(id, length, instruction, params)

	if received != expected {
		return Result{
			Err: utils.MakeError(ErrChecksumMismatch, "id %d: received 0x%02X, expected 0x%02X", id, received, expected),
		}
	}

	return Result{
		Packet: Packet{
			ID:          id,
			Instruction: Instruction(instruction),
			Params:      params,
		},
	}
}

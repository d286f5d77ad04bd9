// Package bus implements the set of servos sharing one serial link: it
// resolves request packets to their target servos, executes the instruction
// and builds the status packet, if any, that goes back on the wire.
package bus

import (
	"errors"
	"log/slog"
	"time"

	"github.com/Manu343726/servoemu/pkg/hw/servo/device"
	"github.com/Manu343726/servoemu/pkg/hw/servo/protocol"
	"github.com/Manu343726/servoemu/pkg/utils"
)

var (
	ErrDeviceNotFound     = errors.New("device not found")
	ErrDuplicateID        = errors.New("duplicate device id")
	ErrInvalidID          = errors.New("invalid device id")
	ErrProtocolViolation  = errors.New("protocol violation")
	ErrUnknownInstruction = errors.New("unknown instruction")
)

// StatusOK is the status byte of every response. Error flags are not modeled.
const StatusOK byte = 0

// Dispatcher executes a request packet and returns the response packet, or
// nil when nothing must be sent back.
type Dispatcher interface {
	Dispatch(request protocol.Packet) (*protocol.Packet, error)
}

// Registry owns every servo of a bus. It is not safe for concurrent use; the
// emulator loop is its only caller.
type Registry struct {
	servos map[byte]*Servo
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Registry{
		servos: make(map[byte]*Servo),
		logger: logger,
	}
}

// Register adds a servo to the bus
func (r *Registry) Register(cfg device.Config) (*Servo, error) {
	if cfg.ID > protocol.MaxDeviceID {
		return nil, utils.MakeError(ErrInvalidID, "%d is not individually addressable (max %d)", cfg.ID, protocol.MaxDeviceID)
	}
	if _, exists := r.servos[cfg.ID]; exists {
		return nil, utils.MakeError(ErrDuplicateID, "servo %d", cfg.ID)
	}

	servo, err := newServo(cfg)
	if err != nil {
		return nil, err
	}

	r.servos[cfg.ID] = servo
	r.logger.Debug("servo registered", "id", cfg.ID, "position", cfg.InitialPosition, "velocity_limit", servo.Model.State().VelocityLimit)

	return servo, nil
}

// Servo returns the servo with the given id
func (r *Registry) Servo(id byte) (*Servo, bool) {
	servo, ok := r.servos[id]
	return servo, ok
}

// IDs returns the registered ids in ascending order
func (r *Registry) IDs() []byte {
	return utils.SortedKeys(r.servos)
}

// Advance moves every servo by the wall clock time elapsed since the previous call
func (r *Registry) Advance(now time.Time) {
	for _, id := range r.IDs() {
		servo := r.servos[id]
		servo.Model.Advance(now)
		servo.Refresh()
	}
}

// Tick moves every servo by a fixed delta
func (r *Registry) Tick(dt time.Duration) {
	for _, id := range r.IDs() {
		servo := r.servos[id]
		servo.Model.Tick(dt)
		servo.Refresh()
	}
}

// Dispatch executes a request. Broadcast requests, SYNC_WRITE, requests to
// absent servos and rejected requests all return a nil response; the error
// says why a unicast request got no answer.
func (r *Registry) Dispatch(packet protocol.Packet) (*protocol.Packet, error) {
	request, err := protocol.DecodeRequest(packet)
	if err != nil {
		return nil, utils.MakeError(ErrProtocolViolation, "%w", err)
	}

	switch request := request.(type) {
	case protocol.UnknownRequest:
		return nil, utils.MakeError(ErrUnknownInstruction, "%v from id %d", request.Code, packet.ID)

	case protocol.SyncWriteRequest:
		return nil, r.syncWrite(request)
	}

	if packet.IsBroadcast() {
		var errs []error

		for _, id := range r.IDs() {
			if _, err := r.execute(r.servos[id], request); err != nil {
				errs = append(errs, err)
			}
		}

		return nil, errors.Join(errs...)
	}

	servo, ok := r.servos[packet.ID]
	if !ok {
		return nil, utils.MakeError(ErrDeviceNotFound, "%v to id %d", packet.Instruction, packet.ID)
	}

	params, err := r.execute(servo, request)
	if err != nil {
		return nil, err
	}

	response := protocol.NewStatus(servo.ID(), StatusOK, params)
	return &response, nil
}

// execute runs a request against one servo and returns the response parameters
func (r *Registry) execute(servo *Servo, request protocol.Request) ([]byte, error) {
	servo.Refresh()

	switch request := request.(type) {
	case protocol.PingRequest:
		return nil, nil

	case protocol.ReadRequest:
		data, err := servo.Registers.ReadRange(request.Address, int(request.Length))
		if err != nil {
			return nil, utils.MakeError(ErrProtocolViolation, "servo %d: %w", servo.ID(), err)
		}
		return data, nil

	case protocol.WriteRequest:
		if err := servo.Registers.WriteRange(request.Address, request.Data); err != nil {
			return nil, utils.MakeError(ErrProtocolViolation, "servo %d: %w", servo.ID(), err)
		}
		servo.Refresh()
		return nil, nil

	case protocol.RegWriteRequest:
		servo.Registers.BufferedWrite(request.Address, request.Data)
		return nil, nil

	case protocol.ActionRequest:
		if !servo.Registers.HasPending() {
			return nil, nil
		}
		if err := servo.Registers.Commit(); err != nil {
			// the valid part of the stage is applied anyway, so the ACTION is still acknowledged
			r.logger.Debug("staged writes skipped", "id", servo.ID(), "error", err)
		}
		servo.Refresh()
		return nil, nil

	default:
		return nil, utils.MakeError(ErrUnknownInstruction, "%v", request.Instruction())
	}
}

func (r *Registry) syncWrite(request protocol.SyncWriteRequest) error {
	var errs []error

	for _, entry := range request.Entries {
		servo, ok := r.servos[entry.ID]
		if !ok {
			r.logger.Debug("sync write skips absent servo", "id", entry.ID)
			continue
		}

		if err := servo.Registers.WriteRange(request.Address, entry.Data); err != nil {
			errs = append(errs, utils.MakeError(ErrProtocolViolation, "servo %d: %w", entry.ID, err))
			continue
		}
		servo.Refresh()
	}

	return errors.Join(errs...)
}

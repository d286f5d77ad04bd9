package bus

import (
	"errors"
	"testing"
	"time"

	"github.com/Manu343726/servoemu/pkg/hw/servo/device"
	"github.com/Manu343726/servoemu/pkg/hw/servo/protocol"
	"github.com/Manu343726/servoemu/pkg/hw/servo/registers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeRegistry(t *testing.T, ids ...byte) *Registry {
	t.Helper()

	registry := NewRegistry(nil)
	for _, id := range ids {
		_, err := registry.Register(device.Config{ID: id, VelocityLimit: 100})
		require.NoError(t, err)
	}

	return registry
}

func readWord(t *testing.T, registry *Registry, id byte, address byte) uint16 {
	t.Helper()

	response, err := registry.Dispatch(protocol.Read(id, address, 2))
	require.NoError(t, err)
	require.NotNil(t, response)
	require.Len(t, response.Params, 2)

	return uint16(response.Params[0]) | uint16(response.Params[1])<<8
}

func TestRegistry_Register(t *testing.T) {
	registry := makeRegistry(t, 3, 1, 2)

	assert.Equal(t, []byte{1, 2, 3}, registry.IDs())

	_, err := registry.Register(device.Config{ID: 2})
	assert.True(t, errors.Is(err, ErrDuplicateID))

	_, err = registry.Register(device.Config{ID: protocol.BroadcastID})
	assert.True(t, errors.Is(err, ErrInvalidID))

	servo, ok := registry.Servo(1)
	require.True(t, ok)
	id, err := servo.Registers.Read(registers.AddrID)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), id)

	_, ok = registry.Servo(42)
	assert.False(t, ok)
}

func TestRegistry_Ping(t *testing.T) {
	registry := makeRegistry(t, 1)

	t.Run("present servo answers with an empty status", func(t *testing.T) {
		response, err := registry.Dispatch(protocol.Ping(1))
		require.NoError(t, err)
		require.NotNil(t, response)
		assert.Equal(t, byte(1), response.ID)
		assert.Equal(t, StatusOK, byte(response.Instruction))
		assert.Empty(t, response.Params)
	})

	t.Run("absent servo never answers", func(t *testing.T) {
		response, err := registry.Dispatch(protocol.Ping(2))
		assert.Nil(t, response)
		assert.True(t, errors.Is(err, ErrDeviceNotFound))
	})

	t.Run("broadcast ping gets no answer", func(t *testing.T) {
		response, err := registry.Dispatch(protocol.Ping(protocol.BroadcastID))
		assert.NoError(t, err)
		assert.Nil(t, response)
	})
}

func TestRegistry_WriteThenRead(t *testing.T) {
	registry := makeRegistry(t, 1)

	for _, value := range []uint16{0, 1, 0xFF, 0x100, 1234, 0xFFFF} {
		response, err := registry.Dispatch(protocol.Write(1, registers.AddrRunningTime, byte(value), byte(value>>8)))
		require.NoError(t, err)
		require.NotNil(t, response)
		assert.Empty(t, response.Params)

		assert.Equal(t, value, readWord(t, registry, 1, registers.AddrRunningTime))
	}
}

func TestRegistry_WriteRejections(t *testing.T) {
	registry := makeRegistry(t, 1)

	t.Run("read-only register", func(t *testing.T) {
		response, err := registry.Dispatch(protocol.Write(1, registers.AddrCurrentPosition, 0x10, 0x00))
		assert.Nil(t, response)
		assert.True(t, errors.Is(err, ErrProtocolViolation))
		assert.True(t, errors.Is(err, registers.ErrReadOnlyViolation))
		assert.Equal(t, uint16(0), readWord(t, registry, 1, registers.AddrCurrentPosition))
	})

	t.Run("unmapped address", func(t *testing.T) {
		response, err := registry.Dispatch(protocol.Write(1, 100, 1))
		assert.Nil(t, response)
		assert.True(t, errors.Is(err, registers.ErrNoSuchAddress))
	})

	t.Run("range with an unmapped byte is not applied partially", func(t *testing.T) {
		// running time (44..45), goal speed (46..47), then unmapped 48
		response, err := registry.Dispatch(protocol.Write(1, registers.AddrRunningTime, 1, 2, 3, 4, 5))
		assert.Nil(t, response)
		assert.ErrorIs(t, err, ErrProtocolViolation)
		assert.ErrorIs(t, err, registers.ErrNoSuchAddress)
		assert.Equal(t, uint16(0), readWord(t, registry, 1, registers.AddrRunningTime))
	})

	t.Run("malformed parameters", func(t *testing.T) {
		response, err := registry.Dispatch(protocol.Packet{ID: 1, Instruction: protocol.InstWrite, Params: []byte{42}})
		assert.Nil(t, response)
		assert.True(t, errors.Is(err, ErrProtocolViolation))
		assert.True(t, errors.Is(err, protocol.ErrInvalidParams))
	})
}

func TestRegistry_Read(t *testing.T) {
	registry := makeRegistry(t, 1)

	t.Run("multi register range", func(t *testing.T) {
		_, err := registry.Dispatch(protocol.Write(1, registers.AddrGoalPosition, 0x34, 0x12, 0x78, 0x56))
		require.NoError(t, err)

		response, err := registry.Dispatch(protocol.Read(1, registers.AddrGoalPosition, 4))
		require.NoError(t, err)
		require.NotNil(t, response)
		assert.Equal(t, []byte{0x34, 0x12, 0x78, 0x56}, response.Params)
	})

	t.Run("range with an unmapped byte gets no answer", func(t *testing.T) {
		response, err := registry.Dispatch(protocol.Read(1, registers.AddrTorqueEnable, 2))
		assert.Nil(t, response)
		assert.True(t, errors.Is(err, registers.ErrNoSuchAddress))
	})
}

func TestRegistry_BufferedWrites(t *testing.T) {
	registry := makeRegistry(t, 1)

	response, err := registry.Dispatch(protocol.RegWrite(1, registers.AddrRunningTime, 0x22, 0x11))
	require.NoError(t, err)
	require.NotNil(t, response, "REG_WRITE is acknowledged")

	assert.Equal(t, uint16(0), readWord(t, registry, 1, registers.AddrRunningTime), "staged writes are invisible before ACTION")

	response, err = registry.Dispatch(protocol.Action(1))
	require.NoError(t, err)
	require.NotNil(t, response, "unicast ACTION is acknowledged")

	assert.Equal(t, uint16(0x1122), readWord(t, registry, 1, registers.AddrRunningTime))
}

func TestRegistry_ActionIsAtomic(t *testing.T) {
	registry := makeRegistry(t, 1)
	servo, _ := registry.Servo(1)

	_, err := registry.Dispatch(protocol.RegWrite(1, registers.AddrRunningTime, 7, 0))
	require.NoError(t, err)
	_, err = registry.Dispatch(protocol.RegWrite(1, registers.AddrGoalSpeed, 9, 0))
	require.NoError(t, err)

	assert.Equal(t, uint16(0), readWord(t, registry, 1, registers.AddrRunningTime))
	assert.Equal(t, uint16(0), readWord(t, registry, 1, registers.AddrGoalSpeed))

	_, err = registry.Dispatch(protocol.Action(protocol.BroadcastID))
	require.NoError(t, err)

	assert.Equal(t, uint16(7), readWord(t, registry, 1, registers.AddrRunningTime))
	assert.Equal(t, uint16(9), readWord(t, registry, 1, registers.AddrGoalSpeed))
	assert.Equal(t, 9.0, servo.Model.State().VelocityLimit)
	assert.False(t, servo.Registers.HasPending())
}

func TestRegistry_BroadcastAction(t *testing.T) {
	registry := makeRegistry(t, 1, 2, 3)

	for _, id := range []byte{1, 3} {
		_, err := registry.Dispatch(protocol.RegWrite(id, registers.AddrGoalPosition, 100, 0))
		require.NoError(t, err)
	}

	response, err := registry.Dispatch(protocol.Action(protocol.BroadcastID))
	require.NoError(t, err)
	assert.Nil(t, response, "broadcast requests never get a response")

	assert.Equal(t, uint16(100), readWord(t, registry, 1, registers.AddrGoalPosition))
	assert.Equal(t, uint16(0), readWord(t, registry, 2, registers.AddrGoalPosition))
	assert.Equal(t, uint16(100), readWord(t, registry, 3, registers.AddrGoalPosition))
}

func TestRegistry_InvalidStagedWriteIsSkipped(t *testing.T) {
	registry := makeRegistry(t, 1)

	_, err := registry.Dispatch(protocol.RegWrite(1, registers.AddrCurrentPosition, 1, 0))
	require.NoError(t, err)
	_, err = registry.Dispatch(protocol.RegWrite(1, registers.AddrRunningTime, 5, 0))
	require.NoError(t, err)

	response, err := registry.Dispatch(protocol.Action(1))
	require.NoError(t, err)
	assert.NotNil(t, response)

	assert.Equal(t, uint16(5), readWord(t, registry, 1, registers.AddrRunningTime))
	assert.Equal(t, uint16(0), readWord(t, registry, 1, registers.AddrCurrentPosition))
}

func TestRegistry_SyncWrite(t *testing.T) {
	registry := makeRegistry(t, 1, 2, 3, 4)

	packet, err := protocol.SyncWrite(registers.AddrGoalPosition, 2,
		protocol.SyncWriteEntry{ID: 1, Data: []byte{0xF4, 0x01}},
		protocol.SyncWriteEntry{ID: 2, Data: []byte{0xF4, 0x01}},
		protocol.SyncWriteEntry{ID: 3, Data: []byte{0xF4, 0x01}},
		protocol.SyncWriteEntry{ID: 9, Data: []byte{0xF4, 0x01}},
	)
	require.NoError(t, err)

	response, err := registry.Dispatch(packet)
	require.NoError(t, err, "absent servos are skipped")
	assert.Nil(t, response)

	for _, id := range []byte{1, 2, 3} {
		assert.Equal(t, uint16(500), readWord(t, registry, id, registers.AddrGoalPosition), "servo %d", id)

		servo, _ := registry.Servo(id)
		assert.Equal(t, uint16(500), servo.Model.Goal())
	}

	assert.Equal(t, uint16(0), readWord(t, registry, 4, registers.AddrGoalPosition))

	servo, _ := registry.Servo(4)
	assert.Equal(t, uint16(0), servo.Model.Goal())
}

func TestRegistry_SyncWriteRejection(t *testing.T) {
	registry := makeRegistry(t, 1, 2)

	packet, err := protocol.SyncWrite(registers.AddrCurrentPosition, 2,
		protocol.SyncWriteEntry{ID: 1, Data: []byte{0x10, 0x00}},
		protocol.SyncWriteEntry{ID: 2, Data: []byte{0x10, 0x00}},
	)
	require.NoError(t, err)

	response, err := registry.Dispatch(packet)
	assert.Nil(t, response)
	assert.ErrorIs(t, err, ErrProtocolViolation)
	assert.ErrorIs(t, err, registers.ErrReadOnlyViolation)
	assert.ErrorContains(t, err, "servo 2")
}

func TestRegistry_UnknownInstruction(t *testing.T) {
	registry := makeRegistry(t, 1)

	response, err := registry.Dispatch(protocol.Packet{ID: 1, Instruction: 0x42})
	assert.Nil(t, response)
	assert.True(t, errors.Is(err, ErrUnknownInstruction))
}

func TestRegistry_GoalCouplesToModel(t *testing.T) {
	registry := makeRegistry(t, 1)
	servo, _ := registry.Servo(1)

	_, err := registry.Dispatch(protocol.Write(1, registers.AddrGoalPosition, 0xF4, 0x01))
	require.NoError(t, err)

	assert.Equal(t, uint16(500), servo.Model.Goal())

	response, err := registry.Dispatch(protocol.Read(1, registers.AddrMoving, 1))
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, response.Params, "motion starts within the same instruction")

	previous := uint16(0)
	for i := 0; i < 100; i++ {
		registry.Tick(time.Millisecond)

		position := readWord(t, registry, 1, registers.AddrCurrentPosition)
		assert.GreaterOrEqual(t, position, previous)
		assert.LessOrEqual(t, position, uint16(500))
		previous = position
	}
	assert.Equal(t, uint16(10), previous)
	assert.Equal(t, uint16(100), readWord(t, registry, 1, registers.AddrCurrentSpeed))

	registry.Tick(10 * time.Second)
	assert.Equal(t, uint16(500), readWord(t, registry, 1, registers.AddrCurrentPosition))
	assert.Equal(t, uint16(0), readWord(t, registry, 1, registers.AddrCurrentLoad))
}

func TestRegistry_TorqueDisable(t *testing.T) {
	registry := makeRegistry(t, 1)

	_, err := registry.Dispatch(protocol.Write(1, registers.AddrTorqueEnable, 0))
	require.NoError(t, err)
	_, err = registry.Dispatch(protocol.Write(1, registers.AddrGoalPosition, 100, 0))
	require.NoError(t, err)

	registry.Tick(time.Second)
	assert.Equal(t, uint16(0), readWord(t, registry, 1, registers.AddrCurrentPosition))
}

func TestRegistry_Advance(t *testing.T) {
	registry := makeRegistry(t, 1, 2)
	start := time.Unix(0, 0)

	registry.Advance(start)
	_, err := registry.Dispatch(protocol.Write(protocol.BroadcastID, registers.AddrGoalPosition, 50, 0))
	require.NoError(t, err)

	registry.Advance(start.Add(100 * time.Millisecond))

	for _, id := range registry.IDs() {
		assert.Equal(t, uint16(10), readWord(t, registry, id, registers.AddrCurrentPosition))
	}
}

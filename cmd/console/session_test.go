package console

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Manu343726/servoemu/pkg/config"
	"github.com/Manu343726/servoemu/pkg/hw/servo/bus"
	"github.com/Manu343726/servoemu/pkg/hw/servo/faults"
)

func newTestSession(t *testing.T) *session {
	t.Helper()
	color.NoColor = true

	cfg := config.Default()
	cfg.Devices = append(cfg.Devices, config.Device{ID: 2, InitialPosition: 100})

	s, err := newSession(cfg, nil, 50*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

func execLine(t *testing.T, s *session, line string) string {
	t.Helper()

	var out bytes.Buffer
	require.NoError(t, s.execute(line, &out))
	return out.String()
}

// eventually repeats line until its output contains expected
func eventually(t *testing.T, s *session, line string, expected string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	var output string

	for time.Now().Before(deadline) {
		output = execLine(t, s, line)
		if strings.Contains(output, expected) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}

	t.Fatalf("'%v' never printed '%v', last output:\n%v", line, expected, output)
}

func TestSession_Ping(t *testing.T) {
	s := newTestSession(t)

	output := execLine(t, s, "ping 1")
	assert.Contains(t, output, "-> FF FF 01 02 01 FB")
	assert.Contains(t, output, "<- id=1 status=0 params=[]")

	output = execLine(t, s, "ping 0x09")
	assert.Contains(t, output, "<- no response")
}

func TestSession_ReadWrite(t *testing.T) {
	s := newTestSession(t)

	// running time register, not coupled to the motion model
	execLine(t, s, "write 1 44 0x10 0x27")
	output := execLine(t, s, "read 1 44 2")
	assert.Contains(t, output, "<- id=1 status=0 params=[10 27]")

	output = execLine(t, s, "read 2 3 2")
	assert.Contains(t, output, "params=[09 03]")
}

func TestSession_GoalMovesServo(t *testing.T) {
	s := newTestSession(t)

	output := execLine(t, s, "goal 1 2100")
	assert.Contains(t, output, "-> FF FF 01 05 03 2A 34 08")

	eventually(t, s, "position 1", "position 2100")
}

func TestSession_GoalWithSpeed(t *testing.T) {
	s := newTestSession(t)

	output := execLine(t, s, "goal 2 150 500")
	assert.Equal(t, 2, strings.Count(output, "status=0"))

	eventually(t, s, "dump 2", "limit 500/s")
	eventually(t, s, "position 2", "position 150")
}

func TestSession_BufferedWrites(t *testing.T) {
	s := newTestSession(t)

	output := execLine(t, s, "regwrite 2 42 0x78 0x00")
	assert.Contains(t, output, "status=0")
	assert.Contains(t, execLine(t, s, "dump 2"), "staged 42 [78 00]")

	output = execLine(t, s, "action")
	assert.Contains(t, output, "broadcast, no response expected")

	eventually(t, s, "dump 2", "goal 120")
}

func TestSession_SyncWrite(t *testing.T) {
	s := newTestSession(t)

	output := execLine(t, s, "sync 42 2 1:3408 2:7800")
	assert.Contains(t, output, "broadcast, no response expected")

	eventually(t, s, "dump 1", "goal 2100")
	eventually(t, s, "dump 2", "goal 120")
}

func TestSession_Faults(t *testing.T) {
	s := newTestSession(t)

	assert.Equal(t, "drop=0 corrupt=0 delay=0-0 timeout=false timeout_devices= seed=0\n", execLine(t, s, "faults"))

	output := execLine(t, s, "faults drop=1 seed=7 timeout_devices=2,3")
	assert.Equal(t, "drop=1 corrupt=0 delay=0-0 timeout=false timeout_devices=2,3 seed=7\n", output)
	assert.Equal(t, faults.Config{PacketDropRate: 1, TimeoutDevices: []byte{2, 3}, RandomSeed: 7}, s.emulator.FaultConfig())

	assert.Contains(t, execLine(t, s, "ping 1"), "<- no response")
	assert.Contains(t, execLine(t, s, "stats"), "1 dropped")

	execLine(t, s, "faults drop=0 corrupt=1")
	assert.Contains(t, execLine(t, s, "ping 1"), "checksum mismatch")

	var out bytes.Buffer
	assert.ErrorIs(t, s.execute("faults drop=2", &out), faults.ErrInvalidConfig)
	assert.ErrorIs(t, s.execute("faults delay=a-b", &out), ErrUsage)
	assert.ErrorIs(t, s.execute("faults speed=3", &out), ErrUsage)
	assert.Equal(t, 1.0, s.emulator.FaultConfig().ChecksumCorruptionRate)
}

func TestSession_Errors(t *testing.T) {
	s := newTestSession(t)
	var out bytes.Buffer

	assert.NoError(t, s.execute("   ", &out))
	assert.ErrorIs(t, s.execute("jump 1", &out), ErrUnknownCommand)
	assert.ErrorIs(t, s.execute("read 1", &out), ErrUsage)
	assert.ErrorIs(t, s.execute("ping 300", &out), ErrUsage)
	assert.ErrorIs(t, s.execute("sync 42 2 1-3408", &out), ErrUsage)
	assert.ErrorIs(t, s.execute("dump 9", &out), bus.ErrDeviceNotFound)
	assert.ErrorIs(t, s.execute("quit", &out), ErrQuit)
	assert.ErrorIs(t, s.execute("EXIT", &out), ErrQuit)
}

func TestSession_Help(t *testing.T) {
	s := newTestSession(t)

	output := execLine(t, s, "help")
	for _, name := range commandNames() {
		if name != "exit" {
			assert.Contains(t, output, commands[name].usage)
		}
	}
}

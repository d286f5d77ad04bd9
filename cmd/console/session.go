package console

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/Manu343726/servoemu/pkg/config"
	"github.com/Manu343726/servoemu/pkg/hw/servo/bus"
	"github.com/Manu343726/servoemu/pkg/hw/servo/emulator"
	"github.com/Manu343726/servoemu/pkg/hw/servo/faults"
	"github.com/Manu343726/servoemu/pkg/hw/servo/protocol"
	"github.com/Manu343726/servoemu/pkg/hw/servo/registers"
	"github.com/Manu343726/servoemu/pkg/transport"
	"github.com/Manu343726/servoemu/pkg/utils"
)

var (
	ErrUsage          = errors.New("usage")
	ErrUnknownCommand = errors.New("unknown command")
	ErrQuit           = errors.New("quit")
)

var (
	colorSent     = color.New(color.FgCyan)
	colorReceived = color.New(color.FgGreen)
	colorMissing  = color.New(color.FgYellow)
	colorError    = color.New(color.FgRed, color.Bold)
	colorHeader   = color.New(color.FgWhite, color.Bold, color.Underline)
	colorSuccess  = color.New(color.FgGreen)
)

type command struct {
	usage       string
	description string
	run         func(s *session, args []string, out io.Writer) error
}

var commands map[string]command

func init() {
	// assigned here since help refers back to the table
	commands = map[string]command{
		"ping":     {"ping <id>", "Send a PING", (*session).ping},
		"read":     {"read <id> <address> <length>", "Read raw bytes from the control table", (*session).read},
		"write":    {"write <id> <address> <byte>...", "Write raw bytes to the control table", (*session).write},
		"regwrite": {"regwrite <id> <address> <byte>...", "Stage a write until the next ACTION", (*session).regWrite},
		"action":   {"action [id]", "Commit staged writes (broadcast by default)", (*session).action},
		"sync":     {"sync <address> <width> <id>:<hex>...", "Broadcast a SYNC_WRITE, e.g. sync 42 2 1:0008 2:0010", (*session).syncWrite},
		"goal":     {"goal <id> <position> [speed]", "Move a servo", (*session).goal},
		"position": {"position <id>", "Read the current position register", (*session).position},
		"dump":     {"dump [id]", "Show the kinematic state and control table of the servos", (*session).dump},
		"faults":   {"faults [key=value]...", "Show or change fault injection (drop, corrupt, delay=min-max, timeout=on|off, timeout_devices=1,2, seed)", (*session).faults},
		"stats":    {"stats", "Show bus counters", (*session).stats},
		"help":     {"help", "Show this help", (*session).help},
		"quit":     {"quit", "Leave the console", (*session).quit},
	}
	commands["exit"] = commands["quit"]
}

func commandNames() []string {
	return utils.SortedKeys(commands)
}

// session drives an in-process emulator through the host end of a pipe, the
// same way a driver would through a serial port.
type session struct {
	emulator  *emulator.Emulator
	ids       []byte
	host      transport.Transport
	responses chan protocol.Result
	timeout   time.Duration
	cancel    context.CancelFunc
	done      chan error
}

func newSession(cfg config.Config, logger *slog.Logger, timeout time.Duration) (*session, error) {
	registry, err := cfg.Registry(logger)
	if err != nil {
		return nil, err
	}

	options, err := cfg.EmulatorOptions()
	if err != nil {
		return nil, err
	}

	host, device := transport.NewPipe()

	emu, err := emulator.New(registry, device, append(options, emulator.WithLogger(logger))...)
	if err != nil {
		host.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &session{
		emulator:  emu,
		ids:       registry.IDs(),
		host:      host,
		responses: make(chan protocol.Result, 64),
		timeout:   timeout,
		cancel:    cancel,
		done:      make(chan error, 1),
	}

	go func() {
		s.done <- emu.Run(ctx)
	}()
	go s.receive(cfg.Bus.MaxFrameLength)

	return s, nil
}

func (s *session) receive(maxLength int) {
	defer close(s.responses)

	decoder := protocol.NewDecoder(maxLength)
	buffer := make([]byte, 256)

	for {
		n, err := s.host.Read(buffer)
		for _, result := range decoder.Feed(buffer[:n]) {
			s.responses <- result
		}

		if err != nil {
			return
		}
	}
}

func (s *session) Close() error {
	s.cancel()
	err := <-s.done
	s.host.Close()
	return err
}

// execute runs one console line
func (s *session) execute(line string, out io.Writer) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	cmd, ok := commands[strings.ToLower(fields[0])]
	if !ok {
		return utils.MakeError(ErrUnknownCommand, "'%v', type 'help' for available commands", fields[0])
	}

	return cmd.run(s, fields[1:], out)
}

func usage(name string) error {
	return utils.MakeError(ErrUsage, "%v", commands[name].usage)
}

func parseByte(s string) (byte, error) {
	value, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, utils.MakeError(ErrUsage, "'%v' is not a byte", s)
	}
	return byte(value), nil
}

func parseBytes(args []string) ([]byte, error) {
	result := make([]byte, 0, len(args))

	for _, arg := range args {
		b, err := parseByte(arg)
		if err != nil {
			return nil, err
		}
		result = append(result, b)
	}

	return result, nil
}

func parseWord(s string) (uint16, error) {
	value, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, utils.MakeError(ErrUsage, "'%v' is not a 16 bit value", s)
	}
	return uint16(value), nil
}

// drain prints responses that arrived after their request timed out
func (s *session) drain(out io.Writer) {
	for {
		select {
		case result, ok := <-s.responses:
			if !ok {
				return
			}
			colorMissing.Fprint(out, "late ")
			printResult(result, out)
		default:
			return
		}
	}
}

func printResult(result protocol.Result, out io.Writer) {
	if result.Err != nil {
		colorError.Fprintf(out, "<- %v\n", result.Err)
		return
	}

	colorReceived.Fprintf(out, "<- id=%d status=%d params=[%v]\n", result.Packet.ID, byte(result.Packet.Instruction), utils.FormatHexBytes(result.Packet.Params))
}

// transact sends request and waits for its response. It returns nil when the
// request is a broadcast or the response did not arrive in time.
func (s *session) transact(request protocol.Packet, out io.Writer) (*protocol.Packet, error) {
	s.drain(out)

	frame, err := request.Encode()
	if err != nil {
		return nil, err
	}

	colorSent.Fprintf(out, "-> %v\n", utils.FormatHexBytes(frame))
	if _, err := s.host.Write(frame); err != nil {
		return nil, err
	}

	if request.IsBroadcast() {
		fmt.Fprintln(out, "   broadcast, no response expected")
		return nil, nil
	}

	select {
	case result, ok := <-s.responses:
		if !ok {
			return nil, transport.ErrClosed
		}
		printResult(result, out)
		if result.Err != nil {
			return nil, nil
		}
		return &result.Packet, nil

	case <-time.After(s.timeout + s.emulator.FaultConfig().ResponseDelay.Max()):
		colorMissing.Fprintln(out, "<- no response")
		return nil, nil
	}
}

func (s *session) ping(args []string, out io.Writer) error {
	if len(args) != 1 {
		return usage("ping")
	}

	id, err := parseByte(args[0])
	if err != nil {
		return err
	}

	_, err = s.transact(protocol.Ping(id), out)
	return err
}

func (s *session) read(args []string, out io.Writer) error {
	if len(args) != 3 {
		return usage("read")
	}

	params, err := parseBytes(args)
	if err != nil {
		return err
	}

	_, err = s.transact(protocol.Read(params[0], params[1], params[2]), out)
	return err
}

func (s *session) write(args []string, out io.Writer) error {
	if len(args) < 3 {
		return usage("write")
	}

	params, err := parseBytes(args)
	if err != nil {
		return err
	}

	_, err = s.transact(protocol.Write(params[0], params[1], params[2:]...), out)
	return err
}

func (s *session) regWrite(args []string, out io.Writer) error {
	if len(args) < 3 {
		return usage("regwrite")
	}

	params, err := parseBytes(args)
	if err != nil {
		return err
	}

	_, err = s.transact(protocol.RegWrite(params[0], params[1], params[2:]...), out)
	return err
}

func (s *session) action(args []string, out io.Writer) error {
	id := protocol.BroadcastID

	switch len(args) {
	case 0:
	case 1:
		var err error
		if id, err = parseByte(args[0]); err != nil {
			return err
		}
	default:
		return usage("action")
	}

	_, err := s.transact(protocol.Action(id), out)
	return err
}

func (s *session) syncWrite(args []string, out io.Writer) error {
	if len(args) < 3 {
		return usage("sync")
	}

	address, err := parseByte(args[0])
	if err != nil {
		return err
	}
	width, err := parseByte(args[1])
	if err != nil {
		return err
	}

	entries := make([]protocol.SyncWriteEntry, 0, len(args)-2)
	for _, arg := range args[2:] {
		idText, dataText, found := strings.Cut(arg, ":")
		if !found {
			return usage("sync")
		}

		id, err := parseByte(idText)
		if err != nil {
			return err
		}
		data, err := hex.DecodeString(dataText)
		if err != nil {
			return utils.MakeError(ErrUsage, "'%v' is not hex data", dataText)
		}

		entries = append(entries, protocol.SyncWriteEntry{ID: id, Data: data})
	}

	request, err := protocol.SyncWrite(address, width, entries...)
	if err != nil {
		return err
	}

	_, err = s.transact(request, out)
	return err
}

func (s *session) goal(args []string, out io.Writer) error {
	if len(args) != 2 && len(args) != 3 {
		return usage("goal")
	}

	id, err := parseByte(args[0])
	if err != nil {
		return err
	}
	position, err := parseWord(args[1])
	if err != nil {
		return err
	}

	if len(args) == 3 {
		speed, err := parseWord(args[2])
		if err != nil {
			return err
		}
		if _, err := s.transact(protocol.Write(id, registers.AddrGoalSpeed, utils.SplitLE(speed, 2)...), out); err != nil {
			return err
		}
	}

	_, err = s.transact(protocol.Write(id, registers.AddrGoalPosition, utils.SplitLE(position, 2)...), out)
	return err
}

func (s *session) position(args []string, out io.Writer) error {
	if len(args) != 1 {
		return usage("position")
	}

	id, err := parseByte(args[0])
	if err != nil {
		return err
	}

	response, err := s.transact(protocol.Read(id, registers.AddrCurrentPosition, 2), out)
	if err != nil || response == nil {
		return err
	}

	if len(response.Params) == 2 {
		fmt.Fprintf(out, "position %d\n", utils.JoinLE[uint16](response.Params))
	}
	return nil
}

func (s *session) dump(args []string, out io.Writer) error {
	if len(args) > 1 {
		return usage("dump")
	}

	var selected []byte
	if len(args) == 1 {
		id, err := parseByte(args[0])
		if err != nil {
			return err
		}
		selected = []byte{id}
	}

	found := false

	s.emulator.Inspect(func(registry *bus.Registry) {
		for _, id := range registry.IDs() {
			if selected != nil && !slices.Contains(selected, id) {
				continue
			}
			found = true

			servo, _ := registry.Servo(id)
			state := servo.Model.State()

			colorHeader.Fprintf(out, "servo %d\n", id)
			fmt.Fprintf(out, "  position %.1f goal %.0f speed %.1f/s limit %.0f/s torque %v moving %v\n",
				state.Position, state.Goal, state.Speed, state.VelocityLimit, state.TorqueEnabled, state.Moving)

			for _, entry := range servo.Registers.Entries() {
				fmt.Fprintf(out, "  %3d  %-18v %-2v %6d  [%v]\n",
					entry.Address, entry.Name, entry.Access, entry.Value,
					utils.FormatHexBytes(utils.SplitLE(entry.Value, entry.Width)))
			}

			if pending := servo.Registers.Pending(); len(pending) > 0 {
				for _, write := range pending {
					fmt.Fprintf(out, "  staged %d [%v]\n", write.Address, utils.FormatHexBytes(write.Data))
				}
			}
		}
	})

	if !found && selected != nil {
		return utils.MakeError(bus.ErrDeviceNotFound, "servo %d", selected[0])
	}
	return nil
}

func printFaults(config faults.Config, out io.Writer) {
	fmt.Fprintf(out, "drop=%v corrupt=%v delay=%d-%d timeout=%v timeout_devices=%v seed=%d\n",
		config.PacketDropRate, config.ChecksumCorruptionRate,
		config.ResponseDelay.MinMS, config.ResponseDelay.MaxMS,
		config.TimeoutSimulation, utils.FormatSlice(config.TimeoutDevices, ","), config.RandomSeed)
}

func parseFaultSetting(config *faults.Config, key string, value string) error {
	var err error

	switch key {
	case "drop":
		config.PacketDropRate, err = strconv.ParseFloat(value, 64)
	case "corrupt":
		config.ChecksumCorruptionRate, err = strconv.ParseFloat(value, 64)
	case "delay":
		minText, maxText, found := strings.Cut(value, "-")
		if !found {
			maxText = minText
		}
		if config.ResponseDelay.MinMS, err = strconv.Atoi(minText); err == nil {
			config.ResponseDelay.MaxMS, err = strconv.Atoi(maxText)
		}
	case "timeout":
		switch value {
		case "on", "true", "1":
			config.TimeoutSimulation = true
		case "off", "false", "0":
			config.TimeoutSimulation = false
		default:
			err = errors.New("expected on or off")
		}
	case "timeout_devices":
		config.TimeoutDevices = nil
		if value != "" {
			for _, id := range strings.Split(value, ",") {
				var b byte
				if b, err = parseByte(id); err != nil {
					break
				}
				config.TimeoutDevices = append(config.TimeoutDevices, b)
			}
		}
	case "seed":
		config.RandomSeed, err = strconv.ParseInt(value, 0, 64)
	default:
		return utils.MakeError(ErrUsage, "unknown fault setting '%v'", key)
	}

	if err != nil {
		return utils.MakeError(ErrUsage, "%v=%v: %v", key, value, err)
	}
	return nil
}

func (s *session) faults(args []string, out io.Writer) error {
	config := s.emulator.FaultConfig()

	if len(args) > 0 {
		for _, arg := range args {
			key, value, found := strings.Cut(arg, "=")
			if !found {
				return usage("faults")
			}
			if err := parseFaultSetting(&config, key, value); err != nil {
				return err
			}
		}

		if err := s.emulator.SetFaultConfig(config); err != nil {
			return err
		}
	}

	printFaults(config, out)
	return nil
}

func (s *session) stats(args []string, out io.Writer) error {
	stats := s.emulator.Stats()

	fmt.Fprintf(out, "received %d bytes, %d frames, %d malformed, %d unanswered\n",
		stats.BytesReceived, stats.FramesDecoded, stats.MalformedFrames, stats.Unanswered)
	fmt.Fprintf(out, "sent %d responses: %d dropped, %d timed out, %d corrupted, %d delayed, %d discarded\n",
		stats.ResponsesSent, stats.ResponsesDropped, stats.ResponsesTimedOut,
		stats.ResponsesCorrupted, stats.ResponsesDelayed, stats.ResponsesDiscarded)
	return nil
}

func (s *session) help(args []string, out io.Writer) error {
	colorHeader.Fprintln(out, "Commands")

	for _, name := range commandNames() {
		if name == "exit" {
			continue
		}
		fmt.Fprintf(out, "  %-38v %v\n", commands[name].usage, commands[name].description)
	}

	fmt.Fprintln(out, "Numbers accept 0x prefixes. An empty line repeats the previous command.")
	return nil
}

func (s *session) quit(args []string, out io.Writer) error {
	return ErrQuit
}

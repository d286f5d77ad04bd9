package protocol

import (
	"fmt"
	"strings"

	"github.com/Manu343726/servoemu/pkg/utils"
)

// DocString describes the frame layout and the instruction set
func DocString() string {
	fields := []utils.AsciiFrameField{
		{Name: "FF FF", Begin: 0, Width: 2},
		{Name: "id", Begin: 2, Width: 1},
		{Name: "length", Begin: 3, Width: 1},
		{Name: "instruction", Begin: 4, Width: 1},
		{Name: "params (length - 2)", Begin: 5, Width: 2},
		{Name: "checksum", Begin: 7, Width: 1},
	}

	frame, err := utils.AsciiFrame(fields, 8, "bytes", 2)
	if err != nil {
		panic(err)
	}

	var builder strings.Builder

	builder.WriteString("Frame layout (requests and responses):\n\n")
	builder.WriteString(frame)
	builder.WriteString("\n")
	fmt.Fprintf(&builder, "  checksum = ~(id + length + instruction + params...) & 0xFF\n")
	fmt.Fprintf(&builder, "  id %d (0x%02X) is broadcast, ids 0-%d address a single servo\n", BroadcastID, BroadcastID, MaxDeviceID)
	fmt.Fprintf(&builder, "  responses carry the status byte in the instruction slot\n\n")

	builder.WriteString("Instructions:\n\n")
	for _, instruction := range Instructions() {
		fmt.Fprintf(&builder, "  0x%02X  %v\n", byte(instruction), instruction)
	}

	return builder.String()
}

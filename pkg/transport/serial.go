package transport

import (
	"go.bug.st/serial"

	"github.com/Manu343726/servoemu/pkg/utils"
)

// DefaultBaudRate is the factory baud rate of the emulated servo family
const DefaultBaudRate = 1000000

// Serial is a physical serial port, usually a USB adapter or a microcontroller
// bridging the bus to the host
type Serial struct {
	serial.Port
	device string
}

func OpenSerial(device string, baudRate int) (*Serial, error) {
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}

	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, utils.MakeError(err, "opening serial port %v at %v baud", device, baudRate)
	}

	return &Serial{
		Port:   port,
		device: device,
	}, nil
}

func (s *Serial) Name() string {
	return s.device
}

// SerialPorts lists the serial ports present on the host
func SerialPorts() ([]string, error) {
	return serial.GetPortsList()
}

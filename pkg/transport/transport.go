// Package transport provides the byte streams an emulated bus is attached
// to. None of them frame messages: they move raw bytes.
package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/Manu343726/servoemu/pkg/utils"
)

var (
	ErrClosed      = errors.New("transport closed")
	ErrUnsupported = errors.New("transport not supported on this platform")
	ErrUnknownKind = errors.New("unknown transport kind")
)

// Transport is a bidirectional byte stream. Read blocks until data arrives
// and Close unblocks any pending Read.
type Transport interface {
	io.ReadWriteCloser
	// Name describes the endpoint a driver connects to
	Name() string
}

// Kind selects a Transport implementation
type Kind string

const (
	KindPTY       Kind = "pty"
	KindSerial    Kind = "serial"
	KindWebsocket Kind = "websocket"
)

func Kinds() []Kind {
	return []Kind{KindPTY, KindSerial, KindWebsocket}
}

func ParseKind(s string) (Kind, error) {
	for _, kind := range Kinds() {
		if string(kind) == s {
			return kind, nil
		}
	}

	return "", utils.MakeError(ErrUnknownKind, "'%v' (expected one of %v)", s, Kinds())
}

// Options configures Open
type Options struct {
	Kind Kind
	// Serial device path (serial) or symlink to create to the pseudo terminal (pty)
	Device   string
	BaudRate int
	// Listen address and HTTP path (websocket)
	Address string
	Path    string
}

// Open creates the transport described by options. Websocket transports
// block until the first client connects or ctx is done.
func Open(ctx context.Context, options Options, logger *slog.Logger) (Transport, error) {
	switch options.Kind {
	case KindPTY:
		pty, err := OpenPTY(options.Device)
		if err != nil {
			return nil, err
		}
		logger.Info("pseudo terminal ready", "path", pty.Name())
		return pty, nil

	case KindSerial:
		return OpenSerial(options.Device, options.BaudRate)

	case KindWebsocket:
		listener, err := ListenWebsocket(options.Address, options.Path)
		if err != nil {
			return nil, err
		}
		logger.Info("waiting for websocket client", "url", listener.URL())

		ws, err := listener.Accept(ctx)
		if err != nil {
			listener.Close()
			return nil, err
		}
		ws.onClose = listener.Close
		return ws, nil

	default:
		return nil, utils.MakeError(ErrUnknownKind, "%v", options.Kind)
	}
}

//go:build !linux

package transport

import (
	"runtime"

	"github.com/Manu343726/servoemu/pkg/utils"
)

type PTY struct{}

func OpenPTY(link string) (*PTY, error) {
	return nil, utils.MakeError(ErrUnsupported, "pseudo terminals on %v", runtime.GOOS)
}

func (p *PTY) Name() string                    { return "" }
func (p *PTY) Read(buffer []byte) (int, error) { return 0, ErrClosed }
func (p *PTY) Write(data []byte) (int, error)  { return 0, ErrClosed }
func (p *PTY) Close() error                    { return nil }

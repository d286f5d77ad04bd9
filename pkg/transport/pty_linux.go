//go:build linux

package transport

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/Manu343726/servoemu/pkg/utils"
)

// PTY is the master side of a pseudo terminal. Drivers open the slave side
// (Name) as if it was a serial port.
type PTY struct {
	master *os.File
	// kept open so reads on the master do not fail while no driver is attached
	slave *os.File
	path  string
	link  string
}

// OpenPTY allocates a pseudo terminal in raw mode. If link is not empty a
// symlink to the slave device is created there and removed on Close.
func OpenPTY(link string) (*PTY, error) {
	master, err := os.OpenFile("/dev/ptmx", os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, utils.MakeError(err, "opening pseudo terminal multiplexer")
	}

	number, err := unlockPTY(master)
	if err != nil {
		master.Close()
		return nil, err
	}

	path := fmt.Sprintf("/dev/pts/%d", number)

	slave, err := os.OpenFile(path, os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		master.Close()
		return nil, utils.MakeError(err, "opening pseudo terminal %v", path)
	}

	if err := makeRaw(slave); err != nil {
		slave.Close()
		master.Close()
		return nil, err
	}

	if link != "" {
		os.Remove(link)
		if err := os.Symlink(path, link); err != nil {
			slave.Close()
			master.Close()
			return nil, utils.MakeError(err, "linking %v to %v", link, path)
		}
	}

	return &PTY{
		master: master,
		slave:  slave,
		path:   path,
		link:   link,
	}, nil
}

func control(file *os.File, f func(fd int) error) error {
	conn, err := file.SyscallConn()
	if err != nil {
		return err
	}

	var ctlErr error
	if err := conn.Control(func(fd uintptr) { ctlErr = f(int(fd)) }); err != nil {
		return err
	}
	return ctlErr
}

func unlockPTY(master *os.File) (int, error) {
	var number int

	err := control(master, func(fd int) error {
		if err := unix.IoctlSetPointerInt(fd, unix.TIOCSPTLCK, 0); err != nil {
			return utils.MakeError(err, "unlocking pseudo terminal")
		}

		n, err := unix.IoctlGetInt(fd, unix.TIOCGPTN)
		if err != nil {
			return utils.MakeError(err, "querying pseudo terminal number")
		}
		number = n
		return nil
	})

	return number, err
}

// makeRaw disables every line discipline feature so bytes pass through untouched
func makeRaw(file *os.File) error {
	return control(file, func(fd int) error {
		termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
		if err != nil {
			return utils.MakeError(err, "reading terminal attributes")
		}

		termios.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
			unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF | unix.IXANY
		termios.Oflag &^= unix.OPOST
		termios.Cflag &^= unix.CSIZE | unix.PARENB | unix.PARODD | unix.CSTOPB
		termios.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL
		termios.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
		termios.Cc[unix.VMIN] = 1
		termios.Cc[unix.VTIME] = 0

		if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
			return utils.MakeError(err, "setting raw mode")
		}
		return nil
	})
}

// Name returns the slave device path, or the symlink if one was requested
func (p *PTY) Name() string {
	if p.link != "" {
		return p.link
	}
	return p.path
}

func (p *PTY) Read(buffer []byte) (int, error) {
	n, err := p.master.Read(buffer)
	if err != nil && n == 0 {
		return 0, utils.MakeError(ErrClosed, "%v: %v", p.path, err)
	}
	return n, nil
}

func (p *PTY) Write(data []byte) (int, error) {
	n, err := p.master.Write(data)
	if err != nil {
		return n, utils.MakeError(ErrClosed, "%v: %v", p.path, err)
	}
	return n, nil
}

func (p *PTY) Close() error {
	if p.link != "" {
		os.Remove(p.link)
	}
	p.slave.Close()
	return p.master.Close()
}

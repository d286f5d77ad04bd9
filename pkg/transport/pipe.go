package transport

import (
	"sync"
)

const pipeBacklog = 64

// Pipe is one end of an in-memory transport pair. Writes on one end are read,
// in order and with their boundaries lost, on the other.
type Pipe struct {
	name   string
	reads  <-chan []byte
	writes chan<- []byte
	// unread rest of the last received chunk
	pending []byte

	done      chan struct{}
	closeOnce *sync.Once
	readMu    sync.Mutex
}

// NewPipe returns the two connected ends of an in-memory transport. Closing
// either end closes both.
func NewPipe() (*Pipe, *Pipe) {
	ab := make(chan []byte, pipeBacklog)
	ba := make(chan []byte, pipeBacklog)
	done := make(chan struct{})
	once := &sync.Once{}

	a := &Pipe{name: "pipe:a", reads: ba, writes: ab, done: done, closeOnce: once}
	b := &Pipe{name: "pipe:b", reads: ab, writes: ba, done: done, closeOnce: once}

	return a, b
}

func (p *Pipe) Name() string {
	return p.name
}

func (p *Pipe) Read(buffer []byte) (int, error) {
	p.readMu.Lock()
	defer p.readMu.Unlock()

	if len(p.pending) == 0 {
		// chunks written before Close are still delivered
		select {
		case chunk := <-p.reads:
			p.pending = chunk
		default:
			select {
			case chunk := <-p.reads:
				p.pending = chunk
			case <-p.done:
				return 0, ErrClosed
			}
		}
	}

	n := copy(buffer, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *Pipe) Write(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}

	chunk := append([]byte(nil), data...)

	select {
	case <-p.done:
		return 0, ErrClosed
	default:
	}

	select {
	case p.writes <- chunk:
		return len(data), nil
	case <-p.done:
		return 0, ErrClosed
	}
}

func (p *Pipe) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
	})
	return nil
}

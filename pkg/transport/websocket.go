package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/Manu343726/servoemu/pkg/utils"
)

// DefaultWebsocketPath is the HTTP path the bus is served on when none is configured
const DefaultWebsocketPath = "/bus"

// Websocket carries the byte stream as binary websocket messages. Message
// boundaries carry no meaning.
type Websocket struct {
	conn *websocket.Conn
	name string

	readMu sync.Mutex
	// current message being read
	reader io.Reader

	writeMu sync.Mutex
	onClose func() error
}

func newWebsocket(conn *websocket.Conn, name string) *Websocket {
	return &Websocket{
		conn: conn,
		name: name,
	}
}

// DialWebsocket connects to an emulator serving the bus over websocket
func DialWebsocket(ctx context.Context, url string) (*Websocket, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, utils.MakeError(err, "dialing %v", url)
	}

	return newWebsocket(conn, url), nil
}

func (w *Websocket) Name() string {
	return w.name
}

func (w *Websocket) Read(buffer []byte) (int, error) {
	w.readMu.Lock()
	defer w.readMu.Unlock()

	for {
		if w.reader == nil {
			messageType, reader, err := w.conn.NextReader()
			if err != nil {
				return 0, utils.MakeError(ErrClosed, "%v: %v", w.name, err)
			}
			if messageType != websocket.BinaryMessage {
				continue
			}
			w.reader = reader
		}

		n, err := w.reader.Read(buffer)
		if errors.Is(err, io.EOF) {
			w.reader = nil
			if n == 0 {
				continue
			}
			err = nil
		}
		if err != nil {
			return n, utils.MakeError(ErrClosed, "%v: %v", w.name, err)
		}
		return n, nil
	}
}

func (w *Websocket) Write(data []byte) (int, error) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if err := w.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return 0, utils.MakeError(ErrClosed, "%v: %v", w.name, err)
	}
	return len(data), nil
}

func (w *Websocket) Close() error {
	err := w.conn.Close()
	if w.onClose != nil {
		err = errors.Join(err, w.onClose())
	}
	return err
}

// WebsocketListener hands websocket clients to Accept one by one. Clients
// arriving while another one waits to be accepted are turned away.
type WebsocketListener struct {
	listener net.Listener
	server   *http.Server
	path     string
	upgrader websocket.Upgrader
	conns    chan *websocket.Conn
}

func ListenWebsocket(address string, path string) (*WebsocketListener, error) {
	if path == "" {
		path = DefaultWebsocketPath
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, utils.MakeError(err, "listening on %v", address)
	}

	l := &WebsocketListener{
		listener: listener,
		path:     path,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns: make(chan *websocket.Conn, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, l.handle)
	l.server = &http.Server{Handler: mux}

	go l.server.Serve(listener)

	return l, nil
}

func (l *WebsocketListener) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	select {
	case l.conns <- conn:
	default:
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "bus busy"))
		conn.Close()
	}
}

func (l *WebsocketListener) Addr() net.Addr {
	return l.listener.Addr()
}

// URL is the address clients dial
func (l *WebsocketListener) URL() string {
	return "ws://" + l.listener.Addr().String() + l.path
}

// Accept waits for the next client
func (l *WebsocketListener) Accept(ctx context.Context) (*Websocket, error) {
	select {
	case conn := <-l.conns:
		return newWebsocket(conn, conn.RemoteAddr().String()), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *WebsocketListener) Close() error {
	return l.server.Close()
}

// Package session provides the connection/exchange primitives shared by the
// mail, bulletin, and notify-control client dialects: dial, send a command,
// expect one of a set of response codes, read multi-line or sized-block
// payloads, and detect a dropped connection.
package session

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/google/uuid"

	"github.com/infodancer/campusmaild/internal/sessionerr"
	"github.com/infodancer/campusmaild/internal/wire"
)

// Base is embedded by each dialect's session type. It is not safe for
// concurrent use by multiple goroutines; each dialect session is expected to
// be used the way the original mail client used it, from one goroutine at a
// time.
type Base struct {
	conn   net.Conn
	codec  *wire.Codec
	connID uuid.UUID
	addr   string
}

// Dial connects to addr over network (normally "tcp") and wraps the
// resulting connection for command/response exchange.
func Dial(ctx context.Context, network, addr string) (*Base, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, sessionerr.NewNotConnected(err)
	}
	return NewBase(conn), nil
}

// NewBase wraps an already-established connection.
func NewBase(conn net.Conn) *Base {
	return &Base{
		conn:   conn,
		codec:  wire.New(newBufReader(conn), newBufWriter(conn)),
		connID: uuid.New(),
		addr:   conn.RemoteAddr().String(),
	}
}

// ConnID returns the session's unique correlation id, for logging.
func (b *Base) ConnID() uuid.UUID { return b.connID }

// Addr returns the remote address this session is connected to.
func (b *Base) Addr() string { return b.addr }

// Connected reports whether the session has an open connection.
func (b *Base) Connected() bool { return b.conn != nil }

// Close closes the underlying connection. It is safe to call more than once.
func (b *Base) Close() error {
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	return err
}

// Command sends a command line and translates transport failures into a
// LostConnection error.
func (b *Base) Command(name string, sep byte, args ...string) error {
	if !b.Connected() {
		return sessionerr.NewNotConnected(nil)
	}
	if err := b.codec.WriteCommand(name, sep, args...); err != nil {
		return b.wrapIOErr(err)
	}
	return nil
}

// RawSend writes raw bytes with no command framing (used for sized uploads).
func (b *Base) RawSend(data []byte) error {
	if !b.Connected() {
		return sessionerr.NewNotConnected(nil)
	}
	if err := b.codec.WriteBlock(data); err != nil {
		return b.wrapIOErr(err)
	}
	return nil
}

// Expect reads one response line and, if wanted is non-empty and its code is
// not among wanted, returns a protocol error; with no wanted codes, any code
// is accepted. It returns the code and trailing text either way
// so dialect-specific overrides can inspect both.
func (b *Base) Expect(wanted ...int) (code int, text string, err error) {
	if !b.Connected() {
		return 0, "", sessionerr.NewNotConnected(nil)
	}
	code, text, err = b.codec.ReadResponse()
	if err != nil {
		return 0, "", b.wrapIOErr(err)
	}
	if len(wanted) == 0 {
		return code, text, nil
	}
	for _, w := range wanted {
		if code == w {
			return code, text, nil
		}
	}
	return code, text, sessionerr.NewProtocolError(code, text)
}

// ReadLine reads a single line with no response-code parsing.
func (b *Base) ReadLine() (string, error) {
	line, err := b.codec.ReadLine()
	if err != nil {
		return "", b.wrapIOErr(err)
	}
	return line, nil
}

// ReadMultiline reads a dot-terminated block of lines.
func (b *Base) ReadMultiline() ([]string, error) {
	lines, err := b.codec.ReadMultiline()
	if err != nil {
		return lines, b.wrapIOErr(err)
	}
	return lines, nil
}

// ReadBlock reads exactly n raw bytes.
func (b *Base) ReadBlock(n int) ([]byte, error) {
	data, err := b.codec.ReadBlock(n)
	if err != nil {
		return nil, b.wrapIOErr(err)
	}
	return data, nil
}

func (b *Base) wrapIOErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return sessionerr.NewLostConnection(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return sessionerr.NewLostConnection(err)
	}
	return err
}

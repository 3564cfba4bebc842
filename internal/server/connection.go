package server

import (
	"bufio"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Connection wraps an accepted net.Conn with buffered I/O and two read-
// deadline helpers, SetCommandTimeout and ResetIdleTimeout. The notify TCP
// control server's command loop calls neither, so its reads have no
// deadline. None of the campus protocols use TLS, so this type has no STLS
// upgrade path.
type Connection struct {
	conn           net.Conn
	reader         *bufio.Reader
	writer         *bufio.Writer
	connID         uuid.UUID
	commandTimeout time.Duration
	idleTimeout    time.Duration
	closed         atomic.Bool
}

func newConnection(conn net.Conn, commandTimeout, idleTimeout time.Duration) *Connection {
	return &Connection{
		conn:           conn,
		reader:         bufio.NewReader(conn),
		writer:         bufio.NewWriter(conn),
		connID:         uuid.New(),
		commandTimeout: commandTimeout,
		idleTimeout:    idleTimeout,
	}
}

// Reader returns the connection's buffered reader.
func (c *Connection) Reader() *bufio.Reader { return c.reader }

// Writer returns the connection's buffered writer.
func (c *Connection) Writer() *bufio.Writer { return c.writer }

// Flush flushes any buffered output.
func (c *Connection) Flush() error { return c.writer.Flush() }

// RemoteAddr returns the address of the connected peer.
func (c *Connection) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// ConnID returns the connection's unique correlation id, for logging.
func (c *Connection) ConnID() uuid.UUID { return c.connID }

// Conn exposes the underlying net.Conn, for callers such as internal/tcpstats
// that need the raw file descriptor.
func (c *Connection) Conn() net.Conn { return c.conn }

// IsClosed reports whether Close has been called on this connection.
func (c *Connection) IsClosed() bool { return c.closed.Load() }

// Close closes the underlying connection. Safe to call more than once.
func (c *Connection) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		return c.conn.Close()
	}
	return nil
}

// SetCommandTimeout arms the deadline for the next command line read.
func (c *Connection) SetCommandTimeout() error {
	if c.commandTimeout <= 0 {
		return nil
	}
	return c.conn.SetReadDeadline(time.Now().Add(c.commandTimeout))
}

// ResetIdleTimeout re-arms the deadline for the connection's longer idle
// window, called after a command has been successfully read.
func (c *Connection) ResetIdleTimeout() error {
	if c.idleTimeout <= 0 {
		return nil
	}
	return c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout))
}

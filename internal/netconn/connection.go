// Package netconn implements the length-prefixed TCP framing used for all
// GCD and peer traffic, and the accept loop that turns inbound connections
// into one handler goroutine each.
package netconn

import (
	"encoding/binary"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"
)

const headerSize = 4

// Conn wraps a net.Conn with length-prefixed frame read/write, one frame
// per logical message (the spec's "one message per TCP connection; close
// after reply").
type Conn struct {
	conn net.Conn
}

// Dial opens a new TCP connection to addr with the given connect deadline.
func Dial(addr string, connectTimeout time.Duration) (*Conn, error) {
	conn, err := net.DialTimeout("tcp", addr, connectTimeout)
	if err != nil {
		return nil, err
	}
	return &Conn{conn: conn}, nil
}

// FromAccepted wraps an already-accepted net.Conn.
func FromAccepted(conn net.Conn) *Conn {
	return &Conn{conn: conn}
}

// SetDeadline sets the read/write deadline for the underlying connection.
func (c *Conn) SetDeadline(d time.Time) error {
	return c.conn.SetDeadline(d)
}

// WriteFrame writes a length-prefixed frame.
func (c *Conn) WriteFrame(data []byte) error {
	header := make([]byte, headerSize)
	binary.BigEndian.PutUint32(header, uint32(len(data)))
	if err := c.writeFull(header); err != nil {
		return err
	}
	return c.writeFull(data)
}

// ReadFrame reads a single length-prefixed frame.
func (c *Conn) ReadFrame() ([]byte, error) {
	header := make([]byte, headerSize)
	if err := c.readFull(header); err != nil {
		return nil, err
	}
	data := make([]byte, binary.BigEndian.Uint32(header))
	if err := c.readFull(data); err != nil {
		return nil, err
	}
	return data, nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

func (c *Conn) readFull(buf []byte) error {
	total := 0
	for total < len(buf) {
		n, err := c.conn.Read(buf[total:])
		if err != nil {
			if err == io.EOF && total > 0 {
				return errors.Wrap(io.ErrUnexpectedEOF, "netconn: short read")
			}
			return err
		}
		total += n
	}
	return nil
}

func (c *Conn) writeFull(buf []byte) error {
	total := 0
	for total < len(buf) {
		n, err := c.conn.Write(buf[total:])
		if err != nil {
			return err
		}
		total += n
	}
	return nil
}

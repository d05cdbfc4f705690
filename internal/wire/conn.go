// Package wire implements the coordinator-to-coordinator transport:
// length-prefixed, typed framed messages over a net.Conn.
package wire

import "net"

// Conn wraps a net.Conn with the frame format: a 4-byte big-endian
// length header followed by that many payload bytes.
type Conn struct {
	net.Conn
}

// Receive blocks for one full frame and returns its payload.
func (c *Conn) Receive() ([]byte, error) {
	header := make([]byte, 4)
	if err := c.readFull(header); err != nil {
		return nil, err
	}
	length := parseHeader(header)
	payload := make([]byte, length)
	if err := c.readFull(payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func (c *Conn) readFull(buf []byte) error {
	read := 0
	for read < len(buf) {
		n, err := c.Read(buf[read:])
		if err != nil {
			return err
		}
		read += n
	}
	return nil
}

// Send writes one framed message.
func (c *Conn) Send(data []byte) error {
	header := makeHeader(data)
	if err := c.writeFull(header); err != nil {
		return err
	}
	return c.writeFull(data)
}

func (c *Conn) writeFull(buf []byte) error {
	written := 0
	for written < len(buf) {
		n, err := c.Write(buf[written:])
		if err != nil {
			return err
		}
		written += n
	}
	return nil
}

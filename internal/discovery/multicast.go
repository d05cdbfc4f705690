// Package discovery implements best-effort multicast peer discovery.
// A server that isn't itself the job-server sends a 2-byte "s?"
// query; whoever knows the job-server's address replies with a
// serialized (host, port) pair, and the asker dials TCP with a
// backoff that grows by a fixed base delay on each attempt.
package discovery

import (
	"encoding/binary"
	"fmt"
	"log"
	"net"
	"strings"
	"time"
)

// query is the wire-level "where's the server" beacon.
var query = []byte("s?")

// Found is delivered once a server address has been learned, either
// from a multicast reply or from static config.
type Found struct {
	Host string
	Port uint16
}

// Beacon asks the multicast group where the job-server is (one query
// per Ask call) and reports replies until Stop is called.
type Beacon struct {
	conn    *net.UDPConn
	group   *net.UDPAddr
	ttl     int
	found   chan Found
	stopped chan struct{}
}

// Join opens (but does not yet use) a multicast socket on the given
// group/port. This is best-effort: a caller whose environment has
// multicast disabled should treat a non-nil error as "operate
// standalone", not fatal.
func Join(address string, port uint16, ttl int) (*Beacon, error) {
	group := &net.UDPAddr{IP: net.ParseIP(address), Port: int(port)}
	conn, err := net.ListenMulticastUDP("udp4", nil, group)
	if err != nil {
		return nil, fmt.Errorf("discovery: join %s:%d: %w", address, port, err)
	}
	return &Beacon{
		conn:    conn,
		group:   group,
		ttl:     ttl,
		found:   make(chan Found, 1),
		stopped: make(chan struct{}),
	}, nil
}

// AnnounceSelf replies to an "s?" query with our own (host, port),
// used by the job-server itself: host is left empty, since the
// receiver substitutes the sender's observed IP.
func (b *Beacon) AnnounceSelf(port uint16) error {
	return b.reply("", port)
}

// AnnounceKnownServer replies on behalf of a server we're already
// connected to.
func (b *Beacon) AnnounceKnownServer(host string, port uint16) error {
	return b.reply(host, port)
}

func (b *Beacon) reply(host string, port uint16) error {
	payload := encodeHostPort(host, port)
	_, err := b.conn.WriteToUDP(payload, b.group)
	return err
}

// Ask broadcasts the "s?" query once.
func (b *Beacon) Ask() error {
	_, err := b.conn.WriteToUDP(query, b.group)
	return err
}

// Serve reads multicast traffic until Stop is called, replying to "s?"
// queries via respond and reporting (host, port) replies on the
// returned channel. respond is nil for a pure asker (a node with no
// server knowledge of its own).
func (b *Beacon) Serve(respond func(senderIP string) (host string, port uint16, ok bool)) <-chan Found {
	go func() {
		buf := make([]byte, 512)
		for {
			n, addr, err := b.conn.ReadFromUDP(buf)
			if err != nil {
				select {
				case <-b.stopped:
					return
				default:
					log.Printf("discovery: read: %v", err)
					return
				}
			}
			data := buf[:n]
			if n == 2 && string(data) == "s?" {
				if respond == nil {
					continue
				}
				host, port, ok := respond(addr.IP.String())
				if !ok {
					continue
				}
				if err := b.reply(host, port); err != nil {
					log.Printf("discovery: reply: %v", err)
				}
				continue
			}
			host, port, err := decodeHostPort(data)
			if err != nil {
				log.Printf("discovery: bad reply: %v", err)
				continue
			}
			if host == "" {
				host = addr.IP.String()
			}
			select {
			case b.found <- Found{Host: host, Port: port}:
			default:
			}
		}
	}()
	return b.found
}

// Stop closes the multicast socket.
func (b *Beacon) Stop() {
	close(b.stopped)
	b.conn.Close()
}

// DialWithBackoff connects to the discovered server, retrying with a
// linear multiple of base on failure.
func DialWithBackoff(host string, port uint16, base time.Duration, attempts int) (net.Conn, error) {
	var lastErr error
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	for attempt := 1; attempt <= attempts; attempt++ {
		conn, err := net.DialTimeout("tcp", addr, base)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		time.Sleep(time.Duration(attempt) * base)
	}
	return nil, fmt.Errorf("discovery: dial %s after %d attempts: %w", addr, attempts, lastErr)
}

func encodeHostPort(host string, port uint16) []byte {
	buf := make([]byte, 0, len(host)+4)
	lenBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(lenBuf, uint16(len(host)))
	buf = append(buf, lenBuf...)
	buf = append(buf, host...)
	portBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(portBuf, port)
	buf = append(buf, portBuf...)
	return buf
}

func decodeHostPort(data []byte) (string, uint16, error) {
	if len(data) < 2 {
		return "", 0, fmt.Errorf("short packet")
	}
	hostLen := int(binary.BigEndian.Uint16(data[:2]))
	if len(data) < 2+hostLen+2 {
		return "", 0, fmt.Errorf("truncated packet")
	}
	host := string(data[2 : 2+hostLen])
	port := binary.BigEndian.Uint16(data[2+hostLen : 2+hostLen+2])
	return strings.TrimSpace(host), port, nil
}

package server

import "github.com/rosrad/rtags/internal/wire"

// SetSelf records the host/port this process is reachable on once its
// listener is bound. JobAnnouncement/ProxyJobAnnouncement carry only
// the port; receivers take the host from the connection's address.
func (s *Server) SetSelf(host string, port uint16) {
	s.selfHost = host
	s.selfPort = port
}

// BecomeJobServer marks this process as the job server: it broadcasts
// JobAnnouncement to its clients itself instead of proxying through an
// upstream connection. It does not answer multicast discovery queries.
func (s *Server) BecomeJobServer() {
	s.connMu.Lock()
	s.isJobServer = true
	s.connMu.Unlock()
}

// IsJobServer reports whether this process is currently acting as the
// job server.
func (s *Server) IsJobServer() bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.isJobServer
}

// AttachJobServer registers conn as the upstream job-server connection
// a non-job-server process proxies announcements and requests
// through: it sends the initial ClientMessage handshake and starts
// reading conn like any other peer connection. conn is deliberately
// not added to clients — that map is downstream clients only, and
// handleExitMessage's broadcast-to-clients branch would otherwise loop
// an exit order back upstream.
func (s *Server) AttachJobServer(conn *wire.Conn) error {
	s.connMu.Lock()
	s.jobServerConn = conn
	s.connMu.Unlock()

	if err := s.send(conn, &wire.ClientMessage{}); err != nil {
		return err
	}
	go s.handleConn(conn)
	return nil
}

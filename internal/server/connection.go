package server

import (
	"github.com/rosrad/rtags/internal/wire"
)

// connKey identifies a connection for pendingJobRequests/clients
// bookkeeping: the remote socket address is stable for the life of
// the TCP connection, which is all the scheduler needs.
func connKey(c *wire.Conn) string {
	return c.RemoteAddr().String()
}

func (s *Server) registerClient(c *wire.Conn) {
	s.connMu.Lock()
	s.clients[connKey(c)] = c
	s.connMu.Unlock()
}

func (s *Server) unregisterClient(c *wire.Conn) {
	s.connMu.Lock()
	delete(s.clients, connKey(c))
	if s.jobServerConn == c {
		s.jobServerConn = nil
	}
	s.connMu.Unlock()
}

func (s *Server) broadcastClients(msg wire.Message) {
	s.connMu.Lock()
	conns := make([]*wire.Conn, 0, len(s.clients))
	for _, c := range s.clients {
		conns = append(conns, c)
	}
	s.connMu.Unlock()

	for _, c := range conns {
		s.send(c, msg)
	}
}

func (s *Server) send(c *wire.Conn, msg wire.Message) error {
	payload, err := wire.Encode(msg)
	if err != nil {
		return err
	}
	return c.Send(payload)
}

// onConnLost handles an unexpected disconnect: jobs we'd sent to that
// peer mid-transfer are not recoverable here (the send already
// completed by the time the reader loop notices a disconnect), but
// any job request we still had outstanding on this connection is
// cleared so slot accounting doesn't permanently believe peer capacity
// is reserved.
func (s *Server) onConnLost(c *wire.Conn) {
	ws := s.beginWork()
	defer ws.End()

	key := connKey(c)
	s.table.ClearPendingJobRequest(key)
	s.unregisterClient(c)
}

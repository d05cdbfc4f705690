package server

import (
	"log"

	"github.com/rosrad/rtags/internal/config"
	"github.com/rosrad/rtags/internal/job"
	"github.com/rosrad/rtags/internal/unit"
	"github.com/rosrad/rtags/internal/wire"
)

// handleClientMessage registers a newly connected peer as a client of
// this process (meaningful when we are the job server, since clients
// are who JobAnnouncement gets broadcast to) and clears announced: a
// new peer is a new opportunity to offer work.
func (s *Server) handleClientMessage(c *wire.Conn) {
	s.registerClient(c)

	ws := s.beginWork()
	s.announced = false
	ws.End()

	if s.IsJobServer() {
		s.broadcastClients(&wire.ClientConnectedMessage{Peer: connKey(c)})
	}
}

// handleJobAnnouncement answers an incoming "I have work" notice by
// asking the sender for jobs, up to whatever capacity the next work()
// pass computes. Receiving an announcement also clears our own
// announced flag per the documented open-question resolution: new
// peer activity is a fresh opportunity, not just an echo.
func (s *Server) handleJobAnnouncement(c *wire.Conn, m *wire.JobAnnouncementMessage) {
	host := m.Host
	if host == "" {
		host, _, _ = splitHostPort(connKey(c))
	}

	ws := s.beginWork()
	s.announced = false
	s.registry.Insert(host, m.Port)
	ws.End()
}

// handleProxyJobAnnouncement is received only by the job server, from
// a non-server peer advertising its own surplus work. It is
// rebroadcast as a regular JobAnnouncement, substituting the
// originator's observed address for host.
func (s *Server) handleProxyJobAnnouncement(c *wire.Conn, m *wire.ProxyJobAnnouncementMessage) {
	host, _, _ := splitHostPort(connKey(c))
	s.broadcastClients(&wire.JobAnnouncementMessage{Host: host, Port: m.Port})
}

// announceWork is called with announced already set to true: either we
// are the job server and broadcast directly, or we proxy through it.
func (s *Server) announceWork() {
	s.connMu.Lock()
	jobServerConn := s.jobServerConn
	isJobServer := s.isJobServer
	s.connMu.Unlock()

	if isJobServer {
		s.broadcastClients(&wire.JobAnnouncementMessage{Host: "", Port: s.selfPort})
		return
	}
	if jobServerConn != nil {
		s.send(jobServerConn, &wire.ProxyJobAnnouncementMessage{Port: s.selfPort})
	}
}

// handleJobRequest answers a peer's request for up to m.NumJobs units
// of work: walk pending, skip what can't be offered, compress if the
// policy requires it, and send back what's available.
func (s *Server) handleJobRequest(c *wire.Conn, m *wire.JobRequestMessage) {
	var offered []*job.Job

	s.table.EachPending(func(j *job.Job) bool {
		if len(offered) >= m.NumJobs {
			return false
		}
		if j.Unit.Status.Complete() {
			return true
		}
		if j.Unit.Location == unit.LocationFromRemote || !j.Unit.HasPreprocessed() {
			return false
		}
		wantsCompression := s.opts.Compression == config.CompressionRemote || s.opts.Compression == config.CompressionAlways
		if wantsCompression && !j.Unit.Status.Has(unit.StatusPreprocessCompressed) {
			if compressed, err := gzipCompress(j.Unit.Preprocessed); err == nil {
				j.Unit.Preprocessed = compressed
				j.Unit.Status |= unit.StatusPreprocessCompressed
			}
		}
		offered = append(offered, j)
		return true
	})

	finished := len(offered) < m.NumJobs
	wireJobs := make([]wire.WireUnit, len(offered))
	for i, j := range offered {
		wireJobs[i] = wire.WireUnit{JobID: j.ID, Project: j.Project, Unit: *j.Unit}
	}

	if err := s.send(c, &wire.JobResponseMessage{Jobs: wireJobs, Port: s.selfPort, Finished: finished}); err != nil {
		log.Printf("server: send JobResponse: %v", err)
		ws := s.beginWork()
		for _, j := range offered {
			j.Unit.Status &^= unit.StatusRescheduled
			s.table.AddJob(j)
		}
		ws.End()
		return
	}

	ws := s.beginWork()
	now := nowMillis()
	for _, j := range offered {
		s.table.RemovePending(j.ID)
		s.table.TrackProcessing(j)
		j.Unit.Location = unit.LocationRemote
		j.Unit.Status &^= unit.StatusRescheduled
		j.Started = now
	}
	if len(offered) > 0 {
		s.startRescheduleTimer()
	}
	if finished {
		s.announced = false
	}
	ws.End()
}

// handleJobResponse receives work from a peer we requested it from:
// every job is stamped FromRemote and pushed into pending.
func (s *Server) handleJobResponse(c *wire.Conn, m *wire.JobResponseMessage) {
	ws := s.beginWork()
	defer ws.End()

	s.table.ClearPendingJobRequest(connKey(c))

	for i := range m.Jobs {
		wu := m.Jobs[i]
		u := wu.Unit
		u.Location = unit.LocationFromRemote
		j := job.New(wu.Project, &u)
		j.ID = wu.JobID
		s.table.AddJob(j)
	}

	if m.Finished {
		host, _, _ := splitHostPort(connKey(c))
		s.registry.Remove(host)
	}
}

// requestFromPeer pops the next peer in round-robin order and asks it
// for up to slots jobs; it dials once per work() pass and moves on.
func (s *Server) requestFromPeer(slots int) {
	p, ok := s.registry.Rotate()
	if !ok {
		return
	}

	conn, err := s.dialer.Dial(p.Host, p.Port)
	if err != nil {
		log.Printf("server: dial peer %s:%d: %v", p.Host, p.Port, err)
		return
	}

	s.table.SetPendingJobRequest(connKey(conn), slots)
	if err := s.send(conn, &wire.JobRequestMessage{NumJobs: slots}); err != nil {
		log.Printf("server: send JobRequest to %s:%d: %v", p.Host, p.Port, err)
		s.table.ClearPendingJobRequest(connKey(conn))
		return
	}
	go s.handleConn(conn)
}

// Package server implements the coordinator's event loop: the single
// scheduling decision point that fills local worker slots, advertises
// surplus work to peers, and pulls work from them when idle.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/rosrad/rtags/internal/config"
	"github.com/rosrad/rtags/internal/discovery"
	"github.com/rosrad/rtags/internal/job"
	"github.com/rosrad/rtags/internal/metrics"
	"github.com/rosrad/rtags/internal/peer"
	"github.com/rosrad/rtags/internal/preprocess"
	"github.com/rosrad/rtags/internal/project"
	"github.com/rosrad/rtags/internal/runner"
	"github.com/rosrad/rtags/internal/unit"
	"github.com/rosrad/rtags/internal/wire"
)

// Dialer opens an outbound connection to a peer coordinator. The
// production implementation retries with backoff over TCP; tests
// substitute a pre-established loopback connection.
type Dialer interface {
	Dial(host string, port uint16) (*wire.Conn, error)
}

type tcpDialer struct {
	base     time.Duration
	attempts int
}

func (d tcpDialer) Dial(host string, port uint16) (*wire.Conn, error) {
	conn, err := discovery.DialWithBackoff(host, port, d.base, d.attempts)
	if err != nil {
		return nil, err
	}
	return &wire.Conn{Conn: conn}, nil
}

// Server is one coordinator process: scheduling state, connected
// peers, and the subsystems it drives (preprocessing, local runs,
// project state).
type Server struct {
	opts     config.Options
	table    *job.Table
	registry *peer.Registry
	pool     *preprocess.Pool
	runner   *runner.Runner
	projects *project.Manager
	metrics  *metrics.Collectors
	dialer   Dialer

	// schedMu serializes every scheduling decision and the handlers
	// that feed it, standing in for the single event-loop thread the
	// algorithm was designed around.
	schedMu sync.Mutex

	announced   bool
	isJobServer bool
	selfHost    string
	selfPort    uint16

	connMu        sync.Mutex
	jobServerConn *wire.Conn
	clients       map[string]*wire.Conn

	rescheduleTimer *time.Timer

	listener net.Listener
	quit     chan struct{}
}

// New builds a Server from its wired dependencies. Callers get those
// dependencies from project.Open, preprocess.New, etc. and pass them
// in rather than having Server construct them, so tests can substitute
// fakes freely.
func New(opts config.Options, table *job.Table, registry *peer.Registry, pool *preprocess.Pool, rn *runner.Runner, projects *project.Manager, mx *metrics.Collectors) *Server {
	return &Server{
		opts:     opts,
		table:    table,
		registry: registry,
		pool:     pool,
		runner:   rn,
		projects: projects,
		metrics:  mx,
		dialer:   tcpDialer{base: opts.ConnectBackoffBase, attempts: 6},
		clients:  make(map[string]*wire.Conn),
		quit:     make(chan struct{}),
	}
}

// SetDialer overrides how the server reaches peers; used by tests.
func (s *Server) SetDialer(d Dialer) { s.dialer = d }

// Serve accepts connections on ln until ctx is cancelled or the
// listener errors. It also starts the preprocess-result consumer.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.listener = ln
	s.pool.Start()
	go s.consumePreprocessResults()

	go func() {
		<-ctx.Done()
		close(s.quit)
		ln.Close()
		s.abortLocalJobs()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return nil
			default:
				return fmt.Errorf("server: accept: %w", err)
			}
		}
		go s.handleConn(&wire.Conn{Conn: conn})
	}
}

// SubmitCompile admits a new compile command: it is queued for
// preprocessing, and a work pass is triggered so backlog-draining
// accounts for it immediately.
func (s *Server) SubmitCompile(project string, src unit.Source) {
	ws := s.beginWork()
	defer ws.End()
	s.table.QueuePreprocess(job.PreprocessRequest{Project: project, Source: src})
}

// consumePreprocessResults drains the preprocess pool and admits each
// finished Unit as a pending Job.
func (s *Server) consumePreprocessResults() {
	for result := range s.pool.Results() {
		if result.Err != nil {
			log.Printf("server: preprocess failed: %v", result.Err)
			continue
		}
		ws := s.beginWork()
		j := job.New(result.Project, result.Unit)
		s.table.AddJob(j)
		ws.End()
	}
}

func (s *Server) handleConn(c *wire.Conn) {
	defer c.Close()
	for {
		payload, err := c.Receive()
		if err != nil {
			s.onConnLost(c)
			return
		}
		msg, err := wire.Decode(payload)
		if err != nil {
			log.Printf("server: decode: %v, closing connection", err)
			s.send(c, &wire.ExitMessage{ExitCode: 1})
			_ = c.Close()
			continue
		}
		s.dispatch(c, msg)
	}
}

func (s *Server) dispatch(c *wire.Conn, msg wire.Message) {
	switch m := msg.(type) {
	case *wire.ClientMessage:
		s.handleClientMessage(c)
	case *wire.ClientConnectedMessage:
		// Informational only: broadcast by the job-server to other
		// peers when a new client joins. Nothing to reconcile locally.
	case *wire.JobAnnouncementMessage:
		s.handleJobAnnouncement(c, m)
	case *wire.ProxyJobAnnouncementMessage:
		s.handleProxyJobAnnouncement(c, m)
	case *wire.JobRequestMessage:
		s.handleJobRequest(c, m)
	case *wire.JobResponseMessage:
		s.handleJobResponse(c, m)
	case *wire.IndexerMessage:
		s.handleIndexerMessage(m)
	case *wire.VisitFileMessage:
		s.handleVisitFileMessage(c, m)
	case *wire.ExitMessage:
		s.handleExitMessage(c, m)
	case *wire.SubmitMessage:
		s.SubmitCompile(m.Project, m.Source)
	default:
		log.Printf("server: unexpected message kind %T, closing connection", msg)
		s.send(c, &wire.ExitMessage{ExitCode: 1})
		_ = c.Close()
	}
}

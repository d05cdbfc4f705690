// Command rdm is the coordinator daemon: it accepts compile submissions,
// dispatches them to local workers or peers, and answers debug queries
// over HTTP.
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/codegangsta/cli"
	"github.com/go-martini/martini"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rosrad/rtags/internal/config"
	"github.com/rosrad/rtags/internal/discovery"
	"github.com/rosrad/rtags/internal/httpapi"
	"github.com/rosrad/rtags/internal/job"
	"github.com/rosrad/rtags/internal/metrics"
	"github.com/rosrad/rtags/internal/peer"
	"github.com/rosrad/rtags/internal/preprocess"
	"github.com/rosrad/rtags/internal/project"
	"github.com/rosrad/rtags/internal/runner"
	"github.com/rosrad/rtags/internal/server"
	"github.com/rosrad/rtags/internal/wire"
)

// version is set at build time via -ldflags; "dev" otherwise.
var version = "dev"

func main() {
	app := cli.NewApp()
	app.Name = "rdm"
	app.Usage = "distributed compile-job coordinator"
	app.Version = version
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "config",
			Usage:  "path to a YAML config file; flags below override it",
			EnvVar: "RDM_CONFIG",
		},
		cli.StringFlag{
			Name:  "tcp-addr",
			Value: "127.0.0.1:0",
			Usage: "address this node's coordinator socket binds to",
		},
		cli.StringFlag{
			Name:  "http-addr",
			Value: "127.0.0.1:7878",
			Usage: "address the debug/status HTTP API binds to",
		},
		cli.IntFlag{
			Name:  "j",
			Value: 4,
			Usage: "number of local compile slots",
		},
		cli.StringFlag{
			Name:  "data-dir",
			Value: "/tmp/rdm-data",
			Usage: "directory for worker IPC sockets",
		},
		cli.StringFlag{
			Name:  "worker",
			Value: "rdm-worker",
			Usage: "path to the indexer worker binary",
		},
		cli.StringFlag{
			Name:  "role",
			Value: "auto",
			Usage: "job-server role: auto, job-server, no-job-server",
		},
		cli.StringFlag{
			Name:  "driver",
			Value: "memory",
			Usage: "project storage driver: memory, leveldb, redis",
		},
		cli.StringFlag{
			Name:  "redis-addr",
			Value: "127.0.0.1:6379",
			Usage: "redis address, required for driver redis",
		},
		cli.StringFlag{
			Name:  "leveldb-path",
			Value: "/tmp/rdm-data/projects.db",
			Usage: "leveldb path, required for driver leveldb",
		},
		cli.StringFlag{
			Name:  "multicast-addr",
			Value: "237.0.0.1",
			Usage: "multicast group address used for peer discovery",
		},
		cli.IntFlag{
			Name:  "multicast-port",
			Value: 12394,
			Usage: "multicast group port used for peer discovery",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	opts, err := loadOptions(c)
	if err != nil {
		return err
	}

	table := job.NewTable()
	registry := peer.New()
	pool := preprocess.New(opts.JobCount, opts.Compression)
	rn := &runner.Runner{WorkerBinary: opts.WorkerBinary, SocketDir: opts.DataDir}

	store, err := project.Open(opts)
	if err != nil {
		return fmt.Errorf("rdm: open project store: %w", err)
	}
	projects := project.NewManager(store, opts.ExcludeFilters)
	defer projects.Close()

	mx := metrics.New()
	if err := mx.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("rdm: register metrics: %w", err)
	}

	srv := server.New(opts, table, registry, pool, rn, projects, mx)

	ln, err := net.Listen("tcp", opts.TCPAddr)
	if err != nil {
		return fmt.Errorf("rdm: listen %s: %w", opts.TCPAddr, err)
	}
	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		return fmt.Errorf("rdm: parse bound address: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("rdm: parse bound port: %w", err)
	}
	srv.SetSelf(host, uint16(port))

	bootstrapDiscovery(srv, opts, host, uint16(port))

	api := httpAPI(srv)
	go api.RunOnAddr(c.String("http-addr"))

	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Printf("rdm: shutting down")
		cancel()
	}()

	log.Printf("rdm: listening on %s (http %s)", ln.Addr(), c.String("http-addr"))
	return srv.Serve(ctx, ln)
}

// loadOptions builds config.Options from a YAML file when --config is
// given, then layers the individual flags (and their field-equivalent
// extras, not present in config.Options' YAML shape) on top.
func loadOptions(c *cli.Context) (config.Options, error) {
	var opts config.Options
	var err error
	if path := c.String("config"); path != "" {
		opts, err = config.Load(path)
		if err != nil {
			return opts, err
		}
	} else {
		opts = config.Default()
	}

	opts.TCPAddr = c.String("tcp-addr")
	opts.JobCount = c.Int("j")
	opts.DataDir = c.String("data-dir")
	opts.RoleName = c.String("role")
	opts.Driver = config.Driver(c.String("driver"))
	opts.RedisAddr = c.String("redis-addr")
	opts.LevelDBPath = c.String("leveldb-path")
	opts.MulticastAddress = c.String("multicast-addr")
	opts.MulticastPort = uint16(c.Int("multicast-port"))
	opts.WorkerBinary = c.String("worker")

	if err := opts.ParseEnums(); err != nil {
		return opts, err
	}
	return opts, nil
}

// bootstrapDiscovery decides whether this node acts as the job server
// or goes looking for one, per opts.Role. Multicast is best-effort: a
// Join failure (e.g. multicast disabled in this environment) skips
// discovery; the node then becomes the job server for peers that reach
// it directly, unless its role is no-job-server.
func bootstrapDiscovery(srv *server.Server, opts config.Options, selfHost string, selfPort uint16) {
	if opts.JobServerHost != "" {
		dialAndAttach(srv, opts.JobServerHost, opts.JobServerPort)
		return
	}

	beacon, err := discovery.Join(opts.MulticastAddress, opts.MulticastPort, opts.MulticastTTL)
	if err != nil {
		log.Printf("rdm: multicast disabled, running standalone: %v", err)
		if opts.Role != config.RoleNoJobServer {
			srv.BecomeJobServer()
		}
		return
	}

	if opts.Role == config.RoleJobServer {
		srv.BecomeJobServer()
		beacon.Serve(func(string) (string, uint16, bool) {
			return "", selfPort, true
		})
		return
	}

	found := beacon.Serve(nil)
	if err := beacon.Ask(); err != nil {
		log.Printf("rdm: discovery ask: %v", err)
	}

	select {
	case f := <-found:
		beacon.Stop()
		dialAndAttach(srv, f.Host, f.Port)
	case <-time.After(2 * time.Second):
		beacon.Stop()
		if opts.Role == config.RoleNoJobServer {
			log.Printf("rdm: no job server found, staying idle (no-job-server role)")
			return
		}
		log.Printf("rdm: no job server found, becoming one")
		srv.BecomeJobServer()
	}
}

func dialAndAttach(srv *server.Server, host string, port uint16) {
	conn, err := discovery.DialWithBackoff(host, port, 2*time.Second, 6)
	if err != nil {
		log.Printf("rdm: dial job server %s:%d: %v", host, port, err)
		return
	}
	if err := srv.AttachJobServer(&wire.Conn{Conn: conn}); err != nil {
		log.Printf("rdm: attach job server %s:%d: %v", host, port, err)
	}
}

// httpAPI wires the debug HTTP surface to srv, which satisfies
// httpapi.JobsView, httpapi.ProjectsView, and httpapi.SubmitView.
func httpAPI(srv *server.Server) *martini.ClassicMartini {
	return httpapi.New(srv, srv, srv)
}

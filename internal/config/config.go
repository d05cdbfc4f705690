// Package config holds coordinator configuration, loaded from a YAML
// file (gopkg.in/yaml.v3) with flag-equivalent defaults for every
// field.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerRole resolves a tri-state: JobServer forces the process to
// act as a job server, NoJobServer forces it never to, and Auto means
// "do we currently have a server connection", decided at runtime.
type ServerRole int

const (
	RoleAuto ServerRole = iota
	RoleJobServer
	RoleNoJobServer
)

// CompressionPolicy controls when a preprocessed unit's text gets
// gzip-compressed: never, only when handed to a remote peer, or as
// soon as preprocessing finishes.
type CompressionPolicy int

const (
	CompressionNone CompressionPolicy = iota
	// CompressionRemote compresses only when handing a unit to a peer.
	CompressionRemote
	// CompressionAlways compresses as soon as preprocessing finishes.
	CompressionAlways
)

// Driver selects the project/file-id storage backend.
type Driver string

const (
	DriverMemory  Driver = "memory"
	DriverLevelDB Driver = "leveldb"
	DriverRedis   Driver = "redis"
)

// Options carries every tunable the coordinator's components consume.
type Options struct {
	SocketFile string `yaml:"socket_file"`
	DataDir    string `yaml:"data_dir"`

	TCPAddr string `yaml:"tcp_addr"`

	JobCount int `yaml:"job_count"`

	// WorkerBinary is the path to the indexer worker executable runner
	// launches for each local job.
	WorkerBinary string `yaml:"worker_binary"`

	MulticastAddress string `yaml:"multicast_address"`
	MulticastPort    uint16 `yaml:"multicast_port"`
	MulticastTTL     int    `yaml:"multicast_ttl"`

	RescheduleTimeout    time.Duration `yaml:"reschedule_timeout"`
	MaxPendingPreprocess int           `yaml:"max_pending_preprocess"`
	CrashRetryDelay      time.Duration `yaml:"crash_retry_delay"`
	ConnectBackoffBase   time.Duration `yaml:"connect_backoff_base"`

	Role        ServerRole        `yaml:"-"`
	Compression CompressionPolicy `yaml:"-"`

	// RoleName/CompressionName are the YAML-facing string forms of
	// Role/Compression; ParseEnums fills in the typed fields.
	RoleName        string `yaml:"role"`
	CompressionName string `yaml:"compression"`

	NoLocalCompiles bool `yaml:"no_local_compiles"`

	Driver      Driver `yaml:"driver"`
	RedisAddr   string `yaml:"redis_addr"`
	LevelDBPath string `yaml:"leveldb_path"`

	ExcludeFilters []string `yaml:"exclude_filters"`

	// JobServerHost/Port bypasses multicast discovery entirely when
	// set.
	JobServerHost string `yaml:"job_server_host"`
	JobServerPort uint16 `yaml:"job_server_port"`
}

// Default returns the options a solo (no-peers) coordinator would use.
func Default() Options {
	return Options{
		SocketFile:           "/tmp/rdm.sock",
		DataDir:              "/tmp/rdm-data",
		JobCount:             4,
		WorkerBinary:         "rdm-worker",
		MulticastAddress:     "237.0.0.1",
		MulticastPort:        12394,
		MulticastTTL:         1,
		RescheduleTimeout:    15 * time.Second,
		MaxPendingPreprocess: 32,
		CrashRetryDelay:      500 * time.Millisecond,
		ConnectBackoffBase:   5 * time.Second,
		Driver:               DriverMemory,
	}
}

// Load reads and parses a YAML config file, applying Default() for any
// field the file leaves zero.
func Load(path string) (Options, error) {
	opts := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := opts.ParseEnums(); err != nil {
		return opts, err
	}
	return opts, nil
}

// ParseEnums resolves the YAML string fields (RoleName,
// CompressionName) into their typed counterparts. Exported so callers
// building Options programmatically (tests, cmd/rdm flags) can reuse
// it without going through a YAML document.
func (o *Options) ParseEnums() error {
	switch o.RoleName {
	case "", "auto":
		o.Role = RoleAuto
	case "job-server":
		o.Role = RoleJobServer
	case "no-job-server":
		o.Role = RoleNoJobServer
	default:
		return fmt.Errorf("config: unknown role %q", o.RoleName)
	}

	switch o.CompressionName {
	case "":
		o.Compression = CompressionNone
	case "remote":
		o.Compression = CompressionRemote
	case "always":
		o.Compression = CompressionAlways
	default:
		return fmt.Errorf("config: unknown compression policy %q", o.CompressionName)
	}

	if o.Driver == "" {
		o.Driver = DriverMemory
	}
	return nil
}

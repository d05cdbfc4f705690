package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rdm.yaml")
	contents := "job_count: 8\nrole: job-server\ncompression: always\ndriver: leveldb\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	opts, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if opts.JobCount != 8 {
		t.Fatalf("expected job_count 8, got %d", opts.JobCount)
	}
	if opts.Role != RoleJobServer {
		t.Fatalf("expected RoleJobServer, got %v", opts.Role)
	}
	if opts.Compression != CompressionAlways {
		t.Fatalf("expected CompressionAlways, got %v", opts.Compression)
	}
	if opts.Driver != DriverLevelDB {
		t.Fatalf("expected DriverLevelDB, got %v", opts.Driver)
	}
	// Fields the file doesn't mention should retain their defaults.
	if opts.MulticastPort != Default().MulticastPort {
		t.Fatalf("expected default multicast port to survive, got %d", opts.MulticastPort)
	}
}

func TestParseEnumsRejectsUnknown(t *testing.T) {
	opts := Options{RoleName: "bogus"}
	if err := opts.ParseEnums(); err == nil {
		t.Fatalf("expected an error for an unknown role")
	}
}

package preprocess

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rosrad/rtags/internal/config"
	"github.com/rosrad/rtags/internal/unit"
)

// fakeCompiler writes a tiny shell script that stands in for "cc -E":
// it ignores its arguments and prints a fixed line, so tests don't
// depend on a real C++ toolchain being installed.
func fakeCompiler(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-cc")
	script := "#!/bin/sh\necho preprocessed\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestPoolProducesUnit(t *testing.T) {
	compiler := fakeCompiler(t)
	src := unit.Source{Path: "/tmp/a.cpp", Compiler: compiler}

	p := New(2, config.CompressionNone)
	p.Start()
	defer p.Close()

	p.Submit(Job{Project: "/proj", Source: src})
	result := <-p.Results()

	require.NoError(t, result.Err)
	require.NotNil(t, result.Unit)
	require.True(t, result.Unit.HasPreprocessed())
	require.Equal(t, "/proj", result.Project)
}

func TestPoolCompressesWhenPolicyAlways(t *testing.T) {
	compiler := fakeCompiler(t)
	src := unit.Source{Path: "/tmp/a.cpp", Compiler: compiler}

	p := New(1, config.CompressionAlways)
	p.Start()
	defer p.Close()

	p.Submit(Job{Project: "/proj", Source: src})
	result := <-p.Results()

	require.NoError(t, result.Err)
	require.True(t, result.Unit.Status.Has(unit.StatusPreprocessCompressed))
}

func TestPoolReportsPreprocessFailure(t *testing.T) {
	src := unit.Source{Path: "/tmp/a.cpp", Compiler: "/no/such/compiler"}

	p := New(1, config.CompressionNone)
	p.Start()
	defer p.Close()

	p.Submit(Job{Project: "/proj", Source: src})
	result := <-p.Results()

	require.Error(t, result.Err)
	require.Nil(t, result.Unit)
}

// Package preprocess implements a bounded worker pool that turns a
// raw compile command into a preprocessed translation unit.
package preprocess

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/rosrad/rtags/internal/config"
	"github.com/rosrad/rtags/internal/unit"
)

// Job is one compile command awaiting preprocessing.
type Job struct {
	Project string
	Source  unit.Source
}

// Result is what a finished Job produces: either a preprocessed Unit,
// or an error that the caller logs and drops without retrying.
type Result struct {
	Project string
	Unit    *unit.Unit
	Err     error
}

// Pool runs up to numWorkers preprocess jobs concurrently.
type Pool struct {
	numWorkers int
	compress   bool
	jobs       chan Job
	results    chan Result
	busy       atomicInt
	backlog    atomicInt
	once       sync.Once
	wg         sync.WaitGroup
}

// New returns a Pool with numWorkers workers (at least one). cmd/rdm
// sizes it from the same job count that sets the local-compile slots.
func New(numWorkers int, policy config.CompressionPolicy) *Pool {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	return &Pool{
		numWorkers: numWorkers,
		compress:   policy == config.CompressionAlways,
		jobs:       make(chan Job, numWorkers*4),
		results:    make(chan Result, numWorkers*4),
	}
}

// Start launches the worker goroutines. Calling Start more than once
// is a no-op.
func (p *Pool) Start() {
	p.once.Do(func() {
		for i := 0; i < p.numWorkers; i++ {
			p.wg.Add(1)
			go p.worker()
		}
	})
}

// Submit enqueues a job. It never blocks the caller past the channel
// buffer; the scheduler is responsible for only submitting as many as
// its backpressure policy allows.
func (p *Pool) Submit(job Job) {
	p.backlog.Add(1)
	p.jobs <- job
}

// Results returns the channel finished preprocess jobs are posted to.
// Workers never touch shared scheduler state directly — they only
// ever produce a Result here, which the event loop consumes on its
// own goroutine.
func (p *Pool) Results() <-chan Result { return p.results }

// BusyCount and BacklogSize feed the scheduler's backpressure and
// slot-accounting arithmetic.
func (p *Pool) BusyCount() int   { return p.busy.Load() }
func (p *Pool) BacklogSize() int { return p.backlog.Load() }

// Close stops accepting new jobs and waits for in-flight ones to
// finish.
func (p *Pool) Close() {
	close(p.jobs)
	p.wg.Wait()
	close(p.results)
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		p.backlog.Add(-1)
		p.busy.Add(1)
		p.results <- p.run(job)
		p.busy.Add(-1)
	}
}

func (p *Pool) run(job Job) Result {
	start := time.Now()
	out, err := preprocessCommand(job.Source)
	if err != nil {
		return Result{Project: job.Project, Err: fmt.Errorf("preprocess %s: %w", job.Source.Path, err)}
	}

	u := unit.NewUnit(job.Source)
	u.Time = start
	u.PreprocessDuration = time.Since(start)

	if p.compress {
		compressed, cerr := gzipCompress(out)
		if cerr == nil {
			u.Preprocessed = compressed
			u.Status |= unit.StatusPreprocessCompressed
		} else {
			u.Preprocessed = out
		}
	} else {
		u.Preprocessed = out
	}
	return Result{Project: job.Project, Unit: u}
}

// preprocessCommand runs the source's compiler in preprocess-only
// mode (-E), producing the preprocessed text a worker will index.
func preprocessCommand(src unit.Source) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	args := append(append([]string{}, src.Args...), "-E", src.Path)
	cmd := exec.CommandContext(ctx, src.Compiler, args...)
	if src.WorkingDir != "" {
		cmd.Dir = src.WorkingDir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %s", err, stderr.String())
	}
	return stdout.Bytes(), nil
}

func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Package docker runs snippet code inside throwaway Docker containers.
//
// Each runtime image gets its own Pool of pre-warmed containers. Pools are
// created the first time a language is run, so an instance that never runs
// Ruby never pulls the Ruby image.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/sakif/codevault/internal/executor"
	"github.com/sakif/codevault/internal/language"
)

// Executor implements the executor.Executor interface using Docker.
type Executor struct {
	cli    *client.Client
	config Config
	logger *slog.Logger

	mu    sync.Mutex
	pools map[string]*Pool // keyed by image
}

// New creates a Docker Executor. It does not contact the daemon; images are
// pulled lazily by the first Execute for each language.
func New(cfg Config, logger *slog.Logger) (*Executor, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	return &Executor{
		cli:    cli,
		config: cfg,
		logger: logger,
		pools:  make(map[string]*Pool),
	}, nil
}

// Close shuts down every pool and the docker client.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for img, p := range e.pools {
		p.Stop()
		delete(e.pools, img)
	}
	return e.cli.Close()
}

// runtimeFor resolves the request language, accepting registry aliases.
func (e *Executor) runtimeFor(lang string) (language.Runtime, error) {
	name := language.Default().Normalize(lang)
	rt, ok := e.config.Runtimes[name]
	if !ok || rt.Image == "" || len(rt.Command) == 0 {
		return language.Runtime{}, fmt.Errorf("%w: %q", executor.ErrUnsupportedLanguage, lang)
	}
	return rt, nil
}

// poolFor returns the running pool for img, pulling the image and starting
// the pool on first use.
func (e *Executor) poolFor(ctx context.Context, img string) (*Pool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if p, ok := e.pools[img]; ok {
		return p, nil
	}

	pullCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	e.logger.Info("ensuring docker image is available", slog.String("image", img))
	reader, err := e.cli.ImagePull(pullCtx, img, image.PullOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to pull image %s: %w", img, err)
	}
	// Read everything to block until the pull is complete
	_, _ = io.Copy(io.Discard, reader)
	reader.Close()
	e.logger.Info("docker image is ready", slog.String("image", img))

	p := NewPool(e.cli, img, e.config, e.logger)
	p.Start()
	e.pools[img] = p
	return p, nil
}

// Execute runs req.Code with the interpreter configured for req.Language.
func (e *Executor) Execute(ctx context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	rt, err := e.runtimeFor(req.Language)
	if err != nil {
		return nil, err
	}

	start := time.Now()

	pool, err := e.poolFor(ctx, rt.Image)
	if err != nil {
		return nil, err
	}

	// Get a pre-warmed container ID from the pool
	containerID, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container from pool: %w", err)
	}

	// Containers are single-use; whatever the code did to it goes away here.
	defer pool.Discard(containerID)

	executeCtx, executeCancel := context.WithTimeout(ctx, e.config.Timeout)
	defer executeCancel()

	execResp, err := e.cli.ContainerExecCreate(executeCtx, containerID, container.ExecOptions{
		AttachStdout: true,
		AttachStderr: true,
		Cmd:          command(rt, req.Code),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create exec: %w", err)
	}

	attachResp, err := e.cli.ContainerExecAttach(executeCtx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to attach to exec: %w", err)
	}
	defer attachResp.Close()

	stdout := newCappedBuffer(e.config.MaxOutputBytes)
	stderr := newCappedBuffer(e.config.MaxOutputBytes)

	done := make(chan struct{})
	go func() {
		// Use stdcopy to demultiplex stdout from stderr
		_, _ = stdcopy.StdCopy(stdout, stderr, attachResp.Reader)
		close(done)
	}()

	var exitCode int

	select {
	case <-done:
		inspectResp, err := e.cli.ContainerExecInspect(ctx, execResp.ID)
		if err == nil {
			exitCode = inspectResp.ExitCode
		}
	case <-executeCtx.Done():
		exitCode = executor.ExitTimeout
		// The reader goroutine may still be writing; closing the hijacked
		// connection unblocks it before we touch the buffers.
		attachResp.Close()
		<-done
		stderr.WriteString("\nExecution timed out.\n")
	}

	return &executor.ExecutionResult{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		ExitCode:  exitCode,
		Duration:  time.Since(start),
		Truncated: stdout.truncated || stderr.truncated,
	}, nil
}

// command builds the exec argv: the runtime's interpreter invocation with
// the code as its final argument.
func command(rt language.Runtime, code string) []string {
	cmd := make([]string, 0, len(rt.Command)+1)
	cmd = append(cmd, rt.Command...)
	return append(cmd, code)
}

// cappedBuffer keeps the first limit bytes written and silently drops the
// rest, so a print loop cannot exhaust server memory.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func newCappedBuffer(limit int) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if b.limit > 0 {
		room := b.limit - b.buf.Len()
		if room <= 0 {
			b.truncated = b.truncated || n > 0
			return n, nil
		}
		if len(p) > room {
			p = p[:room]
			b.truncated = true
		}
	}
	b.buf.Write(p)
	return n, nil
}

func (b *cappedBuffer) WriteString(s string) {
	b.buf.WriteString(s)
}

func (b *cappedBuffer) String() string {
	return b.buf.String()
}

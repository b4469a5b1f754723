package docker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// containerAPI is the slice of the Docker API a Pool needs. Tests swap in a
// fake; production uses dockerAPI.
type containerAPI interface {
	create(ctx context.Context, cfg *container.Config, host *container.HostConfig) (string, error)
	start(ctx context.Context, id string) error
	remove(ctx context.Context, id string) error
}

type dockerAPI struct{ cli *client.Client }

func (d dockerAPI) create(ctx context.Context, cfg *container.Config, host *container.HostConfig) (string, error) {
	resp, err := d.cli.ContainerCreate(ctx, cfg, host, nil, nil, "")
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (d dockerAPI) start(ctx context.Context, id string) error {
	return d.cli.ContainerStart(ctx, id, container.StartOptions{})
}

func (d dockerAPI) remove(ctx context.Context, id string) error {
	return d.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
}

// retryDelay is how long a filler waits after Docker refused to create a
// container before trying again.
const retryDelay = time.Second

// Pool keeps PoolSize idle containers of one image running `sleep
// infinity`, so a snippet run only pays for `docker exec`.
//
// HOW THE POOL REFILLS:
// Every slot is represented by one token on the refill channel. At start
// the channel holds PoolSize tokens. The filler goroutine turns a token
// into a running container and parks its id on ready. Acquire takes an id
// and hands a token back, so the filler replaces exactly what was used and
// never polls.
//
// Containers are single-use: the caller must Discard the id after the run.
type Pool struct {
	api    containerAPI
	image  string
	config Config
	logger *slog.Logger

	ready  chan string
	refill chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewPool builds a pool for img over the given client. PoolSize below one
// is treated as one.
func NewPool(cli *client.Client, img string, cfg Config, logger *slog.Logger) *Pool {
	return newPool(dockerAPI{cli: cli}, img, cfg, logger)
}

func newPool(api containerAPI, img string, cfg Config, logger *slog.Logger) *Pool {
	if cfg.PoolSize < 1 {
		cfg.PoolSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		api:    api,
		image:  img,
		config: cfg,
		logger: logger.With(slog.String("image", img)),
		ready:  make(chan string, cfg.PoolSize),
		refill: make(chan struct{}, cfg.PoolSize),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < cfg.PoolSize; i++ {
		p.refill <- struct{}{}
	}
	return p
}

// Start launches the filler. Calling it more than once is harmless.
func (p *Pool) Start() {
	p.once.Do(func() {
		p.logger.Info("starting container pool", slog.Int("pool_size", p.config.PoolSize))
		p.wg.Add(1)
		go p.fill()
	})
}

// Stop ends the filler and removes every idle container.
func (p *Pool) Stop() {
	p.logger.Info("stopping container pool")
	p.cancel()
	p.wg.Wait()

	for {
		select {
		case id := <-p.ready:
			p.Discard(id)
		default:
			return
		}
	}
}

// Acquire blocks until a warm container is available or ctx ends.
func (p *Pool) Acquire(ctx context.Context) (string, error) {
	select {
	case id := <-p.ready:
		select {
		case p.refill <- struct{}{}:
		default:
		}
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-p.ctx.Done():
		return "", fmt.Errorf("container pool for %s is stopped", p.image)
	}
}

// Discard force-removes a container. Errors are logged, not returned: the
// run result is already known by then.
func (p *Pool) Discard(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.api.remove(ctx, id); err != nil {
		p.logger.Error("failed to remove container", slog.String("id", id), slog.String("error", err.Error()))
	}
}

func (p *Pool) fill() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.refill:
		}

		id, err := p.warm()
		if err != nil {
			p.logger.Error("failed to warm container", slog.String("error", err.Error()))
			p.refill <- struct{}{} // our own token; the slot is still empty
			select {
			case <-p.ctx.Done():
				return
			case <-time.After(retryDelay):
			}
			continue
		}

		select {
		case p.ready <- id:
		case <-p.ctx.Done():
			p.Discard(id)
			return
		}
	}
}

// warm creates and starts one idle container.
func (p *Pool) warm() (string, error) {
	ctx, cancel := context.WithTimeout(p.ctx, 10*time.Second)
	defer cancel()

	id, err := p.api.create(ctx, &container.Config{
		Image: p.image,
		Cmd:   []string{"sleep", "infinity"},
		User:  "nobody",
	}, sandboxHostConfig(p.config))
	if err != nil {
		return "", fmt.Errorf("creating container: %w", err)
	}
	if err := p.api.start(ctx, id); err != nil {
		p.Discard(id)
		return "", fmt.Errorf("starting container: %w", err)
	}
	return id, nil
}

// sandboxHostConfig locks a snippet container down: no network, a
// read-only root with a small noexec /tmp, no capabilities, and the memory
// and CPU limits from cfg.
func sandboxHostConfig(cfg Config) *container.HostConfig {
	return &container.HostConfig{
		NetworkMode: "none",
		Resources: container.Resources{
			Memory:   cfg.MemoryLimit,
			NanoCPUs: int64(cfg.CPULimit * 1e9),
		},
		ReadonlyRootfs: true,
		Tmpfs:          map[string]string{"/tmp": "rw,noexec,nosuid,size=16m"},
		CapDrop:        []string{"ALL"},
		SecurityOpt:    []string{"no-new-privileges"},
	}
}

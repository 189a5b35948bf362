package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/client"
)

// DockerPinger pings the daemon configured by the DOCKER_* environment.
type DockerPinger struct {
	// Timeout bounds a single ping; zero means 5s.
	Timeout time.Duration
}

func (p DockerPinger) Ping(ctx context.Context) error {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return fmt.Errorf("create docker client: %w", err)
	}
	defer cli.Close()

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker daemon is not running: %w", err)
	}
	return nil
}

package integration

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Megagig/pharmacy-monorepo-sub016/internal/platform/db"
)

const (
	postgresImage    = "postgres:16-alpine"
	postgresReadyFor = 30 * time.Second
	containerPrefix  = "caseflow-it-"
)

// postgresContainer is a throwaway Postgres started through the Docker CLI.
// Docker picks the host port; it is read back with "docker port".
type postgresContainer struct {
	id      string
	connStr string
}

func runPostgresContainer(ctx context.Context) (*postgresContainer, error) {
	name := fmt.Sprintf("%s%d", containerPrefix, time.Now().UnixNano())
	out, err := exec.CommandContext(ctx, "docker", "run", "-d", "--rm",
		"--name", name,
		"-p", "127.0.0.1::5432",
		"-e", "POSTGRES_USER=caseflow",
		"-e", "POSTGRES_PASSWORD=caseflow",
		"-e", "POSTGRES_DB=caseflow",
		postgresImage,
	).CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("docker run %s: %w: %s", postgresImage, err, strings.TrimSpace(string(out)))
	}
	c := &postgresContainer{id: strings.TrimSpace(string(out))}

	addr, err := c.hostAddr(ctx)
	if err != nil {
		c.stop()
		return nil, err
	}
	c.connStr = fmt.Sprintf("postgres://caseflow:caseflow@%s/caseflow?sslmode=disable", addr)
	return c, nil
}

// hostAddr returns the host:port docker mapped to the container's 5432.
func (c *postgresContainer) hostAddr(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "docker", "port", c.id, "5432/tcp").Output()
	if err != nil {
		return "", fmt.Errorf("docker port: %w", err)
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	host, port, err := net.SplitHostPort(strings.TrimSpace(line))
	if err != nil {
		return "", fmt.Errorf("parse docker port %q: %w", line, err)
	}
	return net.JoinHostPort(host, port), nil
}

// connect retries db.NewPool until the server accepts connections.
func (c *postgresContainer) connect(ctx context.Context) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, postgresReadyFor)
	defer cancel()

	tick := time.NewTicker(500 * time.Millisecond)
	defer tick.Stop()
	for {
		pool, err := db.NewPool(ctx, c.connStr, 5, 1)
		if err == nil {
			return pool, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("postgres not ready after %v: %w", postgresReadyFor, err)
		case <-tick.C:
		}
	}
}

func (c *postgresContainer) stop() {
	_ = exec.Command("docker", "rm", "-f", c.id).Run()
}

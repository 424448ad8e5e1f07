// Package testenv starts the external services integration tests run
// against. An address in the environment wins over starting a container.
package testenv

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Tables lists every table in the schema, children first.
const Tables = `reviews, favorites, order_lines, orders, cart_items, products, categories, users`

// Postgres returns the DSN of a database to test against. TEST_DATABASE_URL
// is used as is; otherwise a postgres:16-alpine container is started and
// stop terminates it.
func Postgres(ctx context.Context) (dsn string, stop func(), err error) {
	if dsn := os.Getenv("TEST_DATABASE_URL"); dsn != "" {
		return dsn, func() {}, nil
	}

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_DB":       "ecommerce",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", nil, fmt.Errorf("start postgres container: %w", err)
	}
	stop = func() { _ = container.Terminate(context.Background()) }

	host, err := container.Host(ctx)
	if err != nil {
		stop()
		return "", nil, err
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		stop()
		return "", nil, err
	}
	dsn = fmt.Sprintf("postgres://postgres:postgres@%s:%s/ecommerce?sslmode=disable", host, port.Port())
	return dsn, stop, nil
}

// Redis returns the address of a Redis server, from TEST_REDIS_ADDR or a
// redis:7-alpine container.
func Redis(ctx context.Context) (addr string, stop func(), err error) {
	if addr := os.Getenv("TEST_REDIS_ADDR"); addr != "" {
		return addr, func() {}, nil
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return "", nil, fmt.Errorf("start redis container: %w", err)
	}
	stop = func() { _ = container.Terminate(context.Background()) }

	addr, err = container.Endpoint(ctx, "")
	if err != nil {
		stop()
		return "", nil, err
	}
	return addr, stop, nil
}

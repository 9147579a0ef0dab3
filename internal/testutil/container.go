package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bissquit/subscription-garden/internal/pkg/postgres"
)

// PostgresContainer is a disposable database with the schema applied.
type PostgresContainer struct {
	*tcpostgres.PostgresContainer
	ConnectionString string
}

// NewPostgresContainer starts PostgreSQL and applies the migrations found in
// migrationsDir. An empty migrationsDir leaves the database empty.
func NewPostgresContainer(ctx context.Context, migrationsDir string) (*PostgresContainer, error) {
	container, err := tcpostgres.Run(ctx,
		"postgres:17-alpine",
		tcpostgres.WithDatabase("subscriptions"),
		tcpostgres.WithUsername("subscriptions"),
		tcpostgres.WithPassword("subscriptions"),
		testcontainers.WithWaitStrategy(
			// The server restarts once after init scripts, hence two occurrences.
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("get connection string: %w", err)
	}

	if migrationsDir != "" {
		if err := postgres.Migrate("file://"+migrationsDir, connStr, postgres.MigrateUp); err != nil {
			_ = container.Terminate(ctx)
			return nil, err
		}
	}

	return &PostgresContainer{
		PostgresContainer: container,
		ConnectionString:  connStr,
	}, nil
}

// MailpitContainer is a catch-all SMTP server whose inbox is readable over HTTP.
type MailpitContainer struct {
	testcontainers.Container
	SMTPHost string
	SMTPPort int
	APIHost  string
	APIPort  int
}

const (
	mailpitSMTPPort nat.Port = "1025/tcp"
	mailpitAPIPort  nat.Port = "8025/tcp"
)

// NewMailpitContainer starts Mailpit. It accepts SMTP without TLS or auth,
// which matches the sender's behaviour when the server offers no STARTTLS.
func NewMailpitContainer(ctx context.Context) (*MailpitContainer, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "ghcr.io/axllent/mailpit:latest",
			ExposedPorts: []string{string(mailpitSMTPPort), string(mailpitAPIPort)},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort(mailpitSMTPPort),
				wait.ForHTTP("/api/v1/info").WithPort(mailpitAPIPort),
			).WithDeadline(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("start mailpit container: %w", err)
	}

	smtpHost, smtpPort, err := endpoint(ctx, container, mailpitSMTPPort)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}
	apiHost, apiPort, err := endpoint(ctx, container, mailpitAPIPort)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}

	return &MailpitContainer{
		Container: container,
		SMTPHost:  smtpHost,
		SMTPPort:  smtpPort,
		APIHost:   apiHost,
		APIPort:   apiPort,
	}, nil
}

// endpoint resolves the host address and mapped port for a container port.
func endpoint(ctx context.Context, c testcontainers.Container, port nat.Port) (string, int, error) {
	host, err := c.Host(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("get host for %s: %w", port, err)
	}
	mapped, err := c.MappedPort(ctx, port)
	if err != nil {
		return "", 0, fmt.Errorf("get mapped port %s: %w", port, err)
	}
	return host, mapped.Int(), nil
}

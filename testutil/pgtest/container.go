package pgtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// ContainerEnv opts into starting a throwaway Postgres container when DSNEnv is not set.
const ContainerEnv = "ESAGG_TEST_POSTGRES_CONTAINER"

const postgresImage = "postgres:16-alpine"

var (
	containerOnce sync.Once
	containerDSN  string
	containerErr  error
)

// containerDatabase starts one container per test binary and returns its DSN. The container is
// removed by the testcontainers reaper when the process exits.
func containerDatabase(ctx context.Context) (string, error) {
	containerOnce.Do(func() {
		container, err := testcontainers.Run(ctx, postgresImage,
			testcontainers.WithEnv(map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "eventstore",
			}),
			testcontainers.WithExposedPorts("5432/tcp"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
				wait.ForListeningPort("5432/tcp"),
			),
		)
		if err != nil {
			containerErr = fmt.Errorf("start %s: %w", postgresImage, err)
			return
		}

		endpoint, err := container.PortEndpoint(ctx, "5432/tcp", "")
		if err != nil {
			_ = testcontainers.TerminateContainer(container)
			containerErr = fmt.Errorf("resolve postgres endpoint: %w", err)

			return
		}

		containerDSN = "postgres://test:test@" + endpoint + "/eventstore?sslmode=disable"
	})

	return containerDSN, containerErr
}

//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/store"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/store/drivers/postgres"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/store/storetest"
	"github.com/aussiebroadwan/kanbee/pkg/idx"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "kanbee",
				"POSTGRES_PASSWORD": "kanbee",
				"POSTGRES_DB":       "kanbee",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://kanbee:kanbee@%s:%s/kanbee?sslmode=disable", host, port.Port())
}

func TestPostgresStoreContract(t *testing.T) {
	dsn := startPostgres(t)

	storetest.Run(t, func(t *testing.T) store.Store {
		// Each subtest gets its own schema so state never leaks between them.
		schema := "t_" + strings.ToLower(idx.New().String())
		admin, err := postgres.NewStore(context.Background(), dsn)
		require.NoError(t, err)
		_, err = admin.DB().Exec(`CREATE SCHEMA "` + schema + `"`)
		require.NoError(t, err)
		require.NoError(t, admin.Close())

		s, err := postgres.NewStore(context.Background(), dsn+"&search_path="+schema)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		require.NoError(t, s.ApplyMigrations())
		return s
	})
}

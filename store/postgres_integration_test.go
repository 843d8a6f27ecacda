//go:build integration

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"climatedash/api/database"
)

func openPostgresStore(t *testing.T) EventStore {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("climatedash"),
		postgres.WithUsername("climate"),
		postgres.WithPassword("climate"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	client, err := database.NewPostgresDB(dsn)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	require.NoError(t, InitSchema(ctx, client.DB))

	return NewSQLEventStore(client.DB)
}

func TestPostgresEventStore(t *testing.T) {
	runEventStoreContract(t, openPostgresStore)
}

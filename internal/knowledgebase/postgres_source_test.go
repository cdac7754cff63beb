package knowledgebase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/oncology-therapy-mcp-server/internal/database"
	"github.com/oncology-therapy-mcp-server/internal/domain"
)

func TestPostgresSource(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping PostgreSQL container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("kb"),
		postgres.WithUsername("kb"),
		postgres.WithPassword("kb"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate PostgreSQL container: %v", err)
		}
	}()

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	cfg := database.Config{
		Host:     host,
		Port:     port.Int(),
		Database: "kb",
		Username: "kb",
		Password: "kb",
		SSLMode:  "disable",
	}

	runner, err := database.NewMigrationRunner(cfg.MigrationURL(), testLogger())
	require.NoError(t, err)
	require.NoError(t, runner.Up(ctx))
	defer runner.Close()

	db, err := database.NewConnection(ctx, cfg, testLogger())
	require.NoError(t, err)
	defer db.Close()

	source := NewPostgresSource(db.Pool)

	_, err = source.Fetch(ctx, domain.LungCancer)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	seeded, err := Seed(ctx, source, NewEmbeddedSource())
	require.NoError(t, err)
	assert.Len(t, seeded, len(domain.CancerTypes))

	store, err := NewStore(source, 4, WithLogger(testLogger()))
	require.NoError(t, err)

	kb, err := store.Load(ctx, domain.LungCancer)
	require.NoError(t, err)
	assert.False(t, kb.Subtypes["LUAD ALK-rearranged"].HasTierData())
	assert.Equal(t, "Standard Therapy", kb.Tiers[domain.TierStandard].Name)
}

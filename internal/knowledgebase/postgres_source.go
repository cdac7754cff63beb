package knowledgebase

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oncology-therapy-mcp-server/internal/domain"
)

// PostgresSource reads knowledge base documents from PostgreSQL. The
// knowledge_bases table is created by the database migrations.
type PostgresSource struct {
	pool *pgxpool.Pool
}

// NewPostgresSource creates a source over an open pool.
func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

// Name identifies the source in logs.
func (s *PostgresSource) Name() string {
	return "postgres"
}

// Fetch returns the stored document for the cancer type.
func (s *PostgresSource) Fetch(ctx context.Context, cancerType domain.CancerType) ([]byte, error) {
	var document []byte
	err := s.pool.QueryRow(ctx,
		"SELECT document FROM knowledge_bases WHERE cancer_type = $1",
		string(cancerType),
	).Scan(&document)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: no stored knowledge base for %s", domain.ErrNotFound, cancerType)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query knowledge base: %w", err)
	}
	return document, nil
}

// Put validates and upserts the document for a cancer type.
func (s *PostgresSource) Put(ctx context.Context, cancerType domain.CancerType, document []byte) error {
	if _, err := Parse(cancerType, document); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO knowledge_bases (cancer_type, document, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (cancer_type) DO UPDATE SET document = EXCLUDED.document, updated_at = NOW()`,
		string(cancerType), document,
	)
	if err != nil {
		return fmt.Errorf("failed to store knowledge base: %w", err)
	}
	return nil
}

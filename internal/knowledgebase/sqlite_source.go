package knowledgebase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oncology-therapy-mcp-server/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLSource reads knowledge base documents from a knowledge_bases table
// through database/sql. It is used with the embedded SQLite driver.
type SQLSource struct {
	db     *sql.DB
	dbPath string
}

// NewSQLSource wraps an existing connection whose schema is already in place.
func NewSQLSource(db *sql.DB) *SQLSource {
	return &SQLSource{db: db}
}

// OpenSQLiteSource opens (or creates) a SQLite knowledge base file.
func OpenSQLiteSource(dbPath string) (*SQLSource, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLSource{db: db, dbPath: dbPath}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS knowledge_bases (
		cancer_type TEXT PRIMARY KEY,
		document TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Name identifies the source in logs.
func (s *SQLSource) Name() string {
	if s.dbPath == "" {
		return "sql"
	}
	return "sqlite:" + s.dbPath
}

// Fetch returns the stored document for the cancer type.
func (s *SQLSource) Fetch(ctx context.Context, cancerType domain.CancerType) ([]byte, error) {
	var document string
	err := s.db.QueryRowContext(ctx,
		"SELECT document FROM knowledge_bases WHERE cancer_type = ?",
		string(cancerType),
	).Scan(&document)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no stored knowledge base for %s", domain.ErrNotFound, cancerType)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query knowledge base: %w", err)
	}
	return []byte(document), nil
}

// Put stores or replaces the document for a cancer type. The document is
// validated first so a malformed knowledge base never reaches the table.
func (s *SQLSource) Put(ctx context.Context, cancerType domain.CancerType, document []byte) error {
	if _, err := Parse(cancerType, document); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO knowledge_bases (cancer_type, document, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(cancer_type) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at`,
		string(cancerType), string(document), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to store knowledge base: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLSource) Close() error {
	return s.db.Close()
}

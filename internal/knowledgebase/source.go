package knowledgebase

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/oncology-therapy-mcp-server/internal/domain"
)

//go:embed data/*.json
var curatedData embed.FS

// FSSource reads "<cancer_type>.json" documents from a file system.
type FSSource struct {
	fsys  fs.FS
	label string
}

// NewFSSource creates a source over any fs.FS.
func NewFSSource(fsys fs.FS, label string) *FSSource {
	return &FSSource{fsys: fsys, label: label}
}

// NewEmbeddedSource serves the curated knowledge bases compiled into the binary.
func NewEmbeddedSource() *FSSource {
	sub, err := fs.Sub(curatedData, "data")
	if err != nil {
		// data/ is part of the embed pattern, fs.Sub cannot fail here
		panic(err)
	}
	return NewFSSource(sub, "embedded")
}

// NewDirectorySource serves knowledge bases from a directory on disk.
func NewDirectorySource(dir string) (*FSSource, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("knowledge base directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("knowledge base path %s is not a directory", dir)
	}
	return NewFSSource(os.DirFS(dir), "directory:"+dir), nil
}

// Name identifies the source in logs.
func (s *FSSource) Name() string {
	return s.label
}

// Fetch returns the raw document for the cancer type.
func (s *FSSource) Fetch(ctx context.Context, cancerType domain.CancerType) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := fs.ReadFile(s.fsys, documentName(cancerType))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, documentName(cancerType))
		}
		return nil, fmt.Errorf("failed to read %s: %w", documentName(cancerType), err)
	}
	return data, nil
}

func documentName(cancerType domain.CancerType) string {
	return string(cancerType) + ".json"
}

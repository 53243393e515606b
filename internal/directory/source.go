package directory

import (
	"context"
	"fmt"
	"os"
)

// Source fetches the raw directory document.
type Source interface {
	// Fetch returns the full document. It is called once per invocation.
	Fetch(ctx context.Context) ([]byte, error)

	// Name returns a short description used in logs and errors.
	Name() string
}

// FileSource reads the document from the local filesystem.
type FileSource struct {
	Path string
}

// Fetch implements Source.
func (f FileSource) Fetch(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory file: %w", err)
	}
	return data, nil
}

// Name implements Source.
func (f FileSource) Name() string {
	return "file:" + f.Path
}

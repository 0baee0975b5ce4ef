// Package archive stores result tables as opaque blobs on a local directory
// or an S3-compatible bucket.
package archive

import (
	"context"
	"fmt"
	"strings"

	"github.com/newthinker/signalbench/internal/core"
)

// Storage defines the interface for result storage backends
type Storage interface {
	// Write stores data at the given path, replacing any previous content
	Write(ctx context.Context, path string, data []byte) error

	// Read retrieves data from the given path
	Read(ctx context.Context, path string) ([]byte, error)

	// List returns all paths under the prefix
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the data at the given path
	Delete(ctx context.Context, path string) error

	// Exists checks if data exists at the given path
	Exists(ctx context.Context, path string) (bool, error)
}

// Backend types
const (
	TypeLocalFS = "localfs"
	TypeS3      = "s3"
)

// Config selects and configures a backend.
type Config struct {
	Type string
	Path string // localfs root
	S3   S3Config
}

// New builds the configured backend.
func New(cfg Config) (Storage, error) {
	switch strings.ToLower(cfg.Type) {
	case "", TypeLocalFS:
		path := cfg.Path
		if path == "" {
			path = "data"
		}
		return NewLocalFS(path)
	case TypeS3:
		if cfg.S3.Bucket == "" {
			return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("s3 bucket"))
		}
		return NewS3(cfg.S3)
	default:
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown storage type %q", cfg.Type))
	}
}

// ContentType guesses a MIME type from the path extension.
func ContentType(path string) string {
	switch {
	case strings.HasSuffix(path, ".csv"):
		return "text/csv"
	case strings.HasSuffix(path, ".json"):
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

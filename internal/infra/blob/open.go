// Package blob selects a core.Store backend from configuration.
package blob

import (
	"context"
	"fmt"
	"strings"

	"factorycore/internal/infra/blob/core"
	"factorycore/internal/infra/blob/fs"
	"factorycore/internal/infra/blob/memory"
	"factorycore/internal/infra/blob/s3"
)

// Config selects and parameterises a blob backend.
type Config struct {
	Driver core.Driver
	FSRoot string
	S3     s3.Config
}

// Open returns the configured backend. An empty driver means filesystem.
func Open(ctx context.Context, cfg Config) (core.Store, error) {
	driver := core.Driver(strings.ToLower(strings.TrimSpace(string(cfg.Driver))))
	switch driver {
	case "", core.DriverFilesystem:
		return fs.New(cfg.FSRoot)
	case core.DriverMemory:
		return memory.New(), nil
	case core.DriverS3:
		return s3.New(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}

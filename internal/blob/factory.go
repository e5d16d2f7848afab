package blob

import (
	"context"
	"fmt"
)

// Config selects and configures a blob.Store implementation.
type Config struct {
	Driver Driver
	// Root is the directory used by the fs driver (default ./data).
	Root string
	S3   S3Config
}

// Open builds the blob.Store named by cfg.Driver (default fs).
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return NewFilesystem(cfg.Root)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

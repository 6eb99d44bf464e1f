package blob

import (
	"context"
	"fmt"
)

// Config selects and configures a driver.
type Config struct {
	Driver Driver
	FSRoot string
	S3     S3Config
}

// Open constructs the configured Store. An empty driver means filesystem.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Driver {
	case "", DriverFilesystem:
		var fs *Filesystem
		if fs, err = NewFilesystem(cfg.FSRoot); err == nil {
			store = fs
		}
	case DriverS3:
		var s *S3
		if s, err = NewS3(ctx, cfg.S3); err == nil {
			store = s
		}
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

package publisher

import (
	"context"
	"fmt"
	"time"

	"capture-go/internal/capture"
	"capture-go/internal/config"
)

// NewPublisherFromConfig creates a Publisher based on the publisher config
// type. An empty type means publishing is disabled and returns nil.
func NewPublisherFromConfig(ctx context.Context, cfg config.PublisherConfig, timeout time.Duration) (capture.Publisher, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "memory":
		return NewMemoryPublisher(""), nil
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem publisher requires fs_root to be set")
		}
		p, err := NewFileSystemPublisher(cfg.FSRoot, "")
		if err != nil {
			return nil, err
		}
		return p, nil
	case "s3":
		p, err := NewS3Publisher(ctx, cfg, timeout)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown publisher type: %s", cfg.Type)
	}
}

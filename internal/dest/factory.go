package dest

import (
	"fmt"

	"obs-go/internal/config"
	"obs-go/internal/obs"
)

// NewDestinationFromConfig creates a Destination based on the configuration type.
func NewDestinationFromConfig(cfg config.DestinationConfig) (obs.Destination, error) {
	switch cfg.Type {
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("fs_root required for filesystem destination")
		}
		return NewFileSystemDestination(cfg.Name, cfg.FSRoot)
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3_bucket required for s3 destination")
		}
		return NewS3Destination(cfg.Name, cfg.S3Bucket, cfg.S3Prefix, cfg.S3Region)
	case "memory":
		return NewMemoryDestination(), nil
	default:
		return nil, fmt.Errorf("unknown destination type: %q", cfg.Type)
	}
}

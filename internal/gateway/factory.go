package gateway

import (
	"context"
	"fmt"

	"dms/internal/config"
	"dms/internal/dms"
)

// NewGatewayFromConfig creates a Gateway implementation based on the gateway config type.
// The sealer only applies to the filesystem gateway and may be nil.
func NewGatewayFromConfig(ctx context.Context, cfg config.GatewayConfig, partSize int64, sealer Sealer) (dms.Gateway, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryGateway(), nil
	case "filesystem":
		if cfg.Root == "" {
			return nil, fmt.Errorf("filesystem gateway requires root to be set")
		}
		return NewFileSystemGateway(cfg.Root, sealer)
	case "s3":
		if sealer != nil {
			return nil, fmt.Errorf("s3 gateway does not support client-side encryption")
		}
		s3cfg := S3Config{
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			UsePathStyle:    cfg.S3UsePathStyle,
			PartSize:        partSize,
		}
		client, err := NewS3Client(ctx, s3cfg)
		if err != nil {
			return nil, err
		}
		return NewS3Gateway(client, s3cfg)
	default:
		return nil, fmt.Errorf("unknown gateway type: %s", cfg.Type)
	}
}

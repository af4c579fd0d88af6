package storage

import (
	"context"
	"fmt"
	"os"
)

type FactoryResult struct {
	Driver  string
	Storage Storage
}

// FromEnv builds the webhook payload archive. ARCHIVE_DRIVER: "none"
// (default) disables archiving, "local" writes under ARCHIVE_DIR, "s3"
// writes to ARCHIVE_S3_BUCKET.
func FromEnv(ctx context.Context) (FactoryResult, error) {
	driver := os.Getenv("ARCHIVE_DRIVER")
	if driver == "" {
		driver = "none"
	}

	switch driver {
	case "none":
		return FactoryResult{Driver: "none"}, nil

	case "local":
		baseDir := envOr("ARCHIVE_DIR", "./storage/webhooks")
		return FactoryResult{Driver: "local", Storage: NewLocal(baseDir)}, nil

	case "s3":
		region := os.Getenv("ARCHIVE_S3_REGION")
		bucket := os.Getenv("ARCHIVE_S3_BUCKET")
		prefix := envOr("ARCHIVE_S3_PREFIX", "webhooks")
		if region == "" || bucket == "" {
			return FactoryResult{}, fmt.Errorf("s3 archive config missing: ARCHIVE_S3_REGION and ARCHIVE_S3_BUCKET required")
		}
		s, err := NewS3(ctx, S3Config{
			Region: region,
			Bucket: bucket,
			Prefix: prefix,
		})
		if err != nil {
			return FactoryResult{}, err
		}
		return FactoryResult{Driver: "s3", Storage: s}, nil

	default:
		return FactoryResult{}, fmt.Errorf("unknown ARCHIVE_DRIVER: %s", driver)
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

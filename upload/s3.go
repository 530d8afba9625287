package upload

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hugolhafner/go-coldstore/logger"
	"github.com/hugolhafner/go-coldstore/registry"
)

var _ Transport = (*S3Transport)(nil)

type S3TransportConfig struct {
	Bucket    string
	KeyPrefix string
	Logger    logger.Logger
}

type S3Option func(*S3TransportConfig)

func WithKeyPrefix(prefix string) S3Option {
	return func(cfg *S3TransportConfig) {
		cfg.KeyPrefix = prefix
	}
}

func WithS3Logger(l logger.Logger) S3Option {
	return func(cfg *S3TransportConfig) {
		cfg.Logger = l
	}
}

// S3Transport uploads buffered files to an S3 bucket, keyed by the file's
// registry-relative path under the configured prefix.
type S3Transport struct {
	uploader *manager.Uploader
	files    *registry.Registry
	config   S3TransportConfig
}

func NewS3Transport(client manager.UploadAPIClient, files *registry.Registry, bucket string, opts ...S3Option) *S3Transport {
	cfg := S3TransportConfig{
		Bucket: bucket,
		Logger: logger.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &S3Transport{
		uploader: manager.NewUploader(client),
		files:    files,
		config:   cfg,
	}
}

func (t *S3Transport) Upload(ctx context.Context, p registry.LogPath) Handle {
	return run(func() error {
		f, err := os.Open(t.files.AbsolutePath(p))
		if err != nil {
			return fmt.Errorf("open %s for upload: %w", p.Relative(), err)
		}
		defer f.Close()

		key := path.Join(t.config.KeyPrefix, p.Relative())
		_, err = t.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(t.config.Bucket),
			Key:    aws.String(key),
			Body:   f,
		})
		if err != nil {
			return fmt.Errorf("upload %s to s3://%s/%s: %w", p.Relative(), t.config.Bucket, key, err)
		}

		t.config.Logger.Debug("uploaded file", "key", key, "bucket", t.config.Bucket)
		return nil
	})
}

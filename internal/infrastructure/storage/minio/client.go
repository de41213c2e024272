// Package minio stores rendered valuation reports as objects and hands out
// short-lived download links.
package minio

import (
	"context"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/vinsight/vinsight/internal/config"
	"github.com/vinsight/vinsight/internal/infrastructure/monitoring/logging"
	"github.com/vinsight/vinsight/pkg/errors"
)

// API is the subset of the minio-go client the artifact store needs,
// abstracted for testing.
type API interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expiry time.Duration, reqParams url.Values) (*url.URL, error)
}

// Client wraps the object-storage connection and the configured bucket.
type Client struct {
	api           API
	bucket        string
	presignExpiry time.Duration
	logger        logging.Logger
}

// NewClient connects to the endpoint and ensures the reports bucket exists.
func NewClient(ctx context.Context, cfg config.MinIOConfig, log logging.Logger) (*Client, error) {
	api, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "failed to create object storage client")
	}

	c := newClient(api, cfg, log)
	if err := c.EnsureBucket(ctx); err != nil {
		return nil, err
	}

	log.Info("Connected to object storage",
		logging.String("endpoint", cfg.Endpoint),
		logging.String("bucket", c.bucket))
	return c, nil
}

// NewClientWithAPI wraps an existing API, used in tests.
func NewClientWithAPI(api API, cfg config.MinIOConfig, log logging.Logger) *Client {
	return newClient(api, cfg, log)
}

func newClient(api API, cfg config.MinIOConfig, log logging.Logger) *Client {
	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "vinsight-reports"
	}
	expiry := cfg.PresignExpiry
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &Client{api: api, bucket: bucket, presignExpiry: expiry, logger: log}
}

// EnsureBucket creates the reports bucket when missing.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.api.BucketExists(ctx, c.bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to check bucket existence")
	}
	if !exists {
		if err := c.api.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
			return errors.Wrap(err, errors.ErrCodeExternalService, "failed to create bucket")
		}
		c.logger.Info("Created bucket", logging.String("bucket", c.bucket))
	}
	return nil
}

// HealthCheck verifies the bucket is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	exists, err := c.api.BucketExists(ctx, c.bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "object storage unreachable")
	}
	if !exists {
		return errors.New(errors.ErrCodeExternalService, "reports bucket missing")
	}
	return nil
}

// Bucket returns the configured bucket name.
func (c *Client) Bucket() string { return c.bucket }

package minio

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/vinsight/vinsight/internal/infrastructure/monitoring/logging"
	"github.com/vinsight/vinsight/pkg/errors"
)

// ErrArtifactNotFound is returned when the object key does not exist.
var ErrArtifactNotFound = errors.New(errors.ErrCodeNotFound, "report artifact not found")

// Artifact describes a stored report object.
type Artifact struct {
	Key          string
	Size         int64
	ContentType  string
	ETag         string
	LastModified time.Time
}

// ArtifactStore persists rendered valuation reports.
type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (*Artifact, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Stat(ctx context.Context, key string) (*Artifact, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]*Artifact, error)
	// PresignedURL returns a time-limited download link for the artifact.
	PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

type artifactStore struct {
	client *Client
	logger logging.Logger
}

// NewArtifactStore builds an ArtifactStore on the connected client.
func NewArtifactStore(client *Client, log logging.Logger) ArtifactStore {
	return &artifactStore{client: client, logger: log}
}

func (s *artifactStore) Put(ctx context.Context, key string, data []byte, contentType string) (*Artifact, error) {
	if key == "" {
		return nil, errors.New(errors.ErrCodeValidation, "object key required")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	info, err := s.client.api.PutObject(ctx, s.client.bucket, key,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeArtifactStoreFailed, "failed to upload artifact")
	}

	s.logger.Debug("Artifact stored",
		logging.String("key", key),
		logging.Int64("size", info.Size))

	return &Artifact{
		Key:         key,
		Size:        info.Size,
		ContentType: contentType,
		ETag:        info.ETag,
	}, nil
}

func (s *artifactStore) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.api.GetObject(ctx, s.client.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeArtifactStoreFailed, "failed to open artifact")
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ErrArtifactNotFound
		}
		return nil, errors.Wrap(err, errors.ErrCodeArtifactStoreFailed, "failed to read artifact")
	}
	return data, nil
}

func (s *artifactStore) Stat(ctx context.Context, key string) (*Artifact, error) {
	info, err := s.client.api.StatObject(ctx, s.client.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ErrArtifactNotFound
		}
		return nil, errors.Wrap(err, errors.ErrCodeArtifactStoreFailed, "failed to stat artifact")
	}
	return &Artifact{
		Key:          info.Key,
		Size:         info.Size,
		ContentType:  info.ContentType,
		ETag:         info.ETag,
		LastModified: info.LastModified,
	}, nil
}

func (s *artifactStore) Delete(ctx context.Context, key string) error {
	err := s.client.api.RemoveObject(ctx, s.client.bucket, key, minio.RemoveObjectOptions{})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeArtifactStoreFailed, "failed to delete artifact")
	}
	return nil
}

func (s *artifactStore) List(ctx context.Context, prefix string) ([]*Artifact, error) {
	var out []*Artifact
	for info := range s.client.api.ListObjects(ctx, s.client.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if info.Err != nil {
			return nil, errors.Wrap(info.Err, errors.ErrCodeArtifactStoreFailed, "failed to list artifacts")
		}
		out = append(out, &Artifact{
			Key:          info.Key,
			Size:         info.Size,
			ETag:         info.ETag,
			LastModified: info.LastModified,
		})
	}
	return out, nil
}

func (s *artifactStore) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		expiry = s.client.presignExpiry
	}
	u, err := s.client.api.PresignedGetObject(ctx, s.client.bucket, key, expiry, nil)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeArtifactStoreFailed, "failed to presign artifact URL")
	}
	return u.String(), nil
}

func isNoSuchKey(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey"
}

package minio

import (
	"context"
	"io"
	"net/url"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vinsight/vinsight/internal/config"
	"github.com/vinsight/vinsight/internal/infrastructure/monitoring/logging"
)

type mockAPI struct {
	buckets      map[string]bool
	madeBuckets  []string
	putKeys      []string
	removedKeys  []string
	statInfo     minio.ObjectInfo
	statErr      error
	listInfos    []minio.ObjectInfo
	presignedURL string
}

func (m *mockAPI) BucketExists(_ context.Context, name string) (bool, error) {
	return m.buckets[name], nil
}

func (m *mockAPI) MakeBucket(_ context.Context, name string, _ minio.MakeBucketOptions) error {
	m.madeBuckets = append(m.madeBuckets, name)
	if m.buckets == nil {
		m.buckets = map[string]bool{}
	}
	m.buckets[name] = true
	return nil
}

func (m *mockAPI) PutObject(_ context.Context, _, key string, _ io.Reader, size int64, _ minio.PutObjectOptions) (minio.UploadInfo, error) {
	m.putKeys = append(m.putKeys, key)
	return minio.UploadInfo{Key: key, Size: size, ETag: "etag-1"}, nil
}

func (m *mockAPI) GetObject(_ context.Context, _, _ string, _ minio.GetObjectOptions) (*minio.Object, error) {
	return nil, assert.AnError
}

func (m *mockAPI) StatObject(_ context.Context, _, _ string, _ minio.StatObjectOptions) (minio.ObjectInfo, error) {
	return m.statInfo, m.statErr
}

func (m *mockAPI) RemoveObject(_ context.Context, _, key string, _ minio.RemoveObjectOptions) error {
	m.removedKeys = append(m.removedKeys, key)
	return nil
}

func (m *mockAPI) ListObjects(_ context.Context, _ string, _ minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	ch := make(chan minio.ObjectInfo, len(m.listInfos))
	for _, info := range m.listInfos {
		ch <- info
	}
	close(ch)
	return ch
}

func (m *mockAPI) PresignedGetObject(_ context.Context, _, _ string, _ time.Duration, _ url.Values) (*url.URL, error) {
	return url.Parse(m.presignedURL)
}

func newTestStore(api *mockAPI) ArtifactStore {
	client := NewClientWithAPI(api, config.MinIOConfig{Bucket: "reports"}, logging.NewNopLogger())
	return NewArtifactStore(client, logging.NewNopLogger())
}

func TestEnsureBucket_CreatesMissing(t *testing.T) {
	api := &mockAPI{}
	client := NewClientWithAPI(api, config.MinIOConfig{Bucket: "reports"}, logging.NewNopLogger())

	require.NoError(t, client.EnsureBucket(context.Background()))
	assert.Equal(t, []string{"reports"}, api.madeBuckets)

	// Second call finds the bucket and creates nothing.
	require.NoError(t, client.EnsureBucket(context.Background()))
	assert.Len(t, api.madeBuckets, 1)
}

func TestClient_DefaultBucket(t *testing.T) {
	client := NewClientWithAPI(&mockAPI{}, config.MinIOConfig{}, logging.NewNopLogger())
	assert.Equal(t, "vinsight-reports", client.Bucket())
}

func TestArtifactStore_Put(t *testing.T) {
	api := &mockAPI{}
	store := newTestStore(api)

	art, err := store.Put(context.Background(), "reports/abc.html", []byte("<html>"), "text/html")
	require.NoError(t, err)
	assert.Equal(t, "reports/abc.html", art.Key)
	assert.Equal(t, int64(6), art.Size)
	assert.Equal(t, "text/html", art.ContentType)
	assert.Equal(t, []string{"reports/abc.html"}, api.putKeys)
}

func TestArtifactStore_Put_EmptyKey(t *testing.T) {
	store := newTestStore(&mockAPI{})

	_, err := store.Put(context.Background(), "", nil, "")
	assert.Error(t, err)
}

func TestArtifactStore_Stat(t *testing.T) {
	api := &mockAPI{statInfo: minio.ObjectInfo{Key: "k", Size: 42, ContentType: "text/html"}}
	store := newTestStore(api)

	art, err := store.Stat(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, int64(42), art.Size)
}

func TestArtifactStore_Stat_NotFound(t *testing.T) {
	api := &mockAPI{statErr: minio.ErrorResponse{Code: "NoSuchKey"}}
	store := newTestStore(api)

	_, err := store.Stat(context.Background(), "missing")
	assert.Equal(t, ErrArtifactNotFound, err)
}

func TestArtifactStore_Delete(t *testing.T) {
	api := &mockAPI{}
	store := newTestStore(api)

	require.NoError(t, store.Delete(context.Background(), "k"))
	assert.Equal(t, []string{"k"}, api.removedKeys)
}

func TestArtifactStore_List(t *testing.T) {
	api := &mockAPI{listInfos: []minio.ObjectInfo{
		{Key: "reports/a.html", Size: 1},
		{Key: "reports/b.html", Size: 2},
	}}
	store := newTestStore(api)

	arts, err := store.List(context.Background(), "reports/")
	require.NoError(t, err)
	require.Len(t, arts, 2)
	assert.Equal(t, "reports/b.html", arts[1].Key)
}

func TestArtifactStore_PresignedURL(t *testing.T) {
	api := &mockAPI{presignedURL: "https://minio.local/reports/a.html?sig=x"}
	store := newTestStore(api)

	u, err := store.PresignedURL(context.Background(), "reports/a.html", 0)
	require.NoError(t, err)
	assert.Contains(t, u, "reports/a.html")
}

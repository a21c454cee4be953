package publish

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dverrors "github.com/Aman-CERP/docvec/internal/errors"
	"github.com/Aman-CERP/docvec/internal/store"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	order   []string
	meta    map[string]map[string]string
	err     error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, meta: map[string]map[string]string{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.objects[key] = body
	f.order = append(f.order, aws.ToString(in.Key))
	f.meta[key] = in.Metadata
	return &s3.PutObjectOutput{}, nil
}

func writeIndexDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range map[string]string{
		store.ManifestFile:                   `{"format_version":1}`,
		store.IndexFile:                      "graph",
		store.IndexFile + store.IndexMetaExt: "meta",
		store.DocStoreFile:                   "sqlite",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func TestS3Publisher_Publish(t *testing.T) {
	// Given: an index directory and a publisher with a nested prefix
	dir := writeIndexDir(t)
	fake := newFakeS3()
	p := NewWithClient(fake, "bucket", "/indexes/docs/")
	m := store.Manifest{BuildID: "0b6a3f9e-1111-4222-8333-444455556666"}

	// When: publishing
	res, err := p.Publish(context.Background(), dir, m)

	// Then: every file lands under prefix/build_id with the manifest last
	require.NoError(t, err)
	assert.Equal(t, "indexes/docs/"+m.BuildID, res.Prefix)
	assert.Equal(t, "s3://bucket/indexes/docs/"+m.BuildID+"/", res.URI())
	require.Len(t, fake.order, 4)
	assert.Equal(t, "indexes/docs/"+m.BuildID+"/"+store.ManifestFile, fake.order[3])
	assert.Equal(t, []byte("graph"), fake.objects["bucket/indexes/docs/"+m.BuildID+"/"+store.IndexFile])
	assert.Equal(t, m.BuildID, fake.meta["bucket/indexes/docs/"+m.BuildID+"/"+store.DocStoreFile]["build-id"])
	assert.Equal(t, int64(len(`{"format_version":1}`)+len("graph")+len("meta")+len("sqlite")), res.Bytes)
}

func TestS3Publisher_UploadError(t *testing.T) {
	fake := newFakeS3()
	fake.err = errors.New("access denied")
	p := NewWithClient(fake, "bucket", "")

	_, err := p.Publish(context.Background(), writeIndexDir(t), store.Manifest{BuildID: "id"})

	require.Error(t, err)
	assert.Equal(t, dverrors.ErrCodePublishFailed, dverrors.GetCode(err))
}

func TestS3Publisher_MissingDir(t *testing.T) {
	p := NewWithClient(newFakeS3(), "bucket", "")

	_, err := p.Publish(context.Background(), filepath.Join(t.TempDir(), "gone"), store.Manifest{BuildID: "id"})
	assert.Equal(t, dverrors.ErrCodePublishFailed, dverrors.GetCode(err))
}

func TestNewS3Publisher_RequiresBucket(t *testing.T) {
	_, err := NewS3Publisher(context.Background(), S3Config{})
	assert.Equal(t, dverrors.ErrCodeConfigInvalid, dverrors.GetCode(err))
}

func TestNewS3Publisher_StaticCredentials(t *testing.T) {
	p, err := NewS3Publisher(context.Background(), S3Config{
		Bucket:          "bucket",
		Prefix:          "p",
		Region:          "us-east-1",
		Endpoint:        "http://127.0.0.1:9000",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "bucket", p.bucket)
	assert.Equal(t, "p", p.prefix)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/json", contentType("a/manifest.json"))
	assert.Equal(t, "application/vnd.sqlite3", contentType("a/docstore.db"))
	assert.Equal(t, "application/octet-stream", contentType("a/index.hnsw"))
}

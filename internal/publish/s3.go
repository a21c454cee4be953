// Package publish uploads a finished index directory to object storage.
package publish

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	dverrors "github.com/Aman-CERP/docvec/internal/errors"
	"github.com/Aman-CERP/docvec/internal/store"
)

// S3Config locates the destination bucket.
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// ObjectPutter is the subset of the S3 client the publisher uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Publisher uploads index directories under <prefix>/<build_id>/.
type S3Publisher struct {
	client ObjectPutter
	bucket string
	prefix string
}

// Result lists what was uploaded.
type Result struct {
	Bucket string
	Prefix string
	Keys   []string
	Bytes  int64
}

// URI returns the s3:// location of the published index.
func (r *Result) URI() string {
	return fmt.Sprintf("s3://%s/%s/", r.Bucket, r.Prefix)
}

// NewS3Publisher builds an S3 client from cfg. Static credentials are used
// when both keys are set, otherwise the default AWS credential chain. A
// custom endpoint switches to path-style addressing for S3-compatible stores.
func NewS3Publisher(ctx context.Context, cfg S3Config) (*S3Publisher, error) {
	if cfg.Bucket == "" {
		return nil, dverrors.ConfigError("publish.s3.bucket is not set", nil).
			WithSuggestion("set publish.s3.bucket in .docvec.yaml or DOCVEC_S3_BUCKET")
	}

	opts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, dverrors.New(dverrors.ErrCodePublishFailed, "failed to load AWS config", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewWithClient returns a publisher over an existing client.
func NewWithClient(client ObjectPutter, bucket, prefix string) *S3Publisher {
	return &S3Publisher{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

// Publish uploads every file in dir. The manifest goes last, so a reader
// that finds it can rely on the rest being present.
func (p *S3Publisher) Publish(ctx context.Context, dir string, m store.Manifest) (*Result, error) {
	files, err := listFiles(dir)
	if err != nil {
		return nil, dverrors.New(dverrors.ErrCodePublishFailed, fmt.Sprintf("cannot read %s", dir), err)
	}

	prefix := path.Join(p.prefix, m.BuildID)
	res := &Result{Bucket: p.bucket, Prefix: prefix}
	start := time.Now()

	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		key := path.Join(prefix, filepath.ToSlash(rel))
		n, err := p.put(ctx, filepath.Join(dir, rel), key, m.BuildID)
		if err != nil {
			return nil, err
		}
		res.Keys = append(res.Keys, key)
		res.Bytes += n
	}

	slog.Info("index_published",
		slog.String("uri", res.URI()),
		slog.Int("objects", len(res.Keys)),
		slog.Int64("bytes", res.Bytes),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	return res, nil
}

func (p *S3Publisher) put(ctx context.Context, file, key, buildID string) (int64, error) {
	f, err := os.Open(file)
	if err != nil {
		return 0, dverrors.New(dverrors.ErrCodePublishFailed, fmt.Sprintf("cannot open %s", file), err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return 0, dverrors.New(dverrors.ErrCodePublishFailed, fmt.Sprintf("cannot stat %s", file), err)
	}

	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType(key)),
		Metadata:      map[string]string{"build-id": buildID},
	})
	if err != nil {
		return 0, dverrors.New(dverrors.ErrCodePublishFailed,
			fmt.Sprintf("failed to upload s3://%s/%s", p.bucket, key), err)
	}
	return info.Size(), nil
}

// listFiles returns regular files under dir relative to it, sorted, with the
// manifest moved to the end.
func listFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(files, func(i, j int) bool {
		mi, mj := files[i] == store.ManifestFile, files[j] == store.ManifestFile
		if mi != mj {
			return mj
		}
		return files[i] < files[j]
	})
	return files, nil
}

func contentType(key string) string {
	switch path.Ext(key) {
	case ".json":
		return "application/json"
	case ".db":
		return "application/vnd.sqlite3"
	default:
		return "application/octet-stream"
	}
}

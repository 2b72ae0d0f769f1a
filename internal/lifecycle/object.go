package lifecycle

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// objectClient abstracts minio.Client for testability.
type objectClient interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// ObjectManager uploads files to a bucket under archive/ and archive/errors/, then removes
// the local copy. An existing object is overwritten.
type ObjectManager struct {
	client objectClient
	bucket string
	prefix string
}

// NewObjectManager connects to an S3-compatible endpoint.
func NewObjectManager(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*ObjectManager, error) {
	c, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return NewObjectManagerWith(c, bucket), nil
}

// NewObjectManagerWith is only for tests to inject a fake client.
func NewObjectManagerWith(c objectClient, bucket string) *ObjectManager {
	return &ObjectManager{client: c, bucket: bucket, prefix: "archive"}
}

// EnsureBucket creates the bucket when missing.
func (m *ObjectManager) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("bucket exists: %w", err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("make bucket: %w", err)
	}
	return nil
}

func (m *ObjectManager) Archive(ctx context.Context, p string) error {
	return m.upload(ctx, p, path.Join(m.prefix, filepath.Base(p)))
}

func (m *ObjectManager) Quarantine(ctx context.Context, p, subreason string) error {
	return m.upload(ctx, p, path.Join(m.prefix, "errors", subreason, filepath.Base(p)))
}

func (m *ObjectManager) upload(ctx context.Context, p, object string) error {
	if _, err := m.client.FPutObject(ctx, m.bucket, object, p, minio.PutObjectOptions{ContentType: "application/json"}); err != nil {
		return fmt.Errorf("upload %s: %w", object, err)
	}
	if err := os.Remove(p); err != nil {
		return fmt.Errorf("remove uploaded %s: %w", p, err)
	}
	return nil
}

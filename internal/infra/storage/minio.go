package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	access "github.com/bryanwahyu/facegate/internal/domain/access"
)

type Store struct {
	client     *minio.Client
	bucketName string
	region     string
	useSSL     bool
}

// New buat koneksi MinIO
func New(ctx context.Context, endpoint, region, bucket, accessKey, secretKey string, useSSL bool) (*Store, error) {
	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, err
	}

	// pastikan bucket ada
	exists, err := cli.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := cli.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return nil, err
		}
	}

	return &Store{client: cli, bucketName: bucket, region: region, useSSL: useSSL}, nil
}

// Put implements the AssetStore port. The object name is prefixed with the
// capture timestamp so a retake never overwrites an earlier upload and the
// audit trail keeps pointing at the exact frame it was written for.
func (s *Store) Put(ctx context.Context, img access.CapturedImage) (string, error) {
	if len(img.Data) == 0 {
		return "", fmt.Errorf("empty image")
	}

	contentType := img.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	name := fmt.Sprintf("%d-%s", time.Now().UnixMilli(), sanitizeName(img.Filename))

	_, err := s.client.PutObject(ctx, s.bucketName, name,
		bytes.NewReader(img.Data), int64(len(img.Data)),
		minio.PutObjectOptions{ContentType: contentType},
	)
	if err != nil {
		return "", err
	}

	// URL publik (jika bucket public), kalau private harus generate presigned URL
	scheme := "http"
	if s.useSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.client.EndpointURL().Host, s.bucketName, name), nil
}

// Ping reports bucket reachability for health checks
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucketName)
	return err
}

// sanitizeName strips path separators and spaces from a client-supplied
// filename before it becomes part of an object key
func sanitizeName(name string) string {
	if name == "" {
		return "capture.jpg"
	}
	r := strings.NewReplacer("/", "_", "\\", "_", " ", "_")
	return r.Replace(name)
}

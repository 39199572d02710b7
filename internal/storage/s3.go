package storage

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/sayingslab/backupd/internal/config"
)

// S3 talks to any S3-compatible endpoint (AWS, MinIO, OSS) via minio-go.
type S3 struct {
	Client  *minio.Client
	Bucket  string
	backend string
}

func NewS3(cfg config.RemoteStore) (*S3, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.TLSInsecureSkip {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, cfg.SessionToken),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: transport,
		BucketLookup: func() minio.BucketLookupType {
			if cfg.ForcePathStyle {
				return minio.BucketLookupPath
			}
			return minio.BucketLookupDNS
		}(),
	})
	if err != nil {
		return nil, err
	}
	return &S3{Client: client, Bucket: cfg.Bucket, backend: cfg.Name}, nil
}

func (s *S3) Name() string { return s.backend }

func (s *S3) Put(ctx context.Context, key string, reader io.Reader, size int64) error {
	_, err := s.Client.PutObject(ctx, s.Bucket, key, reader, size, minio.PutObjectOptions{})
	return s.wrap(err)
}

func (s *S3) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.Client.GetObject(ctx, s.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.wrap(err)
	}
	// GetObject defers the request; surface missing keys now.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, s.wrap(err)
	}
	return obj, nil
}

func (s *S3) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	stat, err := s.Client.StatObject(ctx, s.Bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, s.wrap(err)
	}
	return ObjectInfo{Key: key, Size: stat.Size, Modified: stat.LastModified, Backend: s.backend}, nil
}

func (s *S3) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	ch := s.Client.ListObjects(ctx, s.Bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true})
	infos := []ObjectInfo{}
	for obj := range ch {
		if obj.Err != nil {
			return nil, s.wrap(obj.Err)
		}
		infos = append(infos, ObjectInfo{Key: obj.Key, Size: obj.Size, Modified: obj.LastModified, Backend: s.backend})
	}
	return infos, nil
}

// Delete is idempotent; S3 removal of a missing key succeeds.
func (s *S3) Delete(ctx context.Context, key string) error {
	err := s.Client.RemoveObject(ctx, s.Bucket, key, minio.RemoveObjectOptions{})
	if err != nil && errors.Is(s.wrap(err), ErrNotFound) {
		return nil
	}
	return s.wrap(err)
}

func (s *S3) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Client.StatObject(ctx, s.Bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if errors.Is(s.wrap(err), ErrNotFound) {
			return false, nil
		}
		return false, s.wrap(err)
	}
	return true, nil
}

func (s *S3) wrap(err error) error {
	if err == nil {
		return nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("%s: %w", s.backend, ErrNotFound)
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return fmt.Errorf("%s: %v: %w", s.backend, err, ErrUnauthenticated)
	case "QuotaExceeded":
		return fmt.Errorf("%s: %w", s.backend, ErrQuotaExceeded)
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %v: %w", s.backend, err, ErrUnavailable)
	}
	return fmt.Errorf("%s: %w", s.backend, err)
}

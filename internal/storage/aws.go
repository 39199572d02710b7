package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/sayingslab/backupd/internal/config"
)

// AWS talks to native AWS S3 via the official SDK.
type AWS struct {
	Client  *s3.Client
	Bucket  string
	backend string
}

func NewAWS(cfg config.RemoteStore) *AWS {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, cfg.SessionToken),
		UsePathStyle: cfg.ForcePathStyle,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return &AWS{Client: s3.New(opts), Bucket: cfg.Bucket, backend: cfg.Name}
}

func (a *AWS) Name() string { return a.backend }

func (a *AWS) Put(ctx context.Context, key string, reader io.Reader, size int64) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(a.Bucket),
		Key:    aws.String(key),
		Body:   reader,
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}
	_, err := a.Client.PutObject(ctx, input)
	return a.wrap(err)
}

func (a *AWS) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := a.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, a.wrap(err)
	}
	return out.Body, nil
}

func (a *AWS) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	out, err := a.Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return ObjectInfo{}, a.wrap(err)
	}
	info := ObjectInfo{Key: key, Backend: a.backend}
	if out.ContentLength != nil {
		info.Size = *out.ContentLength
	}
	if out.LastModified != nil {
		info.Modified = *out.LastModified
	}
	return info, nil
}

func (a *AWS) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	infos := []ObjectInfo{}
	paginator := s3.NewListObjectsV2Paginator(a.Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.Bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, a.wrap(err)
		}
		for _, obj := range page.Contents {
			info := ObjectInfo{Backend: a.backend}
			if obj.Key != nil {
				info.Key = *obj.Key
			}
			if obj.Size != nil {
				info.Size = *obj.Size
			}
			if obj.LastModified != nil {
				info.Modified = *obj.LastModified
			}
			infos = append(infos, info)
		}
	}
	return infos, nil
}

// Delete is idempotent; S3 removal of a missing key succeeds.
func (a *AWS) Delete(ctx context.Context, key string) error {
	_, err := a.Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.Bucket),
		Key:    aws.String(key),
	})
	if err != nil && errors.Is(a.wrap(err), ErrNotFound) {
		return nil
	}
	return a.wrap(err)
}

func (a *AWS) Exists(ctx context.Context, key string) (bool, error) {
	_, err := a.Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if errors.Is(a.wrap(err), ErrNotFound) {
			return false, nil
		}
		return false, a.wrap(err)
	}
	return true, nil
}

func (a *AWS) wrap(err error) error {
	if err == nil {
		return nil
	}
	var noKey *s3types.NoSuchKey
	var noBucket *s3types.NoSuchBucket
	var notFound *s3types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &noBucket) || errors.As(err, &notFound) {
		return fmt.Errorf("%s: %w", a.backend, ErrNotFound)
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "NoSuchKey") || strings.Contains(msg, "NotFound") || strings.Contains(msg, "NoSuchBucket"):
		return fmt.Errorf("%s: %w", a.backend, ErrNotFound)
	case strings.Contains(msg, "AccessDenied") || strings.Contains(msg, "InvalidAccessKeyId") || strings.Contains(msg, "SignatureDoesNotMatch"):
		return fmt.Errorf("%s: %v: %w", a.backend, err, ErrUnauthenticated)
	case strings.Contains(msg, "QuotaExceeded"):
		return fmt.Errorf("%s: %w", a.backend, ErrQuotaExceeded)
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %v: %w", a.backend, err, ErrUnavailable)
	}
	return fmt.Errorf("%s: %w", a.backend, err)
}

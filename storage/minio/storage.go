package minio

import (
	"context"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pure-golang/smtpmail/storage"
)

var _ storage.Storage = (*Storage)(nil)

var tracer = otel.Tracer("github.com/pure-golang/smtpmail/storage/minio")

// Storage implements storage.Storage for S3-compatible storage.
type Storage struct {
	client *Client
	logger *slog.Logger
}

// StorageOptions contains options for Storage creation.
type StorageOptions struct {
	Logger *slog.Logger
}

// NewStorage creates a new S3 Storage instance.
func NewStorage(client *Client, opts *StorageOptions) *Storage {
	if opts == nil {
		opts = &StorageOptions{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Storage{
		client: client,
		logger: opts.Logger.WithGroup("storage").With("backend", "s3"),
	}
}

// NewDefault creates a Storage with a new client.
func NewDefault(ctx context.Context, cfg Config) (*Storage, error) {
	client, err := NewClient(ctx, cfg, nil)
	if err != nil {
		return nil, err
	}
	return NewStorage(client, nil), nil
}

func (s *Storage) getClient() (*minio.Client, error) {
	if s.client == nil || s.client.client == nil {
		return nil, &storage.StorageError{Code: storage.CodeInternalError}
	}
	if s.client.IsClosed() {
		return nil, &storage.StorageError{Code: storage.CodeInternalError, Err: errClosed}
	}
	return s.client.client, nil
}

// Get retrieves an object. The caller must close the returned reader.
func (s *Storage) Get(ctx context.Context, bucket, key string) (io.ReadCloser, *storage.ObjectInfo, error) {
	ctx, span := tracer.Start(ctx, "S3.Get", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("bucket", bucket),
		attribute.String("key", key),
	)

	client, err := s.getClient()
	if err != nil {
		recordError(span, err)
		return nil, nil, err
	}

	obj, err := client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		recordError(span, err)
		return nil, nil, toStorageError(err, bucket, key)
	}

	// GetObject is lazy; Stat surfaces missing keys before the body is read.
	stat, err := obj.Stat()
	if err != nil {
		if closeErr := obj.Close(); closeErr != nil {
			s.logger.Warn("failed to close object after stat error", "error", closeErr.Error())
		}
		recordError(span, err)
		return nil, nil, toStorageError(err, bucket, key)
	}

	span.SetAttributes(attribute.Int64("size", stat.Size))
	span.SetStatus(codes.Ok, "")

	s.logger.Debug("object opened", "bucket", bucket, "key", key, "size", stat.Size)

	return obj, &storage.ObjectInfo{
		Key:          key,
		Size:         stat.Size,
		LastModified: stat.LastModified,
		ContentType:  stat.ContentType,
	}, nil
}

// Exists checks if an object exists.
func (s *Storage) Exists(ctx context.Context, bucket, key string) (bool, error) {
	ctx, span := tracer.Start(ctx, "S3.Exists", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("bucket", bucket),
		attribute.String("key", key),
	)

	client, err := s.getClient()
	if err != nil {
		recordError(span, err)
		return false, err
	}

	if _, err = client.StatObject(ctx, bucket, key, minio.StatObjectOptions{}); err != nil {
		serr := toStorageError(err, bucket, key)
		if storage.IsNotFound(serr) {
			span.SetStatus(codes.Ok, "")
			return false, nil
		}
		recordError(span, err)
		return false, serr
	}

	span.SetStatus(codes.Ok, "")
	return true, nil
}

// Close closes the underlying client.
func (s *Storage) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

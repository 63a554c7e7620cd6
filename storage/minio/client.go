package minio

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
)

var errClosed = errors.New("s3 client is closed")

// Client wraps minio.Client for S3-compatible storage operations.
type Client struct {
	client *minio.Client
	logger *slog.Logger
	mu     sync.RWMutex
	closed bool
}

// ClientOptions contains options for client creation.
type ClientOptions struct {
	Logger *slog.Logger
}

// NewClient creates a new S3-compatible storage client and checks that the
// endpoint answers.
func NewClient(ctx context.Context, cfg Config, options *ClientOptions) (*Client, error) {
	if options == nil {
		options = &ClientOptions{}
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if !cfg.Enabled() {
		return nil, errors.New("S3 endpoint is not configured")
	}

	logger := options.Logger.WithGroup("s3")

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Region: cfg.Region,
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create S3 client")
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := client.ListBuckets(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to connect to S3 storage")
	}

	logger.Debug("S3 client initialized", "endpoint", cfg.Endpoint, "region", cfg.Region)

	return &Client{
		client: client,
		logger: logger,
	}, nil
}

// GetMinioClient returns the underlying minio.Client.
func (c *Client) GetMinioClient() *minio.Client {
	return c.client
}

// Close closes the S3 client.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	return nil
}

// IsClosed returns true if the client is closed.
func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

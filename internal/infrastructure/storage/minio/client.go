package minio

import (
	"context"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/turtacn/KeyConcept/internal/config"
	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyConcept/pkg/errors"
)

// MinIOAPI is the part of the MinIO SDK used by the document store.
// OpenObject stands in for GetObject so that tests can serve object bodies
// without a server.
type MinIOAPI interface {
	ListBuckets(ctx context.Context) ([]minio.BucketInfo, error)
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expiry time.Duration, reqParams url.Values) (*url.URL, error)
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	OpenObject(ctx context.Context, bucketName, objectName string) (io.ReadCloser, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

type sdkClient struct {
	*minio.Client
}

func (c sdkClient) OpenObject(ctx context.Context, bucketName, objectName string) (io.ReadCloser, error) {
	return c.GetObject(ctx, bucketName, objectName, minio.GetObjectOptions{})
}

const (
	defaultRegion        = "us-east-1"
	defaultPresignExpiry = time.Hour
	connectTimeout       = 10 * time.Second
)

// Client owns the connection to MinIO and the default document bucket.
type Client struct {
	api    MinIOAPI
	cfg    config.MinIOConfig
	logger logging.Logger
}

// NewClient connects to cfg.Endpoint and creates the default bucket when it
// does not exist yet.
func NewClient(ctx context.Context, cfg config.MinIOConfig, log logging.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New(errors.ErrCodeValidation, "minio endpoint is required")
	}
	if cfg.Region == "" {
		cfg.Region = defaultRegion
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to create minio client")
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if _, err := mc.ListBuckets(ctx); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to connect to minio")
	}

	c := newClientWithAPI(sdkClient{mc}, cfg, log)
	if cfg.Bucket != "" {
		if err := c.EnsureBucket(ctx, cfg.Bucket); err != nil {
			return nil, err
		}
	}
	c.logger.Info("MinIO client connected",
		logging.String("endpoint", cfg.Endpoint),
		logging.String("bucket", cfg.Bucket),
		logging.Bool("ssl", cfg.UseSSL))
	return c, nil
}

func newClientWithAPI(api MinIOAPI, cfg config.MinIOConfig, log logging.Logger) *Client {
	if cfg.Region == "" {
		cfg.Region = defaultRegion
	}
	return &Client{api: api, cfg: cfg, logger: logging.OrNop(log).Named("minio")}
}

// API exposes the underlying SDK subset.
func (c *Client) API() MinIOAPI { return c.api }

// Bucket is the bucket used when a request names none.
func (c *Client) Bucket() string { return c.cfg.Bucket }

func (c *Client) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := c.api.BucketExists(ctx, bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to check bucket existence").WithDetail("bucket=" + bucket)
	}
	if exists {
		return nil
	}
	if err := c.api.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: c.cfg.Region}); err != nil {
		// another worker may have won the race
		if minio.ToErrorResponse(err).Code == "BucketAlreadyOwnedByYou" {
			return nil
		}
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to create bucket").WithDetail("bucket=" + bucket)
	}
	c.logger.Info("created bucket", logging.String("bucket", bucket))
	return nil
}

type HealthStatus struct {
	Healthy      bool
	Latency      time.Duration
	BucketExists bool
	Error        string
}

// HealthCheck lists buckets and checks that the default bucket exists.
func (c *Client) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	start := time.Now()
	_, err := c.api.ListBuckets(ctx)
	status := &HealthStatus{Healthy: err == nil, Latency: time.Since(start)}
	if err != nil {
		status.Error = err.Error()
		return status, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "minio unreachable")
	}
	if c.cfg.Bucket == "" {
		return status, nil
	}
	status.BucketExists, err = c.api.BucketExists(ctx, c.cfg.Bucket)
	if err != nil || !status.BucketExists {
		status.Healthy = false
		status.Error = "bucket " + c.cfg.Bucket + " missing"
	}
	return status, nil
}

// PresignedGetURL returns a download link for an enhanced document.
func (c *Client) PresignedGetURL(ctx context.Context, bucket, object string, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		expiry = defaultPresignExpiry
	}
	u, err := c.api.PresignedGetObject(ctx, c.bucketOr(bucket), object, expiry, nil)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeStorageError, "failed to presign object")
	}
	return u.String(), nil
}

func (c *Client) bucketOr(bucket string) string {
	if bucket == "" {
		return c.cfg.Bucket
	}
	return bucket
}

// Close is a no-op; the SDK keeps no connections that need closing.
func (c *Client) Close() error {
	return nil
}

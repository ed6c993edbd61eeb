package minio

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyConcept/pkg/errors"
)

// MaxDocumentSize bounds the documents read into memory for annotation.
const MaxDocumentSize = 32 << 20

// Document is a stored text document.
type Document struct {
	Bucket       string
	Object       string
	Data         []byte
	ContentType  string
	Metadata     map[string]string
	ETag         string
	Size         int64
	LastModified time.Time
}

// ObjectInfo describes a listed object.
type ObjectInfo struct {
	Object       string
	Size         int64
	ETag         string
	LastModified time.Time
}

// DocumentRepository reads source documents and writes annotated ones.  An
// empty bucket means the client's default bucket.
type DocumentRepository interface {
	Get(ctx context.Context, bucket, object string) (*Document, error)
	Put(ctx context.Context, doc *Document) (*Document, error)
	Exists(ctx context.Context, bucket, object string) (bool, error)
	List(ctx context.Context, bucket, prefix string, limit int) ([]ObjectInfo, error)
	Delete(ctx context.Context, bucket, object string) error
}

type documentRepository struct {
	client *Client
	logger logging.Logger
}

func NewDocumentRepository(client *Client, log logging.Logger) DocumentRepository {
	return &documentRepository{client: client, logger: logging.OrNop(log).Named("documents")}
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchBucket"
}

// lowerKeys undoes the header canonicalization S3 applies to user metadata
// names, so keys read back match the ones written.
func lowerKeys(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out
}

func notFound(bucket, object string) error {
	return errors.New(errors.ErrCodeDocumentNotFound, "document not found").WithDetail(bucket + "/" + object)
}

func (r *documentRepository) Get(ctx context.Context, bucket, object string) (*Document, error) {
	bucket = r.client.bucketOr(bucket)
	if bucket == "" || object == "" {
		return nil, errors.New(errors.ErrCodeValidation, "bucket and object are required")
	}

	info, err := r.client.api.StatObject(ctx, bucket, object, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, notFound(bucket, object)
		}
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "stat failed").WithDetail(bucket + "/" + object)
	}
	if info.Size > MaxDocumentSize {
		return nil, errors.Newf(errors.ErrCodeValidation, "document exceeds %d bytes", MaxDocumentSize).WithDetail(bucket + "/" + object)
	}

	body, err := r.client.api.OpenObject(ctx, bucket, object)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "download failed").WithDetail(bucket + "/" + object)
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, MaxDocumentSize+1))
	if err != nil {
		if isNotFound(err) {
			return nil, notFound(bucket, object)
		}
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "download failed").WithDetail(bucket + "/" + object)
	}

	r.logger.Debug("document read", logging.String("bucket", bucket), logging.String("object", object), logging.Int("bytes", len(data)))
	return &Document{
		Bucket:       bucket,
		Object:       object,
		Data:         data,
		ContentType:  info.ContentType,
		Metadata:     lowerKeys(info.UserMetadata),
		ETag:         info.ETag,
		Size:         int64(len(data)),
		LastModified: info.LastModified,
	}, nil
}

// Put stores doc.Data and returns doc with the ETag and size filled in.
func (r *documentRepository) Put(ctx context.Context, doc *Document) (*Document, error) {
	if doc == nil || doc.Object == "" {
		return nil, errors.New(errors.ErrCodeValidation, "object is required")
	}
	out := *doc
	out.Bucket = r.client.bucketOr(doc.Bucket)
	if out.ContentType == "" {
		out.ContentType = http.DetectContentType(out.Data)
	}

	info, err := r.client.api.PutObject(ctx, out.Bucket, out.Object, bytes.NewReader(out.Data), int64(len(out.Data)),
		minio.PutObjectOptions{ContentType: out.ContentType, UserMetadata: out.Metadata})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "upload failed").WithDetail(out.Bucket + "/" + out.Object)
	}
	out.ETag = info.ETag
	out.Size = info.Size
	out.LastModified = time.Now().UTC()

	r.logger.Debug("document written", logging.String("bucket", out.Bucket), logging.String("object", out.Object), logging.Int64("bytes", out.Size))
	return &out, nil
}

func (r *documentRepository) Exists(ctx context.Context, bucket, object string) (bool, error) {
	_, err := r.client.api.StatObject(ctx, r.client.bucketOr(bucket), object, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, errors.Wrap(err, errors.ErrCodeStorageError, "stat failed")
}

// List returns up to limit objects under prefix, recursively.  A limit of
// zero or less means no limit.
func (r *documentRepository) List(ctx context.Context, bucket, prefix string, limit int) ([]ObjectInfo, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var out []ObjectInfo
	for obj := range r.client.api.ListObjects(ctx, r.client.bucketOr(bucket), minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, errors.Wrap(obj.Err, errors.ErrCodeStorageError, "list failed").WithDetail("prefix=" + prefix)
		}
		out = append(out, ObjectInfo{Object: obj.Key, Size: obj.Size, ETag: obj.ETag, LastModified: obj.LastModified})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *documentRepository) Delete(ctx context.Context, bucket, object string) error {
	if err := r.client.api.RemoveObject(ctx, r.client.bucketOr(bucket), object, minio.RemoveObjectOptions{}); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "delete failed").WithDetail(object)
	}
	return nil
}

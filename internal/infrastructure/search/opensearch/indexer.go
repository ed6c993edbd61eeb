package opensearch

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyConcept/pkg/errors"
)

// AnnotatedDocument is the searchable record of one enhanced document.
type AnnotatedDocument struct {
	Bucket       string    `json:"bucket"`
	Object       string    `json:"object"`
	OutputObject string    `json:"output_object,omitempty"`
	Concepts     []string  `json:"concepts"`
	Labels       []string  `json:"labels"`
	Annotations  int       `json:"annotations"`
	Privileged   bool      `json:"privileged"`
	Generation   uint64    `json:"index_generation"`
	IndexedAt    time.Time `json:"indexed_at"`
}

// DocumentID derives a stable id from the object location, so re-annotating a
// document replaces its record.
func DocumentID(bucket, object string) string {
	sum := sha256.Sum256([]byte(bucket + "/" + object))
	return hex.EncodeToString(sum[:16])
}

// DocumentMapping keeps concept ids and labels as exact keywords.
func DocumentMapping() map[string]interface{} {
	keyword := map[string]interface{}{"type": "keyword"}
	return map[string]interface{}{
		"settings": map[string]interface{}{
			"number_of_shards":   1,
			"number_of_replicas": 0,
		},
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"bucket":           keyword,
				"object":           keyword,
				"output_object":    keyword,
				"concepts":         keyword,
				"labels":           map[string]interface{}{"type": "text", "fields": map[string]interface{}{"raw": keyword}},
				"annotations":      map[string]interface{}{"type": "integer"},
				"privileged":       map[string]interface{}{"type": "boolean"},
				"index_generation": map[string]interface{}{"type": "long"},
				"indexed_at":       map[string]interface{}{"type": "date"},
			},
		},
	}
}

// Indexer writes annotated documents into the client's index.
type Indexer struct {
	client  *Client
	refresh string
	logger  logging.Logger
}

// NewIndexer returns an Indexer.  refresh is passed through to index
// requests ("true", "wait_for" or "false"); empty means "false".
func NewIndexer(client *Client, refresh string, log logging.Logger) *Indexer {
	if refresh == "" {
		refresh = "false"
	}
	return &Indexer{client: client, refresh: refresh, logger: logging.OrNop(log).Named("indexer")}
}

func (i *Indexer) IndexExists(ctx context.Context) (bool, error) {
	resp, err := opensearchapi.IndicesExistsRequest{Index: []string{i.client.index}}.Do(ctx, i.client.transport)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeSearchError, "failed to check index existence")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	}
	return false, responseError(resp, "check index existence failed")
}

// EnsureIndex creates the index with DocumentMapping when it is missing.
func (i *Indexer) EnsureIndex(ctx context.Context) error {
	exists, err := i.IndexExists(ctx)
	if err != nil || exists {
		return err
	}

	body, err := json.Marshal(DocumentMapping())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal index mapping")
	}
	resp, err := opensearchapi.IndicesCreateRequest{Index: i.client.index, Body: bytes.NewReader(body)}.Do(ctx, i.client.transport)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSearchError, "failed to create index")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return responseError(resp, "index creation failed")
	}
	i.logger.Info("index created", logging.String("index", i.client.index))
	return nil
}

// IndexDocument stores doc under DocumentID(doc.Bucket, doc.Object).
func (i *Indexer) IndexDocument(ctx context.Context, doc *AnnotatedDocument) error {
	if doc == nil || doc.Object == "" {
		return errors.New(errors.ErrCodeValidation, "document object is required")
	}
	if doc.IndexedAt.IsZero() {
		doc.IndexedAt = time.Now().UTC()
	}
	if doc.Concepts == nil {
		doc.Concepts = []string{}
	}
	if doc.Labels == nil {
		doc.Labels = []string{}
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal document")
	}
	id := DocumentID(doc.Bucket, doc.Object)
	resp, err := opensearchapi.IndexRequest{
		Index:      i.client.index,
		DocumentID: id,
		Body:       bytes.NewReader(body),
		Refresh:    i.refresh,
	}.Do(ctx, i.client.transport)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSearchError, "failed to index document")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return responseError(resp, "document index failed")
	}
	i.logger.Debug("document indexed",
		logging.String("id", id),
		logging.String("object", doc.Object),
		logging.Int("concepts", len(doc.Concepts)))
	return nil
}

// DeleteDocument removes the record of bucket/object.  A missing record is
// not an error.
func (i *Indexer) DeleteDocument(ctx context.Context, bucket, object string) error {
	resp, err := opensearchapi.DeleteRequest{
		Index:      i.client.index,
		DocumentID: DocumentID(bucket, object),
		Refresh:    i.refresh,
	}.Do(ctx, i.client.transport)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSearchError, "failed to delete document")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.IsError() {
		return responseError(resp, "document delete failed")
	}
	return nil
}

// Package jobs runs annotation jobs taken from the job queue: a stored
// document is enhanced with similar-concept links, the result is written
// next to it and its concepts are indexed for search.
package jobs

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/turtacn/KeyConcept/internal/application/annotation"
	"github.com/turtacn/KeyConcept/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/KeyConcept/internal/infrastructure/search/opensearch"
	"github.com/turtacn/KeyConcept/internal/infrastructure/storage/minio"
	"github.com/turtacn/KeyConcept/pkg/errors"
)

const (
	DefaultOutputSuffix = ".enhanced"
	DefaultTimeout      = time.Minute

	// EventSource is the envelope source of published results.
	EventSource = "keyconcept-worker"

	defaultContentType = "text/plain; charset=utf-8"
)

// Enhancer inserts similar-concept links into a document.
// annotation.Service implements it.
type Enhancer interface {
	Enhance(ctx context.Context, req *annotation.EnhanceRequest) (*annotation.EnhanceResult, error)
}

// DocumentStore reads source documents and writes enhanced ones.
type DocumentStore interface {
	Get(ctx context.Context, bucket, object string) (*minio.Document, error)
	Put(ctx context.Context, doc *minio.Document) (*minio.Document, error)
}

// DocumentIndexer records the concepts of an enhanced document.
type DocumentIndexer interface {
	IndexDocument(ctx context.Context, doc *opensearch.AnnotatedDocument) error
}

// Publisher sends result events.
type Publisher interface {
	Publish(ctx context.Context, msg *kafka.ProducerMessage) error
}

type Option func(*Handler)

// WithIndexer indexes every enhanced document.
func WithIndexer(ix DocumentIndexer) Option { return func(h *Handler) { h.indexer = ix } }

// WithResults publishes a JobResult for every finished job to topic.
func WithResults(p Publisher, topic string) Option {
	return func(h *Handler) { h.results, h.resultTopic = p, topic }
}

// WithOutputSuffix names the enhanced object <object><suffix>.
func WithOutputSuffix(suffix string) Option { return func(h *Handler) { h.suffix = suffix } }

// WithTimeout bounds a single attempt.
func WithTimeout(d time.Duration) Option { return func(h *Handler) { h.timeout = d } }

func WithLogger(l logging.Logger) Option { return func(h *Handler) { h.logger = l } }

func WithMetrics(m *prometheus.AppMetrics) Option { return func(h *Handler) { h.metrics = m } }

// Handler processes AnnotationJob messages.  Its Handle method is a
// kafka.MessageHandler.
type Handler struct {
	enhancer    Enhancer
	docs        DocumentStore
	indexer     DocumentIndexer
	results     Publisher
	resultTopic string
	suffix      string
	timeout     time.Duration
	logger      logging.Logger
	metrics     *prometheus.AppMetrics
}

func NewHandler(enhancer Enhancer, docs DocumentStore, opts ...Option) (*Handler, error) {
	if enhancer == nil {
		return nil, errors.InvalidParam("enhancer is required")
	}
	if docs == nil {
		return nil, errors.InvalidParam("document store is required")
	}
	h := &Handler{enhancer: enhancer, docs: docs, suffix: DefaultOutputSuffix, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(h)
	}
	if h.results != nil && h.resultTopic == "" {
		return nil, errors.InvalidParam("result topic is required")
	}
	if h.suffix == "" {
		return nil, errors.InvalidParam("output suffix must not be empty")
	}
	h.logger = logging.OrNop(h.logger).Named("jobs")
	return h, nil
}

// Handle decodes and runs one job.  Jobs that can never succeed (malformed,
// invalid, missing document) are reported as failed and acknowledged;
// other errors are returned so the consumer retries them.
func (h *Handler) Handle(ctx context.Context, msg *kafka.Message) error {
	job, err := DecodeJob(msg)
	if err != nil {
		h.logger.Warn("dropping malformed job", logging.Err(err), logging.Int64("offset", msg.Offset))
		prometheus.RecordJob(h.metrics, false, 0)
		return nil
	}

	start := time.Now()
	res, err := h.Process(ctx, job)
	if err == nil {
		prometheus.RecordJob(h.metrics, true, time.Since(start))
		return h.publish(ctx, kafka.EventAnnotationCompleted, res)
	}
	if !Permanent(err) {
		return err
	}

	prometheus.RecordJob(h.metrics, false, time.Since(start))
	h.logger.Warn("annotation job failed",
		logging.String("job_id", job.JobID.String()),
		logging.String("object", job.Object),
		logging.Err(err))
	return h.publish(ctx, kafka.EventAnnotationFailed, &kafka.JobResult{
		JobID:      job.JobID,
		Bucket:     job.Bucket,
		Object:     job.Object,
		Error:      err.Error(),
		Duration:   time.Since(start).String(),
		FinishedAt: time.Now().UTC(),
	})
}

// Process enhances the job's document, stores the enhanced copy and indexes
// its concepts.
func (h *Handler) Process(ctx context.Context, job kafka.AnnotationJob) (*kafka.JobResult, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}
	start := time.Now()

	doc, err := h.docs.Get(ctx, job.Bucket, job.Object)
	if err != nil {
		return nil, err
	}
	enhanced, err := h.enhancer.Enhance(ctx, &annotation.EnhanceRequest{Text: string(doc.Data), Privileged: job.Privileged})
	if err != nil {
		return nil, err
	}

	contentType := doc.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}
	out := job.Object + h.suffix
	if _, err := h.docs.Put(ctx, &minio.Document{
		Bucket:      job.Bucket,
		Object:      out,
		Data:        []byte(enhanced.Text),
		ContentType: contentType,
		Metadata: map[string]string{
			"source-object":    job.Object,
			"job-id":           job.JobID.String(),
			"index-generation": formatGeneration(enhanced.Generation),
		},
	}); err != nil {
		return nil, err
	}

	concepts, labels := collect(enhanced.Annotations)
	if h.indexer != nil {
		if err := h.indexer.IndexDocument(ctx, &opensearch.AnnotatedDocument{
			Bucket:       job.Bucket,
			Object:       job.Object,
			OutputObject: out,
			Concepts:     concepts,
			Labels:       labels,
			Annotations:  len(enhanced.Annotations),
			Privileged:   job.Privileged,
			Generation:   enhanced.Generation,
		}); err != nil {
			return nil, err
		}
	}

	took := time.Since(start)
	h.logger.Info("annotation job done",
		logging.String("job_id", job.JobID.String()),
		logging.String("object", job.Object),
		logging.Int("links", enhanced.Links),
		logging.Int("concepts", len(concepts)),
		logging.Duration("took", took))

	return &kafka.JobResult{
		JobID:        job.JobID,
		Bucket:       job.Bucket,
		Object:       job.Object,
		OutputObject: out,
		Concepts:     concepts,
		Annotations:  len(enhanced.Annotations),
		Success:      true,
		Generation:   enhanced.Generation,
		Duration:     took.String(),
		FinishedAt:   time.Now().UTC(),
	}, nil
}

func (h *Handler) publish(ctx context.Context, eventType string, res *kafka.JobResult) error {
	if h.results == nil {
		return nil
	}
	env, err := kafka.NewEventEnvelope(eventType, EventSource, res)
	if err != nil {
		return err
	}
	msg, err := env.ToMessage(h.resultTopic, res.JobID.String())
	if err != nil {
		return err
	}
	return h.results.Publish(ctx, msg)
}

// DecodeJob reads the AnnotationJob carried by msg.  Both an event envelope
// and a bare job object are accepted.
func DecodeJob(msg *kafka.Message) (kafka.AnnotationJob, error) {
	var job kafka.AnnotationJob
	env, err := kafka.MessageToEventEnvelope(msg)
	if err != nil {
		return job, errors.Wrap(err, errors.ErrCodeJobInvalid, "decode job message")
	}
	if env.EventType != "" {
		if env.EventType != kafka.EventAnnotationRequested {
			return job, errors.New(errors.ErrCodeJobInvalid, "unexpected event type").WithDetail(env.EventType)
		}
		if err := env.DecodePayload(&job); err != nil {
			return job, errors.Wrap(err, errors.ErrCodeJobInvalid, "decode job payload")
		}
	} else if err := decodeBare(msg.Value, &job); err != nil {
		return job, err
	}
	if err := job.Validate(); err != nil {
		return job, err
	}
	return job, nil
}

// Permanent reports whether retrying err cannot help.
func Permanent(err error) bool {
	for _, code := range []errors.ErrorCode{
		errors.ErrCodeJobInvalid,
		errors.ErrCodeDocumentNotFound,
		errors.ErrCodeValidation,
		errors.ErrCodeBadRequest,
	} {
		if errors.IsCode(err, code) {
			return true
		}
	}
	return false
}

// collect returns the sorted distinct concept ids and surfaces of anns.
func collect(anns []annotation.Annotation) (concepts, labels []string) {
	seenC := make(map[string]struct{})
	seenL := make(map[string]struct{})
	concepts, labels = []string{}, []string{}
	for _, a := range anns {
		for _, id := range a.Concepts {
			if _, ok := seenC[string(id)]; !ok {
				seenC[string(id)] = struct{}{}
				concepts = append(concepts, string(id))
			}
		}
		if _, ok := seenL[a.Surface]; !ok && a.Surface != "" {
			seenL[a.Surface] = struct{}{}
			labels = append(labels, a.Surface)
		}
	}
	sort.Strings(concepts)
	sort.Strings(labels)
	return concepts, labels
}

func decodeBare(data []byte, job *kafka.AnnotationJob) error {
	if err := json.Unmarshal(data, job); err != nil {
		return errors.Wrap(err, errors.ErrCodeJobInvalid, "decode job")
	}
	return nil
}

func formatGeneration(g uint64) string { return strconv.FormatUint(g, 10) }

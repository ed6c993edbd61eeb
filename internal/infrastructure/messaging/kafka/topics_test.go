package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyConcept/internal/config"
	"github.com/turtacn/KeyConcept/internal/testutil"
	pkgerrors "github.com/turtacn/KeyConcept/pkg/errors"
)

func newTestTopicManager(conn ConnInterface) *TopicManager {
	return &TopicManager{conn: conn, logger: testutil.NewMockLogger()}
}

func TestTopicManager_CreateTopic(t *testing.T) {
	t.Parallel()

	t.Run("validation", func(t *testing.T) {
		t.Parallel()
		m := newTestTopicManager(&mockKafkaConn{})
		for _, cfg := range []TopicConfig{
			{NumPartitions: 1, ReplicationFactor: 1},
			{Name: "t", ReplicationFactor: 1},
			{Name: "t", NumPartitions: 1},
		} {
			err := m.CreateTopic(context.Background(), cfg)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeValidation), "%+v", cfg)
		}
	})

	t.Run("config entries", func(t *testing.T) {
		t.Parallel()
		conn := &mockKafkaConn{}
		m := newTestTopicManager(conn)
		require.NoError(t, m.CreateTopic(context.Background(), TopicConfig{
			Name: "jobs", NumPartitions: 6, ReplicationFactor: 1, RetentionMs: 1000, CleanupPolicy: "delete",
		}))
		require.Len(t, conn.created, 1)
		got := conn.created[0]
		assert.Equal(t, "jobs", got.Topic)
		assert.Equal(t, 6, got.NumPartitions)
		assert.Equal(t, []kafka.ConfigEntry{
			{ConfigName: "retention.ms", ConfigValue: "1000"},
			{ConfigName: "cleanup.policy", ConfigValue: "delete"},
		}, got.ConfigEntries)
	})

	t.Run("already exists", func(t *testing.T) {
		t.Parallel()
		m := newTestTopicManager(&mockKafkaConn{createFunc: func(...kafka.TopicConfig) error {
			return kafka.TopicAlreadyExists
		}})
		assert.NoError(t, m.CreateTopic(context.Background(), TopicConfig{Name: "jobs", NumPartitions: 1, ReplicationFactor: 1}))
	})

	t.Run("failure", func(t *testing.T) {
		t.Parallel()
		m := newTestTopicManager(&mockKafkaConn{createFunc: func(...kafka.TopicConfig) error {
			return errors.New("not controller")
		}})
		err := m.CreateTopic(context.Background(), TopicConfig{Name: "jobs", NumPartitions: 1, ReplicationFactor: 1})
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeMessagingError))
	})
}

func TestTopicManager_TopicExists(t *testing.T) {
	t.Parallel()
	m := newTestTopicManager(&mockKafkaConn{readFunc: func(topics ...string) ([]kafka.Partition, error) {
		if topics[0] == "jobs" {
			return []kafka.Partition{{Topic: "jobs", ID: 0}}, nil
		}
		return nil, errors.New("unknown topic")
	}})

	ok, err := m.TopicExists(context.Background(), "jobs")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.TopicExists(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDefaultTopics(t *testing.T) {
	t.Parallel()
	cfg := config.KafkaConfig{JobTopic: "jobs", ResultTopic: "results"}
	topics := DefaultTopics(cfg)
	require.Len(t, topics, 2)
	assert.Equal(t, "jobs", topics[0].Name)
	assert.Equal(t, "results", topics[1].Name)

	cfg.DeadLetterTopic = "dead"
	topics = DefaultTopics(cfg)
	require.Len(t, topics, 3)
	assert.Equal(t, "dead", topics[2].Name)

	conn := &mockKafkaConn{}
	m := newTestTopicManager(conn)
	require.NoError(t, m.EnsureTopics(context.Background(), topics))
	assert.Len(t, conn.created, 3)
}

func TestEventEnvelope_RoundTrip(t *testing.T) {
	t.Parallel()

	job := AnnotationJob{JobID: uuid.New(), Bucket: "docs", Object: "a/b.txt", Privileged: true}
	env, err := NewEventEnvelope(EventAnnotationRequested, "apiserver", job)
	require.NoError(t, err)
	env.TraceID = "trace-1"
	assert.Equal(t, "v1", env.SchemaVersion)
	assert.WithinDuration(t, time.Now().UTC(), env.Timestamp, time.Minute)

	pm, err := env.ToMessage("jobs", job.JobID.String())
	require.NoError(t, err)
	assert.Equal(t, []byte(job.JobID.String()), pm.Key)
	assert.Equal(t, EventAnnotationRequested, pm.Headers["event_type"])
	assert.Equal(t, "trace-1", pm.Headers["trace_id"])

	back, err := MessageToEventEnvelope(&Message{Topic: "jobs", Value: pm.Value})
	require.NoError(t, err)
	assert.Equal(t, env.EventID, back.EventID)

	var got AnnotationJob
	require.NoError(t, back.DecodePayload(&got))
	assert.Equal(t, job, got)
	assert.NoError(t, got.Validate())
}

func TestMessageToEventEnvelope_Errors(t *testing.T) {
	t.Parallel()
	_, err := MessageToEventEnvelope(&Message{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeValidation))

	_, err = MessageToEventEnvelope(&Message{Value: []byte("{not json")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeSerialization))

	var env EventEnvelope
	var job AnnotationJob
	assert.NoError(t, env.DecodePayload(&job))
	assert.Equal(t, AnnotationJob{}, job)
}

func TestAnnotationJob_Validate(t *testing.T) {
	t.Parallel()
	id := uuid.New()
	tests := []struct {
		name string
		job  AnnotationJob
		ok   bool
	}{
		{name: "complete", job: AnnotationJob{JobID: id, Bucket: "b", Object: "o"}, ok: true},
		{name: "no id", job: AnnotationJob{Bucket: "b", Object: "o"}},
		{name: "no bucket", job: AnnotationJob{JobID: id, Object: "o"}},
		{name: "no object", job: AnnotationJob{JobID: id, Bucket: "b"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.job.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeJobInvalid))
		})
	}
}

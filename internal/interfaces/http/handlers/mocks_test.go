package handlers

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/turtacn/KeyConcept/internal/application/annotation"
	"github.com/turtacn/KeyConcept/internal/application/termstats"
	"github.com/turtacn/KeyConcept/internal/domain/conceptindex"
	domainTerms "github.com/turtacn/KeyConcept/internal/domain/termstats"
)

type mockAnnotationService struct {
	mock.Mock
}

func (m *mockAnnotationService) Extract(ctx context.Context, req *annotation.ExtractRequest) (*annotation.ExtractResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*annotation.ExtractResult), args.Error(1)
}

func (m *mockAnnotationService) Enhance(ctx context.Context, req *annotation.EnhanceRequest) (*annotation.EnhanceResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*annotation.EnhanceResult), args.Error(1)
}

func (m *mockAnnotationService) Search(ctx context.Context, req *annotation.SearchRequest) (*annotation.SearchResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*annotation.SearchResponse), args.Error(1)
}

func (m *mockAnnotationService) Similar(ctx context.Context, req *annotation.SimilarRequest) (*annotation.SimilarResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*annotation.SimilarResult), args.Error(1)
}

func (m *mockAnnotationService) Tokenize(ctx context.Context, text string) (*annotation.TokenizeResult, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*annotation.TokenizeResult), args.Error(1)
}

func (m *mockAnnotationService) PlainText(ctx context.Context, text string, exclusions []string) (*annotation.PlainTextResult, error) {
	args := m.Called(ctx, text, exclusions)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*annotation.PlainTextResult), args.Error(1)
}

type mockTermsService struct {
	mock.Mock
}

func (m *mockTermsService) Compute(ctx context.Context, req *termstats.ComputeRequest) (*domainTerms.Report, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domainTerms.Report), args.Error(1)
}

func (m *mockTermsService) Get(ctx context.Context, id uuid.UUID) (*domainTerms.Report, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domainTerms.Report), args.Error(1)
}

func (m *mockTermsService) Latest(ctx context.Context, name string) (*domainTerms.Report, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domainTerms.Report), args.Error(1)
}

func (m *mockTermsService) List(ctx context.Context, limit, offset int) ([]domainTerms.Summary, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domainTerms.Summary), args.Error(1)
}

func (m *mockTermsService) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

type mockLoader struct {
	mock.Mock
}

func (m *mockLoader) Load(ctx context.Context) (conceptindex.Stats, error) {
	args := m.Called(ctx)
	return args.Get(0).(conceptindex.Stats), args.Error(1)
}

func (m *mockLoader) Ready() bool { return m.Called().Bool(0) }

func (m *mockLoader) LastStats() (conceptindex.Stats, time.Time) {
	args := m.Called()
	return args.Get(0).(conceptindex.Stats), args.Get(1).(time.Time)
}

type fakeIndex struct {
	stats conceptindex.Stats
	dump  string
}

func (f fakeIndex) Stats() conceptindex.Stats { return f.stats }

func (f fakeIndex) Dump(w io.Writer) error {
	_, err := io.WriteString(w, f.dump)
	return err
}

package minio

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	pkgerrors "github.com/turtacn/KeyConcept/pkg/errors"
)

type RepositoryTestSuite struct {
	suite.Suite
	ctx  context.Context
	api  *mockMinIOAPI
	repo DocumentRepository
}

func (s *RepositoryTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.api = &mockMinIOAPI{}
	s.repo = NewDocumentRepository(newTestClient(s.api), nil)
}

func (s *RepositoryTestSuite) TestGet() {
	s.api.On("StatObject", s.ctx, "documents", "a.txt").Return(minio.ObjectInfo{
		Key: "a.txt", Size: 11, ContentType: "text/plain", ETag: "e1", UserMetadata: map[string]string{"Lang": "de", "Job-Id": "j1"},
	}, nil)
	s.api.On("OpenObject", s.ctx, "documents", "a.txt").Return(io.NopCloser(strings.NewReader("Hallo Welt!")), nil)

	doc, err := s.repo.Get(s.ctx, "", "a.txt")
	s.Require().NoError(err)
	s.Equal("documents", doc.Bucket)
	s.Equal("Hallo Welt!", string(doc.Data))
	s.Equal("text/plain", doc.ContentType)
	s.Equal(map[string]string{"lang": "de", "job-id": "j1"}, doc.Metadata)
	s.Equal(int64(11), doc.Size)
}

func (s *RepositoryTestSuite) TestGetNotFound() {
	s.api.On("StatObject", s.ctx, "documents", "missing.txt").Return(minio.ObjectInfo{}, errNoSuchKey)
	_, err := s.repo.Get(s.ctx, "documents", "missing.txt")
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeDocumentNotFound))
	s.True(pkgerrors.IsNotFound(err))
}

func (s *RepositoryTestSuite) TestGetTooLarge() {
	s.api.On("StatObject", s.ctx, "documents", "big.txt").Return(minio.ObjectInfo{Size: MaxDocumentSize + 1}, nil)
	_, err := s.repo.Get(s.ctx, "documents", "big.txt")
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeValidation))
	s.api.AssertNotCalled(s.T(), "OpenObject", mock.Anything, mock.Anything, mock.Anything)
}

func (s *RepositoryTestSuite) TestGetValidation() {
	_, err := s.repo.Get(s.ctx, "documents", "")
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeValidation))
}

func (s *RepositoryTestSuite) TestPut() {
	s.api.On("PutObject", s.ctx, "documents", "a.txt.enhanced", []byte("[[x]]"), int64(5), mock.MatchedBy(func(o minio.PutObjectOptions) bool {
		return o.ContentType == "text/plain; charset=utf-8" && o.UserMetadata["index-generation"] == "3"
	})).Return(minio.UploadInfo{ETag: "e2", Size: 5}, nil)

	out, err := s.repo.Put(s.ctx, &Document{
		Object:   "a.txt.enhanced",
		Data:     []byte("[[x]]"),
		Metadata: map[string]string{"index-generation": "3"},
	})
	s.Require().NoError(err)
	s.Equal("documents", out.Bucket)
	s.Equal("e2", out.ETag)
	s.Equal(int64(5), out.Size)
}

func (s *RepositoryTestSuite) TestPutFailure() {
	s.api.On("PutObject", s.ctx, "documents", "a", mock.Anything, mock.Anything, mock.Anything).Return(minio.UploadInfo{}, errors.New("quota"))
	_, err := s.repo.Put(s.ctx, &Document{Object: "a", Data: []byte("x")})
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeStorageError))

	_, err = s.repo.Put(s.ctx, &Document{})
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeValidation))
}

func (s *RepositoryTestSuite) TestExists() {
	s.api.On("StatObject", s.ctx, "documents", "a").Return(minio.ObjectInfo{Key: "a"}, nil)
	s.api.On("StatObject", s.ctx, "documents", "b").Return(minio.ObjectInfo{}, errNoSuchKey)
	s.api.On("StatObject", s.ctx, "documents", "c").Return(minio.ObjectInfo{}, errors.New("timeout"))

	ok, err := s.repo.Exists(s.ctx, "", "a")
	s.NoError(err)
	s.True(ok)
	ok, err = s.repo.Exists(s.ctx, "", "b")
	s.NoError(err)
	s.False(ok)
	_, err = s.repo.Exists(s.ctx, "", "c")
	s.Error(err)
}

func (s *RepositoryTestSuite) TestList() {
	s.api.On("ListObjects", mock.Anything, "documents", minio.ListObjectsOptions{Prefix: "in/", Recursive: true}).Return([]minio.ObjectInfo{
		{Key: "in/a.txt", Size: 1}, {Key: "in/b.txt", Size: 2}, {Key: "in/c.txt", Size: 3},
	})

	all, err := s.repo.List(s.ctx, "", "in/", 0)
	s.Require().NoError(err)
	s.Len(all, 3)

	two, err := s.repo.List(s.ctx, "", "in/", 2)
	s.Require().NoError(err)
	s.Equal([]string{"in/a.txt", "in/b.txt"}, []string{two[0].Object, two[1].Object})
}

func (s *RepositoryTestSuite) TestListError() {
	s.api.On("ListObjects", mock.Anything, "documents", mock.Anything).Return([]minio.ObjectInfo{{Err: errors.New("denied")}})
	_, err := s.repo.List(s.ctx, "", "", 0)
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeStorageError))
}

func (s *RepositoryTestSuite) TestDelete() {
	s.api.On("RemoveObject", s.ctx, "documents", "a").Return(nil)
	s.NoError(s.repo.Delete(s.ctx, "", "a"))
}

func TestRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(RepositoryTestSuite))
}

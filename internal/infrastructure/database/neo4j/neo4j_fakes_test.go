package neo4j

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/mock"
)

type fakeResult struct {
	records []*neo4j.Record
	pos     int
	err     error
}

func (r *fakeResult) Next(context.Context) bool {
	if r.pos < len(r.records) {
		r.pos++
		return true
	}
	return false
}

func (r *fakeResult) Record() *neo4j.Record { return r.records[r.pos-1] }
func (r *fakeResult) Err() error            { return r.err }

type mockTx struct{ mock.Mock }

func (m *mockTx) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	args := m.Called(cypher, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(Result), args.Error(1)
}

type fakeSession struct {
	tx                    Transaction
	reads, writes, closes int
}

func (s *fakeSession) ExecuteRead(_ context.Context, work TransactionWork) (any, error) {
	s.reads++
	return work(s.tx)
}

func (s *fakeSession) ExecuteWrite(_ context.Context, work TransactionWork) (any, error) {
	s.writes++
	return work(s.tx)
}

func (s *fakeSession) Close(context.Context) error {
	s.closes++
	return nil
}

type mockDriver struct {
	mock.Mock
	session *fakeSession
}

func (m *mockDriver) VerifyConnectivity(context.Context) error { return m.Called().Error(0) }

func (m *mockDriver) NewSession(_ context.Context, cfg neo4j.SessionConfig) session {
	m.Called(cfg)
	return m.session
}

func (m *mockDriver) Close(context.Context) error { return m.Called().Error(0) }

// txExecutor runs work directly against tx.
type txExecutor struct{ tx Transaction }

func (e txExecutor) ExecuteRead(_ context.Context, work TransactionWork) (any, error) {
	return work(e.tx)
}

func (e txExecutor) ExecuteWrite(_ context.Context, work TransactionWork) (any, error) {
	return work(e.tx)
}

func record(kv map[string]any) *neo4j.Record {
	rec := &neo4j.Record{}
	for k, v := range kv {
		rec.Keys = append(rec.Keys, k)
		rec.Values = append(rec.Values, v)
	}
	return rec
}

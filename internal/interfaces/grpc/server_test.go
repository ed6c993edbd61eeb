package grpc

import (
	"context"
	"errors"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/turtacn/KeyConcept/internal/config"
	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/KeyConcept/internal/testutil"
)

var testAuth = config.AuthConfig{APIKeys: []config.APIKey{
	{Name: "reader", Key: "k-user", Role: config.RoleUser},
	{Name: "curator", Key: "k-curator", Role: config.RolePrivileged},
}}

func startBufServer(t *testing.T, opts ...Option) (*Server, *grpc.ClientConn) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv, err := NewServer(config.GRPCConfig{}, append(opts, WithListener(lis))...)
	require.NoError(t, err)

	go func() { _ = srv.Start() }()
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return srv, conn
}

func TestNewServer_Health(t *testing.T) {
	t.Parallel()
	log := testutil.NewMockLogger()
	srv, conn := startBufServer(t, WithLogger(log))
	client := healthpb.NewHealthClient(conn)
	ctx := context.Background()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	srv.SetServing(false)
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)

	// Health probes bypass auth even with a bad key.
	ctx = metadata.AppendToOutgoingContext(ctx, APIKeyMetadata, "bogus")
	_, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)

	// Unknown services are reported as such.
	_, err = client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "keyconcept.v1.Nope"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestServer_RegisterService(t *testing.T) {
	t.Parallel()
	log := testutil.NewMockLogger()
	lis := bufconn.Listen(1 << 10)
	srv, err := NewServer(config.GRPCConfig{}, WithListener(lis), WithLogger(log))
	require.NoError(t, err)

	desc := &grpc.ServiceDesc{
		ServiceName: "keyconcept.v1.Test",
		HandlerType: (*interface{})(nil),
		Methods:     []grpc.MethodDesc{},
		Streams:     []grpc.StreamDesc{},
	}
	srv.RegisterService(desc, struct{}{})

	assert.True(t, log.HasMessage(logging.LevelInfo, "grpc service registered"))
	assert.Contains(t, srv.GRPCServer().GetServiceInfo(), "keyconcept.v1.Test")
	assert.Equal(t, "bufconn", srv.Addr())
}

func TestServer_Lifecycle(t *testing.T) {
	t.Parallel()
	srv, conn := startBufServer(t)

	// Wait until Serve is running.
	_, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)

	assert.Error(t, srv.Start())
	require.NoError(t, srv.Stop(context.Background()))
}

func TestServer_StopBeforeStart(t *testing.T) {
	t.Parallel()
	srv, err := NewServer(config.GRPCConfig{}, WithListener(bufconn.Listen(1<<10)))
	require.NoError(t, err)
	assert.NoError(t, srv.Stop(context.Background()))
}

func TestNewServer_Reflection(t *testing.T) {
	t.Parallel()
	log := testutil.NewMockLogger()
	srv, err := NewServer(config.GRPCConfig{Reflection: true}, WithListener(bufconn.Listen(1<<10)), WithLogger(log))
	require.NoError(t, err)

	assert.Contains(t, srv.GRPCServer().GetServiceInfo(), "grpc.reflection.v1alpha.ServerReflection")
	assert.True(t, log.HasMessage(logging.LevelInfo, "grpc reflection registered"))
}

func TestNewServer_ListenError(t *testing.T) {
	t.Parallel()
	_, err := NewServer(config.GRPCConfig{Port: -1})
	assert.Error(t, err)
}

func TestCallerFromContext(t *testing.T) {
	t.Parallel()

	anon := CallerFromContext(context.Background())
	assert.Equal(t, config.RoleUser, anon.Role)
	assert.False(t, anon.Privileged())

	ctx := WithCaller(context.Background(), Caller{Name: "curator", Role: config.RolePrivileged})
	assert.True(t, CallerFromContext(ctx).Privileged())
}

func TestAuthUnaryInterceptor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		method     string
		key        string
		wantCode   codes.Code
		wantCaller Caller
	}{
		{"no key", "/keyconcept.v1.AnnotationService/Extract", "", codes.OK, Caller{Role: config.RoleUser}},
		{"user key", "/keyconcept.v1.AnnotationService/Extract", "k-user", codes.OK, Caller{Name: "reader", Role: config.RoleUser}},
		{"privileged key", "/keyconcept.v1.AnnotationService/Extract", " k-curator ", codes.OK, Caller{Name: "curator", Role: config.RolePrivileged}},
		{"unknown key", "/keyconcept.v1.AnnotationService/Extract", "k-other", codes.Unauthenticated, Caller{}},
		{"health skips auth", "/grpc.health.v1.Health/Check", "k-other", codes.OK, Caller{Role: config.RoleUser}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			log := testutil.NewMockLogger()
			interceptor := authUnaryInterceptor(testAuth, log)

			ctx := context.Background()
			if tt.key != "" {
				ctx = metadata.NewIncomingContext(ctx, metadata.Pairs(APIKeyMetadata, tt.key))
			}
			var got Caller
			_, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: tt.method}, func(ctx context.Context, _ interface{}) (interface{}, error) {
				got = CallerFromContext(ctx)
				return "ok", nil
			})

			assert.Equal(t, tt.wantCode, status.Code(err))
			if tt.wantCode == codes.OK {
				assert.Equal(t, tt.wantCaller, got)
			} else {
				assert.True(t, log.HasMessage(logging.LevelWarn, "rejected unknown api key"))
			}
		})
	}
}

func TestRecoveryUnaryInterceptor(t *testing.T) {
	t.Parallel()
	log := testutil.NewMockLogger()
	interceptor := recoveryUnaryInterceptor(log)
	info := &grpc.UnaryServerInfo{FullMethod: "/keyconcept.v1.AnnotationService/Extract"}

	_, err := interceptor(context.Background(), nil, info, func(context.Context, interface{}) (interface{}, error) {
		panic("boom")
	})
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.True(t, log.HasMessage(logging.LevelError, "grpc panic recovered"))

	resp, err := interceptor(context.Background(), nil, info, func(context.Context, interface{}) (interface{}, error) {
		return "fine", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fine", resp)
}

func TestLoggingUnaryInterceptor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		method string
		err    error
		level  string
		msg    string
	}{
		{"ok", "/keyconcept.v1.AnnotationService/Extract", nil, logging.LevelInfo, "grpc request"},
		{"rejected", "/keyconcept.v1.AnnotationService/Extract", status.Error(codes.InvalidArgument, "bad"), logging.LevelWarn, "grpc request rejected"},
		{"failed", "/keyconcept.v1.AnnotationService/Extract", status.Error(codes.Internal, "broken"), logging.LevelError, "grpc request failed"},
		{"foreign error", "/keyconcept.v1.AnnotationService/Extract", errors.New("plain"), logging.LevelError, "grpc request failed"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			log := testutil.NewMockLogger()
			interceptor := loggingUnaryInterceptor(log)
			_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: tt.method}, func(context.Context, interface{}) (interface{}, error) {
				return nil, tt.err
			})
			assert.Equal(t, tt.err, err)
			assert.True(t, log.HasMessage(tt.level, tt.msg))

			v, ok := log.FieldValue(tt.msg, "service")
			require.True(t, ok)
			assert.Equal(t, "keyconcept.v1.AnnotationService", v)
		})
	}

	t.Run("health checks are quiet", func(t *testing.T) {
		t.Parallel()
		log := testutil.NewMockLogger()
		_, _ = loggingUnaryInterceptor(log)(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}, func(context.Context, interface{}) (interface{}, error) {
			return nil, nil
		})
		assert.Empty(t, log.GetMessages())
	})
}

func TestMetricsUnaryInterceptor(t *testing.T) {
	t.Parallel()
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "grpctest"}, nil)
	require.NoError(t, err)
	m := prometheus.NewAppMetrics(collector)

	interceptor := metricsUnaryInterceptor(m)
	info := &grpc.UnaryServerInfo{FullMethod: "/keyconcept.v1.AnnotationService/Search"}
	_, _ = interceptor(context.Background(), nil, info, func(context.Context, interface{}) (interface{}, error) { return nil, nil })
	_, _ = interceptor(context.Background(), nil, info, func(context.Context, interface{}) (interface{}, error) {
		return nil, status.Error(codes.NotFound, "gone")
	})

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	out := rec.Body.String()
	assert.Contains(t, out, `grpctest_grpc_requests_total{code="OK",method="/keyconcept.v1.AnnotationService/Search"} 1`)
	assert.Contains(t, out, `grpctest_grpc_requests_total{code="NotFound",method="/keyconcept.v1.AnnotationService/Search"} 1`)

	// Without metrics the interceptor only passes through.
	resp, err := metricsUnaryInterceptor(nil)(context.Background(), nil, info, func(context.Context, interface{}) (interface{}, error) { return 1, nil })
	require.NoError(t, err)
	assert.Equal(t, 1, resp)
}

type checkedRequest struct{ err error }

func (r checkedRequest) Validate() error { return r.err }

func TestValidationUnaryInterceptor(t *testing.T) {
	t.Parallel()
	interceptor := validationUnaryInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/keyconcept.v1.AnnotationService/Extract"}
	pass := func(context.Context, interface{}) (interface{}, error) { return "ok", nil }

	_, err := interceptor(context.Background(), checkedRequest{err: errors.New("text is empty")}, info, pass)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Contains(t, err.Error(), "text is empty")

	_, err = interceptor(context.Background(), checkedRequest{}, info, pass)
	assert.NoError(t, err)

	_, err = interceptor(context.Background(), "not a validator", info, pass)
	assert.NoError(t, err)
}

func TestSplitMethodName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		service string
		method  string
	}{
		{"/keyconcept.v1.AnnotationService/Extract", "keyconcept.v1.AnnotationService", "Extract"},
		{"/grpc.health.v1.Health/Check", "grpc.health.v1.Health", "Check"},
		{"Bare", "unknown", "Bare"},
	}
	for _, tt := range tests {
		s, m := splitMethodName(tt.in)
		assert.Equal(t, tt.service, s, tt.in)
		assert.Equal(t, tt.method, m, tt.in)
	}
}

func TestWithOptions(t *testing.T) {
	t.Parallel()
	o := &serverOptions{maxRecvMsgSize: 1, maxSendMsgSize: 1, gracefulTimeout: time.Second}

	WithMaxRecvMsgSize(0)(o)
	WithMaxSendMsgSize(-1)(o)
	WithGracefulTimeout(0)(o)
	assert.Equal(t, 1, o.maxRecvMsgSize)
	assert.Equal(t, 1, o.maxSendMsgSize)
	assert.Equal(t, time.Second, o.gracefulTimeout)

	WithMaxRecvMsgSize(64)(o)
	WithMaxSendMsgSize(32)(o)
	WithGracefulTimeout(time.Minute)(o)
	assert.Equal(t, 64, o.maxRecvMsgSize)
	assert.Equal(t, 32, o.maxSendMsgSize)
	assert.Equal(t, time.Minute, o.gracefulTimeout)
}

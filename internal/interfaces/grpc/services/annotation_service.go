// Package services implements the KeyConcept gRPC services.
//
// keyconcept.v1.AnnotationService is described by hand: every method takes
// and returns a google.protobuf.Struct whose fields mirror the JSON bodies of
// the HTTP API, so no generated stubs are needed on either side.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/turtacn/KeyConcept/internal/application/annotation"
	"github.com/turtacn/KeyConcept/internal/domain/conceptindex"
	"github.com/turtacn/KeyConcept/internal/domain/ontology"
	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/logging"
	kcgrpc "github.com/turtacn/KeyConcept/internal/interfaces/grpc"
	"github.com/turtacn/KeyConcept/pkg/errors"
)

const AnnotationServiceName = "keyconcept.v1.AnnotationService"

// Method names of keyconcept.v1.AnnotationService.
const (
	MethodExtract    = "Extract"
	MethodEnhance    = "Enhance"
	MethodTokenize   = "Tokenize"
	MethodPlainText  = "PlainText"
	MethodSimilar    = "Similar"
	MethodSearch     = "Search"
	MethodIndexStats = "IndexStats"
)

// FullMethod returns "/keyconcept.v1.AnnotationService/<method>".
func FullMethod(method string) string { return "/" + AnnotationServiceName + "/" + method }

// AnnotationServer is the server API of keyconcept.v1.AnnotationService.
type AnnotationServer interface {
	Extract(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Enhance(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Tokenize(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	PlainText(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Similar(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Search(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	IndexStats(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(AnnotationServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryMethod(name string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(AnnotationServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(AnnotationServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

// AnnotationServiceDesc is registered with Server.RegisterService.
var AnnotationServiceDesc = grpc.ServiceDesc{
	ServiceName: AnnotationServiceName,
	HandlerType: (*AnnotationServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(MethodExtract, AnnotationServer.Extract),
		unaryMethod(MethodEnhance, AnnotationServer.Enhance),
		unaryMethod(MethodTokenize, AnnotationServer.Tokenize),
		unaryMethod(MethodPlainText, AnnotationServer.PlainText),
		unaryMethod(MethodSimilar, AnnotationServer.Similar),
		unaryMethod(MethodSearch, AnnotationServer.Search),
		unaryMethod(MethodIndexStats, AnnotationServer.IndexStats),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "keyconcept/v1/annotation.proto",
}

// AnnotationClient calls keyconcept.v1.AnnotationService.
type AnnotationClient struct {
	cc grpc.ClientConnInterface
}

func NewAnnotationClient(cc grpc.ClientConnInterface) *AnnotationClient {
	return &AnnotationClient{cc: cc}
}

// Call invokes method with in.
func (c *AnnotationClient) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Server
// ---------------------------------------------------------------------------

// IndexStatter reports the concept index figures.
type IndexStatter interface {
	Stats() conceptindex.Stats
}

type textRequest struct {
	Text       string   `json:"text"`
	Exclusions []string `json:"exclusions,omitempty"`
}

type similarRequest struct {
	Concepts []ontology.ConceptID `json:"concepts"`
	Limit    int                  `json:"limit"`
}

type searchRequest struct {
	Term   string `json:"term"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

// AnnotationServiceServer adapts annotation.Service to the RPC surface.
type AnnotationServiceServer struct {
	svc    annotation.Service
	index  IndexStatter
	logger logging.Logger
}

func NewAnnotationServiceServer(svc annotation.Service, index IndexStatter, logger logging.Logger) *AnnotationServiceServer {
	return &AnnotationServiceServer{svc: svc, index: index, logger: logging.OrNop(logger).Named("annotation_rpc")}
}

var _ AnnotationServer = (*AnnotationServiceServer)(nil)

func (s *AnnotationServiceServer) Extract(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req textRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	res, err := s.svc.Extract(ctx, &annotation.ExtractRequest{
		Text:       req.Text,
		Privileged: kcgrpc.CallerFromContext(ctx).Privileged(),
		Exclusions: req.Exclusions,
	})
	return s.reply(res, err)
}

func (s *AnnotationServiceServer) Enhance(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req textRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	res, err := s.svc.Enhance(ctx, &annotation.EnhanceRequest{
		Text:       req.Text,
		Privileged: kcgrpc.CallerFromContext(ctx).Privileged(),
		Exclusions: req.Exclusions,
	})
	return s.reply(res, err)
}

func (s *AnnotationServiceServer) Tokenize(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req textRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	res, err := s.svc.Tokenize(ctx, req.Text)
	return s.reply(res, err)
}

func (s *AnnotationServiceServer) PlainText(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req textRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	res, err := s.svc.PlainText(ctx, req.Text, req.Exclusions)
	return s.reply(res, err)
}

func (s *AnnotationServiceServer) Similar(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req similarRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	res, err := s.svc.Similar(ctx, &annotation.SimilarRequest{Concepts: req.Concepts, Limit: req.Limit})
	return s.reply(res, err)
}

func (s *AnnotationServiceServer) Search(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req searchRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if req.Limit < 0 || req.Offset < 0 {
		return nil, status.Error(codes.InvalidArgument, "limit and offset must be non-negative")
	}
	res, err := s.svc.Search(ctx, &annotation.SearchRequest{
		Term:       req.Term,
		Privileged: kcgrpc.CallerFromContext(ctx).Privileged(),
		Limit:      req.Limit,
		Offset:     req.Offset,
	})
	return s.reply(res, err)
}

func (s *AnnotationServiceServer) IndexStats(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if s.index == nil {
		return nil, status.Error(codes.Unimplemented, "index statistics are not available")
	}
	return s.reply(s.index.Stats(), nil)
}

func (s *AnnotationServiceServer) reply(v interface{}, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, s.mapError(err)
	}
	out, err := encode(v)
	if err != nil {
		s.logger.Error("encoding reply failed", logging.Err(err))
		return nil, status.Error(codes.Internal, "internal server error")
	}
	return out, nil
}

// mapError converts an AppError into a status, following the HTTP status
// of its code.  Server-side failures are logged and masked.
func (s *AnnotationServiceServer) mapError(err error) error {
	code := errors.GetCode(err)
	var grpcCode codes.Code
	switch errors.HTTPStatusForCode(code) {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		grpcCode = codes.InvalidArgument
	case http.StatusUnauthorized:
		grpcCode = codes.Unauthenticated
	case http.StatusForbidden:
		grpcCode = codes.PermissionDenied
	case http.StatusNotFound:
		grpcCode = codes.NotFound
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		grpcCode = codes.Unavailable
	case http.StatusGatewayTimeout:
		grpcCode = codes.DeadlineExceeded
	default:
		s.logger.Error("rpc failed", logging.Err(err))
		return status.Error(codes.Internal, "internal server error")
	}
	return status.Errorf(grpcCode, "%s: %s", code, message(err))
}

func message(err error) string {
	var ae *errors.AppError
	if stderrors.As(err, &ae) {
		if ae.Detail != "" {
			return ae.Message + " (" + ae.Detail + ")"
		}
		return ae.Message
	}
	return err.Error()
}

// decode maps a Struct onto dst through its JSON form.  Unknown fields are
// rejected.
func decode(in *structpb.Struct, dst interface{}) error {
	raw, err := protojson.Marshal(in)
	if err != nil {
		return status.Error(codes.InvalidArgument, "request is not a valid struct")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return status.Errorf(codes.InvalidArgument, "malformed request: %s", err)
	}
	return nil
}

func encode(v interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Package grpc provides the gRPC API of the store server.
package grpc

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/sheetbase/sheetbase/pkg/transport"
	"github.com/sheetbase/sheetbase/pkg/transport/grpctransport"
)

// StoreServer implements the RangeStore service on top of a transport.
type StoreServer struct {
	backend   transport.Transport
	accessLog bool
}

// NewStoreServer creates a gRPC store server that forwards calls to backend.
func NewStoreServer(backend transport.Transport, accessLog bool) *StoreServer {
	return &StoreServer{backend: backend, accessLog: accessLog}
}

// Register adds the service to s.
func (s *StoreServer) Register(reg grpc.ServiceRegistrar) {
	grpctransport.RegisterRangeStoreServer(reg, s)
}

// Call handles one store call.
func (s *StoreServer) Call(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	requestID := extractRequestID(ctx)

	call, err := transport.DecodeCall(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid call: %v", err)
	}
	call.Token, call.APIKey = credentials(ctx)

	res, err := s.backend.Do(ctx, call)
	if s.accessLog {
		log.Printf("grpc: %s store=%s request_id=%s err=%v", call.Op, call.Store, requestID, err)
	}
	if err != nil {
		return nil, callError(ctx, err)
	}

	out, err := transport.EncodeResult(res)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode result: %v", err)
	}
	return out, nil
}

func callError(ctx context.Context, err error) error {
	var se *transport.StatusError
	if !errors.As(err, &se) {
		return status.Error(codes.Internal, err.Error())
	}
	if se.RetryAfter > 0 {
		secs := int(se.RetryAfter.Seconds() + 0.5)
		if err := grpc.SetTrailer(ctx, metadata.Pairs(grpctransport.MetadataRetryAfter, strconv.Itoa(secs))); err != nil {
			log.Printf("[WARN] grpc: set retry-after trailer: %v", err)
		}
	}
	return status.Error(grpctransport.CodeForStatus(se.Code), se.Body)
}

func credentials(ctx context.Context) (token, apiKey string) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", ""
	}
	if v := md.Get(grpctransport.MetadataAuthorization); len(v) > 0 {
		if t, ok := strings.CutPrefix(v[0], "Bearer "); ok {
			token = strings.TrimSpace(t)
		}
	}
	if v := md.Get(grpctransport.MetadataAPIKey); len(v) > 0 {
		apiKey = v[0]
	}
	return token, apiKey
}

// extractRequestID extracts or generates a request ID from the gRPC context.
func extractRequestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get(grpctransport.MetadataRequestID); len(ids) > 0 {
			return ids[0]
		}
	}
	return uuid.New().String()
}

// RecoveryInterceptor turns a panicking handler into an Internal error.
func RecoveryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("grpc: panic in %s: %v", info.FullMethod, r)
			err = status.Error(codes.Internal, "internal server error")
		}
	}()
	return handler(ctx, req)
}

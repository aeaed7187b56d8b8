package grpctransport

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/sheetbase/sheetbase/pkg/transport"
)

// Client is a transport.Transport over a gRPC connection.
type Client struct {
	conn   grpc.ClientConnInterface
	closer func() error
}

// New wraps an existing connection. Closing the client does not close conn.
func New(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Dial connects to target. Without options the connection is plaintext.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpctransport: dial %s: %w", target, err)
	}
	return &Client{conn: conn, closer: conn.Close}, nil
}

// Close releases a connection opened by Dial.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

var _ transport.Transport = (*Client)(nil)

// Do performs one RPC for call.
func (c *Client) Do(ctx context.Context, call *transport.Call) (*transport.Result, error) {
	if err := call.Validate(); err != nil {
		return nil, err
	}
	req, err := transport.EncodeCall(call)
	if err != nil {
		return nil, fmt.Errorf("grpctransport: %w", err)
	}

	md := metadata.Pairs(MetadataRequestID, uuid.NewString())
	if call.Token != "" {
		md.Set(MetadataAuthorization, "Bearer "+call.Token)
	}
	if call.APIKey != "" {
		md.Set(MetadataAPIKey, call.APIKey)
	}
	ctx = metadata.NewOutgoingContext(ctx, md)

	var trailer metadata.MD
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, CallMethod, req, resp, grpc.Trailer(&trailer)); err != nil {
		return nil, statusError(err, trailer)
	}

	res, err := transport.DecodeResult(resp)
	if err != nil {
		return nil, fmt.Errorf("grpctransport: %w", err)
	}
	return res, nil
}

// statusError converts an RPC failure. Answers from the store become
// *transport.StatusError; a connection that could not be used stays a plain
// error.
func statusError(err error, trailer metadata.MD) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("grpctransport: %w", err)
	}
	switch st.Code() {
	case codes.Unavailable, codes.Canceled, codes.DeadlineExceeded:
		return fmt.Errorf("grpctransport: %w", err)
	}
	se := &transport.StatusError{Code: StatusForCode(st.Code()), Body: st.Message()}
	if v := trailer.Get(MetadataRetryAfter); len(v) > 0 {
		if secs, err := strconv.Atoi(v[0]); err == nil && secs > 0 {
			se.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return se
}

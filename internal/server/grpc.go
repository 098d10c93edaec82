package server

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
)

// ServiceName is the gRPC service implemented by Server.
const ServiceName = "dynsql.Cursors"

// jsonCodec lets gRPC carry the JSON request types without protobuf.
type jsonCodec struct{}

func (jsonCodec) Name() string                       { return "json" }
func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// CursorsServer is the gRPC surface of Server.
type CursorsServer interface {
	OpenSession(context.Context, *OpenRequest) (*OpenResponse, error)
	CloseSession(context.Context, *CloseRequest) (*CloseResponse, error)
	Call(context.Context, *CallRequest) (*CallResponse, error)
}

var _ CursorsServer = (*Server)(nil)

// RegisterGRPC registers s on gs.
func (s *Server) RegisterGRPC(gs *grpc.Server) {
	gs.RegisterService(&grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*CursorsServer)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "OpenSession", Handler: unaryHandler("OpenSession", CursorsServer.OpenSession)},
			{MethodName: "CloseSession", Handler: unaryHandler("CloseSession", CursorsServer.CloseSession)},
			{MethodName: "Call", Handler: unaryHandler("Call", CursorsServer.Call)},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "dynsql",
	}, s)
}

func unaryHandler[Req, Resp any](method string, call func(CursorsServer, context.Context, *Req) (*Resp, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	full := "/" + ServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(CursorsServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(CursorsServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Client calls a remote Server over gRPC.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to a gRPC server at addr without transport security.
func Dial(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "server: dial %s", addr)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	return c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, out)
}

// OpenSession opens a remote session and returns its id.
func (c *Client) OpenSession(ctx context.Context, fetchBatch int) (string, error) {
	var resp OpenResponse
	if err := c.invoke(ctx, "OpenSession", &OpenRequest{FetchBatch: fetchBatch}, &resp); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", errors.New(resp.Error)
	}
	return resp.Session, nil
}

// CloseSession closes a remote session.
func (c *Client) CloseSession(ctx context.Context, session string) error {
	var resp CloseResponse
	if err := c.invoke(ctx, "CloseSession", &CloseRequest{Session: session}, &resp); err != nil {
		return err
	}
	if resp.Error != "" {
		return errors.New(resp.Error)
	}
	return nil
}

// Call performs one operation. A failed operation is reported in the
// response, not as an error.
func (c *Client) Call(ctx context.Context, req *CallRequest) (*CallResponse, error) {
	var resp CallResponse
	if err := c.invoke(ctx, "Call", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

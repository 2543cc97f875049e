package api

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"autoindex/internal/domain"
	"autoindex/internal/engine"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "autoindex.Analytics"

// Every method of the service takes and returns a google.protobuf.Struct
// holding the JSON form of the Go request and response types, so calls use
// the default proto codec and any gRPC client can reach the service.

// toStruct encodes v as a Struct through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, err
	}
	return out, nil
}

// fromStruct decodes a Struct into v through its JSON form.
func fromStruct(m *structpb.Struct, v any) error {
	data, err := protojson.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// AnalyticsServer is the server API of the Analytics service.
type AnalyticsServer interface {
	PortfolioMetrics(context.Context, *SeriesRequest) (*engine.PortfolioMetrics, error)
	ComputeWeights(context.Context, *WeightsRequest) (*WeightsResponse, error)
	RunBacktest(context.Context, *BacktestRequest) (*domain.BacktestResult, error)
}

// unary builds the method descriptor of one request/response call.
func unary[Req, Resp any](name string, call func(AnalyticsServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	handle := func(srv any, ctx context.Context, msg any) (any, error) {
		in := new(Req)
		if err := fromStruct(msg.(*structpb.Struct), in); err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "decoding %s request: %v", name, err)
		}
		resp, err := call(srv.(AnalyticsServer), ctx, in)
		if err != nil {
			return nil, err
		}
		out, err := toStruct(resp)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "encoding %s response: %v", name, err)
		}
		return out, nil
	}
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return handle(srv, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return handle(srv, ctx, req)
			})
		},
	}
}

var analyticsServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AnalyticsServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("PortfolioMetrics", AnalyticsServer.PortfolioMetrics),
		unary("ComputeWeights", AnalyticsServer.ComputeWeights),
		unary("RunBacktest", AnalyticsServer.RunBacktest),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "autoindex/analytics",
}

// RegisterGRPC registers the Analytics service on gs.
func (s *Server) RegisterGRPC(gs grpc.ServiceRegistrar) {
	gs.RegisterService(&analyticsServiceDesc, &grpcService{s: s})
}

// grpcService adapts Server to AnalyticsServer, translating errors into
// status codes.
type grpcService struct {
	s *Server
}

var _ AnalyticsServer = (*grpcService)(nil)

func (g *grpcService) PortfolioMetrics(_ context.Context, req *SeriesRequest) (*engine.PortfolioMetrics, error) {
	m, err := g.s.Engine.PortfolioMetrics(req.Values, req.PeriodDays)
	if err != nil {
		return nil, grpcError(err)
	}
	return &m, nil
}

func (g *grpcService) ComputeWeights(ctx context.Context, req *WeightsRequest) (*WeightsResponse, error) {
	resp, err := g.s.computeWeights(ctx, req)
	return resp, grpcError(err)
}

func (g *grpcService) RunBacktest(ctx context.Context, req *BacktestRequest) (*domain.BacktestResult, error) {
	res, err := g.s.runBacktest(ctx, req)
	return res, grpcError(err)
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

// AnalyticsClient calls the Analytics service over an existing connection.
type AnalyticsClient struct {
	cc grpc.ClientConnInterface
}

// NewAnalyticsClient wraps cc.
func NewAnalyticsClient(cc grpc.ClientConnInterface) *AnalyticsClient {
	return &AnalyticsClient{cc: cc}
}

func (c *AnalyticsClient) invoke(ctx context.Context, method string, in, out any, opts ...grpc.CallOption) error {
	req, err := toStruct(in)
	if err != nil {
		return err
	}
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, req, resp, opts...); err != nil {
		return err
	}
	return fromStruct(resp, out)
}

// PortfolioMetrics computes the headline metrics of a value sequence.
func (c *AnalyticsClient) PortfolioMetrics(ctx context.Context, in *SeriesRequest, opts ...grpc.CallOption) (*engine.PortfolioMetrics, error) {
	out := new(engine.PortfolioMetrics)
	if err := c.invoke(ctx, "PortfolioMetrics", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ComputeWeights computes constrained target weights.
func (c *AnalyticsClient) ComputeWeights(ctx context.Context, in *WeightsRequest, opts ...grpc.CallOption) (*WeightsResponse, error) {
	out := new(WeightsResponse)
	if err := c.invoke(ctx, "ComputeWeights", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// RunBacktest runs a backtest on the server.
func (c *AnalyticsClient) RunBacktest(ctx context.Context, in *BacktestRequest, opts ...grpc.CallOption) (*domain.BacktestResult, error) {
	out := new(domain.BacktestResult)
	if err := c.invoke(ctx, "RunBacktest", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

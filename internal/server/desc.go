package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "examimport.v1.ExtractionService"

// ExtractionServer is the handler side of ExtractionService. Requests and
// responses are structpb.Struct messages; field names are documented on each
// method of ExtractionService.
type ExtractionServer interface {
	RunTextExtraction(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RunVisionExtraction(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SubmitExtraction(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetJob(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExportJob(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type handlerFunc func(ExtractionServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(method string, call handlerFunc) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ExtractionServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(ExtractionServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

var ExtractionServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ExtractionServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("RunTextExtraction", ExtractionServer.RunTextExtraction),
		unary("RunVisionExtraction", ExtractionServer.RunVisionExtraction),
		unary("SubmitExtraction", ExtractionServer.SubmitExtraction),
		unary("GetJob", ExtractionServer.GetJob),
		unary("ExportJob", ExtractionServer.ExportJob),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "examimport/v1/extraction.proto",
}

func RegisterExtractionServer(s grpc.ServiceRegistrar, srv ExtractionServer) {
	s.RegisterService(&ExtractionServiceDesc, srv)
}

// ExtractionClient calls ExtractionService over an existing connection.
type ExtractionClient struct {
	cc grpc.ClientConnInterface
}

func NewExtractionClient(cc grpc.ClientConnInterface) *ExtractionClient {
	return &ExtractionClient{cc: cc}
}

func (c *ExtractionClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ExtractionClient) RunTextExtraction(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "RunTextExtraction", in, opts...)
}

func (c *ExtractionClient) RunVisionExtraction(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "RunVisionExtraction", in, opts...)
}

func (c *ExtractionClient) SubmitExtraction(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "SubmitExtraction", in, opts...)
}

func (c *ExtractionClient) GetJob(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetJob", in, opts...)
}

func (c *ExtractionClient) ExportJob(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "ExportJob", in, opts...)
}

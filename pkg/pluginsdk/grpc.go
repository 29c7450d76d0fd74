// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plughost Contributors

package pluginsdk

import (
	"context"
	"errors"

	hashiplug "github.com/hashicorp/go-plugin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the gRPC service the enumerator is registered under.
const ServiceName = "plughost.pluginsdk.v1.Enumerator"

const (
	methodNumPlugins = "/" + ServiceName + "/NumPlugins"
	methodPlugin     = "/" + ServiceName + "/Plugin"
)

// Descriptor field names on the wire.
const (
	fieldAPI          = "api"
	fieldAPIVersion   = "api_version"
	fieldIdentifier   = "identifier"
	fieldVersionMajor = "version_major"
	fieldVersionMinor = "version_minor"
	fieldProperties   = "properties"
)

// EnumeratorPlugin implements go-plugin's Plugin interface for gRPC.
type EnumeratorPlugin struct {
	hashiplug.NetRPCUnsupportedPlugin
	// Impl is used by the plugin side (not used by host).
	Impl Enumerator
}

// GRPCServer registers the enumerator service (called by plugin process).
func (p *EnumeratorPlugin) GRPCServer(_ *hashiplug.GRPCBroker, s *grpc.Server) error {
	if p.Impl == nil {
		return errors.New("pluginsdk: enumerator is nil")
	}
	s.RegisterService(&enumeratorServiceDesc, &enumeratorServer{impl: p.Impl})
	return nil
}

// GRPCClient returns an Enumerator backed by the connection (called by host process).
func (p *EnumeratorPlugin) GRPCClient(ctx context.Context, _ *hashiplug.GRPCBroker, c *grpc.ClientConn) (interface{}, error) {
	return NewGRPCClient(ctx, c), nil
}

// enumeratorService is the server side of the enumerator service.
type enumeratorService interface {
	NumPlugins(context.Context, *emptypb.Empty) (*wrapperspb.Int32Value, error)
	Plugin(context.Context, *wrapperspb.Int32Value) (*structpb.Struct, error)
}

var enumeratorServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*enumeratorService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "NumPlugins", Handler: numPluginsHandler},
		{MethodName: "Plugin", Handler: pluginHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "plughost/pluginsdk/v1/enumerator",
}

func numPluginsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(enumeratorService).NumPlugins(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodNumPlugins}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(enumeratorService).NumPlugins(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func pluginHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.Int32Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(enumeratorService).Plugin(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodPlugin}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(enumeratorService).Plugin(ctx, req.(*wrapperspb.Int32Value))
	}
	return interceptor(ctx, in, info, handler)
}

// enumeratorServer adapts Enumerator to the enumerator service.
type enumeratorServer struct {
	impl Enumerator
}

func (s *enumeratorServer) NumPlugins(_ context.Context, _ *emptypb.Empty) (*wrapperspb.Int32Value, error) {
	n, err := s.impl.NumPlugins()
	if err != nil {
		return nil, status.Errorf(codes.Internal, "number of plugins: %v", err)
	}
	return wrapperspb.Int32(int32(n)), nil //nolint:gosec // plugin counts are small
}

func (s *enumeratorServer) Plugin(_ context.Context, req *wrapperspb.Int32Value) (*structpb.Struct, error) {
	index := int(req.GetValue())
	d, err := s.impl.Plugin(index)
	if err != nil {
		return nil, status.Errorf(codes.OutOfRange, "plugin %d: %v", index, err)
	}
	if d == nil {
		return nil, status.Errorf(codes.NotFound, "plugin %d: no descriptor", index)
	}
	return encodeDescriptor(d)
}

// GRPCClient is the host-side Enumerator.
type GRPCClient struct {
	ctx  context.Context
	conn grpc.ClientConnInterface
}

// NewGRPCClient creates an Enumerator that calls the service over conn.
// Calls run under ctx.
func NewGRPCClient(ctx context.Context, conn grpc.ClientConnInterface) *GRPCClient {
	return &GRPCClient{ctx: ctx, conn: conn}
}

// NumPlugins implements Enumerator.
func (c *GRPCClient) NumPlugins() (int, error) {
	out := new(wrapperspb.Int32Value)
	if err := c.conn.Invoke(c.ctx, methodNumPlugins, &emptypb.Empty{}, out); err != nil {
		return 0, err
	}
	return int(out.GetValue()), nil
}

// Plugin implements Enumerator.
func (c *GRPCClient) Plugin(index int) (*Descriptor, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(c.ctx, methodPlugin, wrapperspb.Int32(int32(index)), out); err != nil { //nolint:gosec // plugin indexes are small
		return nil, err
	}
	return decodeDescriptor(out), nil
}

func encodeDescriptor(d *Descriptor) (*structpb.Struct, error) {
	props := make(map[string]any, len(d.Properties))
	for k, v := range d.Properties {
		props[k] = v
	}
	s, err := structpb.NewStruct(map[string]any{
		fieldAPI:          d.API,
		fieldAPIVersion:   d.APIVersion,
		fieldIdentifier:   d.Identifier,
		fieldVersionMajor: d.VersionMajor,
		fieldVersionMinor: d.VersionMinor,
		fieldProperties:   props,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode descriptor: %v", err)
	}
	return s, nil
}

func decodeDescriptor(s *structpb.Struct) *Descriptor {
	f := s.GetFields()
	d := &Descriptor{
		API:          f[fieldAPI].GetStringValue(),
		APIVersion:   int(f[fieldAPIVersion].GetNumberValue()),
		Identifier:   f[fieldIdentifier].GetStringValue(),
		VersionMajor: int(f[fieldVersionMajor].GetNumberValue()),
		VersionMinor: int(f[fieldVersionMinor].GetNumberValue()),
	}
	if props := f[fieldProperties].GetStructValue().GetFields(); len(props) > 0 {
		d.Properties = make(map[string]string, len(props))
		for k, v := range props {
			d.Properties[k] = v.GetStringValue()
		}
	}
	return d
}

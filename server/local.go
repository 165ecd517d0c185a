// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package server

import (
	"context"

	gnmipb "github.com/openconfig/gnmi/proto/gnmi"
	"github.com/openconfig/gnmi/proto/gnmi_ext"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
)

// LocalTransport calls a Server in-process with the same message
// shapes a gRPC connection would carry. Requests and responses are
// cloned so neither side can alias the other's messages.
type LocalTransport struct {
	srv *Server
}

// Local returns a transport bound to srv
func Local(srv *Server) *LocalTransport {
	return &LocalTransport{srv: srv}
}

// CreateGNMIClient is a no-op; the server is always reachable
func (l *LocalTransport) CreateGNMIClient(_ context.Context, _ ...grpc.DialOption) error {
	return nil
}

// Capabilities calls Server.Capabilities
func (l *LocalTransport) Capabilities(ctx context.Context, ext ...*gnmi_ext.Extension) (*gnmipb.CapabilityResponse, error) {
	return l.srv.Capabilities(ctx, &gnmipb.CapabilityRequest{Extension: ext})
}

// Get calls Server.Get
func (l *LocalTransport) Get(ctx context.Context, req *gnmipb.GetRequest) (*gnmipb.GetResponse, error) {
	resp, err := l.srv.Get(ctx, proto.Clone(req).(*gnmipb.GetRequest))
	if err != nil {
		return nil, err
	}
	return proto.Clone(resp).(*gnmipb.GetResponse), nil
}

// Set calls Server.Set
func (l *LocalTransport) Set(ctx context.Context, req *gnmipb.SetRequest) (*gnmipb.SetResponse, error) {
	resp, err := l.srv.Set(ctx, proto.Clone(req).(*gnmipb.SetRequest))
	if err != nil {
		return nil, err
	}
	return proto.Clone(resp).(*gnmipb.SetResponse), nil
}

// Close is a no-op; the server outlives its transports
func (l *LocalTransport) Close() error {
	return nil
}

// Package admin exposes a minimal gRPC introspection service over a duel
// peer: a single Status RPC returning the duel roster and battle phase as a
// structpb.Struct. It deliberately avoids a generated .proto/.pb.go pair —
// the well-known types (structpb.Struct, emptypb.Empty) already satisfy
// proto.Message, so the request/response contract needs no code generation,
// only the grpc.ServiceDesc wiring protoc would otherwise emit.
package admin

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"pokeduel/internal/duelsession"
)

// StatusProvider is implemented by whatever owns the live duel state —
// the peer orchestrator in production, a fake in tests.
type StatusProvider interface {
	Snapshot() duelsession.Snapshot
	BattlePhase() string
}

// Server implements the AdminService gRPC contract.
type Server interface {
	Status(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// Service wires a StatusProvider to the gRPC contract.
type Service struct {
	provider StatusProvider
}

// NewService constructs an admin introspection service over the given provider.
func NewService(provider StatusProvider) *Service {
	return &Service{provider: provider}
}

// Status reports the current duel roster and battle phase as a dynamic
// structpb payload, avoiding a bespoke message schema for a single
// read-only debugging endpoint.
func (s *Service) Status(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s == nil || s.provider == nil {
		return nil, fmt.Errorf("admin service not configured")
	}
	snapshot := s.provider.Snapshot()

	fields := map[string]any{
		"duel_id":      snapshot.DuelID,
		"battle_phase": s.provider.BattlePhase(),
	}
	if snapshot.Host != nil {
		fields["host"] = snapshot.Host.ID
	}
	if snapshot.Joiner != nil {
		fields["joiner"] = snapshot.Joiner.ID
	}
	spectators := make([]any, 0, len(snapshot.Spectators))
	for _, sp := range snapshot.Spectators {
		spectators = append(spectators, sp.ID)
	}
	fields["spectators"] = spectators

	return structpb.NewStruct(fields)
}

var _ Server = (*Service)(nil)

func statusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).Status(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/pokeduel.admin.v1.AdminService/Status"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).Status(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc is the grpc.ServiceDesc a hand-written protoc-gen-go-grpc
// output would produce for a single-method Status service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "pokeduel.admin.v1.AdminService",
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Status", Handler: statusHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "internal/admin/admin.go",
}

// RegisterService attaches the admin service to a running gRPC server.
func RegisterService(s *grpc.Server, srv Server) {
	s.RegisterService(&ServiceDesc, srv)
}

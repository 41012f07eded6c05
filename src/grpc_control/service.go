package grpc_control

import (
	"context"
	"net/http"

	"market-relay/src/helpers"
	"market-relay/src/interfaces"
	"market-relay/src/logger"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "relay.v1.RelayControl"

// RelayControlServer is the control surface exposed over gRPC. Payloads are
// google.protobuf.Struct so no generated stubs are needed.
type RelayControlServer interface {
	Subscribe(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Unsubscribe(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Status(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ControlService implements RelayControlServer on top of the relay service.
type ControlService struct {
	Relay  interfaces.ISubscriptions
	Logger *logger.Logger
}

// NewControlService creates a new instance of ControlService
func NewControlService(relay interfaces.ISubscriptions, log *logger.Logger) *ControlService {
	return &ControlService{Relay: relay, Logger: log}
}

// Register attaches the service to gs.
func Register(gs *grpc.Server, svc RelayControlServer) {
	gs.RegisterService(&serviceDesc, svc)
}

// -----------------------------------------------------------------------------

func (s *ControlService) Subscribe(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	clientID, symbols, err := parseSymbolsRequest(req)
	if err != nil {
		return nil, err
	}
	market := req.GetFields()["market"].GetStringValue()

	subscribed, err := s.Relay.Subscribe(clientID, symbols, market)
	if err != nil {
		s.Logger.With("client_id", clientID).Warning("gRPC: Subscribe rejected: %v", err)
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]any{"subscribed": toList(subscribed)})
}

// -----------------------------------------------------------------------------

func (s *ControlService) Unsubscribe(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	clientID, symbols, err := parseSymbolsRequest(req)
	if err != nil {
		return nil, err
	}
	removed := s.Relay.Unsubscribe(clientID, symbols)
	return structpb.NewStruct(map[string]any{"unsubscribed": toList(removed)})
}

// -----------------------------------------------------------------------------

func (s *ControlService) Status(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	upstreams := s.Relay.UpstreamStatus()
	polygon := make([]any, 0, len(upstreams))
	for _, u := range upstreams {
		entry := map[string]any{
			"market":    string(u.Market),
			"connected": u.Connected,
			"state":     string(u.State),
		}
		if u.LastError != "" {
			entry["lastError"] = u.LastError
		}
		polygon = append(polygon, entry)
	}
	return structpb.NewStruct(map[string]any{
		"clients": s.Relay.ClientCount(),
		"polygon": polygon,
	})
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func parseSymbolsRequest(req *structpb.Struct) (string, []string, error) {
	fields := req.GetFields()
	clientID := fields["clientId"].GetStringValue()
	if clientID == "" {
		return "", nil, status.Error(codes.InvalidArgument, "clientId is required")
	}

	list := fields["symbols"].GetListValue()
	if list == nil {
		return "", nil, status.Error(codes.InvalidArgument, "symbols must be a list")
	}
	symbols := make([]string, 0, len(list.GetValues()))
	for _, v := range list.GetValues() {
		sv, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return "", nil, status.Error(codes.InvalidArgument, "symbols must be strings")
		}
		symbols = append(symbols, sv.StringValue)
	}
	return clientID, symbols, nil
}

func toList(items []string) []any {
	out := make([]any, len(items))
	for i, s := range items {
		out[i] = s
	}
	return out
}

// toStatus maps relay errors onto gRPC codes.
func toStatus(err error) error {
	code := codes.Internal
	switch helpers.HTTPStatus(err) {
	case http.StatusBadRequest:
		code = codes.InvalidArgument
	case http.StatusNotFound:
		code = codes.NotFound
	case http.StatusTooManyRequests:
		code = codes.ResourceExhausted
	case http.StatusBadGateway:
		code = codes.Unavailable
	}
	return status.Error(code, err.Error())
}

// -----------------------------------------------------------------------------
// Service descriptor
// -----------------------------------------------------------------------------

func unaryHandler(method string, call func(RelayControlServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(RelayControlServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(RelayControlServer), ctx, req.(*structpb.Struct))
		})
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RelayControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Subscribe", Handler: unaryHandler("Subscribe", RelayControlServer.Subscribe)},
		{MethodName: "Unsubscribe", Handler: unaryHandler("Unsubscribe", RelayControlServer.Unsubscribe)},
		{MethodName: "Status", Handler: unaryHandler("Status", RelayControlServer.Status)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "relay/v1/control.proto",
}

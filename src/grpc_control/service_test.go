package grpc_control

import (
	"context"
	"io"
	"net"
	"testing"

	"market-relay/src/logger"
	"market-relay/src/models"
	"market-relay/src/registry"
	"market-relay/src/relay"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

type stubUpstream struct{}

func (stubUpstream) Subscribe(models.Market, string)   {}
func (stubUpstream) Unsubscribe(models.Market, string) {}
func (stubUpstream) Status() []models.MUpstreamStatus {
	return []models.MUpstreamStatus{{Market: models.MarketCrypto, State: models.StateConnecting, LastError: "dial refused"}}
}

func dialControl(t *testing.T, max int) (*grpc.ClientConn, *relay.Service) {
	t.Helper()
	log := logger.NewLoggerWithWriter(io.Discard, "INFO", "gRPC")
	svc := relay.NewService(registry.NewRegistry(max), stubUpstream{}, log, nil)

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	Register(gs, NewControlService(svc, log))
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn, svc
}

func call(t *testing.T, conn *grpc.ClientConn, method string, req map[string]any) (*structpb.Struct, error) {
	t.Helper()
	in, err := structpb.NewStruct(req)
	require.NoError(t, err)
	out := new(structpb.Struct)
	err = conn.Invoke(context.Background(), "/"+ServiceName+"/"+method, in, out)
	return out, err
}

// -----------------------------------------------------------------------------

func TestSubscribeAndUnsubscribe(t *testing.T) {
	conn, svc := dialControl(t, 100)
	svc.Connect("c1")

	out, err := call(t, conn, "Subscribe", map[string]any{"clientId": "c1", "symbols": []any{"aapl", "BTC-USD"}})
	require.NoError(t, err)
	require.Equal(t, []any{"AAPL", "BTC-USD"}, out.AsMap()["subscribed"])
	require.Equal(t, []string{"c1"}, svc.Subscribers("AAPL"))

	out, err = call(t, conn, "Unsubscribe", map[string]any{"clientId": "c1", "symbols": []any{"AAPL"}})
	require.NoError(t, err)
	require.Equal(t, []any{"AAPL"}, out.AsMap()["unsubscribed"])
	require.Empty(t, svc.Subscribers("AAPL"))
}

func TestSubscribeErrorCodes(t *testing.T) {
	conn, svc := dialControl(t, 1)
	svc.Connect("c1")

	_, err := call(t, conn, "Subscribe", map[string]any{"symbols": []any{"AAPL"}})
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = call(t, conn, "Subscribe", map[string]any{"clientId": "c1", "symbols": []any{1.0}})
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = call(t, conn, "Subscribe", map[string]any{"clientId": "ghost", "symbols": []any{"AAPL"}})
	require.Equal(t, codes.NotFound, status.Code(err))

	_, err = call(t, conn, "Subscribe", map[string]any{"clientId": "c1", "symbols": []any{"AAPL", "MSFT"}})
	require.Equal(t, codes.ResourceExhausted, status.Code(err))

	_, err = call(t, conn, "Subscribe", map[string]any{"clientId": "c1", "symbols": []any{"AAPL"}, "market": "bonds"})
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestStatus(t *testing.T) {
	conn, svc := dialControl(t, 100)
	svc.Connect("c1")
	svc.Connect("c2")

	out, err := call(t, conn, "Status", map[string]any{})
	require.NoError(t, err)
	got := out.AsMap()
	require.Equal(t, 2.0, got["clients"])
	require.Equal(t, []any{map[string]any{
		"market":    "crypto",
		"connected": false,
		"state":     "connecting",
		"lastError": "dial refused",
	}}, got["polygon"])
}

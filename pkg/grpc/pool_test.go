package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func TestPoolReusesConnection(t *testing.T) {
	p := NewPool()
	defer p.Close()

	c1, err := p.GetConnection("localhost:50051")
	if err != nil {
		t.Fatalf("GetConnection err=%v", err)
	}
	c2, err := p.GetConnection("localhost:50051")
	if err != nil {
		t.Fatalf("GetConnection err=%v", err)
	}
	if c1 != c2 {
		t.Fatal("expected the same connection for one target")
	}

	c3, err := p.GetConnection("localhost:50052")
	if err != nil {
		t.Fatalf("GetConnection err=%v", err)
	}
	if c3 == c1 {
		t.Fatal("expected a new connection for a different target")
	}
}

func TestPoolReplacesClosedConnection(t *testing.T) {
	p := NewPool(WithKeepalive(0))
	defer p.Close()

	c1, err := p.GetConnection("localhost:50051")
	if err != nil {
		t.Fatalf("GetConnection err=%v", err)
	}
	c1.Close()

	c2, err := p.GetConnection("localhost:50051")
	if err != nil {
		t.Fatalf("GetConnection err=%v", err)
	}
	if c1 == c2 {
		t.Fatal("closed connection was returned")
	}
}

func TestPoolLoggingInterceptor(t *testing.T) {
	lis := bufconn.Listen(1024 * 1024)
	s := grpc.NewServer()
	healthpb.RegisterHealthServer(s, health.NewServer())
	go func() { _ = s.Serve(lis) }()
	defer s.Stop()

	core, logs := observer.New(zapcore.DebugLevel)
	p := NewPool(WithInterceptor(LoggingInterceptor(zap.New(core))))
	defer p.Close()

	conn, err := p.GetConnection("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
	)
	if err != nil {
		t.Fatalf("GetConnection err=%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{}); err != nil {
		t.Fatalf("Check err=%v", err)
	}
	// 未註冊的服務名稱 -> NotFound
	if _, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: "missing"}); err == nil {
		t.Fatal("expected error for unknown service")
	}

	if got := logs.FilterMessage("gRPC call").Len(); got != 1 {
		t.Fatalf("debug logs=%d want=1", got)
	}
	failed := logs.FilterMessage("gRPC call failed").All()
	if len(failed) != 1 || failed[0].ContextMap()["code"] != "NotFound" {
		t.Fatalf("failed logs=%+v", failed)
	}
}

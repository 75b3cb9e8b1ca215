package server

import (
	"context"
	"io"
	"os"
	"testing"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/chazu/liveobjects/object"
	"github.com/chazu/liveobjects/world"
)

// ---------------------------------------------------------------------------
// Shared test infrastructure for server package tests.
//
// Most tests share one seeded registry behind testWorker. Tests that snapshot
// or reload create their own.
// ---------------------------------------------------------------------------

var (
	testWorker  *Worker
	testMetrics *Metrics
)

func TestMain(m *testing.M) {
	reg := seededRegistry()
	testWorker = NewWorker(reg)
	testMetrics = NewMetrics()

	code := m.Run()

	testWorker.Stop()
	os.Exit(code)
}

func seededRegistry() *object.Registry {
	reg := object.NewRegistry(object.WithOutput(io.Discard))
	if err := world.Seed(reg); err != nil {
		panic(err)
	}
	return reg
}

// newTestService creates a CommandService backed by the shared registry and
// no image.
func newTestService() *CommandService {
	return NewCommandService(testWorker, nil, testMetrics)
}

func bg() context.Context {
	return context.Background()
}

// connectReq builds a request whose message holds fields.
func connectReq(t *testing.T, fields map[string]any) *connect.Request[structpb.Struct] {
	t.Helper()
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	return connect.NewRequest(msg)
}

func field(resp *connect.Response[structpb.Struct], key string) *structpb.Value {
	return resp.Msg.GetFields()[key]
}

func wantCode(t *testing.T, err error, code connect.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v error, got nil", code)
	}
	if got := connect.CodeOf(err); got != code {
		t.Errorf("code = %v, want %v (err: %v)", got, code, err)
	}
}

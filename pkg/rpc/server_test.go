package rpc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"net"
	"sync"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/HatiCode/dosimap/pkg/calibration"
	"github.com/HatiCode/dosimap/pkg/dosing"
	"github.com/HatiCode/dosimap/pkg/interp"
)

// planeBackend serves the plane f(d, c) = d + c over [0,10]².
type planeBackend struct {
	est  *interp.Interpolator
	base dosing.Config
}

func (b *planeBackend) Evaluate(d, c float64) (interp.Prediction, error) {
	return b.est.Evaluate(d, c)
}

func (b *planeBackend) Plan(ctx context.Context, o dosing.Overrides) (dosing.Result, error) {
	return dosing.New(b.est, discard()).Run(o.Apply(b.base))
}

type call struct{ method, code string }

type recorder struct {
	mu    sync.Mutex
	calls []call
}

func (r *recorder) RecordRPC(method, code string, seconds float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{method, code})
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newBackend(t *testing.T) *planeBackend {
	t.Helper()
	ts, err := calibration.New([]calibration.Sample{
		{Duration: 0, CumulativeTime: 0, Measurement: 0},
		{Duration: 10, CumulativeTime: 0, Measurement: 10},
		{Duration: 0, CumulativeTime: 10, Measurement: 10},
		{Duration: 10, CumulativeTime: 10, Measurement: 20},
	})
	if err != nil {
		t.Fatalf("calibration.New() error = %v", err)
	}
	in, err := interp.New(ts)
	if err != nil {
		t.Fatalf("interp.New() error = %v", err)
	}
	return &planeBackend{
		est: in,
		base: dosing.Config{
			MinDuration:        1,
			CycleScale:         1,
			CandidateDurations: []float64{1, 2},
			TargetValue:        10,
			TargetMin:          0,
			TargetMax:          20,
			MaxIterations:      3,
		},
	}
}

func dial(t *testing.T, srv PredictorServer) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	Register(s, srv)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestEvaluate(t *testing.T) {
	rec := &recorder{}
	client := NewClient(dial(t, NewServer(newBackend(t), discard(), rec)))
	ctx := context.Background()

	p, err := client.Evaluate(ctx, 5, 5)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !p.InDomain || math.Abs(p.Value-10) > 1e-9 {
		t.Errorf("Evaluate(5, 5) = %+v, want 10 in domain", p)
	}

	p, err = client.Evaluate(ctx, 20, 20)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if p.InDomain {
		t.Errorf("Evaluate(20, 20) = %+v, want out of domain", p)
	}

	_, err = client.Evaluate(ctx, math.NaN(), 1)
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("NaN query: code = %v, want InvalidArgument", status.Code(err))
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	want := []call{{"Evaluate", "OK"}, {"Evaluate", "OK"}, {"Evaluate", "InvalidArgument"}}
	if len(rec.calls) != len(want) {
		t.Fatalf("recorded %v, want %v", rec.calls, want)
	}
	for i := range want {
		if rec.calls[i] != want[i] {
			t.Errorf("call %d = %v, want %v", i, rec.calls[i], want[i])
		}
	}
}

func TestEvaluate_BadRequest(t *testing.T) {
	conn := dial(t, NewServer(newBackend(t), discard(), nil))

	tests := []struct {
		name string
		req  map[string]any
	}{
		{name: "missing cumulativeTime", req: map[string]any{"duration": 5}},
		{name: "string duration", req: map[string]any{"duration": "five", "cumulativeTime": 5}},
		{name: "empty", req: map[string]any{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := structpb.NewStruct(tt.req)
			if err != nil {
				t.Fatal(err)
			}
			err = conn.Invoke(context.Background(), EvaluateMethod, in, new(structpb.Struct))
			if status.Code(err) != codes.InvalidArgument {
				t.Errorf("code = %v, want InvalidArgument (err %v)", status.Code(err), err)
			}
		})
	}
}

func TestPlan(t *testing.T) {
	client := NewClient(dial(t, NewServer(newBackend(t), discard(), nil)))
	ctx := context.Background()

	res, err := client.Plan(ctx, dosing.Overrides{})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	want := []dosing.Step{
		{Duration: 1, CumulativeTime: 1, Predicted: 2},
		{Duration: 2, CumulativeTime: 3, Predicted: 5},
		{Duration: 2, CumulativeTime: 5, Predicted: 7},
	}
	if res.Reason != dosing.ReasonIterationCap || res.Stalls != 0 {
		t.Errorf("reason = %s, stalls = %d", res.Reason, res.Stalls)
	}
	if len(res.Trajectory) != len(want) {
		t.Fatalf("trajectory = %+v", res.Trajectory)
	}
	for i, st := range res.Trajectory {
		if st.Duration != want[i].Duration || st.CumulativeTime != want[i].CumulativeTime ||
			math.Abs(st.Predicted-want[i].Predicted) > 1e-9 {
			t.Errorf("step %d = %+v, want %+v", i, st, want[i])
		}
	}

	two := 2
	res, err = client.Plan(ctx, dosing.Overrides{MaxIterations: &two})
	if err != nil {
		t.Fatalf("Plan(maxIterations=2) error = %v", err)
	}
	if len(res.Trajectory) != 2 {
		t.Errorf("got %d steps, want 2", len(res.Trajectory))
	}

	// A band that excludes the first prediction ends the run immediately.
	lo := 3.0
	res, err = client.Plan(ctx, dosing.Overrides{TargetMin: &lo})
	if err != nil {
		t.Fatalf("Plan(targetMin=3) error = %v", err)
	}
	if len(res.Trajectory) != 0 || res.Reason != dosing.ReasonBandExit {
		t.Errorf("result = %+v, want empty band-exit", res)
	}
}

func TestPlan_InvalidOverrides(t *testing.T) {
	conn := dial(t, NewServer(newBackend(t), discard(), nil))
	client := NewClient(conn)

	inverted := 50.0
	_, err := client.Plan(context.Background(), dosing.Overrides{TargetMin: &inverted})
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("inverted band: code = %v, want InvalidArgument", status.Code(err))
	}

	in, err := structpb.NewStruct(map[string]any{"maxIterations": 1.5})
	if err != nil {
		t.Fatal(err)
	}
	err = conn.Invoke(context.Background(), PlanMethod, in, new(structpb.Struct))
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("fractional maxIterations: code = %v, want InvalidArgument", status.Code(err))
	}
}

type notReady struct{ *planeBackend }

func (notReady) Ready() error { return errors.New("still building") }

func TestServer_NotReady(t *testing.T) {
	client := NewClient(dial(t, NewServer(notReady{newBackend(t)}, discard(), nil)))

	_, err := client.Evaluate(context.Background(), 5, 5)
	if status.Code(err) != codes.Unavailable {
		t.Errorf("Evaluate: code = %v, want Unavailable", status.Code(err))
	}
	_, err = client.Plan(context.Background(), dosing.Overrides{})
	if status.Code(err) != codes.Unavailable {
		t.Errorf("Plan: code = %v, want Unavailable", status.Code(err))
	}
}

package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/HatiCode/dosimap/pkg/dosing"
	"github.com/HatiCode/dosimap/pkg/interp"
)

// Client calls a remote dosimap.v1.Predictor.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Evaluate asks the remote predictor for the value at one point.
func (c *Client) Evaluate(ctx context.Context, duration, cumulativeTime float64, opts ...grpc.CallOption) (interp.Prediction, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, EvaluateMethod, encodeEvaluateRequest(duration, cumulativeTime), out, opts...); err != nil {
		return interp.Prediction{}, err
	}
	p, err := decodePrediction(out)
	if err != nil {
		return interp.Prediction{}, fmt.Errorf("decode Evaluate response: %w", err)
	}
	return p, nil
}

// Plan runs a remote dosing plan.
func (c *Client) Plan(ctx context.Context, o dosing.Overrides, opts ...grpc.CallOption) (dosing.Result, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, PlanMethod, encodeOverrides(o), out, opts...); err != nil {
		return dosing.Result{}, err
	}
	r, err := decodeResult(out)
	if err != nil {
		return dosing.Result{}, fmt.Errorf("decode Plan response: %w", err)
	}
	return r, nil
}

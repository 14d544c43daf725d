package rpc

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/HatiCode/dosimap/pkg/dosing"
	"github.com/HatiCode/dosimap/pkg/interp"
)

var errMissingField = errors.New("missing field")

// number reads a numeric field. ok is false when the field is absent.
func number(s *structpb.Struct, key string) (v float64, ok bool, err error) {
	f, present := s.GetFields()[key]
	if !present {
		return 0, false, nil
	}
	n, isNum := f.GetKind().(*structpb.Value_NumberValue)
	if !isNum {
		return 0, false, fmt.Errorf("field %q: want a number", key)
	}
	return n.NumberValue, true, nil
}

func requireNumber(s *structpb.Struct, key string) (float64, error) {
	v, ok, err := number(s, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w %q", errMissingField, key)
	}
	return v, nil
}

func encodeEvaluateRequest(duration, cumulativeTime float64) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"duration":       structpb.NewNumberValue(duration),
		"cumulativeTime": structpb.NewNumberValue(cumulativeTime),
	}}
}

func decodeEvaluateRequest(s *structpb.Struct) (duration, cumulativeTime float64, err error) {
	if duration, err = requireNumber(s, "duration"); err != nil {
		return 0, 0, err
	}
	if cumulativeTime, err = requireNumber(s, "cumulativeTime"); err != nil {
		return 0, 0, err
	}
	return duration, cumulativeTime, nil
}

func encodePrediction(p interp.Prediction) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"value":    structpb.NewNumberValue(p.Value),
		"inDomain": structpb.NewBoolValue(p.InDomain),
	}}
}

func decodePrediction(s *structpb.Struct) (interp.Prediction, error) {
	v, err := requireNumber(s, "value")
	if err != nil {
		return interp.Prediction{}, err
	}
	in, ok := s.GetFields()["inDomain"].GetKind().(*structpb.Value_BoolValue)
	if !ok {
		return interp.Prediction{}, fmt.Errorf("field %q: want a bool", "inDomain")
	}
	return interp.Prediction{Value: v, InDomain: in.BoolValue}, nil
}

func encodeOverrides(o dosing.Overrides) *structpb.Struct {
	s := &structpb.Struct{Fields: map[string]*structpb.Value{}}
	for key, v := range map[string]*float64{
		"targetValue": o.TargetValue,
		"targetMin":   o.TargetMin,
		"targetMax":   o.TargetMax,
	} {
		if v != nil {
			s.Fields[key] = structpb.NewNumberValue(*v)
		}
	}
	if o.MaxIterations != nil {
		s.Fields["maxIterations"] = structpb.NewNumberValue(float64(*o.MaxIterations))
	}
	return s
}

func decodeOverrides(s *structpb.Struct) (dosing.Overrides, error) {
	var o dosing.Overrides
	for key, dst := range map[string]**float64{
		"targetValue": &o.TargetValue,
		"targetMin":   &o.TargetMin,
		"targetMax":   &o.TargetMax,
	} {
		v, ok, err := number(s, key)
		if err != nil {
			return o, err
		}
		if ok {
			*dst = &v
		}
	}

	v, ok, err := number(s, "maxIterations")
	if err != nil {
		return o, err
	}
	if ok {
		if v != math.Trunc(v) || v < 0 || v > math.MaxInt32 {
			return o, fmt.Errorf("field %q: want a non-negative integer, got %v", "maxIterations", v)
		}
		n := int(v)
		o.MaxIterations = &n
	}
	return o, nil
}

func encodeResult(r dosing.Result) *structpb.Struct {
	steps := make([]*structpb.Value, len(r.Trajectory))
	for i, st := range r.Trajectory {
		steps[i] = structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"duration":       structpb.NewNumberValue(st.Duration),
			"cumulativeTime": structpb.NewNumberValue(st.CumulativeTime),
			"predicted":      structpb.NewNumberValue(st.Predicted),
		}})
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"reason":     structpb.NewStringValue(string(r.Reason)),
		"stalls":     structpb.NewNumberValue(float64(r.Stalls)),
		"trajectory": structpb.NewListValue(&structpb.ListValue{Values: steps}),
	}}
}

func decodeResult(s *structpb.Struct) (dosing.Result, error) {
	var r dosing.Result
	r.Reason = dosing.Reason(s.GetFields()["reason"].GetStringValue())

	stalls, err := requireNumber(s, "stalls")
	if err != nil {
		return r, err
	}
	r.Stalls = int(stalls)

	for i, v := range s.GetFields()["trajectory"].GetListValue().GetValues() {
		st := v.GetStructValue()
		if st == nil {
			return r, fmt.Errorf("trajectory[%d]: want an object", i)
		}
		var step dosing.Step
		if step.Duration, err = requireNumber(st, "duration"); err != nil {
			return r, fmt.Errorf("trajectory[%d]: %w", i, err)
		}
		if step.CumulativeTime, err = requireNumber(st, "cumulativeTime"); err != nil {
			return r, fmt.Errorf("trajectory[%d]: %w", i, err)
		}
		if step.Predicted, err = requireNumber(st, "predicted"); err != nil {
			return r, fmt.Errorf("trajectory[%d]: %w", i, err)
		}
		r.Trajectory = append(r.Trajectory, step)
	}
	return r, nil
}

// Package router configures the predictor's HTTP API.
//
// Routes:
//   - GET /predict?duration=&cumulativeTime= - evaluate the surface at one point
//   - GET /plan[?targetValue=&targetMin=&targetMax=&maxIterations=] - run the dosing controller
//     (target is accepted as an alias of targetValue)
//   - GET /table/current[?name=&format=json|bin|c] - latest generated table
//   - GET /healthz - 200 once the interpolator is built, 503 before
//   - GET /metrics - Prometheus metrics
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/dosimap/pkg/dosing"
	"github.com/HatiCode/dosimap/pkg/httpx"
	"github.com/HatiCode/dosimap/pkg/interp"
	"github.com/HatiCode/dosimap/pkg/lut"
	"github.com/HatiCode/dosimap/pkg/storage"
)

// Service is what the routes need from the predictor.
type Service interface {
	Evaluate(duration, cumulativeTime float64) (interp.Prediction, error)
	Plan(ctx context.Context, o dosing.Overrides) (dosing.Result, error)
	TableName() string
	Ready() error
}

// PredictResponse is the body of GET /predict.
type PredictResponse struct {
	Duration       float64 `json:"duration"`
	CumulativeTime float64 `json:"cumulativeTime"`
	Value          float64 `json:"value"`
	InDomain       bool    `json:"inDomain"`
}

// SetupRoutes configures the predictor endpoints.
func SetupRoutes(svc Service, store storage.Store, gatherer prometheus.Gatherer, logger *slog.Logger) *http.ServeMux {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	mux.Handle("GET /healthz", httpx.HealthHandler(svc.Ready))
	mux.HandleFunc("GET /predict", handlePredict(svc, logger))
	mux.HandleFunc("GET /plan", handlePlan(svc, logger))
	mux.HandleFunc("GET /table/current", handleGetTable(svc, store, logger))
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return mux
}

func handlePredict(svc Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !ready(w, svc) {
			return
		}
		q := r.URL.Query()
		d, err := requiredFloat(q.Get("duration"), "duration")
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err)
			return
		}
		c, err := requiredFloat(q.Get("cumulativeTime"), "cumulativeTime")
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err)
			return
		}

		p, err := svc.Evaluate(d, c)
		switch {
		case errors.Is(err, interp.ErrInvalidQuery):
			httpx.WriteError(w, http.StatusBadRequest, err)
			return
		case err != nil:
			writeServiceError(w, logger, "evaluate failed", err)
			return
		}

		resp := PredictResponse{Duration: d, CumulativeTime: c, Value: p.Value, InDomain: p.InDomain}
		if err := httpx.WriteJSON(w, http.StatusOK, resp); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

func handlePlan(svc Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !ready(w, svc) {
			return
		}
		o, err := parseOverrides(r)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err)
			return
		}

		res, err := svc.Plan(r.Context(), o)
		switch {
		case errors.Is(err, dosing.ErrInvalidConfig):
			httpx.WriteError(w, http.StatusBadRequest, err)
			return
		case err != nil:
			writeServiceError(w, logger, "plan failed", err)
			return
		}

		if err := httpx.WriteJSON(w, http.StatusOK, res); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

func handleGetTable(svc Service, store storage.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		if name == "" {
			name = svc.TableName()
		}
		if err := storage.ValidateName(name); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err)
			return
		}

		format := r.URL.Query().Get("format")
		switch format {
		case "", "json", "bin", "c":
		default:
			httpx.WriteErrorMessage(w, http.StatusBadRequest, fmt.Sprintf("invalid format %q (must be json, bin or c)", format))
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		snapshot, found, err := store.GetLatest(ctx, name)
		if err != nil {
			logger.Error("failed to get table", "name", name, "error", err)
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if !found {
			httpx.WriteErrorMessage(w, http.StatusNotFound, fmt.Sprintf("table %q not found", name))
			return
		}

		w.Header().Set("X-Dosimap-Generated-At", snapshot.GeneratedAt.UTC().Format(time.RFC3339))
		switch format {
		case "bin":
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.dlut"`, name))
			err = lut.WriteBinary(w, &snapshot.Table)
		case "c":
			w.Header().Set("Content-Type", "text/x-c; charset=utf-8")
			w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.h"`, name))
			err = lut.WriteC(w, &snapshot.Table, name)
		default:
			err = httpx.WriteJSON(w, http.StatusOK, snapshot)
		}
		if err != nil {
			logger.Error("failed to write table", "name", name, "format", format, "error", err)
		}
	}
}

func writeServiceError(w http.ResponseWriter, logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
}

// ready writes 503 and returns false until the service is built.
func ready(w http.ResponseWriter, svc Service) bool {
	if err := svc.Ready(); err != nil {
		httpx.WriteError(w, http.StatusServiceUnavailable, err)
		return false
	}
	return true
}

func requiredFloat(s, name string) (float64, error) {
	if s == "" {
		return 0, fmt.Errorf("%s parameter required", name)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be a number", name, s)
	}
	return v, nil
}

func parseOverrides(r *http.Request) (dosing.Overrides, error) {
	q := r.URL.Query()
	var o dosing.Overrides

	if q.Has("target") {
		if q.Has("targetValue") {
			return o, fmt.Errorf("target and targetValue are aliases; set only one")
		}
		q.Set("targetValue", q.Get("target"))
	}

	for name, dst := range map[string]**float64{
		"targetValue": &o.TargetValue,
		"targetMin":   &o.TargetMin,
		"targetMax":   &o.TargetMax,
	} {
		if s := q.Get(name); s != "" {
			v, err := requiredFloat(s, name)
			if err != nil {
				return o, err
			}
			*dst = &v
		}
	}

	if s := q.Get("maxIterations"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return o, fmt.Errorf("invalid maxIterations %q: must be a non-negative integer", s)
		}
		o.MaxIterations = &n
	}
	return o, nil
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/HatiCode/dosimap/pkg/dosing"
	"github.com/HatiCode/dosimap/pkg/interp"
	"github.com/HatiCode/dosimap/pkg/lut"
	"github.com/HatiCode/dosimap/pkg/report"
)

var errUsage = errors.New("invalid arguments")

func runPredict(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, c := newFlagSet("predict", stderr)
	duration := fs.Float64("duration", 0, "Valve time in ms (required)")
	cumulative := fs.Float64("time", 0, "Cumulative time in ms (required)")
	addr := fs.String("addr", "", "Query a running predictor at this gRPC address")
	c.registerTLS(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !isSet(fs, "duration") || !isSet(fs, "time") {
		return fmt.Errorf("%w: -duration and -time are required", errUsage)
	}

	var p interp.Prediction
	if *addr != "" {
		client, closeConn, err := c.dial(*addr)
		if err != nil {
			return err
		}
		defer closeConn()
		if p, err = client.Evaluate(ctx, *duration, *cumulative); err != nil {
			return err
		}
	} else {
		log, err := c.logger(stderr)
		if err != nil {
			return err
		}
		in, err := c.interpolator(ctx, log)
		if err != nil {
			return err
		}
		if p, err = in.Evaluate(*duration, *cumulative); err != nil {
			return err
		}
	}

	if !p.InDomain {
		fmt.Fprintf(stdout, "Predicted TDS₀: outside calibrated domain (valve time %g ms, cumulative time %g ms)\n",
			*duration, *cumulative)
		return nil
	}
	fmt.Fprintf(stdout, "Predicted TDS₀: %.2f ppm\n", p.Value)
	return nil
}

func runPlan(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, c := newFlagSet("plan", stderr)
	target := fs.Float64("target", 0, "Target TDS₀ (default from profile)")
	targetMin := fs.Float64("target-min", 0, "Lower edge of the acceptance band (default from profile)")
	targetMax := fs.Float64("target-max", 0, "Upper edge of the acceptance band (default from profile)")
	maxIter := fs.Int("max-iterations", 0, "Cycle cap (default from profile)")
	addr := fs.String("addr", "", "Run the plan on a running predictor at this gRPC address")
	c.registerTLS(fs)
	out := fs.String("plot", "", "Write a trajectory chart to this PNG file")
	step := fs.Float64("plot-step", 250, "Cumulative-time sampling step of the chart in ms")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *addr != "" && *out != "" {
		return fmt.Errorf("%w: -plot needs the local source and cannot be combined with -addr", errUsage)
	}

	var o dosing.Overrides
	if isSet(fs, "target") {
		o.TargetValue = target
	}
	if isSet(fs, "target-min") {
		o.TargetMin = targetMin
	}
	if isSet(fs, "target-max") {
		o.TargetMax = targetMax
	}
	if isSet(fs, "max-iterations") {
		o.MaxIterations = maxIter
	}

	if *addr != "" {
		client, closeConn, err := c.dial(*addr)
		if err != nil {
			return err
		}
		defer closeConn()
		res, err := client.Plan(ctx, o)
		if err != nil {
			return err
		}
		printResult(stdout, res)
		return nil
	}

	log, err := c.logger(stderr)
	if err != nil {
		return err
	}
	prof, err := c.loadProfile()
	if err != nil {
		return err
	}
	in, err := c.interpolator(ctx, log)
	if err != nil {
		return err
	}

	cfg := o.Apply(prof.DosingConfig())
	res, err := dosing.New(in, log).Run(cfg)
	if err != nil {
		return err
	}
	printResult(stdout, res)

	if *out == "" {
		return nil
	}
	p, err := report.Trajectory(in, res, cfg, *step)
	if err != nil {
		return err
	}
	return writeFile(*out, func(w io.Writer) error {
		return report.WritePNG(w, p, report.DefaultWidth, report.DefaultHeight)
	})
}

func printResult(w io.Writer, res dosing.Result) {
	for _, st := range res.Trajectory {
		fmt.Fprintf(w, "Valve time: %g ms, Cumulative time: %g ms → TDS₀ ≈ %.2f ppm\n",
			st.Duration, st.CumulativeTime, st.Predicted)
	}
	fmt.Fprintf(w, "Stopped after %d cycles: %s", len(res.Trajectory), res.Reason)
	if res.Stalls > 0 {
		fmt.Fprintf(w, " (%d cycles kept the previous valve time)", res.Stalls)
	}
	fmt.Fprintln(w)
}

func runTable(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, c := newFlagSet("table", stderr)
	format := fs.String("format", "json", "Output format: json, bin, c")
	out := fs.String("o", "", "Output file (default: stdout)")
	name := fs.String("name", "", "Table name used for C identifiers (default from profile)")
	workers := fs.Int("workers", 0, "Generation workers (default from profile)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch *format {
	case "json", "bin", "c":
	default:
		return fmt.Errorf("%w: unknown format %q (must be json, bin, or c)", errUsage, *format)
	}

	log, err := c.logger(stderr)
	if err != nil {
		return err
	}
	prof, err := c.loadProfile()
	if err != nil {
		return err
	}
	if *name != "" {
		prof.Table.Name = *name
	}
	if *workers > 0 {
		prof.Table.Workers = *workers
	}

	write := lut.WriteJSON
	switch *format {
	case "bin":
		write = lut.WriteBinary
	case "c":
		write = func(w io.Writer, t *lut.Table) error { return lut.WriteC(w, t, prof.Table.Name) }
	}

	in, err := c.interpolator(ctx, log)
	if err != nil {
		return err
	}
	d, ct := prof.Axes()
	t, err := lut.NewGenerator(in, prof.Table.Workers, log).Generate(ctx, d, ct)
	if err != nil {
		return err
	}

	if *out == "" {
		return write(stdout, t)
	}
	return writeFile(*out, func(w io.Writer) error { return write(w, t) })
}

func runPlot(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, c := newFlagSet("plot", stderr)
	durations := fs.String("durations", "50,100,150,200,250,300", "Comma-separated valve times in ms")
	from := fs.Float64("from", 0, "First cumulative time in ms")
	to := fs.Float64("to", 50000, "Last cumulative time in ms")
	step := fs.Float64("step", 250, "Cumulative-time step in ms")
	out := fs.String("o", "", "Output PNG file (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		return fmt.Errorf("%w: -o is required", errUsage)
	}

	ds, err := parseFloats(*durations)
	if err != nil {
		return err
	}
	times, err := report.Times(*from, *to, *step)
	if err != nil {
		return err
	}

	log, err := c.logger(stderr)
	if err != nil {
		return err
	}
	in, err := c.interpolator(ctx, log)
	if err != nil {
		return err
	}

	p, err := report.Curves(in, ds, times)
	if err != nil {
		return err
	}
	if err := writeFile(*out, func(w io.Writer) error {
		return report.WritePNG(w, p, report.DefaultWidth, report.DefaultHeight)
	}); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Wrote %s\n", *out)
	return nil
}

func isSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func parseFloats(s string) ([]float64, error) {
	var out []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad valve time %q", errUsage, part)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no valve times given", errUsage)
	}
	return out, nil
}

// writeFile creates path and removes it again if fn fails.
func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

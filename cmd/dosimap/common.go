package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/HatiCode/dosimap/pkg/interp"
	"github.com/HatiCode/dosimap/pkg/logger"
	"github.com/HatiCode/dosimap/pkg/profile"
	"github.com/HatiCode/dosimap/pkg/rpc"
	"github.com/HatiCode/dosimap/pkg/sources"
	"github.com/HatiCode/dosimap/pkg/tls"
)

// common holds the flags shared by every command.
type common struct {
	source     string
	sourcePath string
	sourceOpts map[string]string
	profile    string
	logLevel   string
	logFormat  string
	tls        tls.Config
	serverName string
}

func newFlagSet(name string, stderr io.Writer) (*flag.FlagSet, *common) {
	fs := flag.NewFlagSet("dosimap "+name, flag.ContinueOnError)
	fs.SetOutput(stderr)

	c := &common{sourceOpts: map[string]string{}}
	fs.StringVar(&c.source, "source", "builtin", "Calibration source: builtin, json, http, sqlite, columns")
	fs.StringVar(&c.sourcePath, "source-path", "", "Calibration file or database path")
	fs.Func("source-opt", "Source setting as key=value (repeatable), e.g. url=http://host/samples", func(s string) error {
		k, v, ok := strings.Cut(s, "=")
		if !ok || k == "" {
			return fmt.Errorf("expected key=value, got %q", s)
		}
		c.sourceOpts[k] = v
		return nil
	})
	fs.StringVar(&c.profile, "profile", "", "Dosing profile INI file (default: reference run)")
	fs.StringVar(&c.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	fs.StringVar(&c.logFormat, "log-format", "text", "Log format: text, json")
	return fs, c
}

// registerTLS adds the client certificate flags used with -addr.
func (c *common) registerTLS(fs *flag.FlagSet) {
	fs.StringVar(&c.tls.CertFile, "tls-cert", "", "Client certificate for -addr (PEM)")
	fs.StringVar(&c.tls.KeyFile, "tls-key", "", "Client private key for -addr (PEM)")
	fs.StringVar(&c.tls.CAFile, "tls-ca", "", "CA bundle verifying the predictor (PEM)")
	fs.StringVar(&c.serverName, "tls-server-name", "", "Server name expected in the predictor certificate")
}

func (c *common) logger(stderr io.Writer) (*slog.Logger, error) {
	return logger.New(stderr, c.logFormat, c.logLevel)
}

func (c *common) loadProfile() (*profile.Profile, error) {
	if c.profile == "" {
		p := profile.Default()
		return p, p.CheckInit()
	}
	return profile.Load(c.profile)
}

// interpolator loads the configured source and triangulates it.
func (c *common) interpolator(ctx context.Context, log *slog.Logger) (*interp.Interpolator, error) {
	cfg := make(map[string]string, len(c.sourceOpts)+1)
	for k, v := range c.sourceOpts {
		cfg[k] = v
	}
	if c.sourcePath != "" {
		cfg["path"] = c.sourcePath
	}

	src, err := sources.New(c.source, cfg)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	ts, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load %s source: %w", src.Name(), err)
	}
	in, err := interp.New(ts)
	if err != nil {
		return nil, err
	}
	log.Info("interpolator built",
		"source", src.Name(),
		"samples", ts.Len(),
		"triangles", in.NumTriangles(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return in, nil
}

// dial connects to a running predictor, over mutual TLS when configured.
func (c *common) dial(addr string) (*rpc.Client, func(), error) {
	creds := insecure.NewCredentials()
	if c.tls.Enabled() {
		tlsConfig, err := c.tls.Client(c.serverName)
		if err != nil {
			return nil, nil, err
		}
		creds = credentials.NewTLS(tlsConfig)
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	return rpc.NewClient(conn), func() { _ = conn.Close() }, nil
}

package config

import (
	"flag"
	"io"
	"os"
	"testing"
	"time"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("predictor", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func TestGetEnv(t *testing.T) {
	t.Setenv("DOSIMAP_TEST_VAR", "from-env")

	if got := getEnv("DOSIMAP_TEST_VAR", "default"); got != "from-env" {
		t.Errorf("getEnv() = %q, want from-env", got)
	}
	if got := getEnv("DOSIMAP_TEST_UNSET", "default"); got != "default" {
		t.Errorf("getEnv() = %q, want default", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		want     int
	}{
		{name: "valid", envValue: "42", want: 42},
		{name: "invalid falls back", envValue: "many", want: 7},
		{name: "unset", envValue: "", want: 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv("DOSIMAP_TEST_INT", tt.envValue)
			}
			if got := getEnvInt("DOSIMAP_TEST_INT", 7); got != tt.want {
				t.Errorf("getEnvInt() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("DOSIMAP_TEST_DUR", "90s")
	if got := getEnvDuration("DOSIMAP_TEST_DUR", time.Minute); got != 90*time.Second {
		t.Errorf("getEnvDuration() = %v, want 90s", got)
	}
	t.Setenv("DOSIMAP_TEST_DUR", "soon")
	if got := getEnvDuration("DOSIMAP_TEST_DUR", time.Minute); got != time.Minute {
		t.Errorf("getEnvDuration() = %v, want fallback 1m", got)
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse(newFlagSet(), nil)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Listen != ":8081" || cfg.GRPCListen != ":50051" {
		t.Errorf("listen = %q, grpc = %q", cfg.Listen, cfg.GRPCListen)
	}
	if cfg.Storage != "memory" || cfg.Source != "builtin" {
		t.Errorf("storage = %q, source = %q", cfg.Storage, cfg.Source)
	}
	if cfg.RedisTTL != 0 || cfg.MemoryTTL != 0 || cfg.StoreTTL() != 0 {
		t.Errorf("ttl = redis %v, memory %v; want no expiry by default", cfg.RedisTTL, cfg.MemoryTTL)
	}
}

func TestStoreTTL(t *testing.T) {
	cfg, err := Parse(newFlagSet(), []string{"-storage=redis", "-redis-ttl=1h", "-memory-ttl=5m"})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := cfg.StoreTTL(); got != time.Hour {
		t.Errorf("redis StoreTTL() = %v, want 1h", got)
	}
	cfg.Storage = "memory"
	if got := cfg.StoreTTL(); got != 5*time.Minute {
		t.Errorf("memory StoreTTL() = %v, want 5m", got)
	}
}

func TestParse_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("STORAGE", "redis")
	t.Setenv("SOURCE", "json")
	t.Setenv("SOURCE_VALUE_PATH", "rows.#.tds")

	cfg, err := Parse(newFlagSet(), []string{"-storage=memory", "-source-path=/data/samples.json", "-table-name=tank_a"})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Storage != "memory" {
		t.Errorf("storage = %q, want flag value memory", cfg.Storage)
	}
	if cfg.Source != "json" {
		t.Errorf("source = %q, want env value json", cfg.Source)
	}
	if cfg.SourceConfig["path"] != "/data/samples.json" {
		t.Errorf("path = %q", cfg.SourceConfig["path"])
	}
	if cfg.SourceConfig["valuePath"] != "rows.#.tds" {
		t.Errorf("valuePath = %q", cfg.SourceConfig["valuePath"])
	}
	if cfg.TableName != "tank_a" {
		t.Errorf("table name = %q", cfg.TableName)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "unknown storage", args: []string{"-storage=etcd"}},
		{name: "bad table name", args: []string{"-table-name=tank a"}},
		{name: "negative workers", args: []string{"-workers=-2"}},
		{name: "same listen addresses", args: []string{"-listen=:9000", "-grpc-listen=:9000"}},
		{name: "empty source", args: []string{"-source="}},
		{name: "negative ttl", args: []string{"-memory-ttl=-1m"}},
		{name: "unknown flag", args: []string{"-horizon=5m"}},
		{name: "partial tls", args: []string{"-tls-cert=server.crt"}},
		{name: "missing tls files", args: []string{"-tls-cert=/nonexistent/a", "-tls-key=/nonexistent/b", "-tls-ca=/nonexistent/c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(newFlagSet(), tt.args); err == nil {
				t.Error("Parse() error = nil")
			}
		})
	}
}

func TestParseSourceConfig(t *testing.T) {
	got := parseSourceConfig([]string{
		"SOURCE=http",
		"SOURCE_URL=http://lab:8080/samples",
		"SOURCE_TEMPLATE_VARS={\"tank\":\"a\"}",
		"SOURCE_PATH=/ignored",
		"SOURCE_QUERY=SELECT a=b FROM t",
		"HOME=/root",
	})
	want := map[string]string{
		"url":          "http://lab:8080/samples",
		"templateVars": `{"tank":"a"}`,
		"query":        "SELECT a=b FROM t",
	}
	if len(got) != len(want) {
		t.Fatalf("parseSourceConfig() = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
}

func TestToLowerCamelCase(t *testing.T) {
	tests := map[string]string{
		"URL":           "url",
		"VALUE_PATH":    "valuePath",
		"TEMPLATE_VARS": "templateVars",
		"DURATION_PATH": "durationPath",
		"":              "",
	}
	for in, want := range tests {
		if got := toLowerCamelCase(in); got != want {
			t.Errorf("toLowerCamelCase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMain(m *testing.M) {
	for _, k := range []string{"LISTEN", "GRPC_LISTEN", "STORAGE", "SOURCE", "SOURCE_PATH", "TABLE_NAME", "WORKERS", "PROFILE", "TLS_CERT_FILE", "TLS_KEY_FILE", "TLS_CA_FILE"} {
		os.Unsetenv(k)
	}
	os.Exit(m.Run())
}

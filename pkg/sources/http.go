package sources

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/HatiCode/dosimap/pkg/calibration"
	"github.com/HatiCode/dosimap/pkg/httpx"
)

// maxDocumentBytes bounds the size of a fetched calibration document.
const maxDocumentBytes = 16 << 20

// HTTP fetches a JSON calibration document from a REST endpoint and extracts
// the samples with gjson paths.
//
// Header values and the body may use text/template variables from
// TemplateVars, e.g. "Bearer {{.Token}}".
type HTTP struct {
	// URL is the endpoint to call (required).
	URL string

	// Method is the HTTP method. Defaults to GET if empty.
	Method string

	// Headers are custom HTTP headers to include in the request.
	Headers map[string]string

	// Body is the request body template (for POST/PUT).
	Body string

	// Paths are gjson paths to the sample columns.
	Paths Paths

	// Timeout applies when HTTPClient is nil. Defaults to 10s.
	Timeout time.Duration

	// HTTPClient is optional; if nil a default client with Timeout is used.
	HTTPClient *http.Client

	// TemplateVars are variables available in Body and Headers templates.
	TemplateVars map[string]string
}

func (h *HTTP) Name() string { return "http" }

// Load implements Source.
func (h *HTTP) Load(ctx context.Context) (*calibration.TrainingSet, error) {
	if h.URL == "" {
		return nil, fmt.Errorf("http source: URL is required")
	}

	method := h.Method
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	if h.Body != "" {
		rendered, err := renderTemplate(h.Body, h.TemplateVars)
		if err != nil {
			return nil, fmt.Errorf("render body template: %w", err)
		}
		bodyReader = strings.NewReader(rendered)
	}

	cli := h.HTTPClient
	if cli == nil {
		timeout := h.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		cli = httpx.NewClient(timeout)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.URL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	for key, value := range h.Headers {
		rendered, err := renderTemplate(value, h.TemplateVars)
		if err != nil {
			return nil, fmt.Errorf("render header %s: %w", key, err)
		}
		req.Header.Set(key, rendered)
	}

	resp, err := cli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, string(body))
	}

	doc, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	samples, err := extract(doc, h.Paths)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", h.URL, err)
	}
	return calibration.New(samples)
}

// renderTemplate renders a text template with the given variables.
func renderTemplate(tmplStr string, vars map[string]string) (string, error) {
	if !strings.Contains(tmplStr, "{{") {
		return tmplStr, nil
	}

	tmpl, err := template.New("").Option("missingkey=error").Parse(tmplStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", err
	}
	return buf.String(), nil
}

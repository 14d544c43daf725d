package sources

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// New creates a source based on kind and a generic configuration map.
//
// Supported kinds:
//   - "builtin": the reference calibration run
//   - "json":    a JSON file (path, durationPath, timePath, valuePath)
//   - "http":    a JSON document fetched over HTTP (url, method, headers, body,
//     timeout and the same paths as "json")
//   - "sqlite":  a SQLite database (path, query)
//   - "columns": a whitespace-separated text file (path, columns)
//
// Returns error if kind is unknown or required fields are missing.
func New(kind string, config map[string]string) (Source, error) {
	switch kind {
	case "", "builtin":
		return &Builtin{}, nil
	case "json":
		return newJSONFile(config)
	case "http":
		return newHTTP(config)
	case "sqlite":
		return newSQLite(config)
	case "columns":
		return newColumns(config)
	default:
		return nil, fmt.Errorf("unknown source kind: %s (must be builtin, json, http, sqlite, or columns)", kind)
	}
}

func pathsFrom(config map[string]string) Paths {
	return Paths{
		Duration:       config["durationPath"],
		CumulativeTime: config["timePath"],
		Measurement:    config["valuePath"],
	}
}

func newJSONFile(config map[string]string) (Source, error) {
	path := config["path"]
	if path == "" {
		return nil, fmt.Errorf("json source requires 'path' config")
	}
	return &JSONFile{Path: path, Paths: pathsFrom(config)}, nil
}

func newHTTP(config map[string]string) (Source, error) {
	url := config["url"]
	if url == "" {
		return nil, fmt.Errorf("http source requires 'url' config")
	}

	method := config["method"]
	if method == "" {
		method = "GET"
	}

	var headers map[string]string
	if headersJSON := config["headers"]; headersJSON != "" {
		if err := json.Unmarshal([]byte(headersJSON), &headers); err != nil {
			return nil, fmt.Errorf("invalid 'headers' JSON: %w", err)
		}
	}

	var templateVars map[string]string
	if varsJSON := config["templateVars"]; varsJSON != "" {
		if err := json.Unmarshal([]byte(varsJSON), &templateVars); err != nil {
			return nil, fmt.Errorf("invalid 'templateVars' JSON: %w", err)
		}
	}

	var timeout time.Duration
	if v := config["timeout"]; v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid 'timeout': %w", err)
		}
		timeout = d
	}

	return &HTTP{
		URL:          url,
		Method:       method,
		Headers:      headers,
		Body:         config["body"],
		Paths:        pathsFrom(config),
		Timeout:      timeout,
		TemplateVars: templateVars,
	}, nil
}

func newSQLite(config map[string]string) (Source, error) {
	path := config["path"]
	if path == "" {
		return nil, fmt.Errorf("sqlite source requires 'path' config")
	}
	return &SQLite{Path: path, Query: config["query"]}, nil
}

func newColumns(config map[string]string) (Source, error) {
	path := config["path"]
	if path == "" {
		return nil, fmt.Errorf("columns source requires 'path' config")
	}

	cols := [3]int{0, 1, 2}
	if v := config["columns"]; v != "" {
		parts := strings.Split(v, ",")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid 'columns' %q: want three comma-separated indices", v)
		}
		for i, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil || n < 0 {
				return nil, fmt.Errorf("invalid 'columns' %q: index %q", v, p)
			}
			cols[i] = n
		}
	}
	return &Columns{Path: path, Columns: cols}, nil
}

// Package nlbridgectl implements the operator CLI against the HTTP API.
package nlbridgectl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("nlbridgectl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "nlbridge API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 60*time.Second), "HTTP timeout (e.g. 60s)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	command := strings.TrimSpace(fs.Arg(0))
	method := ""
	path := ""
	var body []byte
	switch command {
	case "health":
		method, path = http.MethodGet, "/v1/health"
	case "ready":
		method, path = http.MethodGet, "/v1/ready"
	case "backends":
		method, path = http.MethodGet, "/v1/backends"
	case "ask":
		payload, code := parseAskArgs(fs.Args()[1:], stderr)
		if code != 0 {
			return code
		}
		method, path = http.MethodPost, "/v1/ask"
		body = payload
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}

	endpoint := strings.TrimRight(*baseURL, "/") + path
	code, responseBody, err := doRequest(ctx, client, method, endpoint, *apiKey, body)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

func parseAskArgs(args []string, stderr io.Writer) ([]byte, int) {
	askFlags := flag.NewFlagSet("ask", flag.ContinueOnError)
	askFlags.SetOutput(stderr)
	backendName := askFlags.String("backend", "", "target backend (postgres, mysql, sqlite, cassandra, lakehouse)")
	schemaContext := askFlags.String("context", "", "optional schema context passed to translation")
	if err := askFlags.Parse(args); err != nil {
		return nil, 2
	}
	question := strings.TrimSpace(strings.Join(askFlags.Args(), " "))
	if question == "" {
		_, _ = fmt.Fprintln(stderr, "ask: question is required")
		return nil, 2
	}
	if strings.TrimSpace(*backendName) == "" {
		_, _ = fmt.Fprintln(stderr, "ask: -backend is required")
		return nil, 2
	}
	payload, err := json.Marshal(map[string]string{
		"question": question,
		"backend":  strings.TrimSpace(*backendName),
		"context":  *schemaContext,
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "ask: %v\n", err)
		return nil, 1
	}
	return payload, 0
}

func doRequest(ctx context.Context, client *http.Client, method, url, apiKey string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: nlbridgectl [flags] <command>")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health                                  GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready                                   GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  backends                                GET /v1/backends")
	_, _ = fmt.Fprintln(w, "  ask -backend <kind> [-context s] <q>    POST /v1/ask")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}

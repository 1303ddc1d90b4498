package maerctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
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

// command maps a subcommand onto one API call. minArgs counts the positional
// arguments after the command name.
type command struct {
	name    string
	args    string
	method  string
	minArgs int
	build   func(args []string) (string, any, error)
}

var commands = []command{
	{name: "health", method: http.MethodGet, build: static("/v1/health")},
	{name: "ready", method: http.MethodGet, build: static("/v1/ready")},
	{name: "session", method: http.MethodPost, build: static("/v1/sessions")},
	{name: "close", args: "<session>", method: http.MethodDelete, minArgs: 1, build: sessionPath("")},
	{name: "ask", args: "<session> <question...>", method: http.MethodPost, minArgs: 2, build: func(args []string) (string, any, error) {
		return sessionURL(args[0], "/questions"), map[string]string{"question": strings.Join(args[1:], " ")}, nil
	}},
	{name: "sql", args: "<session> <statement...>", method: http.MethodPost, minArgs: 2, build: func(args []string) (string, any, error) {
		return sessionURL(args[0], "/query"), map[string]string{"sql": strings.Join(args[1:], " ")}, nil
	}},
	{name: "memory", args: "<session>", method: http.MethodGet, minArgs: 1, build: sessionPath("/memory")},
	{name: "reset", args: "<session>", method: http.MethodDelete, minArgs: 1, build: sessionPath("/memory")},
	{name: "reasoning", args: "<session> on|off", method: http.MethodPut, minArgs: 2, build: func(args []string) (string, any, error) {
		var enabled bool
		switch strings.ToLower(args[1]) {
		case "on", "true":
			enabled = true
		case "off", "false":
		default:
			return "", nil, fmt.Errorf("reasoning expects on or off, got %q", args[1])
		}
		return sessionURL(args[0], "/reasoning"), map[string]bool{"enabled": enabled}, nil
	}},
	{name: "schema", args: "<session>", method: http.MethodGet, minArgs: 1, build: sessionPath("/schema")},
	{name: "reload", args: "<session>", method: http.MethodPost, minArgs: 1, build: sessionPath("/reload")},
	{name: "overview", args: "<session>", method: http.MethodGet, minArgs: 1, build: sessionPath("/overview")},
	{name: "presets", method: http.MethodGet, build: static("/v1/presets")},
	{name: "preset", args: "<session> <name>", method: http.MethodPost, minArgs: 2, build: func(args []string) (string, any, error) {
		return sessionURL(args[0], "/presets/"+url.PathEscape(args[1])), nil, nil
	}},
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

	fs := flag.NewFlagSet("maerctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "maer API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 90*time.Second), "HTTP timeout (e.g. 90s)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	name := strings.TrimSpace(fs.Arg(0))
	cmd, ok := lookupCommand(name)
	if !ok {
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", name)
		writeUsage(stderr)
		return 2
	}
	rest := fs.Args()[1:]
	if len(rest) < cmd.minArgs {
		_, _ = fmt.Fprintf(stderr, "usage: maerctl %s %s\n", cmd.name, cmd.args)
		return 2
	}
	path, payload, err := cmd.build(rest)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	endpoint := strings.TrimRight(*baseURL, "/") + path
	code, responseBody, err := doRequest(ctx, client, cmd.method, endpoint, *apiKey, payload)
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

func lookupCommand(name string) (command, bool) {
	for _, cmd := range commands {
		if cmd.name == name {
			return cmd, true
		}
	}
	return command{}, false
}

func static(path string) func([]string) (string, any, error) {
	return func([]string) (string, any, error) { return path, nil, nil }
}

func sessionPath(suffix string) func([]string) (string, any, error) {
	return func(args []string) (string, any, error) { return sessionURL(args[0], suffix), nil, nil }
}

func sessionURL(id, suffix string) string {
	return "/v1/sessions/" + url.PathEscape(id) + suffix
}

func doRequest(ctx context.Context, client *http.Client, method, url, apiKey string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
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

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, raw, nil
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
	_, _ = fmt.Fprintln(w, "usage: maerctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	for _, cmd := range commands {
		_, _ = fmt.Fprintf(w, "  %-10s %s\n", cmd.name, cmd.args)
	}
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

package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	neturl "net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/maerai/maer/internal/config"
	"github.com/maerai/maer/internal/observability"
)

// ErrorTextLimit bounds how much of a raw provider body is surfaced in a
// failure message.
const ErrorTextLimit = 400

type Reason string

const (
	ReasonMissingCredential Reason = "missing_credential"
	ReasonTransport         Reason = "transport"
	ReasonTimeout           Reason = "timeout"
	ReasonBadStatus         Reason = "bad_status"
	ReasonMalformedResponse Reason = "malformed_response"
)

type Failure struct {
	Reason    Reason
	Message   string
	Retryable bool
}

func (f *Failure) Error() string {
	return f.Message
}

// Response carries either generated text or a typed failure. Message keeps the
// "Error: " prefix so callers can surface it unchanged.
type Response struct {
	Text    string
	Failure *Failure
}

func (r Response) OK() bool {
	return r.Failure == nil
}

type Client interface {
	Provider() string
	Generate(ctx context.Context, prompt string) Response
}

type Options struct {
	BaseURL        string
	APIKey         string
	CredentialName string
	Model          string
	Temperature    float64
	Timeout        time.Duration
	HTTPClient     *http.Client
}

func New(cfg config.AIConfig) (Client, error) {
	opts := Options{
		BaseURL:        cfg.BaseURL,
		APIKey:         cfg.APIKey,
		CredentialName: cfg.CredentialName,
		Model:          cfg.Model,
		Temperature:    cfg.Temperature,
		Timeout:        cfg.Timeout,
	}
	switch cfg.Provider {
	case config.ProviderGemini, "":
		return NewGemini(opts), nil
	case config.ProviderOpenAI:
		return NewOpenAI(opts), nil
	default:
		return nil, fmt.Errorf("unsupported ai provider %q", cfg.Provider)
	}
}

func missingCredential(name string) Response {
	return Response{Failure: &Failure{
		Reason:  ReasonMissingCredential,
		Message: "Error: Missing " + name,
	}}
}

func failure(reason Reason, raw string, retryable bool) Response {
	return Response{Failure: &Failure{
		Reason:    reason,
		Message:   "Error: " + Truncate(raw, ErrorTextLimit),
		Retryable: retryable,
	}}
}

// Truncate cuts value to at most limit bytes without splitting a rune.
func Truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut]
}

type httpCaller struct {
	provider string
	client   *http.Client
}

func newHTTPCaller(provider string, opts Options) httpCaller {
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return httpCaller{provider: provider, client: client}
}

// post sends body and hands a 2xx payload to decode. Every path is recorded in
// the model call metrics.
func (c httpCaller) post(ctx context.Context, url string, headers map[string]string, body []byte, decode func([]byte) (string, error)) Response {
	started := time.Now()
	resp := c.do(ctx, url, headers, body, decode)
	outcome := "ok"
	if resp.Failure != nil {
		outcome = string(resp.Failure.Reason)
	}
	observability.ObserveModelCall(c.provider, outcome, time.Since(started))
	return resp
}

func (c httpCaller) do(ctx context.Context, url string, headers map[string]string, body []byte, decode func([]byte) (string, error)) Response {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return failure(ReasonTransport, err.Error(), false)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	httpResp, err := c.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return failure(ReasonTimeout, transportMessage(err), true)
		}
		return failure(ReasonTransport, transportMessage(err), true)
	}
	defer func() { _ = httpResp.Body.Close() }()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		if isTimeout(err) {
			return failure(ReasonTimeout, err.Error(), true)
		}
		return failure(ReasonTransport, err.Error(), true)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		retryable := httpResp.StatusCode == http.StatusTooManyRequests || httpResp.StatusCode >= 500
		return failure(ReasonBadStatus, string(raw), retryable)
	}

	text, err := decode(raw)
	if err != nil {
		return failure(ReasonMalformedResponse, string(raw), false)
	}
	return Response{Text: text}
}

// transportMessage drops the request URL from client errors so endpoint
// details never reach a caller.
func transportMessage(err error) string {
	var urlErr *neturl.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return urlErr.Op + ": " + urlErr.Err.Error()
	}
	return err.Error()
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func trimBaseURL(value, fallback string) string {
	value = strings.TrimRight(strings.TrimSpace(value), "/")
	if value == "" {
		return fallback
	}
	return value
}

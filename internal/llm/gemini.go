package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	defaultGeminiModel   = "gemini-2.0-flash"
)

// Gemini calls the generateContent REST endpoint with a single text part.
type Gemini struct {
	baseURL        string
	apiKey         string
	credentialName string
	model          string
	temperature    float64
	caller         httpCaller
}

func NewGemini(opts Options) *Gemini {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultGeminiModel
	}
	credential := strings.TrimSpace(opts.CredentialName)
	if credential == "" {
		credential = "GEMINI_API_KEY"
	}
	return &Gemini{
		baseURL:        trimBaseURL(opts.BaseURL, defaultGeminiBaseURL),
		apiKey:         strings.TrimSpace(opts.APIKey),
		credentialName: credential,
		model:          model,
		temperature:    opts.Temperature,
		caller:         newHTTPCaller("gemini", opts),
	}
}

func (g *Gemini) Provider() string {
	return "gemini"
}

func (g *Gemini) Generate(ctx context.Context, prompt string) Response {
	if g.apiKey == "" {
		return missingCredential(g.credentialName)
	}

	payload := map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]string{{"text": prompt}}},
		},
		"generationConfig": map[string]any{
			"temperature": g.temperature,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return failure(ReasonTransport, err.Error(), false)
	}

	endpoint := g.baseURL + "/v1beta/models/" + url.PathEscape(g.model) + ":generateContent"
	headers := map[string]string{"x-goog-api-key": g.apiKey}
	return g.caller.post(ctx, endpoint, headers, body, decodeGemini)
}

func decodeGemini(raw []byte) (string, error) {
	var parsed struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("no candidate text")
	}
	return parsed.Candidates[0].Content.Parts[0].Text, nil
}

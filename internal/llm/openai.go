package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com"
	defaultOpenAIModel   = "gpt-5"
)

// OpenAI talks to any chat-completions compatible endpoint.
type OpenAI struct {
	baseURL        string
	apiKey         string
	credentialName string
	model          string
	temperature    float64
	caller         httpCaller
}

func NewOpenAI(opts Options) *OpenAI {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultOpenAIModel
	}
	credential := strings.TrimSpace(opts.CredentialName)
	if credential == "" {
		credential = "OPENAI_API_KEY"
	}
	return &OpenAI{
		baseURL:        trimBaseURL(opts.BaseURL, defaultOpenAIBaseURL),
		apiKey:         strings.TrimSpace(opts.APIKey),
		credentialName: credential,
		model:          model,
		temperature:    opts.Temperature,
		caller:         newHTTPCaller("openai", opts),
	}
}

func (o *OpenAI) Provider() string {
	return "openai"
}

func (o *OpenAI) Generate(ctx context.Context, prompt string) Response {
	if o.apiKey == "" {
		return missingCredential(o.credentialName)
	}

	body, err := json.Marshal(map[string]any{
		"model": o.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": o.temperature,
	})
	if err != nil {
		return failure(ReasonTransport, err.Error(), false)
	}

	headers := map[string]string{"Authorization": "Bearer " + o.apiKey}
	return o.caller.post(ctx, o.baseURL+"/v1/chat/completions", headers, body, decodeChatCompletion)
}

func decodeChatCompletion(raw []byte) (string, error) {
	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("empty chat completion choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

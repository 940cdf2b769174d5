package classifier

import (
	"context"
	"strings"
)

const (
	openAIBaseURL = "https://api.openai.com/v1"
	openAIModel   = "gpt-4o-mini"
)

// OpenAI completes prompts with any Chat Completions compatible endpoint.
type OpenAI struct {
	opts HTTPOptions
}

func NewOpenAI(o HTTPOptions) *OpenAI {
	return &OpenAI{opts: o.withDefaults(openAIBaseURL, openAIModel)}
}

func (o *OpenAI) Name() string { return "openai" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

func (o *OpenAI) Complete(ctx context.Context, prompt string) (string, error) {
	body := chatRequest{
		Model:    o.opts.Model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	}
	headers := map[string]string{}
	if o.opts.APIKey != "" {
		headers["Authorization"] = "Bearer " + o.opts.APIKey
	}
	raw, err := postJSON(ctx, o.opts, o.Name(), strings.TrimRight(o.opts.BaseURL, "/")+"/chat/completions", headers, body)
	if err != nil {
		return "", err
	}
	return textAt(raw, o.Name(), "choices.0.message.content")
}

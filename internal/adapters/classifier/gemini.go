package classifier

import (
	"context"
	"fmt"
	"strings"
)

const (
	geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	geminiModel   = "gemini-2.0-flash"
)

// Gemini completes prompts with the generateContent endpoint.
type Gemini struct {
	opts HTTPOptions
}

func NewGemini(o HTTPOptions) *Gemini {
	return &Gemini{opts: o.withDefaults(geminiBaseURL, geminiModel)}
}

func (g *Gemini) Name() string { return "gemini" }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

func (g *Gemini) Complete(ctx context.Context, prompt string) (string, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(g.opts.BaseURL, "/"), g.opts.Model)
	body := geminiRequest{Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}}}
	raw, err := postJSON(ctx, g.opts, g.Name(), url, map[string]string{"X-goog-api-key": g.opts.APIKey}, body)
	if err != nil {
		return "", err
	}
	return textAt(raw, g.Name(), "candidates.0.content.parts.0.text")
}

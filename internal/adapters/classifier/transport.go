package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/sanjai-web/Micro-Plastic-Detection/internal/domain"
)

const (
	defaultTimeout          = 30 * time.Second
	defaultMaxResponseBytes = 1 << 20
)

// HTTPOptions are shared by the HTTP completers.
type HTTPOptions struct {
	BaseURL          string
	APIKey           string
	Model            string
	Timeout          time.Duration
	MaxResponseBytes int64
	Client           *http.Client
}

func (o HTTPOptions) withDefaults(baseURL, model string) HTTPOptions {
	if o.BaseURL == "" {
		o.BaseURL = baseURL
	}
	if o.Model == "" {
		o.Model = model
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.MaxResponseBytes <= 0 {
		o.MaxResponseBytes = defaultMaxResponseBytes
	}
	if o.Client == nil {
		o.Client = &http.Client{Timeout: o.Timeout}
	}
	return o
}

// postJSON sends body and returns the bounded response body. Transport errors
// and non-2xx statuses are transient failures.
func postJSON(ctx context.Context, o HTTPOptions, name, url string, headers map[string]string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := o.Client.Do(req)
	if err != nil {
		return nil, domain.Wrap(domain.KindTransient, "call "+name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, o.MaxResponseBytes+1))
	if err != nil {
		return nil, domain.Wrap(domain.KindTransient, "read "+name, err)
	}
	if int64(len(raw)) > o.MaxResponseBytes {
		return nil, domain.Wrap(domain.KindTransient, "read "+name, fmt.Errorf("response exceeded limit (%d bytes)", o.MaxResponseBytes))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := gjson.GetBytes(raw, "error.message").String()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, domain.Wrap(domain.KindTransient, "call "+name, fmt.Errorf("status %d: %s", resp.StatusCode, msg))
	}
	return raw, nil
}

// textAt pulls a reply string out of a provider response.
func textAt(raw []byte, name, path string) (string, error) {
	v := gjson.GetBytes(raw, path)
	if v.Type != gjson.String {
		return "", domain.Wrap(domain.KindProtocol, "decode "+name, fmt.Errorf("no text at %s", path))
	}
	return v.Str, nil
}

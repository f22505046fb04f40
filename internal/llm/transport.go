package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ppiankov/textio/internal/util"
)

// bearerTransport replaces the Authorization header with a freshly issued token
type bearerTransport struct {
	base  http.RoundTripper
	token TokenProvider
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.token(req.Context())
	if err != nil {
		return nil, err
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+token)
	return t.base.RoundTrip(clone)
}

// newHTTPClient builds the client shared by all providers
func newHTTPClient(config Config, timeout time.Duration) *http.Client {
	var rt http.RoundTripper = util.NewTransport(config.HTTPProxy, config.HTTPSProxy, config.NoProxy)
	if config.TokenProvider != nil {
		rt = &bearerTransport{base: rt, token: config.TokenProvider}
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: rt,
	}
}

// apiError is returned for non-200 provider responses
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Message)
}

// postJSON sends body to url and decodes a 200 response into out.
// decodeErr extracts a readable message from an error body when it can.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any, decodeErr func([]byte) string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		msg := ""
		if decodeErr != nil {
			msg = decodeErr(respBody)
		}
		if msg == "" {
			msg = string(respBody)
		}
		return &apiError{Status: httpResp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

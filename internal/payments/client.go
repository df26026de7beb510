package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"boxoffice/internal/shared/apperror"
)

// providerClient is a small JSON-over-HTTP client shared by the gateways.
type providerClient struct {
	http    *http.Client
	baseURL string
	auth    func(req *http.Request)
}

func newProviderClient(baseURL string, timeout time.Duration, auth func(req *http.Request)) *providerClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &providerClient{
		http:    &http.Client{Timeout: timeout},
		baseURL: baseURL,
		auth:    auth,
	}
}

// do sends in as JSON and decodes the response into out. A 404 becomes
// ErrProviderPaymentNotFound; transport failures and 5xx become UPSTREAM.
func (c *providerClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode provider request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build provider request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.auth != nil {
		c.auth(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperror.Wrap(apperror.KindUpstream, "payment provider unreachable", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apperror.Wrap(apperror.KindUpstream, "failed to read provider response", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrProviderPaymentNotFound
	case resp.StatusCode >= 500:
		return apperror.New(apperror.KindUpstream, fmt.Sprintf("payment provider returned %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		return apperror.New(apperror.KindUpstream, fmt.Sprintf("payment provider rejected request with %d: %s", resp.StatusCode, truncate(string(payload), 200)))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return apperror.Wrap(apperror.KindUpstream, "malformed provider response", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

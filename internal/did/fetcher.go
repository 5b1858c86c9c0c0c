package did

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Fetcher is the outbound HTTP capability injected into the resolver and
// the verifier's finish step. Implementations own retries and timeouts.
type Fetcher interface {
	Get(ctx context.Context, url string) (status int, body []byte, err error)
	Post(ctx context.Context, url string, payload []byte) (status int, body []byte, err error)
}

// HTTPFetcher is the production Fetcher. All requests go out as JSON.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher builds a fetcher with the given timeout. A nil-safe zero
// timeout falls back to 30 seconds.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}}
}

func (f *HTTPFetcher) Get(ctx context.Context, url string) (int, []byte, error) {
	return f.do(ctx, http.MethodGet, url, nil)
}

func (f *HTTPFetcher) Post(ctx context.Context, url string, payload []byte) (int, []byte, error) {
	return f.do(ctx, http.MethodPost, url, payload)
}

func (f *HTTPFetcher) do(ctx context.Context, method, url string, payload []byte) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request for %s: %w", url, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response from %s: %w", url, err)
	}
	return resp.StatusCode, body, nil
}

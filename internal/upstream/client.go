package upstream

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/andybalholm/brotli"
	json "github.com/goccy/go-json"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultUserAgent = "pkmprices/1.0"
	maxErrorBody     = 512
)

// Client is the fetch-with-headers collaborator shared by provider adapters.
type Client struct {
	http      *http.Client
	userAgent string
}

// NewClient returns a Client with the given request timeout (10s when zero).
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		http:      &http.Client{Timeout: timeout},
		userAgent: defaultUserAgent,
	}
}

// NewClientWith wraps an existing *http.Client, e.g. one from httptest.
func NewClientWith(hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{http: hc, userAgent: defaultUserAgent}
}

// GetJSON performs a GET and decodes a JSON body into into.
func (c *Client) GetJSON(ctx context.Context, provider, url string, headers map[string]string, into any) error {
	body, err := c.GetBody(ctx, provider, url, headers)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, into); err != nil {
		return &Error{Provider: provider, Kind: KindMalformed, Status: http.StatusOK, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// GetBody performs a GET and returns the decompressed body of a 2xx response.
func (c *Client) GetBody(ctx context.Context, provider, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Error{Provider: provider, Kind: KindMalformed, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Encoding", "gzip, br")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Provider: provider, Kind: KindUnavailable, Err: err}
	}
	defer resp.Body.Close()

	reader, err := decodedBody(resp)
	if err != nil {
		return nil, &Error{Provider: provider, Kind: KindMalformed, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(reader, maxErrorBody))
		return nil, &Error{
			Provider: provider,
			Kind:     KindForStatus(resp.StatusCode),
			Status:   resp.StatusCode,
			Err:      fmt.Errorf("%s", string(b)),
		}
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, &Error{Provider: provider, Kind: KindUnavailable, Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	return body, nil
}

func decodedBody(resp *http.Response) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(resp.Body)
	case "br":
		return brotli.NewReader(resp.Body), nil
	default:
		return resp.Body, nil
	}
}

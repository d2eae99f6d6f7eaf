package latency

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Pinger issues one lightweight round trip to the server.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc is a function adapter for Pinger.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// HTTPPinger measures round trips against a lightweight HTTP endpoint.
type HTTPPinger struct {
	url    string
	client *http.Client
}

// NewHTTPPinger creates a pinger for the given URL.
func NewHTTPPinger(url string, timeout time.Duration) *HTTPPinger {
	return &HTTPPinger{
		url: url,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Ping performs one GET round trip. The request carries a unique ID so
// intermediaries cannot serve it from cache.
func (p *HTTPPinger) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("ping status %d", resp.StatusCode)
	}
	return nil
}

package connectivity

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/logging"
)

// HTTPProbe is a Source that issues a lightweight GET against URL. Any
// response below 500 counts as reachable: the server answered, even if it
// did not like the request.
type HTTPProbe struct {
	URL     string
	Client  *http.Client
	Timeout time.Duration
}

// NewHTTPProbe creates a probe with its own client.
func NewHTTPProbe(url string, timeout time.Duration) *HTTPProbe {
	return &HTTPProbe{URL: url, Client: &http.Client{}, Timeout: timeout}
}

// Reachable implements Source.
func (p *HTTPProbe) Reachable(ctx context.Context) bool {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		logging.Warn("Invalid probe URL", map[string]interface{}{"url": p.URL, "error": err.Error()})
		return false
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		logging.Debug("Probe failed", map[string]interface{}{"url": p.URL, "error": err.Error()})
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return resp.StatusCode < http.StatusInternalServerError
}

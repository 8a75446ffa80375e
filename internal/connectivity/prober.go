package connectivity

import (
	"context"
	"fmt"
	"net/http"
	"time"

	pkgerrors "github.com/Sirveme/quevendi-pos/pkg/errors"
)

// Prober answers whether the server is reachable right now.
type Prober interface {
	Probe(ctx context.Context) error
}

// HTTPProber checks reachability with a GET against the server health
// endpoint. Any 2xx counts as reachable; everything else, including
// transport errors and timeouts, counts as unreachable.
type HTTPProber struct {
	url    string
	client *http.Client
}

// NewHTTPProber builds a prober for the health endpoint with a hard
// per-probe timeout.
func NewHTTPProber(url string, timeout time.Duration) *HTTPProber {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPProber{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *HTTPProber) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building probe request")
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeNetwork, err, "health probe failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return pkgerrors.New(pkgerrors.CodeNetwork, fmt.Sprintf("health probe returned HTTP %d", resp.StatusCode))
	}
	return nil
}

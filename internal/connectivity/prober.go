// Package connectivity checks whether the outside network is reachable.
package connectivity

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/iconidentify/grabba-media/internal/config"
)

// MaxTimeout is the upper bound for a single probe.
const MaxTimeout = 5 * time.Second

// Prober reports whether the network is reachable.
type Prober interface {
	Reachable(ctx context.Context) bool
}

// HTTPProber probes a fixed endpoint with a single GET request.
type HTTPProber struct {
	client *resty.Client
	url    string
	logger *slog.Logger
}

// NewHTTPProber creates a prober for cfg.URL. Timeouts above MaxTimeout
// are clamped.
func NewHTTPProber(cfg config.ProbeConfig, logger *slog.Logger) *HTTPProber {
	timeout := cfg.Timeout
	if timeout <= 0 || timeout > MaxTimeout {
		timeout = MaxTimeout
	}

	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetDoNotParseResponse(true)

	return &HTTPProber{
		client: client,
		url:    cfg.URL,
		logger: logger,
	}
}

// Reachable returns true iff the probe request completes without a
// transport error. Any HTTP status counts as reachable.
func (p *HTTPProber) Reachable(ctx context.Context) bool {
	resp, err := p.client.R().SetContext(ctx).Get(p.url)
	if err != nil {
		p.logger.Debug("connectivity probe failed", "url", p.url, "error", err)
		return false
	}
	if body := resp.RawBody(); body != nil {
		body.Close()
	}
	return true
}

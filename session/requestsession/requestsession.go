// Package requestsession implements session.Session over net/http, the
// default request-based connection session (spec §4.G: "either a
// request-based session or a browser-driven session").
package requestsession

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/justapithecus/quarry-depot/proxy"
	"github.com/justapithecus/quarry-depot/session"
	"github.com/justapithecus/quarry-depot/types"
)

// Config configures a Session.
type Config struct {
	// ProxyPoolName, if set, selects a proxy endpoint per request from
	// Selector via Selector.Select (spec §6 "next_host").
	ProxyPoolName string
	Selector      *proxy.Selector

	// JobID/Domain/Origin feed proxy sticky-scope derivation; at least
	// one must be set when the pool's strategy is sticky.
	JobID  string
	Domain string
	Origin string

	// Timeout bounds a single HTTP round trip. Zero means 30s.
	Timeout time.Duration

	// UserAgent, if set, is sent as the User-Agent header.
	UserAgent string
}

// Session is the net/http-backed implementation of session.Session.
type Session struct {
	cfg    Config
	client *http.Client
}

var _ session.Session = (*Session)(nil)

// New constructs a Session. It dials through cfg.Selector's pool when
// ProxyPoolName is set, otherwise it uses the ambient transport directly.
func New(cfg Config) *Session {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Session{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Get issues a GET request, selecting a fresh proxy endpoint per call when
// configured, and classifies the outcome into a types.FetchResult (spec §9
// "exceptions-as-control-flow" redesign).
func (s *Session) Get(ctx context.Context, target string) types.FetchResult {
	client := s.client
	if s.cfg.ProxyPoolName != "" && s.cfg.Selector != nil {
		ep, err := s.cfg.Selector.Select(proxy.SelectRequest{
			Pool:   s.cfg.ProxyPoolName,
			JobID:  s.cfg.JobID,
			Domain: s.cfg.Domain,
			Origin: s.cfg.Origin,
			Commit: true,
		})
		if err != nil {
			return types.FetchResult{Kind: types.FetchOther, Err: fmt.Errorf("requestsession: select proxy: %w", err)}
		}
		transport, err := proxyTransport(ep)
		if err != nil {
			return types.FetchResult{Kind: types.FetchOther, Err: err}
		}
		client = &http.Client{Timeout: s.cfg.Timeout, Transport: transport}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return types.FetchResult{Kind: types.FetchOther, Err: err}
	}
	if s.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", s.cfg.UserAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil || isTimeout(err) {
			return types.FetchResult{Kind: types.FetchTimeout, Err: err}
		}
		return types.FetchResult{Kind: types.FetchTransientHTTP, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.FetchResult{Kind: types.FetchTransientHTTP, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return types.FetchResult{Kind: types.FetchOK, Body: body}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden:
		return types.FetchResult{
			Kind: types.FetchBrokenSession,
			Err:  fmt.Errorf("requestsession: status %d", resp.StatusCode),
		}
	case resp.StatusCode >= 500:
		return types.FetchResult{
			Kind: types.FetchTransientHTTP,
			Err:  fmt.Errorf("requestsession: status %d", resp.StatusCode),
		}
	default:
		return types.FetchResult{
			Kind: types.FetchOther,
			Err:  fmt.Errorf("requestsession: status %d", resp.StatusCode),
		}
	}
}

// Close is a no-op: net/http's client owns no resources this type must
// release beyond what idle-connection reaping already handles.
func (s *Session) Close() error { return nil }

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func proxyTransport(ep *types.ProxyEndpoint) (*http.Transport, error) {
	proxyURL := &url.URL{Scheme: string(ep.Protocol), Host: ep.Host()}
	if user, pw, ok := ep.Credentials(); ok {
		proxyURL.User = url.UserPassword(user, pw)
	}
	return &http.Transport{
		Proxy:           http.ProxyURL(proxyURL),
		TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
	}, nil
}

package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/brettbedarf/memfs/internal/util"
)

type HTTPMethod = string

const (
	HTTPMethodGet  HTTPMethod = "GET"
	HTTPMethodPost HTTPMethod = "POST"
)

// maxHTTPBody bounds a single fetched file
const maxHTTPBody = 256 << 20

// HTTPClient is the subset of *http.Client used to fetch sources
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPSource contains http-specific source fields
type HTTPSource struct {
	URL     string            `json:"url"`
	Method  *HTTPMethod       `json:"method,omitempty"` // Default is GET
	Headers map[string]string `json:"headers,omitempty"`
}

// HTTPProvider builds HTTP sources that share one client
type HTTPProvider struct {
	client HTTPClient
}

func RegisterHTTP(r *Registry, client HTTPClient) {
	r.Register(HTTPSourceType, &HTTPProvider{client: client})
}

func (p *HTTPProvider) NewSource(raw []byte) (Source, error) {
	var cfg HTTPSource
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	u, err := validateURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	cfg.URL = u
	return &HTTPAdapter{config: &cfg, client: p.client}, nil
}

// validateURL accepts absolute http(s) URLs without user info
func validateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", raw)
	}
	if u.User != nil {
		return "", fmt.Errorf("url %q must not carry user info", raw)
	}
	return u.String(), nil
}

// HTTPAdapter implements [Source] for HTTP sources
type HTTPAdapter struct {
	config *HTTPSource
	client HTTPClient
}

func (h *HTTPAdapter) Fetch(ctx context.Context) ([]byte, error) {
	logger := util.GetLogger("HTTPSource")

	req, err := http.NewRequestWithContext(ctx, h.method(), h.config.URL, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range h.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s: unexpected status %s", req.Method, h.config.URL, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPBody+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxHTTPBody {
		return nil, fmt.Errorf("%s: body exceeds %s", h.config.URL, util.Bytes(int64(maxHTTPBody)))
	}

	logger.Debug().Str("url", h.config.URL).Str("size", util.Bytes(len(data))).Msg("Fetched source")
	return data, nil
}

func (h *HTTPAdapter) method() HTTPMethod {
	if h.config.Method != nil {
		return *h.config.Method
	}
	return HTTPMethodGet
}

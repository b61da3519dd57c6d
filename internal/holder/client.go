// Package holder fetches holder counts and per-interval deltas from an
// external holder-stats provider, per spec §4.2. Disabled (returns "no
// data" without error) when no API key is configured, mirroring
// HolderClient enabled-flag in internal/config.
package holder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://api.holderscan.example/v1"
	requestTimeout = 7 * time.Second
)

// Stats is a point-in-time holder snapshot.
type Stats struct {
	HolderCount int
}

// Deltas holds per-interval holder-count changes, expressed as percentages.
type Deltas struct {
	OneHour float64
	OneDay  float64
}

// Client queries the holder-stats provider. Enabled() reports whether a
// credential was configured at construction time.
type Client struct {
	httpClient *http.Client
	logger     *zap.Logger
	baseURL    string
	apiKey     string
}

// New builds a Client. An empty apiKey yields a disabled client.
func New(logger *zap.Logger, apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger,
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
	}
}

// Enabled reports whether a credential is available.
func (c *Client) Enabled() bool { return c.apiKey != "" }

type holderCountResponse struct {
	HolderCount int `json:"holder_count"`
}

// GetHolderStats fetches the current holder count. Returns ok=false
// without error when the client is disabled or the provider has no data.
func (c *Client) GetHolderStats(ctx context.Context, chain, address string) (stats Stats, ok bool, err error) {
	if !c.Enabled() {
		return Stats{}, false, nil
	}

	url := fmt.Sprintf("%s/%s/tokens/%s/holders?limit=1", c.baseURL, chain, address)
	body, found, err := c.get(ctx, url)
	if err != nil {
		return Stats{}, false, err
	}
	if !found {
		return Stats{}, false, nil
	}

	var resp holderCountResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Stats{}, false, fmt.Errorf("holder: decoding holder count: %w", err)
	}
	return Stats{HolderCount: resp.HolderCount}, true, nil
}

type holderDeltaResponse struct {
	OneHour float64 `json:"1hour"`
	OneDay  float64 `json:"1day"`
}

// GetHolderDeltas fetches 1h/24h holder-count deltas.
func (c *Client) GetHolderDeltas(ctx context.Context, chain, address string) (deltas Deltas, ok bool, err error) {
	if !c.Enabled() {
		return Deltas{}, false, nil
	}

	url := fmt.Sprintf("%s/%s/tokens/%s/holders/deltas", c.baseURL, chain, address)
	body, found, err := c.get(ctx, url)
	if err != nil {
		return Deltas{}, false, err
	}
	if !found {
		return Deltas{}, false, nil
	}

	var resp holderDeltaResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Deltas{}, false, fmt.Errorf("holder: decoding holder deltas: %w", err)
	}
	return Deltas{OneHour: resp.OneHour, OneDay: resp.OneDay}, true, nil
}

// get returns (body, found, err). A 404 is reported as found=false, err=nil
// per spec: "404 is not an error (absence of data)".
func (c *Client) get(ctx context.Context, url string) ([]byte, bool, error) {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("holder: request failed", zap.String("url", url), zap.Error(err))
		return nil, false, fmt.Errorf("holder: request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if resp.StatusCode >= 300 {
		return nil, false, fmt.Errorf("holder: unexpected status %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("holder: reading response from %s: %w", url, err)
	}
	return body, true, nil
}

// Package flaresolverr talks to a FlareSolverr instance, which loads pages
// behind a Cloudflare challenge in a real browser.
package flaresolverr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"media-extractor-go/pkg/logging"
)

// Cookie is a browser cookie returned with a solution.
type Cookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
	Path   string `json:"path"`
}

// Solution is the page FlareSolverr loaded.
type Solution struct {
	URL       string   `json:"url"`
	Status    int      `json:"status"`
	Response  string   `json:"response"`
	Cookies   []Cookie `json:"cookies"`
	UserAgent string   `json:"userAgent"`
}

type response struct {
	Status   string   `json:"status"`
	Message  string   `json:"message"`
	Solution Solution `json:"solution"`
}

type request struct {
	Cmd        string `json:"cmd"`
	URL        string `json:"url"`
	MaxTimeout int    `json:"maxTimeout"`
}

// Client is a FlareSolverr API client. A nil *Client is valid and never
// configured.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	log        *logging.Logger
}

// NewClient creates a client for the instance at baseURL. An empty baseURL
// gives a client that reports itself unconfigured.
func NewClient(baseURL string, timeout time.Duration, log *logging.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		httpClient: &http.Client{
			// The browser needs its own timeout plus time to report back
			Timeout: timeout + 10*time.Second,
		},
		log: log.WithComponent("flaresolverr"),
	}
}

// IsConfigured reports whether a FlareSolverr URL was provided.
func (c *Client) IsConfigured() bool {
	return c != nil && c.baseURL != ""
}

// Solve loads targetURL through the browser and returns the rendered page.
func (c *Client) Solve(ctx context.Context, targetURL string) (*Solution, error) {
	if !c.IsConfigured() {
		return nil, fmt.Errorf("flaresolverr not configured")
	}
	c.log.Debug("solving challenge", "url", targetURL)

	body, err := json.Marshal(request{
		Cmd:        "request.get",
		URL:        targetURL,
		MaxTimeout: int(c.timeout.Milliseconds()),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("flaresolverr returned status %d: %s", resp.StatusCode, data)
	}

	var out response
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if out.Status != "ok" {
		return nil, fmt.Errorf("flaresolverr error: %s", out.Message)
	}

	c.log.Debug("challenge solved",
		"url", targetURL,
		"status", out.Solution.Status,
		"cookies", len(out.Solution.Cookies),
		"bytes", len(out.Solution.Response))

	return &out.Solution, nil
}

// CookieHeader renders the solution cookies as a Cookie header value so
// follow-up API calls reuse the cleared session.
func (s *Solution) CookieHeader() string {
	parts := make([]string, 0, len(s.Cookies))
	for _, c := range s.Cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

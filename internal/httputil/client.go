// Package httputil provides a security-hardened HTTP client and input sanitization utilities.
package httputil

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// UserAgent is sent with every scraping request.
const UserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/121.0"

// DefaultTimeout bounds scraping requests. Media downloads use their own
// client without an overall deadline; see NewDownloadClient.
const DefaultTimeout = 30 * time.Second

const maxBodyBytes = 10 * 1024 * 1024

// NewClient creates a hardened HTTP client with secure defaults.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: newTransport(),
	}
}

// NewDownloadClient returns a client for large transfers. Callers bound the
// transfer with a context deadline instead of a whole-request timeout.
func NewDownloadClient() *http.Client {
	return &http.Client{Transport: newTransport()}
}

func newTransport() *http.Transport {
	return &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       30 * time.Second,
		DisableCompression:    false,
		MaxIdleConnsPerHost:   5,
		ResponseHeaderTimeout: DefaultTimeout,
	}
}

// Header is an optional set of extra request headers.
type Header map[string]string

func newRequest(ctx context.Context, method, url string, body io.Reader, accept string, h Header) (*http.Request, error) {
	if err := ValidateURL(url); err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	for k, v := range h {
		req.Header.Set(k, v)
	}
	return req, nil
}

// Get performs a GET request with standard browser-like headers.
func Get(ctx context.Context, client *http.Client, url string, h Header) (*http.Response, error) {
	req, err := newRequest(ctx, http.MethodGet, url, nil, "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8", h)
	if err != nil {
		return nil, err
	}
	return client.Do(req)
}

// GetHTML fetches a page and returns its body.
func GetHTML(ctx context.Context, client *http.Client, url string, h Header) ([]byte, error) {
	resp, err := Get(ctx, client, url, h)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return readOK(resp, url)
}

// GetJSON performs a GET request with JSON accept header.
func GetJSON(ctx context.Context, client *http.Client, url string, h Header) ([]byte, error) {
	req, err := newRequest(ctx, http.MethodGet, url, nil, "application/json", h)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return readOK(resp, url)
}

// PostJSON sends payload as JSON and returns the status code and body.
// Non-2xx statuses are not treated as errors; API clients map them.
func PostJSON(ctx context.Context, client *http.Client, url string, payload any, h Header) (int, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := newRequest(ctx, http.MethodPost, url, bytes.NewReader(data), "application/json", h)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func readOK(resp *http.Response, url string) ([]byte, error) {
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes)) // 10MB limit
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	return body, nil
}

// Package fshare is an authenticated session client for the Fshare file
// hosting API: login, cached session token, file-info lookup and signed
// download-link issuance.
package fshare

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mediagrab/internal/httputil"
	"mediagrab/internal/media"
)

// Reason codes reported when the client cannot produce a download link.
const (
	ReasonNotConfigured    = "SERVICE_NOT_CONFIGURED"
	ReasonLoginFailed      = "LOGIN_FAILED"
	ReasonSessionExpired   = "SESSION_EXPIRED"
	ReasonQuotaExceeded    = "QUOTA_EXCEEDED"
	ReasonFileNotFound     = "FILE_NOT_FOUND"
	ReasonPasswordRequired = "PASSWORD_REQUIRED"
	ReasonUpstream         = "UPSTREAM_ERROR"
)

// Error carries a reason code alongside the underlying failure.
type Error struct {
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "fshare: " + e.Code
	}
	return fmt.Sprintf("fshare: %s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error      { return e.Err }
func (e *Error) ReasonCode() string { return e.Code }

func fail(code string, err error) error { return &Error{Code: code, Err: err} }

// Config holds API endpoint and account credentials.
type Config struct {
	BaseURL    string
	Email      string
	Password   string
	AppKey     string
	UserAgent  string
	SessionTTL time.Duration
}

// FileInfo describes a hosted file.
type FileInfo struct {
	Name string      `json:"name"`
	Size json.Number `json:"size"`
	MIME string      `json:"mimetype"`
	Pwd  int         `json:"pwd"`
}

// Protected reports whether the file requires a password.
func (f *FileInfo) Protected() bool { return f.Pwd == 1 }

// SizeBytes returns the advertised size, 0 when unknown.
func (f *FileInfo) SizeBytes() int64 {
	n, err := f.Size.Int64()
	if err != nil {
		return 0
	}
	return n
}

type session struct {
	token     string
	sessionID string
	expires   time.Time
}

// Client talks to the Fshare API. It is safe for concurrent use; one
// session is shared by all callers.
type Client struct {
	cfg  Config
	http *http.Client
	now  func() time.Time
	log  zerolog.Logger

	mu   sync.Mutex
	sess *session
}

// New creates a client. A client without credentials reports
// SERVICE_NOT_CONFIGURED on every call.
func New(cfg Config, client *http.Client, log zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.fshare.vn"
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "mediagrab"
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 6 * time.Hour
	}
	return &Client{
		cfg:  cfg,
		http: client,
		now:  time.Now,
		log:  log.With().Str("component", "fshare").Logger(),
	}
}

// Configured reports whether credentials are present.
func (c *Client) Configured() bool {
	return c.cfg.Email != "" && c.cfg.Password != "" && c.cfg.AppKey != ""
}

// login returns a valid session, reusing the cached one until expiry.
func (c *Client) login(ctx context.Context, force bool) (*session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !force && c.sess != nil && c.now().Before(c.sess.expires) {
		return c.sess, nil
	}

	payload := map[string]string{
		"user_email": c.cfg.Email,
		"password":   c.cfg.Password,
		"app_key":    c.cfg.AppKey,
	}
	status, body, err := httputil.PostJSON(ctx, c.http, c.endpoint("/api/user/login"), payload, c.headers(nil))
	if err != nil {
		return nil, fail(ReasonLoginFailed, fmt.Errorf("%w: %v", media.ErrUpstreamUnavailable, err))
	}
	if status != http.StatusOK {
		return nil, fail(ReasonLoginFailed, fmt.Errorf("login returned status %d", status))
	}

	var resp struct {
		Code      int    `json:"code"`
		Token     string `json:"token"`
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fail(ReasonLoginFailed, fmt.Errorf("parsing login response: %w", err))
	}
	if resp.Token == "" || resp.SessionID == "" {
		return nil, fail(ReasonLoginFailed, errors.New("login response without token"))
	}

	c.sess = &session{
		token:     resp.Token,
		sessionID: resp.SessionID,
		expires:   c.now().Add(c.cfg.SessionTTL),
	}
	c.log.Debug().Time("expires", c.sess.expires).Msg("logged in")
	return c.sess, nil
}

func (c *Client) invalidate(s *session) {
	c.mu.Lock()
	if c.sess == s {
		c.sess = nil
	}
	c.mu.Unlock()
}

// FileInfo looks up metadata for a file link.
func (c *Client) FileInfo(ctx context.Context, link string) (*FileInfo, error) {
	var info FileInfo
	err := c.call(ctx, "/api/fileops/get", func(s *session) any {
		return map[string]any{"url": link, "token": s.token}
	}, &info)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// DownloadLink issues a signed download URL for a file link.
func (c *Client) DownloadLink(ctx context.Context, link, password string) (string, error) {
	var resp struct {
		Location string `json:"location"`
	}
	err := c.call(ctx, "/api/session/download", func(s *session) any {
		return map[string]any{"url": link, "password": password, "token": s.token, "zipflag": 0}
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Location == "" {
		return "", fail(ReasonUpstream, errors.New("download response without location"))
	}
	return resp.Location, nil
}

// call performs an authenticated request, logging in again exactly once
// when the server reports the session as expired.
func (c *Client) call(ctx context.Context, path string, payload func(*session) any, out any) error {
	if !c.Configured() {
		return fail(ReasonNotConfigured, media.ErrUpstreamUnavailable)
	}

	for attempt := 0; attempt < 2; attempt++ {
		s, err := c.login(ctx, attempt > 0)
		if err != nil {
			return err
		}

		status, body, err := httputil.PostJSON(ctx, c.http, c.endpoint(path), payload(s),
			c.headers(map[string]string{"Cookie": "session_id=" + s.sessionID}))
		if err != nil {
			return fail(ReasonUpstream, fmt.Errorf("%w: %v", media.ErrUpstreamUnavailable, err))
		}

		switch status {
		case http.StatusOK:
			if err := json.Unmarshal(body, out); err != nil {
				return fail(ReasonUpstream, fmt.Errorf("parsing %s response: %w", path, err))
			}
			return nil
		case http.StatusCreated, http.StatusUnauthorized:
			c.invalidate(s)
			c.log.Debug().Str("path", path).Msg("session expired, logging in again")
			continue
		case http.StatusForbidden:
			return fail(ReasonPasswordRequired, fmt.Errorf("%s: %s", path, message(body)))
		case http.StatusNotFound:
			return fail(ReasonFileNotFound, fmt.Errorf("%s: %s", path, message(body)))
		case http.StatusTooManyRequests, http.StatusPaymentRequired:
			return fail(ReasonQuotaExceeded, fmt.Errorf("%s: %s", path, message(body)))
		default:
			return fail(ReasonUpstream, fmt.Errorf("%s returned status %d: %s", path, status, message(body)))
		}
	}
	return fail(ReasonSessionExpired, errors.New("session rejected after re-login"))
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}

func (c *Client) headers(extra map[string]string) httputil.Header {
	h := httputil.Header{"User-Agent": c.cfg.UserAgent}
	for k, v := range extra {
		h[k] = v
	}
	return h
}

func message(body []byte) string {
	var resp struct {
		Msg string `json:"msg"`
	}
	if json.Unmarshal(body, &resp) == nil && resp.Msg != "" {
		return resp.Msg
	}
	return strings.TrimSpace(string(body))
}

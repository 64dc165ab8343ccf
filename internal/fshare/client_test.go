package fshare

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediagrab/internal/media"
)

type fakeAPI struct {
	logins      atomic.Int32
	expireFirst atomic.Bool
	status      int
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/user/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "pw" {
			http.Error(w, `{"msg":"bad credentials"}`, http.StatusMethodNotAllowed)
			return
		}
		n := f.logins.Add(1)
		json.NewEncoder(w).Encode(map[string]any{"code": 200, "token": "tok", "session_id": "sess" + string(rune('0'+n))})
	})
	mux.HandleFunc("/api/fileops/get", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"movie.mkv","size":"1234","pwd":1}`))
	})
	mux.HandleFunc("/api/session/download", func(w http.ResponseWriter, r *http.Request) {
		if f.expireFirst.CompareAndSwap(true, false) {
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"msg":"not logged in"}`))
			return
		}
		if f.status != 0 {
			w.WriteHeader(f.status)
			w.Write([]byte(`{"msg":"denied"}`))
			return
		}
		w.Write([]byte(`{"location":"https://download.fshare.vn/dl/abc"}`))
	})
	return mux
}

func newTestClient(t *testing.T, api *fakeAPI, password string) *Client {
	t.Helper()
	srv := httptest.NewTLSServer(api.handler())
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, Email: "a@b.c", Password: password, AppKey: "key"}, srv.Client(), zerolog.Nop())
}

func TestNotConfigured(t *testing.T) {
	c := New(Config{}, http.DefaultClient, zerolog.Nop())
	assert.False(t, c.Configured())

	_, err := c.DownloadLink(context.Background(), "https://www.fshare.vn/file/ABC", "")
	require.Error(t, err)
	assert.Equal(t, ReasonNotConfigured, media.ReasonOf(err))
	assert.True(t, errors.Is(err, media.ErrUpstreamUnavailable))
}

func TestDownloadLinkReusesSession(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api, "pw")

	for i := 0; i < 3; i++ {
		link, err := c.DownloadLink(context.Background(), "https://www.fshare.vn/file/ABC", "")
		require.NoError(t, err)
		assert.Equal(t, "https://download.fshare.vn/dl/abc", link)
	}
	assert.Equal(t, int32(1), api.logins.Load())
}

func TestSessionExpiryRelogsOnce(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api, "pw")
	api.expireFirst.Store(true)

	_, err := c.DownloadLink(context.Background(), "https://www.fshare.vn/file/ABC", "")
	require.NoError(t, err)
	assert.Equal(t, int32(2), api.logins.Load())
}

func TestSessionTTL(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api, "pw")
	now := time.Now()
	c.now = func() time.Time { return now }

	_, err := c.DownloadLink(context.Background(), "https://www.fshare.vn/file/ABC", "")
	require.NoError(t, err)

	now = now.Add(7 * time.Hour)
	_, err = c.DownloadLink(context.Background(), "https://www.fshare.vn/file/ABC", "")
	require.NoError(t, err)
	assert.Equal(t, int32(2), api.logins.Load())
}

func TestLoginFailure(t *testing.T) {
	c := newTestClient(t, &fakeAPI{}, "wrong")

	_, err := c.DownloadLink(context.Background(), "https://www.fshare.vn/file/ABC", "")
	assert.Equal(t, ReasonLoginFailed, media.ReasonOf(err))
}

func TestStatusReasons(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{http.StatusForbidden, ReasonPasswordRequired},
		{http.StatusNotFound, ReasonFileNotFound},
		{http.StatusTooManyRequests, ReasonQuotaExceeded},
		{http.StatusInternalServerError, ReasonUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			c := newTestClient(t, &fakeAPI{status: tt.status}, "pw")
			_, err := c.DownloadLink(context.Background(), "https://www.fshare.vn/file/ABC", "")
			assert.Equal(t, tt.want, media.ReasonOf(err))
		})
	}
}

func TestFileInfo(t *testing.T) {
	c := newTestClient(t, &fakeAPI{}, "pw")

	info, err := c.FileInfo(context.Background(), "https://www.fshare.vn/file/ABC")
	require.NoError(t, err)
	assert.Equal(t, "movie.mkv", info.Name)
	assert.Equal(t, int64(1234), info.SizeBytes())
	assert.True(t, info.Protected())
}

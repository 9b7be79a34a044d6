package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensinfor/sensinfor/pkg/defaults"
)

func newTestHTTP(t *testing.T, cfg Config) *HTTP {
	t.Helper()
	h, err := NewHTTP(cfg, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	return h
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Delay = 0
	cfg.RetryDelay = time.Millisecond
	cfg.Timeout = 2 * time.Second
	return cfg
}

func TestFetch_Basic(t *testing.T) {
	t.Parallel()
	var gotUA, gotCustom string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotCustom = r.Header.Get("X-Probe")
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "[core]\n\trepositoryformatversion = 0\n")
	}))
	defer srv.Close()

	h := newTestHTTP(t, fastConfig())
	resp, err := h.Fetch(context.Background(), Request{
		URL:     srv.URL + "/.git/config",
		Headers: map[string]string{"X-Probe": "1"},
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(resp.Body), "repositoryformatversion")
	assert.Equal(t, "text/plain", resp.ContentType())
	assert.Equal(t, srv.URL+"/.git/config", resp.FinalURL)
	assert.Equal(t, defaults.UserAgent, gotUA)
	assert.Equal(t, "1", gotCustom)
	assert.False(t, resp.Truncated)
}

func TestFetch_HeadHasNoBody(t *testing.T) {
	t.Parallel()
	var method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.Header().Set("Content-Length", "1234")
	}))
	defer srv.Close()

	resp, err := newTestHTTP(t, fastConfig()).Fetch(context.Background(), Request{URL: srv.URL, Method: "head"})
	require.NoError(t, err)
	assert.Equal(t, http.MethodHead, method)
	assert.Empty(t, resp.Body)
	n, ok := resp.DeclaredLength()
	assert.True(t, ok)
	assert.Equal(t, int64(1234), n)
}

func TestFetch_BodyCapped(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "4096")
		fmt.Fprint(w, strings.Repeat("A", 4096))
	}))
	defer srv.Close()

	cfg := fastConfig()
	cfg.MaxBodySize = 1024
	resp, err := newTestHTTP(t, cfg).Fetch(context.Background(), Request{URL: srv.URL})
	require.NoError(t, err)
	assert.Len(t, resp.Body, 1024)
	assert.True(t, resp.Truncated)
	assert.Equal(t, int64(4096), resp.Size(), "declared length wins")
}

func TestFetch_FollowsRedirects(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login", http.StatusFound)
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "login")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := newTestHTTP(t, fastConfig()).Fetch(context.Background(), Request{URL: srv.URL + "/old"})
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/login", resp.FinalURL)
	assert.Equal(t, srv.URL+"/old", resp.URL)
}

func TestFetch_TimeoutRetriedThenFails(t *testing.T) {
	t.Parallel()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	cfg := fastConfig()
	cfg.RetryCount = 1
	h := newTestHTTP(t, cfg)

	_, err := h.Fetch(context.Background(), Request{URL: srv.URL, Timeout: 50 * time.Millisecond})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.True(t, IsTransient(err))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFetch_ConnectionRefused(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	cfg := fastConfig()
	cfg.RetryCount = 2
	_, err := newTestHTTP(t, cfg).Fetch(context.Background(), Request{URL: url})
	assert.ErrorIs(t, err, ErrRequest)
}

func TestFetch_InvalidURLNotRetried(t *testing.T) {
	t.Parallel()
	_, err := newTestHTTP(t, fastConfig()).Fetch(context.Background(), Request{URL: "http://[::1"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.False(t, IsTransient(err))
}

func TestFetch_ContextCancelled(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := newTestHTTP(t, fastConfig()).Fetch(ctx, Request{URL: srv.URL})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestFetch_DelayPacesRequests(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	cfg := fastConfig()
	cfg.Delay = 40 * time.Millisecond
	h := newTestHTTP(t, cfg)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := h.Fetch(context.Background(), Request{URL: srv.URL})
		require.NoError(t, err)
	}
	// First token is immediate, the next two wait one interval each.
	assert.GreaterOrEqual(t, time.Since(start), 75*time.Millisecond)
}

func TestFunc(t *testing.T) {
	t.Parallel()
	var tr Transport = Func(func(ctx context.Context, req Request) (*Response, error) {
		return &Response{URL: req.URL, StatusCode: 204}, nil
	})
	resp, err := tr.Fetch(context.Background(), Request{URL: "http://x"})
	require.NoError(t, err)
	assert.Equal(t, 204, resp.StatusCode)
}

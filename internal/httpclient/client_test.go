package httpclient

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderInjection(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.Header.Get("X-Test"))
		assert.Equal(t, "seasec-test", r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := New(Config{
		Timeout:   time.Second,
		UserAgent: "seasec-test",
		Headers:   http.Header{"X-Test": []string{"1"}},
	})
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
}

func TestRetry(t *testing.T) {
	t.Parallel()
	t.Run("5xx", func(t *testing.T) {
		var attempts int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&attempts, 1) < 3 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		resp, err := New(Config{Timeout: time.Second, Retries: 2}).Get(srv.URL)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.EqualValues(t, 3, atomic.LoadInt32(&attempts))
	})

	t.Run("exhausted", func(t *testing.T) {
		var attempts int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		resp, err := New(Config{Timeout: time.Second, Retries: 1}).Get(srv.URL)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
		assert.EqualValues(t, 2, atomic.LoadInt32(&attempts))
	})

	t.Run("network error", func(t *testing.T) {
		var attempts int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&attempts, 1) == 1 {
				hj, _ := w.(http.Hijacker)
				conn, _, _ := hj.Hijack()
				_ = conn.Close()
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		resp, err := New(Config{Timeout: time.Second, Retries: 1}).Get(srv.URL)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.EqualValues(t, 2, atomic.LoadInt32(&attempts))
	})
}

func TestRedirectLimit(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) { http.Redirect(w, r, "/b", http.StatusFound) })
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) { http.Redirect(w, r, "/c", http.StatusFound) })
	mux.HandleFunc("/c", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := New(Config{Timeout: time.Second, MaxRedirects: 5}).Get(srv.URL + "/a")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, "/c", resp.Request.URL.Path)

	resp, err = New(Config{Timeout: time.Second}).Get(srv.URL + "/a")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)

	_, err = New(Config{Timeout: time.Second, MaxRedirects: 1}).Get(srv.URL + "/a")
	assert.Error(t, err)
}

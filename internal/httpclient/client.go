package httpclient

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
)

// Config holds settings for the crawler's HTTP client.
type Config struct {
	Timeout   time.Duration
	UserAgent string
	Headers   http.Header
	Insecure  bool
	// Retries is the number of extra attempts after a network error or a
	// 5xx response.
	Retries int
	// MaxRedirects bounds followed redirects; zero disables following.
	MaxRedirects int
}

// injectingTransport adds the configured headers to each request and
// retries transient failures with exponential backoff.
type injectingTransport struct {
	base      http.RoundTripper
	userAgent string
	headers   http.Header
	retries   int
	backoff   time.Duration
}

func (t *injectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var (
		resp *http.Response
		err  error
	)
	for attempt := 0; ; attempt++ {
		r := req.Clone(req.Context())
		if req.Body != nil && req.GetBody != nil {
			if body, berr := req.GetBody(); berr == nil {
				r.Body = body
			}
		}
		for k, vs := range t.headers {
			r.Header.Del(k)
			for _, v := range vs {
				r.Header.Add(k, v)
			}
		}
		if t.userAgent != "" && r.Header.Get("User-Agent") == "" {
			r.Header.Set("User-Agent", t.userAgent)
		}

		resp, err = t.base.RoundTrip(r)
		if err == nil && resp.StatusCode < 500 {
			return resp, nil
		}
		if attempt >= t.retries || (req.Body != nil && req.GetBody == nil) {
			return resp, err
		}
		if resp != nil {
			_ = resp.Body.Close()
		}
		if werr := wait(req.Context(), t.backoff<<attempt); werr != nil {
			return nil, werr
		}
	}
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// New returns a client that follows at most cfg.MaxRedirects redirects.
func New(cfg Config) *http.Client {
	transport := &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.Insecure},
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConnsPerHost: 8,
	}

	maxRedirects := cfg.MaxRedirects
	return &http.Client{
		Transport: &injectingTransport{
			base:      transport,
			userAgent: cfg.UserAgent,
			headers:   cfg.Headers,
			retries:   cfg.Retries,
			backoff:   100 * time.Millisecond,
		},
		Timeout: cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				if maxRedirects == 0 {
					return http.ErrUseLastResponse
				}
				return errors.Newf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

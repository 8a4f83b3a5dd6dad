package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/maltedev/property-crawler/internal/models"
)

const (
	DefaultUserAgent   = "property-crawler/1.0 (+https://github.com/maltedev/property-crawler)"
	DefaultTimeout     = 30 * time.Second
	DefaultDialTimeout = 10 * time.Second
	DefaultMaxBodySize = 10 * 1024 * 1024

	maxRedirects = 10
)

var (
	// ErrTimeout marks fetches that exceeded the response-time bound.
	ErrTimeout = errors.New("fetch timed out")
	// ErrOffsiteRedirect marks a redirect chain that left the requested host.
	ErrOffsiteRedirect = errors.New("redirect to another host")
)

// Options configures a Fetcher.
type Options struct {
	Timeout     time.Duration
	DialTimeout time.Duration
	MaxBodySize int64
	UserAgent   string
}

func DefaultOptions() Options {
	return Options{
		Timeout:     DefaultTimeout,
		DialTimeout: DefaultDialTimeout,
		MaxBodySize: DefaultMaxBodySize,
		UserAgent:   DefaultUserAgent,
	}
}

// Fetcher performs single-attempt GET requests with a bounded response time.
type Fetcher struct {
	client      *http.Client
	maxBodySize int64
	userAgent   string
	logger      *slog.Logger
}

func New(opts Options, logger *slog.Logger) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = DefaultMaxBodySize
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   opts.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return NewWithClient(&http.Client{
		Transport: transport,
		Timeout:   opts.Timeout,
	}, opts, logger)
}

// NewWithClient builds a Fetcher around an existing client (tests, proxies).
// A client without a CheckRedirect policy gets sameHostRedirects.
func NewWithClient(client *http.Client, opts Options, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	if client.CheckRedirect == nil {
		c := *client
		c.CheckRedirect = sameHostRedirects
		client = &c
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = DefaultMaxBodySize
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client:      client,
		maxBodySize: opts.MaxBodySize,
		userAgent:   opts.UserAgent,
		logger:      logger.With("component", "fetcher"),
	}
}

// Fetch GETs rawURL once and classifies the outcome. It never returns an
// error directly; failures are reported through the result status.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) models.FetchResult {
	result := models.FetchResult{URL: rawURL}
	start := time.Now()

	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		result.Status = models.FetchNetworkError
		result.Err = fmt.Errorf("invalid url %q", rawURL)
		return result
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		result.Status = models.FetchNetworkError
		result.Err = err
		return result
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		result.Status = models.FetchNetworkError
		result.Err = classify(err)
		f.logger.Debug("fetch failed", "url", rawURL, "error", result.Err, "elapsed", time.Since(start))
		return result
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode
	result.ContentType = resp.Header.Get("Content-Type")
	result.FinalURL = resp.Request.URL.String()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		result.Status = models.FetchHTTPError
		return result
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize+1))
	if err != nil {
		result.Status = models.FetchNetworkError
		result.Err = classify(err)
		return result
	}
	if int64(len(body)) > f.maxBodySize {
		body = body[:f.maxBodySize]
		result.Truncated = true
		f.logger.Warn("response body truncated",
			"url", rawURL,
			"max_body_size", f.maxBodySize)
	}

	result.Status = models.FetchSuccess
	result.Body = body
	f.logger.Debug("fetched page",
		"url", rawURL,
		"status", resp.StatusCode,
		"bytes", len(body),
		"elapsed", time.Since(start))

	return result
}

// sameHostRedirects follows at most maxRedirects hops and refuses any hop
// whose host differs from the one originally requested.
func sameHostRedirects(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	if !strings.EqualFold(req.URL.Host, via[0].URL.Host) {
		return fmt.Errorf("%w: %s", ErrOffsiteRedirect, req.URL.Host)
	}
	return nil
}

func classify(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

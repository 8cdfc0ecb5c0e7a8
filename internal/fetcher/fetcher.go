package fetcher

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/maltedev/alkoteka-scraper/internal/request"
)

const (
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultAcceptLanguage = "ru-RU,ru;q=0.9,en-US;q=0.8,en;q=0.7"
)

var ErrBodyTooLarge = errors.New("response body exceeds limit")

// StatusError is returned for any non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.StatusCode, e.URL)
}

// Retryable reports whether the server asked us to slow down or failed
// on its side.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Page is a fetched document.
type Page struct {
	URL        string
	FinalURL   string
	Body       []byte
	StatusCode int
	Headers    http.Header
	FetchedAt  time.Time
	Latency    time.Duration
}

type Fetcher interface {
	Fetch(ctx context.Context, desc request.Descriptor) (*Page, error)
}

type Options struct {
	UserAgent      string
	AcceptLanguage string
	Headers        map[string]string
	Timeout        time.Duration
	MaxBodyBytes   int64
}

type HTTPFetcher struct {
	client         *http.Client
	userAgent      string
	acceptLanguage string
	extraHeaders   map[string]string
	maxBodyBytes   int64
}

type proxyKey struct{}

func NewHTTPFetcher(opts Options) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 10 * 1024 * 1024
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.AcceptLanguage == "" {
		opts.AcceptLanguage = DefaultAcceptLanguage
	}

	transport := &http.Transport{
		Proxy:                 proxyFromContext,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	headers := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		headers[k] = v
	}

	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		userAgent:      opts.UserAgent,
		acceptLanguage: opts.AcceptLanguage,
		extraHeaders:   headers,
		maxBodyBytes:   opts.MaxBodyBytes,
	}
}

// proxyFromContext routes each request through the proxy its descriptor
// was assigned. Connections are pooled per proxy by the transport.
func proxyFromContext(req *http.Request) (*url.URL, error) {
	if u, ok := req.Context().Value(proxyKey{}).(*url.URL); ok {
		return u, nil
	}
	return nil, nil
}

// Fetch performs a GET for desc. Non-2xx responses are returned as
// *StatusError.
func (f *HTTPFetcher) Fetch(ctx context.Context, desc request.Descriptor) (*Page, error) {
	if strings.TrimSpace(desc.URL) == "" {
		return nil, errors.New("request URL is empty")
	}

	if desc.Proxy != "" {
		proxyURL, err := url.Parse(desc.Proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		ctx = context.WithValue(ctx, proxyKey{}, proxyURL)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, desc.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	httpReq.Header.Set("User-Agent", f.userAgent)
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	httpReq.Header.Set("Accept-Language", f.acceptLanguage)
	httpReq.Header.Set("Accept-Encoding", "gzip, deflate, br")
	for k, v := range f.extraHeaders {
		httpReq.Header.Set(k, v)
	}
	for k, values := range desc.Headers {
		httpReq.Header.Del(k)
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}
	for _, c := range desc.Cookies {
		httpReq.AddCookie(c)
	}

	start := time.Now()
	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http fetch failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		_ = resp.Body.Close()
		return nil, &StatusError{URL: desc.URL, StatusCode: resp.StatusCode}
	}

	body, err := f.readBody(resp)
	if err != nil {
		return nil, err
	}

	finalURL := desc.URL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Page{
		URL:        desc.URL,
		FinalURL:   finalURL,
		Body:       body,
		StatusCode: resp.StatusCode,
		Headers:    resp.Header.Clone(),
		FetchedAt:  time.Now(),
		Latency:    time.Since(start),
	}, nil
}

func (f *HTTPFetcher) readBody(resp *http.Response) ([]byte, error) {
	if resp == nil || resp.Body == nil {
		return nil, errors.New("empty response body")
	}

	reader := io.Reader(resp.Body)
	closers := []io.Closer{resp.Body}

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		reader = gz
		closers = append(closers, gz)
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl, err := newDeflateReader(resp.Body)
		if err != nil {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("deflate decode: %w", err)
		}
		reader = fl
		closers = append(closers, fl)
	}

	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	body, err := io.ReadAll(io.LimitReader(reader, f.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBodyBytes {
		return nil, fmt.Errorf("%w of %d bytes", ErrBodyTooLarge, f.maxBodyBytes)
	}
	return body, nil
}

// newDeflateReader decodes "Content-Encoding: deflate", which is zlib-wrapped
// per RFC 9110. Some servers send raw DEFLATE instead, so a body without a
// zlib header is read as raw.
func newDeflateReader(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReader(r)
	header, err := br.Peek(2)
	if err != nil && len(header) < 2 {
		if errors.Is(err, io.EOF) {
			return io.NopCloser(br), nil
		}
		return nil, err
	}
	cmf, flg := header[0], header[1]
	if cmf&0x0f == 8 && (uint16(cmf)<<8|uint16(flg))%31 == 0 {
		return zlib.NewReader(br)
	}
	return flate.NewReader(br), nil
}

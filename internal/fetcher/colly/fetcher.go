// Package collyfetcher implements notice.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/noticewatch/internal/notice"
)

const (
	defaultTimeout     = 15 * time.Second
	defaultMaxBodySize = 10 << 20
)

// ErrBodyTooLarge reports a response that filled the body size limit. colly
// truncates such bodies, so they are never handed back.
var ErrBodyTooLarge = errors.New("response body too large")

// Config controls collector behavior.
type Config struct {
	UserAgent   string
	Timeout     time.Duration
	MaxBodySize int
}

// Fetcher fetches pages and binary attachments.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = defaultMaxBodySize
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(newHTTPTransport())
	c.ParseHTTPErrorResponse = true

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET and returns whatever status came back.
func (f *Fetcher) Fetch(ctx context.Context, request notice.FetchRequest) (notice.FetchResponse, error) {
	var (
		result   notice.FetchResponse
		fetchErr error
	)
	collector := f.buildCollector(request)
	f.configureCollectorHooks(collector, request, time.Now(), &result, &fetchErr)
	if err := f.runCollector(ctx, collector, request.URL, &fetchErr); err != nil {
		return notice.FetchResponse{}, err
	}
	if limit := collector.MaxBodySize; limit > 0 && len(result.Body) >= limit {
		return notice.FetchResponse{}, notice.Permanent("fetch "+request.URL,
			fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, limit))
	}
	return result, nil
}

// FetchLinks fetches an HTML page and returns the href of every element
// matching selector, in document order. Hrefs are returned as written.
func (f *Fetcher) FetchLinks(ctx context.Context, request notice.FetchRequest, selector string) ([]string, int, error) {
	var (
		result   notice.FetchResponse
		fetchErr error
		links    []string
	)
	collector := f.buildCollector(request)
	f.configureCollectorHooks(collector, request, time.Now(), &result, &fetchErr)
	collector.OnHTML(selector, func(e *colly.HTMLElement) {
		links = append(links, e.Attr("href"))
	})
	if err := f.runCollector(ctx, collector, request.URL, &fetchErr); err != nil {
		return nil, 0, err
	}
	return links, result.StatusCode, nil
}

func (f *Fetcher) buildCollector(request notice.FetchRequest) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := f.cfg.Timeout
	if request.Timeout > 0 {
		timeout = request.Timeout
	}
	collector.SetRequestTimeout(timeout)
	collector.MaxBodySize = f.cfg.MaxBodySize
	if request.MaxBodySize > 0 {
		collector.MaxBodySize = request.MaxBodySize
	}
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	request notice.FetchRequest,
	start time.Time,
	result *notice.FetchResponse,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		copyHeaders(request, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = notice.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func copyHeaders(request notice.FetchRequest, r *colly.Request) {
	for key, values := range request.Headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}

package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/noticewatch/internal/notice"
)

func TestFetcherBuildCollector(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "Mozilla/5.0", Timeout: time.Second, MaxBodySize: 1024})
	collector := f.buildCollector(notice.FetchRequest{URL: "https://example.com"})
	require.Equal(t, "Mozilla/5.0", collector.UserAgent)
	require.Equal(t, 1024, collector.MaxBodySize)

	collector = f.buildCollector(notice.FetchRequest{URL: "https://example.com", MaxBodySize: 4096})
	require.Equal(t, 4096, collector.MaxBodySize)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	req := notice.FetchRequest{
		URL:     "https://example.com",
		Headers: http.Header{"Referer": {"https://www.applyhome.co.kr/"}},
	}
	var result notice.FetchResponse
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, req, time.Unix(0, 0), &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	require.Equal(t, "https://www.applyhome.co.kr/", collyReq.Headers.Get("Referer"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("%PDF-1.4"),
		Headers:    &http.Header{"Content-Type": {"application/pdf"}},
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com/a.pdf")},
	})
	require.Equal(t, http.StatusOK, result.StatusCode)
	require.Equal(t, "%PDF-1.4", string(result.Body))
	require.Equal(t, "application/pdf", result.Headers.Get("Content-Type"))

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")
}

func TestCopyHeadersHandlesNil(t *testing.T) {
	t.Parallel()

	collyReq := &colly.Request{Headers: &http.Header{}}
	copyHeaders(notice.FetchRequest{}, collyReq)
	require.Empty(t, *collyReq.Headers)
}

func TestFetchBinaryBody(t *testing.T) {
	t.Parallel()

	payload := []byte{'%', 'P', 'D', 'F', 0x00, 0xff, 0x10}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "noticewatch-test", r.UserAgent())
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(payload)
	}))
	t.Cleanup(srv.Close)

	f := New(Config{UserAgent: "noticewatch-test", Timeout: 5 * time.Second})
	resp, err := f.Fetch(context.Background(), notice.FetchRequest{URL: srv.URL + "/file"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, payload, resp.Body)
}

func TestFetchRejectsBodyAtSizeLimit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(make([]byte, 2048))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{Timeout: 5 * time.Second, MaxBodySize: 1024})
	_, err := f.Fetch(context.Background(), notice.FetchRequest{URL: srv.URL + "/big.pdf"})
	require.ErrorIs(t, err, ErrBodyTooLarge)
	require.Equal(t, notice.KindPermanent, notice.KindOf(err))
	require.ErrorContains(t, err, "limit is 1024 bytes")

	resp, err := f.Fetch(context.Background(), notice.FetchRequest{URL: srv.URL + "/big.pdf", MaxBodySize: 4096})
	require.NoError(t, err)
	require.Len(t, resp.Body, 2048)
}

func TestFetchReportsErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	f := New(Config{Timeout: 5 * time.Second})
	resp, err := f.Fetch(context.Background(), notice.FetchRequest{URL: srv.URL})
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFetchLinksInDocumentOrder(t *testing.T) {
	t.Parallel()

	page := `<html><body>
<a href="/ai/cmn/getAtchmnfl.do?id=1">공고문</a>
<a href="https://other.example/x">other</a>
<a href="/ai/cmn/getAtchmnfl.do?id=2">첨부</a>
</body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{Timeout: 5 * time.Second})
	links, status, err := f.FetchLinks(context.Background(), notice.FetchRequest{URL: srv.URL}, "a[href]")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, []string{
		"/ai/cmn/getAtchmnfl.do?id=1",
		"https://other.example/x",
		"/ai/cmn/getAtchmnfl.do?id=2",
	}, links)
}

func TestFetchCanceledContext(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(block)
		srv.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	f := New(Config{Timeout: 5 * time.Second})
	_, err := f.Fetch(ctx, notice.FetchRequest{URL: srv.URL})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}

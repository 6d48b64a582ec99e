package naver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/noticewatch/internal/notice"
)

func newTestClient(t *testing.T, h http.HandlerFunc, limiter Waiter) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL + "/map-geocode/v2/geocode", KeyID: "id", Key: "secret"}, srv.Client(), limiter)
	require.NoError(t, err)
	return c
}

func TestGeocodeParsesFirstAddress(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "id", r.Header.Get("X-NCP-APIGW-API-KEY-ID"))
		assert.Equal(t, "secret", r.Header.Get("X-NCP-APIGW-API-KEY"))
		assert.Equal(t, "서울특별시 강남구 개포동 12", r.URL.Query().Get("query"))
		_, _ = w.Write([]byte(`{"status":"OK","addresses":[{"x":"127.0541","y":"37.4812"},{"x":"0","y":"0"}]}`))
	}, nil)

	coords, found, err := c.Geocode(context.Background(), "서울특별시 강남구 개포동 12")
	require.NoError(t, err)
	require.True(t, found)
	require.InDelta(t, 127.0541, coords.X, 1e-9)
	require.InDelta(t, 37.4812, coords.Y, 1e-9)
}

func TestGeocodeEmptyIsMiss(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"OK","addresses":[]}`))
	}, nil)
	_, found, err := c.Geocode(context.Background(), "nowhere")
	require.NoError(t, err)
	require.False(t, found)
}

func TestGeocodeClassifiesFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		kind   notice.ErrorKind
	}{
		{name: "server error", status: http.StatusServiceUnavailable, kind: notice.KindTransient},
		{name: "throttled", status: http.StatusTooManyRequests, kind: notice.KindTransient},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"error":"auth"}`, kind: notice.KindPermanent},
		{name: "garbage", status: http.StatusOK, body: "<html>", kind: notice.KindTransient},
		{name: "bad coordinate", status: http.StatusOK, body: `{"addresses":[{"x":"east","y":"1"}]}`, kind: notice.KindTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}, nil)
			_, found, err := c.Geocode(context.Background(), "q")
			require.Error(t, err)
			require.False(t, found)
			require.Equal(t, tt.kind, notice.KindOf(err))
		})
	}
}

type countingWaiter struct{ n atomic.Int32 }

func (w *countingWaiter) Wait(context.Context, string) error {
	w.n.Add(1)
	return nil
}

func TestGeocodeUsesLimiter(t *testing.T) {
	t.Parallel()

	waiter := &countingWaiter{}
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"addresses":[]}`))
	}, waiter)
	_, _, _ = c.Geocode(context.Background(), "a")
	_, _, _ = c.Geocode(context.Background(), "b")
	require.EqualValues(t, 2, waiter.n.Load())
}

func TestNewRequiresCredentials(t *testing.T) {
	t.Parallel()

	_, err := New(Config{KeyID: "id"}, nil, nil)
	require.Error(t, err)
}

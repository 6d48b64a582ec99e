// Package naver implements notice.Geocoder against the NAVER Cloud Maps
// geocoding API.
package naver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/noticewatch/internal/notice"
)

// DefaultBaseURL is the public geocode endpoint.
const DefaultBaseURL = "https://maps.apigw.ntruss.com/map-geocode/v2/geocode"

// Config holds credentials and timeouts.
type Config struct {
	BaseURL string
	KeyID   string
	Key     string
	Timeout time.Duration
}

// Waiter throttles outbound calls.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Client implements notice.Geocoder.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter Waiter
}

// New builds a Client. limiter may be nil.
func New(cfg Config, httpClient *http.Client, limiter Waiter) (*Client, error) {
	if cfg.KeyID == "" || cfg.Key == "" {
		return nil, errors.New("geocoder credentials are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 7 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: httpClient, limiter: limiter}, nil
}

type geocodeResponse struct {
	Status    string `json:"status"`
	Addresses []struct {
		RoadAddress string `json:"roadAddress"`
		X           string `json:"x"`
		Y           string `json:"y"`
	} `json:"addresses"`
	ErrorMessage string `json:"errorMessage"`
}

// Geocode resolves query. An empty address list is a miss, not an error.
func (c *Client) Geocode(ctx context.Context, query string) (notice.Coordinates, bool, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, c.cfg.BaseURL); err != nil {
			return notice.Coordinates{}, false, err
		}
	}
	endpoint := c.cfg.BaseURL + "?query=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return notice.Coordinates{}, false, notice.Permanent("build geocode request", err)
	}
	req.Header.Set("X-NCP-APIGW-API-KEY-ID", c.cfg.KeyID)
	req.Header.Set("X-NCP-APIGW-API-KEY", c.cfg.Key)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return notice.Coordinates{}, false, notice.Transient("geocode request", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return notice.Coordinates{}, false, notice.Transient("read geocode body", err)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return notice.Coordinates{}, false, notice.Transient("geocode", fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return notice.Coordinates{}, false, notice.Permanent("geocode", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var payload geocodeResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return notice.Coordinates{}, false, notice.Transient("decode geocode body", err)
	}
	if len(payload.Addresses) == 0 {
		return notice.Coordinates{}, false, nil
	}
	first := payload.Addresses[0]
	x, errX := strconv.ParseFloat(first.X, 64)
	y, errY := strconv.ParseFloat(first.Y, 64)
	if errX != nil || errY != nil {
		return notice.Coordinates{}, false, notice.Transient("parse coordinates", errors.Join(errX, errY))
	}
	return notice.Coordinates{X: x, Y: y}, true, nil
}

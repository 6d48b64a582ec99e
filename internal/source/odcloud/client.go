// Package odcloud fetches housing-lottery announcements from the public data
// portal (ApplyhomeInfoDetailSvc).
package odcloud

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/noticewatch/internal/notice"
)

const (
	fieldID     = "HOUSE_MANAGE_NO"
	fieldRegion = "HSSPLY_ADRES"
	fieldTitle  = "HOUSE_NM"
	fieldPblanc = "PBLANC_NO"
)

// Config controls the client.
type Config struct {
	BaseURL    string
	ServiceKey string
	PerPage    int
	Timeout    time.Duration
	// DetailBase is the announcement page used to build event URLs.
	DetailBase string
}

// Client implements notice.Source.
type Client struct {
	cfg  Config
	http *http.Client
}

// New builds a Client. A nil httpClient gets one with cfg.Timeout.
func New(cfg Config, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if strings.TrimSpace(cfg.ServiceKey) == "" {
		return nil, fmt.Errorf("service key is required")
	}
	if cfg.PerPage <= 0 {
		cfg.PerPage = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: httpClient}, nil
}

type response struct {
	Data *[]map[string]any `json:"data"`
}

// FetchNotices returns the first page of announcements whose recruitment date
// falls inside window. Only the first page is requested.
func (c *Client) FetchNotices(ctx context.Context, window notice.Window) ([]notice.Notice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(window), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &notice.UpstreamError{Reason: "request failed", Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &notice.UpstreamError{Reason: "read body", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &notice.UpstreamError{StatusCode: resp.StatusCode, Reason: snippet(body)}
	}

	var payload response
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &notice.UpstreamError{Reason: "decode payload", Err: err}
	}
	if payload.Data == nil {
		return nil, &notice.UpstreamError{Reason: "payload has no data list"}
	}

	out := make([]notice.Notice, 0, len(*payload.Data))
	for _, item := range *payload.Data {
		out = append(out, c.toNotice(item))
	}
	return out, nil
}

func (c *Client) requestURL(window notice.Window) string {
	q := url.Values{}
	q.Set("page", "1")
	q.Set("perPage", strconv.Itoa(c.cfg.PerPage))
	q.Set("serviceKey", c.cfg.ServiceKey)
	q.Set("cond[RCRIT_PBLANC_DE::GTE]", window.Start)
	q.Set("cond[RCRIT_PBLANC_DE::LTE]", window.End)
	return c.cfg.BaseURL + "?" + q.Encode()
}

func (c *Client) toNotice(item map[string]any) notice.Notice {
	id := stringField(item, fieldID)
	pblanc := stringField(item, fieldPblanc)
	if pblanc == "" {
		pblanc = id
	}
	n := notice.Notice{
		ID:     id,
		Region: stringField(item, fieldRegion),
		Title:  stringField(item, fieldTitle),
		Raw:    item,
	}
	if id != "" {
		n.DetailURL = notice.DetailURL(c.cfg.DetailBase, id, pblanc)
	}
	return n
}

// stringField reads key as a string. The portal returns some ids as numbers.
func stringField(item map[string]any, key string) string {
	switch v := item[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func snippet(body []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		s = s[:limit]
	}
	if s == "" {
		return "empty body"
	}
	return s
}

// Package memory is an in-process notice store with document-store semantics.
package memory

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/JakeFAU/noticewatch/internal/notice"
)

// Operation names accepted by FailOn.
const (
	OpUpsertNotice     = "upsert_notice"
	OpApplyCoordinates = "apply_coordinates"
	OpUpsertEnrichment = "upsert_enrichment"
	OpAddArchiveURL    = "add_archive_url"
)

// Store keeps notices and enrichments as plain maps.
type Store struct {
	mu          sync.RWMutex
	notices     map[string]map[string]any
	enrichments map[string]map[string]any
	failures    map[string]error
	calls       map[string]int
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		notices:     make(map[string]map[string]any),
		enrichments: make(map[string]map[string]any),
		failures:    make(map[string]error),
		calls:       make(map[string]int),
	}
}

// FailOn makes op return err until cleared with a nil err.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// Calls reports how many times op was invoked.
func (s *Store) Calls(op string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[op]
}

func (s *Store) begin(op string) error {
	s.calls[op]++
	return s.failures[op]
}

// UpsertNotice implements notice.NoticeStore.
func (s *Store) UpsertNotice(_ context.Context, n notice.Notice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(OpUpsertNotice); err != nil {
		return err
	}
	if n.ID == "" {
		return errors.New("notice id is required")
	}
	doc := s.notices[n.ID]
	if doc == nil {
		doc = map[string]any{"_id": n.ID}
		s.notices[n.ID] = doc
	}
	for k, v := range n.Raw {
		if k != "_id" {
			doc[k] = v
		}
	}
	doc["HOUSE_MANAGE_NO"] = n.ID
	if n.DetailURL != "" {
		doc["detail_url"] = n.DetailURL
	}
	return nil
}

// ApplyCoordinates implements notice.NoticeStore. Unknown notices are ignored.
func (s *Store) ApplyCoordinates(_ context.Context, noticeID string, rec notice.CoordinateRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(OpApplyCoordinates); err != nil {
		return err
	}
	doc, ok := s.notices[noticeID]
	if !ok {
		return nil
	}
	doc["x"], doc["y"] = nil, nil
	if rec.X != nil {
		doc["x"] = *rec.X
	}
	if rec.Y != nil {
		doc["y"] = *rec.Y
	}
	doc["geocode_status"] = string(rec.Status)
	return nil
}

// UpsertEnrichment implements notice.NoticeStore.
func (s *Store) UpsertEnrichment(_ context.Context, rec notice.EnrichmentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(OpUpsertEnrichment); err != nil {
		return err
	}
	if rec.Key == "" {
		return errors.New("enrichment key is required")
	}
	doc := s.enrichments[rec.Key]
	if doc == nil {
		doc = map[string]any{}
		s.enrichments[rec.Key] = doc
	}
	maps.Copy(doc, rec.Document())
	doc["_id"] = rec.Key
	return nil
}

// AddArchiveURL implements notice.NoticeStore with add-to-set semantics.
func (s *Store) AddArchiveURL(_ context.Context, noticeID, url string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(OpAddArchiveURL); err != nil {
		return err
	}
	doc := s.notices[noticeID]
	if doc == nil {
		doc = map[string]any{"_id": noticeID, "createdAt": at.UTC()}
		s.notices[noticeID] = doc
	}
	urls, _ := doc["s3_pdf_urls"].([]string)
	if !slices.Contains(urls, url) {
		doc["s3_pdf_urls"] = append(slices.Clone(urls), url)
	}
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Notice returns a copy of the stored notice document.
func (s *Store) Notice(id string) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.notices[id]
	return maps.Clone(doc), ok
}

// Enrichment returns a copy of the stored enrichment document.
func (s *Store) Enrichment(key string) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.enrichments[key]
	return maps.Clone(doc), ok
}

// NoticeIDs lists stored notice ids in sorted order.
func (s *Store) NoticeIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.notices))
}

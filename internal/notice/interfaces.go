package notice

import (
	"context"
	"io"
	"time"
)

// DedupStore is a key/value store with per-key expiry.
type DedupStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	// SetWithTTL atomically creates key if absent. It reports true only when
	// this call created the key.
	SetWithTTL(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Source fetches candidate notices for a date window.
type Source interface {
	FetchNotices(ctx context.Context, window Window) ([]Notice, error)
}

// Producer sends events onto the message channel.
type Producer interface {
	// Send hands the event to the channel without waiting for acknowledgement.
	Send(ctx context.Context, event NoticeEvent) error
	// Flush blocks until every pending Send was acknowledged and returns the
	// first failure, if any.
	Flush(ctx context.Context) error
	Close() error
}

// EventHandler processes one delivered event to completion.
type EventHandler interface {
	HandleEvent(ctx context.Context, event NoticeEvent)
}

// Subscriber delivers events to a handler until ctx ends.
type Subscriber interface {
	Receive(ctx context.Context, handler EventHandler) error
}

// NoticeStore persists raw notices and their enrichments.
type NoticeStore interface {
	UpsertNotice(ctx context.Context, n Notice) error
	// ApplyCoordinates updates an existing notice only; it never inserts.
	ApplyCoordinates(ctx context.Context, noticeID string, rec CoordinateRecord) error
	UpsertEnrichment(ctx context.Context, rec EnrichmentRecord) error
	// AddArchiveURL adds url to the notice's archive set, creating the notice
	// with createdAt=at when it does not exist yet.
	AddArchiveURL(ctx context.Context, noticeID, url string, at time.Time) error
	Ping(ctx context.Context) error
}

// BlobStore writes raw artifacts and returns a reference URL.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Geocoder resolves a single address query. A query with no match returns
// found=false and a nil error.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (coords Coordinates, found bool, err error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// TextExtractor turns PDF bytes into page-ordered plain text.
type TextExtractor interface {
	ExtractText(ctx context.Context, pdf []byte) (string, error)
}

// StructuredExtractor turns document text into the fixed announcement schema.
type StructuredExtractor interface {
	Extract(ctx context.Context, text string) (map[string]any, error)
}

// Hasher computes digests for integrity metadata.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Sleeper waits for d or until ctx ends.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

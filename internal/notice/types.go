package notice

import (
	"net/http"
	"time"
)

// Notice is a single announcement as returned by the upstream source.
type Notice struct {
	ID        string
	Region    string
	Title     string
	DetailURL string
	// Raw holds every upstream field verbatim; it is persisted as-is.
	Raw map[string]any
}

// Event converts the notice into its wire representation.
func (n Notice) Event() NoticeEvent {
	return NoticeEvent{
		NoticeID: n.ID,
		Region:   n.Region,
		Title:    n.Title,
		URL:      n.DetailURL,
	}
}

// NoticeEvent is the message carried between the publisher and the consumer.
type NoticeEvent struct {
	NoticeID string `json:"notice_id"`
	Region   string `json:"region"`
	Title    string `json:"title"`
	URL      string `json:"url"`
}

// Window is an inclusive date range, formatted YYYY-MM-DD.
type Window struct {
	Start string
	End   string
}

// GeocodeStatus reports whether an address could be resolved.
type GeocodeStatus string

const (
	// GeocodeOK means a candidate resolved to coordinates.
	GeocodeOK GeocodeStatus = "OK"
	// GeocodeNotFound means every candidate was exhausted.
	GeocodeNotFound GeocodeStatus = "NOT_FOUND"
)

// Coordinates are longitude (X) and latitude (Y) as returned by the geocoder.
type Coordinates struct {
	X float64
	Y float64
}

// CoordinateRecord is the Stage A result written onto the notice.
// X and Y are nil when Status is GeocodeNotFound.
type CoordinateRecord struct {
	X         *float64
	Y         *float64
	Status    GeocodeStatus
	Candidate string
}

// Found builds an OK record for the given coordinates.
func Found(c Coordinates, candidate string) CoordinateRecord {
	x, y := c.X, c.Y
	return CoordinateRecord{X: &x, Y: &y, Status: GeocodeOK, Candidate: candidate}
}

// NotFound builds the record written when no candidate resolved.
func NotFound() CoordinateRecord {
	return CoordinateRecord{Status: GeocodeNotFound}
}

// EnrichmentRecord is the Stage B result keyed by EnrichmentKey.
type EnrichmentRecord struct {
	Key         string
	NoticeID    string
	PblancNo    string
	Sequence    int
	PDFURL      string
	ArchiveURL  string
	PDFSHA256   string
	Fields      map[string]any
	ExtractedAt time.Time
}

// Document flattens the record into the shape stored in the enrichment
// collection: the extracted fields at the top level plus provenance keys.
func (r EnrichmentRecord) Document() map[string]any {
	doc := make(map[string]any, len(r.Fields)+7)
	for k, v := range r.Fields {
		doc[k] = v
	}
	doc["notice_id"] = r.NoticeID
	doc["pblanc_no"] = r.PblancNo
	doc["sequence"] = r.Sequence
	doc["pdf_url"] = r.PDFURL
	doc["archive_url"] = r.ArchiveURL
	doc["pdf_sha256"] = r.PDFSHA256
	doc["extracted_at"] = r.ExtractedAt
	return doc
}

// FetchRequest describes a single HTTP GET.
type FetchRequest struct {
	URL     string
	Headers http.Header
	// Timeout overrides the fetcher default when non-zero.
	Timeout time.Duration
	// MaxBodySize overrides the fetcher default when non-zero.
	MaxBodySize int
}

// FetchResponse captures what the fetcher saw.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// QueueItem wraps an event handed from the subscription to a worker.
// Done is closed once the worker finished the event. Trace carries the
// propagated trace context across the hand-off.
type QueueItem struct {
	Event NoticeEvent
	Trace map[string]string
	Done  chan struct{}
}

// Package enrich runs Stage B: it finds a notice's announcement PDF, archives
// it, extracts the structured schema and stores the result.
package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/noticewatch/internal/notice"
)

const (
	// DefaultAttachmentHost prefixes root-relative attachment links.
	DefaultAttachmentHost = "https://static.applyhome.co.kr"
	// DefaultAttachmentMarker identifies attachment download links.
	DefaultAttachmentMarker = "getAtchmnfl.do"

	pdfContentType = "application/pdf"
	linkSelector   = "a[href]"
)

// Status describes how Stage B ended for a notice.
type Status string

const (
	// StatusEnriched means the PDF was archived and its extraction stored.
	StatusEnriched Status = "ENRICHED"
	// StatusNoPDF means the detail page had no attachment link.
	StatusNoPDF Status = "NO_PDF"
)

// LinkFetcher returns the href values matching selector on an HTML page.
type LinkFetcher interface {
	FetchLinks(ctx context.Context, req notice.FetchRequest, selector string) ([]string, int, error)
}

// Config holds Stage B endpoints and limits.
type Config struct {
	DetailBase       string
	AttachmentHost   string
	AttachmentMarker string
	PageTimeout      time.Duration
	PDFTimeout       time.Duration
	MaxPDFBytes      int
	// JSONDir receives a copy of every extraction. Empty disables the mirror.
	JSONDir string
}

// Deps are the collaborators Stage B calls.
type Deps struct {
	Pages     LinkFetcher
	Files     notice.Fetcher
	Archive   notice.BlobStore
	Text      notice.TextExtractor
	Extractor notice.StructuredExtractor
	Store     notice.NoticeStore
	Hasher    notice.Hasher
	Clock     notice.Clock
}

// Result summarizes a finished Stage B run.
type Result struct {
	Status     Status
	Key        string
	PDFURL     string
	ArchiveURL string
}

// Enricher runs Stage B.
type Enricher struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New builds an Enricher, filling unset config with the applyhome defaults.
func New(deps Deps, cfg Config, logger *zap.Logger) *Enricher {
	if cfg.DetailBase == "" {
		cfg.DetailBase = notice.DefaultDetailBase
	}
	if cfg.AttachmentHost == "" {
		cfg.AttachmentHost = DefaultAttachmentHost
	}
	if cfg.AttachmentMarker == "" {
		cfg.AttachmentMarker = DefaultAttachmentMarker
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = 15 * time.Second
	}
	if cfg.PDFTimeout <= 0 {
		cfg.PDFTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{deps: deps, cfg: cfg, logger: logger}
}

// Enrich processes the first attachment of a notice. A detail page without
// attachments ends the stage with StatusNoPDF and no side effects.
func (e *Enricher) Enrich(ctx context.Context, noticeID, pblancNo, detailURL string) (Result, error) {
	if strings.TrimSpace(noticeID) == "" {
		return Result{}, notice.Permanent("enrich", errors.New("notice id is required"))
	}
	if pblancNo == "" {
		pblancNo = noticeID
	}
	if detailURL == "" {
		detailURL = notice.DetailURL(e.cfg.DetailBase, noticeID, pblancNo)
	}
	logger := e.logger.With(zap.String("notice_id", noticeID))

	pdfURL, err := e.LocatePDF(ctx, detailURL)
	if errors.Is(err, notice.ErrNotFound) {
		logger.Info("no attachment link on detail page", zap.String("url", detailURL))
		return Result{Status: StatusNoPDF}, nil
	}
	if err != nil {
		return Result{}, err
	}

	pdf, err := e.Download(ctx, pdfURL)
	if err != nil {
		return Result{}, err
	}
	digest, err := e.deps.Hasher.Hash(pdf)
	if err != nil {
		return Result{}, notice.Permanent("hash pdf", err)
	}

	key := notice.EnrichmentKey(noticeID, pblancNo, 1)
	archiveURL, err := e.deps.Archive.PutObject(ctx, notice.ArchivePath(key), pdfContentType, bytes.NewReader(pdf))
	if err != nil {
		return Result{}, notice.Transient("archive pdf", err)
	}
	logger.Info("pdf archived", zap.String("key", key), zap.String("archive_url", archiveURL), zap.Int("bytes", len(pdf)))

	text, err := e.deps.Text.ExtractText(ctx, pdf)
	if err != nil {
		return Result{}, fmt.Errorf("extract text: %w", err)
	}
	fields, err := e.deps.Extractor.Extract(ctx, text)
	if err != nil {
		return Result{}, fmt.Errorf("structured extract: %w", err)
	}

	rec := notice.EnrichmentRecord{
		Key:         key,
		NoticeID:    noticeID,
		PblancNo:    pblancNo,
		Sequence:    1,
		PDFURL:      pdfURL,
		ArchiveURL:  archiveURL,
		PDFSHA256:   digest,
		Fields:      fields,
		ExtractedAt: e.deps.Clock.Now(),
	}
	if err := e.Persist(ctx, rec); err != nil {
		return Result{}, err
	}
	return Result{Status: StatusEnriched, Key: key, PDFURL: pdfURL, ArchiveURL: archiveURL}, nil
}

// LocatePDF returns the first attachment link on the detail page. It returns
// notice.ErrNotFound when the page has none.
func (e *Enricher) LocatePDF(ctx context.Context, detailURL string) (string, error) {
	links, status, err := e.deps.Pages.FetchLinks(ctx, notice.FetchRequest{
		URL:     detailURL,
		Timeout: e.cfg.PageTimeout,
	}, linkSelector)
	if err != nil {
		return "", notice.Transient("fetch detail page", err)
	}
	if err := checkStatus("fetch detail page", status); err != nil {
		return "", err
	}
	attachments := PickAttachments(links, e.cfg.AttachmentMarker, e.cfg.AttachmentHost)
	if len(attachments) == 0 {
		return "", notice.ErrNotFound
	}
	e.logger.Debug("attachment links found", zap.Strings("links", attachments))
	return attachments[0], nil
}

// Download fetches the PDF body.
func (e *Enricher) Download(ctx context.Context, pdfURL string) ([]byte, error) {
	resp, err := e.deps.Files.Fetch(ctx, notice.FetchRequest{
		URL:         pdfURL,
		Timeout:     e.cfg.PDFTimeout,
		MaxBodySize: e.cfg.MaxPDFBytes,
	})
	if err != nil {
		if notice.KindOf(err) == notice.KindPermanent {
			return nil, notice.Permanent("download pdf", err)
		}
		return nil, notice.Transient("download pdf", err)
	}
	if err := checkStatus("download pdf", resp.StatusCode); err != nil {
		return nil, err
	}
	if len(resp.Body) == 0 {
		return nil, notice.Permanent("download pdf", errors.New("empty body"))
	}
	return resp.Body, nil
}

// Persist stores the extraction, mirrors it to disk and links the archive
// URL from the parent notice.
func (e *Enricher) Persist(ctx context.Context, rec notice.EnrichmentRecord) error {
	if err := e.deps.Store.UpsertEnrichment(ctx, rec); err != nil {
		return notice.Transient("upsert enrichment", err)
	}
	if err := e.writeMirror(rec); err != nil {
		e.logger.Error("json mirror write failed", zap.String("key", rec.Key), zap.Error(err))
	}
	if err := e.deps.Store.AddArchiveURL(ctx, rec.NoticeID, rec.ArchiveURL, rec.ExtractedAt); err != nil {
		return notice.Transient("add archive url", err)
	}
	return nil
}

func (e *Enricher) writeMirror(rec notice.EnrichmentRecord) error {
	if e.cfg.JSONDir == "" {
		return nil
	}
	if err := os.MkdirAll(e.cfg.JSONDir, 0o750); err != nil {
		return fmt.Errorf("create json dir: %w", err)
	}
	doc := rec.Document()
	doc["_id"] = rec.Key
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal mirror: %w", err)
	}
	path := filepath.Join(e.cfg.JSONDir, rec.Key+".json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// PickAttachments keeps hrefs containing marker, in order, and prefixes
// root-relative ones with host.
func PickAttachments(hrefs []string, marker, host string) []string {
	var out []string
	for _, href := range hrefs {
		href = strings.TrimSpace(href)
		if !strings.Contains(href, marker) {
			continue
		}
		if strings.HasPrefix(href, "/") && !strings.HasPrefix(href, "//") {
			href = strings.TrimRight(host, "/") + href
		}
		out = append(out, href)
	}
	return out
}

func checkStatus(op string, status int) error {
	if status >= 200 && status < 300 {
		return nil
	}
	err := &notice.UpstreamError{StatusCode: status, Reason: http.StatusText(status)}
	if status == http.StatusTooManyRequests || status >= 500 {
		return notice.Transient(op, err)
	}
	return notice.Permanent(op, err)
}

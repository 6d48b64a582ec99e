// Package gemini turns announcement text into the structured schema using
// the Gemini API.
package gemini

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/JakeFAU/noticewatch/internal/notice"
)

//go:embed prompt.txt
var instructions string

// TextMarker separates the instructions from the document body.
const TextMarker = "\n\n--- PDF 본문 ---\n\n"

const defaultModel = "gemini-2.5-flash"

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("model returned no text")

type generator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Config selects the model and bounds each call.
type Config struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Extractor implements notice.StructuredExtractor.
type Extractor struct {
	models  generator
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

// New connects a Gemini API client.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Extractor, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini: api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return newExtractor(client.Models, cfg, logger), nil
}

func newExtractor(models generator, cfg Config, logger *zap.Logger) *Extractor {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		models:  models,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

// Prompt returns the full request text for a document.
func Prompt(text string) string {
	return instructions + TextMarker + text
}

// Extract asks the model for the schema and parses its reply.
func (e *Extractor) Extract(ctx context.Context, text string) (map[string]any, error) {
	if strings.TrimSpace(text) == "" {
		return nil, notice.Permanent("structured extract", errors.New("empty document text"))
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := e.models.GenerateContent(ctx, e.model, genai.Text(Prompt(text)), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, notice.Transient("generate content", err)
	}
	reply := resp.Text()
	if strings.TrimSpace(reply) == "" {
		return nil, notice.Permanent("generate content", ErrEmptyResponse)
	}
	e.logger.Debug("model replied",
		zap.String("model", e.model),
		zap.Int("chars", len(reply)),
		zap.Duration("took", time.Since(start)),
	)
	return Parse(reply)
}

// StripCodeFence removes a surrounding ``` or ```json fence, if any.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(strings.TrimPrefix(s, "```"), "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// Parse decodes a model reply into a JSON object.
func Parse(reply string) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal([]byte(StripCodeFence(reply)), &out); err != nil {
		return nil, notice.Permanent("parse model reply", err)
	}
	if out == nil {
		return nil, notice.Permanent("parse model reply", errors.New("reply is not a JSON object"))
	}
	return out, nil
}

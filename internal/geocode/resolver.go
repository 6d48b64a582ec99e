package geocode

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/noticewatch/internal/metrics"
	"github.com/JakeFAU/noticewatch/internal/notice"
	"github.com/JakeFAU/noticewatch/internal/retry"
)

// Config tunes candidate resolution.
type Config struct {
	MaxAttempts  int
	Backoff      time.Duration
	CandidateGap time.Duration
}

// DefaultConfig matches the geocoder's published rate guidance.
func DefaultConfig() Config {
	return Config{MaxAttempts: 3, Backoff: 500 * time.Millisecond, CandidateGap: 200 * time.Millisecond}
}

// Resolver runs Stage A for one notice.
type Resolver struct {
	geocoder notice.Geocoder
	store    notice.NoticeStore
	cfg      Config
	sleep    notice.Sleeper
	logger   *zap.Logger
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithSleeper replaces the real sleeper (tests).
func WithSleeper(s notice.Sleeper) Option {
	return func(r *Resolver) { r.sleep = s }
}

// NewResolver builds a Resolver. A nil geocoder makes every Resolve fail
// permanently, which aborts the event.
func NewResolver(geocoder notice.Geocoder, store notice.NoticeStore, cfg Config, logger *zap.Logger, opts ...Option) *Resolver {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver{
		geocoder: geocoder,
		store:    store,
		cfg:      cfg,
		sleep:    notice.Sleep,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve normalizes region, resolves the first matching candidate and
// writes the result onto the notice. An address no candidate matches is a
// successful NOT_FOUND result, not an error.
func (r *Resolver) Resolve(ctx context.Context, noticeID, region string) (notice.CoordinateRecord, error) {
	if strings.TrimSpace(noticeID) == "" || strings.TrimSpace(region) == "" {
		return notice.CoordinateRecord{}, notice.Permanent("resolve", errors.New("notice id and region are required"))
	}
	if r.geocoder == nil {
		return notice.CoordinateRecord{}, notice.Permanent("resolve", errors.New("geocoder is not configured"))
	}

	rec, err := r.ResolveCandidates(ctx, NormalizeCandidates(region))
	if err != nil {
		return notice.CoordinateRecord{}, err
	}
	if err := r.Apply(ctx, noticeID, rec); err != nil {
		return rec, err
	}
	return rec, nil
}

// ResolveCandidates tries candidates in order and stops at the first hit.
// Each candidate gets up to MaxAttempts calls on transient failure. A
// permanent geocoder error, such as rejected credentials, ends resolution
// with that error instead of a NOT_FOUND result.
func (r *Resolver) ResolveCandidates(ctx context.Context, candidates []string) (notice.CoordinateRecord, error) {
	policy := retry.Policy{
		MaxAttempts: r.cfg.MaxAttempts,
		Backoff:     retry.Linear(r.cfg.Backoff),
		Sleep:       r.sleep,
		Retryable:   func(err error) bool { return notice.KindOf(err) == notice.KindTransient },
	}
	for i, candidate := range candidates {
		if i > 0 {
			if err := r.sleep(ctx, r.cfg.CandidateGap); err != nil {
				return notice.CoordinateRecord{}, fmt.Errorf("resolve canceled: %w", err)
			}
		}
		var (
			coords notice.Coordinates
			found  bool
		)
		err := policy.Do(ctx, func(ctx context.Context, attempt int) error {
			var gerr error
			coords, found, gerr = r.geocoder.Geocode(ctx, candidate)
			switch {
			case gerr != nil:
				metrics.ObserveGeocodeAttempt("error")
				r.logger.Warn("geocode attempt failed",
					zap.String("candidate", candidate),
					zap.Int("attempt", attempt),
					zap.Error(gerr),
				)
			case found:
				metrics.ObserveGeocodeAttempt("hit")
			default:
				metrics.ObserveGeocodeAttempt("miss")
			}
			return gerr
		})
		if ctx.Err() != nil {
			return notice.CoordinateRecord{}, fmt.Errorf("resolve canceled: %w", ctx.Err())
		}
		if err != nil {
			switch notice.KindOf(err) {
			case notice.KindPermanent, notice.KindFatal:
				return notice.CoordinateRecord{}, fmt.Errorf("geocode %q: %w", candidate, err)
			}
			continue
		}
		if found {
			r.logger.Debug("candidate resolved", zap.String("candidate", candidate))
			return notice.Found(coords, candidate), nil
		}
	}
	return notice.NotFound(), nil
}

// Apply writes rec onto an existing notice. It never creates one.
func (r *Resolver) Apply(ctx context.Context, noticeID string, rec notice.CoordinateRecord) error {
	if err := r.store.ApplyCoordinates(ctx, noticeID, rec); err != nil {
		return fmt.Errorf("apply coordinates: %w", err)
	}
	return nil
}

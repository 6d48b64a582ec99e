// Package dedup implements the "have we seen this notice" claim on top of a
// notice.DedupStore.
package dedup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/noticewatch/internal/notice"
)

// DefaultTTL keeps a claim for thirty days.
const DefaultTTL = 30 * 24 * time.Hour

// Claimer marks notices as seen.
type Claimer struct {
	store notice.DedupStore
	ttl   time.Duration
}

// NewClaimer wraps store. A non-positive ttl falls back to DefaultTTL.
func NewClaimer(store notice.DedupStore, ttl time.Duration) *Claimer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Claimer{store: store, ttl: ttl}
}

// Claim reports whether noticeID is new. Exactly one caller observes true per
// id within the TTL; an empty id is never new.
func (c *Claimer) Claim(ctx context.Context, noticeID string) (bool, error) {
	if strings.TrimSpace(noticeID) == "" {
		return false, nil
	}
	created, err := c.store.SetWithTTL(ctx, notice.DedupKey(noticeID), c.ttl)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", noticeID, err)
	}
	return created, nil
}

package notice

import (
	"fmt"
	"net/url"
)

// DedupKeyPrefix namespaces claim keys in the dedup store.
const DedupKeyPrefix = "notice:"

// DefaultDetailBase is the public page for a single announcement.
const DefaultDetailBase = "https://www.applyhome.co.kr/ai/aia/selectAPTLttotPblancDetail.do"

// DedupKey returns the claim key for a notice id.
func DedupKey(noticeID string) string {
	return DedupKeyPrefix + noticeID
}

// EnrichmentKey identifies one extracted attachment.
func EnrichmentKey(noticeID, pblancNo string, sequence int) string {
	return fmt.Sprintf("%s_%s_%d", noticeID, pblancNo, sequence)
}

// ArchivePath returns the object path for an archived attachment.
func ArchivePath(key string) string {
	return "pdfs/" + key + ".pdf"
}

// DetailURL builds the announcement page URL from base.
func DetailURL(base, noticeID, pblancNo string) string {
	if base == "" {
		base = DefaultDetailBase
	}
	q := url.Values{}
	q.Set("houseManageNo", noticeID)
	q.Set("pblancNo", pblancNo)
	return base + "?" + q.Encode()
}

// Package channel holds the wire codec shared by every message channel
// backend. Events travel as UTF-8 JSON objects.
package channel

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/JakeFAU/noticewatch/internal/notice"
)

// Encode serializes an event for the wire.
func Encode(event notice.NoticeEvent) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return data, nil
}

// Decode parses a wire payload.
func Decode(data []byte) (notice.NoticeEvent, error) {
	if !utf8.Valid(data) {
		return notice.NoticeEvent{}, notice.Permanent("decode event", fmt.Errorf("payload is not valid UTF-8"))
	}
	var event notice.NoticeEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return notice.NoticeEvent{}, notice.Permanent("decode event", err)
	}
	return event, nil
}

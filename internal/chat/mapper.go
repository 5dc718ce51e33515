package chat

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"time"
)

// unsupportedText is what a history record decodes to when no usable text
// field is present.
const unsupportedText = "(unsupported message)"

// timestamps above this are epoch milliseconds, below it epoch seconds
const millisThreshold = 10_000_000_000

// MessagesFromHistory decodes the loosely-typed records of a history
// payload. Records that are not objects are skipped. Records without a
// parseable timestamp get synthesized ones spaced a minute apart, ending at
// decode time, so relative order survives.
func MessagesFromHistory(records []any) []Message {
	now := time.Now()
	total := len(records)
	if total < 1 {
		total = 1
	}
	out := make([]Message, 0, len(records))
	for i, raw := range records {
		rec, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		fallback := now.Add(time.Duration(i-(total-1)) * time.Minute)
		out = append(out, messageFromRecord(rec, fallback, i))
	}
	return out
}

// messageFromRecord probes one record for the shapes the gateway is known to
// emit, in order, tolerating anything it does not recognize.
func messageFromRecord(rec map[string]any, fallback time.Time, index int) Message {
	role := RoleUnknown
	if s, ok := rec["role"].(string); ok {
		role = RoleFrom(s)
	}
	text := extractText(rec)
	createdAt, hasTimestamp := parseTimestamp(rec)
	if !hasTimestamp {
		createdAt = fallback
	}
	id, _ := rec["id"].(string)
	if id == "" {
		id = stableID(role, text, createdAt, index, hasTimestamp)
	}
	return Message{
		ID:        id,
		Role:      role,
		Text:      text,
		State:     StateSent,
		CreatedAt: createdAt,
	}
}

// extractText tries, in order: a plain string "content", a plain string
// "text", then a structured "content" array where only type=text entries
// contribute, concatenated.
func extractText(rec map[string]any) string {
	if s, ok := rec["content"].(string); ok {
		return s
	}
	if s, ok := rec["text"].(string); ok {
		return s
	}
	if parts, ok := rec["content"].([]any); ok {
		joined := ""
		found := false
		for _, part := range parts {
			entry, ok := part.(map[string]any)
			if !ok {
				continue
			}
			if kind, _ := entry["type"].(string); kind != "text" {
				continue
			}
			if s, ok := entry["text"].(string); ok {
				joined += s
				found = true
			}
		}
		if found {
			return joined
		}
	}
	return unsupportedText
}

// parseTimestamp probes the candidate fields, accepting epoch seconds, epoch
// milliseconds, or RFC 3339 text.
func parseTimestamp(rec map[string]any) (time.Time, bool) {
	var candidate any
	for _, key := range []string{"timestamp", "createdAtMs", "ts"} {
		if v, ok := rec[key]; ok && v != nil {
			candidate = v
			break
		}
	}
	switch v := candidate.(type) {
	case float64:
		return timeFromEpoch(v)
	case string:
		if raw, err := strconv.ParseFloat(v, 64); err == nil {
			return timeFromEpoch(raw)
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func timeFromEpoch(raw float64) (time.Time, bool) {
	if raw <= 0 {
		return time.Time{}, false
	}
	if raw > millisThreshold {
		return time.UnixMilli(int64(raw)), true
	}
	return time.Unix(0, int64(raw*float64(time.Second))), true
}

// stableID synthesizes a deterministic id for records that lack one. Good
// enough for dedup within one decode pass; not guaranteed unique across
// decodes of overlapping payloads.
func stableID(role Role, text string, createdAt time.Time, index int, hasTimestamp bool) string {
	h := fnv.New32a()
	h.Write([]byte(text))
	if hasTimestamp {
		return fmt.Sprintf("r-%s-%d-%08x", role, createdAt.UnixMilli(), h.Sum32())
	}
	return fmt.Sprintf("r-%s-%d-%08x", role, index, h.Sum32())
}

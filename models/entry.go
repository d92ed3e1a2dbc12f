package models

import "encoding/json"

// Entry is one buffered chunk prepared for JSON packaging: either a chunk
// that parsed as JSON (kept as-is) or one preserved as raw text. Malformed
// entries are never dropped.
type Entry struct {
	raw  json.RawMessage
	text string
}

// ParseEntry classifies a chunk. A chunk that is valid JSON is kept parsed;
// anything else is kept as its raw text.
func ParseEntry(chunk []byte) Entry {
	if json.Valid(chunk) {
		raw := make(json.RawMessage, len(chunk))
		copy(raw, chunk)
		return Entry{raw: raw}
	}
	return Entry{text: string(chunk)}
}

func (e Entry) Parsed() bool {
	return e.raw != nil
}

func (e Entry) MarshalJSON() ([]byte, error) {
	if e.raw != nil {
		return e.raw, nil
	}
	return json.Marshal(e.text)
}

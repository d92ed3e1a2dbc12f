package sink

import (
	"bytes"
	"encoding/json"

	"github.com/klauspost/compress/gzip"

	"github.com/logship/s3sink/models"
)

// serialize turns the chunk sequence into one upload payload. JSON
// packaging is best-effort per chunk: entries that do not parse are kept as
// raw text, never dropped. Only compression can fail.
func serialize(chunks [][]byte, jsonArray, compress bool) ([]byte, error) {
	var payload []byte

	if jsonArray {
		entries := make([]models.Entry, len(chunks))
		for i, c := range chunks {
			entries[i] = models.ParseEntry(c)
		}
		// Marshaling Entry values cannot fail: each is either an already
		// valid raw message or a plain string.
		payload, _ = json.Marshal(entries)
	} else {
		payload = bytes.Join(chunks, nil)
	}

	if !compress {
		return payload, nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		return nil, &SerializationError{Err: err}
	}
	if err := zw.Close(); err != nil {
		return nil, &SerializationError{Err: err}
	}
	return buf.Bytes(), nil
}

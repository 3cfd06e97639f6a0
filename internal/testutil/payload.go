package testutil

import (
	"bytes"
	"encoding/json"

	"github.com/roach88/fieldsync/internal/record"
)

// CanonicalPayload renders p as compact JSON with sorted keys and HTML
// escaping disabled, for stable golden output.
func CanonicalPayload(p record.Payload) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(map[string]any(p)); err != nil {
		return "<unencodable>"
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n"))
}

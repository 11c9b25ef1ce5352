package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/hiveobs/hive/pkg/models"
)

// previewLimit caps the truncated preview stored with warm references.
const previewLimit = 200

// contentFields maps raw event keys to the content tier they land in.
var contentFields = []struct {
	key string
	typ models.ContentType
}{
	{"system_prompt", models.ContentSystemPrompt},
	{"messages", models.ContentMessages},
	{"response_content", models.ContentResponse},
	{"tools", models.ContentTools},
	{"params", models.ContentParams},
}

// extractContent pulls the content-addressable fields out of a raw event,
// producing one warm reference per non-empty field and at most one cold
// blob per hash.
func extractContent(teamID string, ev models.LLMEvent, raw map[string]any) ([]models.ContentReference, []models.ContentBlob) {
	var refs []models.ContentReference
	var blobs []models.ContentBlob
	seen := make(map[string]bool)

	for _, f := range contentFields {
		v, ok := raw[f.key]
		if !ok || v == nil {
			continue
		}
		text, count := stringify(v)
		if text == "" || text == "null" || text == "{}" || text == "[]" {
			continue
		}

		sum := sha256.Sum256([]byte(text))
		hash := hex.EncodeToString(sum[:])

		ref := models.ContentReference{
			Timestamp:    ev.Timestamp,
			TraceID:      ev.TraceID,
			CallSequence: ev.CallSequence,
			TeamID:       teamID,
			ContentType:  f.typ,
			ContentHash:  hash,
			ByteSize:     len(text),
			Preview:      preview(text),
		}
		if f.typ == models.ContentMessages && count >= 0 {
			c := count
			ref.MessageCount = &c
		}
		refs = append(refs, ref)

		if !seen[hash] {
			seen[hash] = true
			blobs = append(blobs, models.ContentBlob{
				ContentHash: hash,
				TeamID:      teamID,
				Content:     text,
				ByteSize:    len(text),
				FirstSeenAt: ev.Timestamp,
				LastSeenAt:  ev.Timestamp,
			})
		}
	}
	return refs, blobs
}

// stringify renders a content value to its canonical string form.
// Structured values are JSON-encoded; the second return is the element
// count for arrays (-1 otherwise).
func stringify(v any) (string, int) {
	switch t := v.(type) {
	case string:
		return t, -1
	case []any:
		b, err := json.Marshal(t)
		if err != nil {
			return "", -1
		}
		return string(b), len(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "", -1
		}
		return string(b), -1
	}
}

// preview returns the first previewLimit characters of text.
func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewLimit {
		return text
	}
	return string(runes[:previewLimit])
}

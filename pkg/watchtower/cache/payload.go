package cache

import (
	"bytes"
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/pharmaforge/forge/pkg/model"
)

// payloadSchema validates cached payloads before they are trusted. A value
// that predates a schema change, or was corrupted in transit, fails
// validation and is treated as a miss.
const payloadSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["source", "external_id", "title", "category"],
    "properties": {
      "source":      {"type": "string", "minLength": 1},
      "external_id": {"type": "string", "minLength": 1},
      "title":       {"type": "string", "minLength": 1},
      "category":    {"enum": ["recall", "shortage", "warning_letter"]},
      "url":         {"type": "string"},
      "published_at": {"type": "string"},
      "summary":     {"type": "string"},
      "vendor_name": {"type": "string"},
      "status":      {"type": "string"},
      "tags":        {"type": "array", "items": {"type": "string"}}
    }
  }
}`

var compiledPayloadSchema = jsonschema.MustCompileString("watchtower/payload.json", payloadSchema)

// EncodeItems serializes a normalized payload for caching. A nil slice is
// stored as an empty array so the payload stays schema-valid.
func EncodeItems(items []model.FeedItem) ([]byte, error) {
	if items == nil {
		items = []model.FeedItem{}
	}
	return json.Marshal(items)
}

// DecodeItems deserializes and validates a cached payload. ok is false for
// any payload that cannot be fully trusted.
func DecodeItems(data []byte) (items []model.FeedItem, ok bool) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, false
	}
	if err := compiledPayloadSchema.Validate(doc); err != nil {
		return nil, false
	}

	if err := json.Unmarshal(data, &items); err != nil {
		return nil, false
	}
	return items, true
}

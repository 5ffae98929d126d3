package models

import (
	"encoding/json"
	"strings"
)

// Metadata is the subset of json_metadata the forum reads and writes.
type Metadata struct {
	Tags   []string `json:"tags,omitempty"`
	App    string   `json:"app,omitempty"`
	Format string   `json:"format,omitempty"`
	Image  []string `json:"image,omitempty"`
	Links  []string `json:"links,omitempty"`
}

// ParseMetadata never fails: anything unparsable becomes an empty Metadata.
// Some clients store tags as a single string, which is accepted too.
func ParseMetadata(raw string) Metadata {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Metadata{}
	}

	var loose struct {
		Tags   json.RawMessage `json:"tags"`
		App    any             `json:"app"`
		Format string          `json:"format"`
		Image  []string        `json:"image"`
		Links  []string        `json:"links"`
	}
	if err := json.Unmarshal([]byte(raw), &loose); err != nil {
		return Metadata{}
	}

	md := Metadata{Format: loose.Format, Image: loose.Image, Links: loose.Links}
	if app, ok := loose.App.(string); ok {
		md.App = app
	}
	if len(loose.Tags) > 0 {
		var tags []string
		if err := json.Unmarshal(loose.Tags, &tags); err == nil {
			md.Tags = tags
		} else {
			var tag string
			if err := json.Unmarshal(loose.Tags, &tag); err == nil && tag != "" {
				md.Tags = strings.Fields(tag)
			}
		}
	}
	return md
}

// String encodes the metadata for a comment operation.
func (m Metadata) String() string {
	data, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(data)
}

package firecrawl

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cwygoda/pagebrief/internal/domain"
)

// Observation is a normalized view of one extraction service response.
type Observation struct {
	Status domain.JobStatus
	Data   domain.ExtractedData
	Error  string
}

// Normalize turns a raw response body into an Observation.
//
// The result entry is results[0], falling back to data (object or first
// element of an array). Absent fields default to empty values. Keywords are
// expected as a JSON array of strings; a single string is split on commas.
func Normalize(body []byte) (Observation, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		return Observation{}, fmt.Errorf("%w: expected a JSON object", domain.ErrMalformedResponse)
	}

	entry := firstEntry(raw)
	obs := Observation{
		Status: normalizeStatus(raw, entry != nil),
		Data:   normalizeEntry(entry),
		Error:  stringField(raw, "error"),
	}
	return obs, nil
}

func firstEntry(raw map[string]any) map[string]any {
	if results, ok := raw["results"].([]any); ok && len(results) > 0 {
		if entry, ok := results[0].(map[string]any); ok {
			return entry
		}
	}
	switch data := raw["data"].(type) {
	case map[string]any:
		return data
	case []any:
		if len(data) > 0 {
			if entry, ok := data[0].(map[string]any); ok {
				return entry
			}
		}
	}
	return nil
}

func normalizeStatus(raw map[string]any, hasEntry bool) domain.JobStatus {
	if success, ok := raw["success"].(bool); ok && !success {
		return domain.StatusFailed
	}
	switch strings.ToLower(stringField(raw, "status")) {
	case "completed":
		return domain.StatusCompleted
	case "failed", "cancelled":
		return domain.StatusFailed
	case "pending":
		return domain.StatusPending
	case "":
		if hasEntry {
			return domain.StatusCompleted
		}
	}
	return domain.StatusProcessing
}

func normalizeEntry(entry map[string]any) domain.ExtractedData {
	data := domain.ExtractedData{Keywords: []string{}}
	if entry == nil {
		return data
	}

	data.Title = stringField(entry, "title")
	data.Summary = stringField(entry, "content")
	if data.Summary == "" {
		data.Summary = stringField(entry, "summary")
	}

	if meta, ok := entry["metadata"].(map[string]any); ok {
		if _, present := meta["keywords"]; present {
			data.Keywords = coerceKeywords(meta["keywords"])
			return data
		}
	}
	data.Keywords = coerceKeywords(entry["keywords"])
	return data
}

// coerceKeywords accepts a string array or a comma-joined string.
func coerceKeywords(v any) []string {
	keywords := []string{}
	switch kw := v.(type) {
	case []any:
		for _, item := range kw {
			if s, ok := item.(string); ok {
				if s = strings.TrimSpace(s); s != "" {
					keywords = append(keywords, s)
				}
			}
		}
	case string:
		for _, part := range strings.Split(kw, ",") {
			if s := strings.TrimSpace(part); s != "" {
				keywords = append(keywords, s)
			}
		}
	}
	return keywords
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

package vision

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const maxTags = 32

// DecodeResult recovers an analysis result from a model reply. It strips
// code fences, locates the first balanced JSON object and normalizes tags:
// trimmed, lower-cased, deduplicated in first-seen order.
func DecodeResult(content string) (Result, error) {
	body := stripCodeFence(content)
	if body == "" {
		return Result{}, errors.New("empty payload")
	}
	object, ok := firstJSONObject(body)
	if !ok {
		return Result{}, fmt.Errorf("no JSON object in payload: %s", snippet(body))
	}

	var raw struct {
		Description string          `json:"description"`
		Tags        json.RawMessage `json:"tags"`
	}
	if err := json.Unmarshal([]byte(object), &raw); err != nil {
		return Result{}, fmt.Errorf("decode analysis: %w (payload snippet: %s)", err, snippet(object))
	}
	return Result{
		Description: strings.TrimSpace(raw.Description),
		Tags:        NormalizeTags(decodeTags(raw.Tags)),
	}, nil
}

// decodeTags accepts a string array or a single comma separated string.
func decodeTags(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []any
	if err := json.Unmarshal(raw, &list); err == nil {
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	var joined string
	if err := json.Unmarshal(raw, &joined); err == nil {
		return strings.Split(joined, ",")
	}
	return nil
}

// NormalizeTags trims, lower-cases and deduplicates tags.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.Join(strings.Fields(tag), " "))
		tag = strings.Trim(tag, "#.")
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
		if len(out) == maxTags {
			break
		}
	}
	return out
}

func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "```")
	if start < 0 {
		return trimmed
	}
	body := trimmed[start+3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.ContainsAny(body[:nl], "{[") {
		body = body[nl+1:]
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// firstJSONObject returns the first balanced {...} span, skipping braces
// inside string literals.
func firstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	for start >= 0 {
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(s); i++ {
			c := s[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

func snippet(content string) string {
	clean := strings.Join(strings.Fields(content), " ")
	const limit = 160
	if runes := []rune(clean); len(runes) > limit {
		return string(runes[:limit]) + "..."
	}
	return clean
}

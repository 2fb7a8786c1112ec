package scenes

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Mode selects how Merge folds an entry into the document.
type Mode string

const (
	// ModeUpsert keeps at most one entry per asset id.
	ModeUpsert Mode = "upsert"
	// ModeAppend always appends, so re-ingesting an asset duplicates it.
	ModeAppend Mode = "append"
)

// ParseMode maps a config value to a Mode, defaulting to upsert.
func ParseMode(value string) Mode {
	if Mode(strings.ToLower(strings.TrimSpace(value))) == ModeAppend {
		return ModeAppend
	}
	return ModeUpsert
}

const assetsKey = "assets"

// EmptyDocument is the seed content of a new scenes file.
const EmptyDocument = `{"assets":[]}`

// ErrMalformed reports that the existing document could not be parsed and
// was replaced by a fresh one. Merge still returns a usable document.
var ErrMalformed = errors.New("malformed scenes document")

// Entry is one asset's contribution to the scenes index.
type Entry struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// Merge folds entry into doc. Unknown top-level keys and unknown fields of
// other entries survive untouched. The result is indented JSON with sorted
// top-level keys. When doc is malformed the returned bytes hold a fresh
// document containing only entry, alongside an error wrapping ErrMalformed.
func Merge(doc []byte, entry Entry, mode Mode) ([]byte, error) {
	if entry.Tags == nil {
		entry.Tags = []string{}
	}
	encoded, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("encode scenes entry: %w", err)
	}

	top, assets, warn := parse(doc)
	switch mode {
	case ModeAppend:
		assets = append(assets, encoded)
	default:
		replaced := false
		kept := assets[:0:0]
		for _, raw := range assets {
			if id, ok := entryID(raw); ok && id == entry.ID {
				if !replaced {
					kept = append(kept, encoded)
					replaced = true
				}
				continue
			}
			kept = append(kept, raw)
		}
		if !replaced {
			kept = append(kept, encoded)
		}
		assets = kept
	}

	list, err := json.Marshal(assets)
	if err != nil {
		return nil, fmt.Errorf("encode scenes assets: %w", err)
	}
	top[assetsKey] = list
	out, err := json.MarshalIndent(top, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode scenes document: %w", err)
	}
	return out, warn
}

// Remove drops every entry for id. It is a no-op on malformed documents.
func Remove(doc []byte, id int64) ([]byte, bool, error) {
	top, assets, warn := parse(doc)
	if warn != nil {
		return doc, false, warn
	}
	kept := assets[:0:0]
	for _, raw := range assets {
		if got, ok := entryID(raw); ok && got == id {
			continue
		}
		kept = append(kept, raw)
	}
	if len(kept) == len(assets) {
		return doc, false, nil
	}
	list, err := json.Marshal(kept)
	if err != nil {
		return nil, false, fmt.Errorf("encode scenes assets: %w", err)
	}
	top[assetsKey] = list
	out, err := json.MarshalIndent(top, "", "  ")
	if err != nil {
		return nil, false, fmt.Errorf("encode scenes document: %w", err)
	}
	return out, true, nil
}

// Entries decodes the known fields of every entry, skipping ones that do
// not fit the Entry shape.
func Entries(doc []byte) ([]Entry, error) {
	_, assets, warn := parse(doc)
	if warn != nil {
		return nil, warn
	}
	out := make([]Entry, 0, len(assets))
	for _, raw := range assets {
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func parse(doc []byte) (map[string]json.RawMessage, []json.RawMessage, error) {
	top := map[string]json.RawMessage{}
	if len(bytes.TrimSpace(doc)) == 0 {
		return top, nil, nil
	}
	if err := json.Unmarshal(doc, &top); err != nil {
		return map[string]json.RawMessage{}, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if top == nil {
		top = map[string]json.RawMessage{}
	}
	raw, ok := top[assetsKey]
	if !ok || len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return top, nil, nil
	}
	var assets []json.RawMessage
	if err := json.Unmarshal(raw, &assets); err != nil {
		return map[string]json.RawMessage{}, nil, fmt.Errorf("%w: assets is not a list", ErrMalformed)
	}
	return top, assets, nil
}

// entryID reads the id of a raw entry. String ids are tolerated.
func entryID(raw json.RawMessage) (int64, bool) {
	var probe struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil || len(probe.ID) == 0 {
		return 0, false
	}
	text := strings.Trim(strings.TrimSpace(string(probe.ID)), `"`)
	id, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

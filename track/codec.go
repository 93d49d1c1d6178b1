package track

import (
	"encoding/json"
	"fmt"
)

// Decode parses a track file, normalizes legacy element shapes, and
// validates the result. This is the single ingress point for tracks from
// disk or from the HTTP API.
func Decode(data []byte) (*Track, error) {
	var t Track
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode track: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("validate track %q: %w", t.ID, err)
	}
	return &t, nil
}

// Encode serializes a track for persistence. Tracks are normalized before
// encoding so alias types and editor-only elements never reach disk.
func Encode(t *Track) ([]byte, error) {
	t.Normalize()
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode track %q: %w", t.ID, err)
	}
	return data, nil
}

package nix

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// decodeJSON decodes text as a single JSON value. Numbers are kept as
// json.Number so payloads round-trip exactly. ok is false if text is not
// exactly one JSON value.
func decodeJSON(text string) (v any, ok bool) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, false
	}
	return v, true
}

// nonEmptyLines splits text into trimmed, non-empty lines.
func nonEmptyLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// truncate returns the first n items of s and the original length.
// A non-positive n returns s unchanged.
func truncate[T any](s []T, n int) ([]T, int) {
	if n > 0 && len(s) > n {
		return s[:n], len(s)
	}
	return s, len(s)
}

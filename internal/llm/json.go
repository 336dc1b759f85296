package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// ErrNoJSON is returned when a reply holds no parseable JSON object
var ErrNoJSON = errors.New("no valid JSON found")

// ExtractJSON returns the substring between the first '{' and the last '}' of a reply.
// Text around it is commentary and is dropped.
func ExtractJSON(reply string) ([]byte, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start == -1 || end <= start {
		return nil, ErrNoJSON
	}

	candidate := []byte(reply[start : end+1])
	if !json.Valid(candidate) {
		return nil, fmt.Errorf("%w: malformed object", ErrNoJSON)
	}
	return candidate, nil
}

// DecodeJSON extracts the JSON object of a reply into fields keyed by name
func DecodeJSON(reply string) (map[string]json.RawMessage, error) {
	raw, err := ExtractJSON(reply)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoJSON, err)
	}
	return fields, nil
}

// DecodeEntities resolves HTML character references such as &amp; or &#39;
func DecodeEntities(s string) string {
	return html.UnescapeString(s)
}

// DecodeAll resolves HTML character references in every element
func DecodeAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, DecodeEntities(v))
	}
	return out
}

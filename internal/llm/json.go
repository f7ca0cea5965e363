package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSON is returned when a reply contains no JSON object.
var ErrNoJSON = errors.New("no JSON object in response")

// ParseJSONResponse decodes the first JSON object in text into v. Code
// fences and prose around the object are ignored.
func ParseJSONResponse(text string, v any) error {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ErrNoJSON
	}
	dec := json.NewDecoder(strings.NewReader(text[start:]))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decoding JSON response: %w", err)
	}
	return nil
}

package extraction

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
)

// ErrUnparsable is returned when a response holds no decodable JSON.
var ErrUnparsable = errors.New("unparsable model output")

// CleanJSON strips Markdown fences and any prose around the outermost JSON
// object or array.
func CleanJSON(raw string) string {
	s := strings.TrimSpace(raw)

	// Handle ```json ... ``` or ``` ... ``` wrappers.
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			s = strings.TrimLeft(s, "`")
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	open := strings.IndexAny(s, "{[")
	if open == -1 {
		return s
	}
	closer := "}"
	if s[open] == '[' {
		closer = "]"
	}
	if end := strings.LastIndex(s, closer); end > open {
		return strings.TrimSpace(s[open : end+1])
	}
	return s[open:]
}

// DecodeJSON decodes an untrusted model response into v. It tries the cleaned
// text first and falls back to json-repair for trailing commas, single quotes,
// unquoted keys and truncated objects.
func DecodeJSON(raw string, v interface{}) error {
	clean := CleanJSON(raw)
	if clean == "" {
		return fmt.Errorf("%w: empty response", ErrUnparsable)
	}
	if !strings.ContainsAny(clean[:1], "{[") {
		return fmt.Errorf("%w: no JSON value in response", ErrUnparsable)
	}

	strictErr := json.Unmarshal([]byte(clean), v)
	if strictErr == nil {
		return nil
	}

	repaired, err := jsonrepair.RepairJSON(clean)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnparsable, strictErr)
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return fmt.Errorf("%w: %v", ErrUnparsable, err)
	}
	return nil
}

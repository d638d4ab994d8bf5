package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CallInput is the payload of an mcp_call tool invocation.
type CallInput struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

// ParseCallInput decodes the raw argument string a model attached to an
// mcp_call invocation. Models are sloppy here: arguments arrive as a JSON
// object, as a JSON-encoded string containing an object, or as a
// Python-literal dict with single quotes and True/False/None. All three
// are accepted.
func ParseCallInput(raw string) (CallInput, error) {
	var probe struct {
		Tool      string          `json:"tool"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		return CallInput{}, fmt.Errorf("invalid mcp_call payload: %w", err)
	}
	if probe.Tool == "" {
		return CallInput{}, fmt.Errorf("mcp_call payload is missing 'tool'")
	}

	args, err := parseArguments(probe.Arguments)
	if err != nil {
		return CallInput{}, err
	}
	return CallInput{Tool: probe.Tool, Arguments: args}, nil
}

func parseArguments(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}

	// Plain JSON object
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj == nil {
			obj = map[string]any{}
		}
		return obj, nil
	}

	// JSON string wrapping the object
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("invalid arguments: %s", string(raw))
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return map[string]any{}, nil
	}

	if err := json.Unmarshal([]byte(s), &obj); err == nil {
		if obj == nil {
			obj = map[string]any{}
		}
		return obj, nil
	}

	// Last resort: Python-literal dict
	normalized := normalizePythonLiteral(s)
	if err := json.Unmarshal([]byte(normalized), &obj); err != nil {
		return nil, fmt.Errorf("invalid arguments string: %s", s)
	}
	return obj, nil
}

// normalizePythonLiteral rewrites a Python dict literal into JSON: single
// quotes become double quotes (honoring escapes) and the bare constants
// True/False/None map to their JSON forms. Strings produced by LLMs here
// are simple; this does not aim to be a full Python parser.
func normalizePythonLiteral(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inSingle := false
	inDouble := false
	for i := 0; i < len(s); i++ {
		ch := s[i]

		switch {
		case ch == '\\' && i+1 < len(s) && (inSingle || inDouble):
			next := s[i+1]
			if inSingle && next == '\'' {
				// Escaped quote inside a single-quoted string is a
				// literal quote; JSON needs no escape for it.
				b.WriteByte('\'')
			} else {
				b.WriteByte(ch)
				b.WriteByte(next)
			}
			i++
		case ch == '\'' && !inDouble:
			b.WriteByte('"')
			inSingle = !inSingle
		case ch == '"' && !inSingle:
			b.WriteByte(ch)
			inDouble = !inDouble
		case !inSingle && !inDouble:
			switch {
			case strings.HasPrefix(s[i:], "True") && isBareWord(s, i, 4):
				b.WriteString("true")
				i += 3
			case strings.HasPrefix(s[i:], "False") && isBareWord(s, i, 5):
				b.WriteString("false")
				i += 4
			case strings.HasPrefix(s[i:], "None") && isBareWord(s, i, 4):
				b.WriteString("null")
				i += 3
			default:
				b.WriteByte(ch)
			}
		default:
			b.WriteByte(ch)
		}
	}

	return b.String()
}

func isBareWord(s string, start, length int) bool {
	before := start - 1
	after := start + length
	if before >= 0 && isWordByte(s[before]) {
		return false
	}
	if after < len(s) && isWordByte(s[after]) {
		return false
	}
	return true
}

func isWordByte(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}

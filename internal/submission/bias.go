package submission

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// NormalizeBiases turns the detected-bias value of a submission into a token list.
// Arrays are taken element by element; strings go through ParseBiasString.
func NormalizeBiases(v gjson.Result) []string {
	switch {
	case !v.Exists() || v.Type == gjson.Null:
		return []string{}
	case v.IsArray():
		var raw []string
		for _, el := range v.Array() {
			if el.Type == gjson.String {
				raw = append(raw, el.Str)
			} else if el.Type != gjson.Null {
				raw = append(raw, el.String())
			}
		}
		return cleanTokens(raw)
	case v.Type == gjson.String:
		return ParseBiasString(v.Str)
	}
	return ParseBiasString(v.String())
}

// ParseBiasString parses a serialized bias list. Attempts run in strict order and
// each falls through to the next: JSON array, literal list with single or double
// quotes ("['a', 'b']"), then a split on commas and semicolons.
func ParseBiasString(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return []string{}
	}
	if tokens, ok := parseJSONList(s); ok {
		return tokens
	}
	if tokens, ok := parseLiteralList(s); ok {
		return tokens
	}
	return splitDelimited(s)
}

// FormatBiases serializes tokens for storage as a JSON array.
func FormatBiases(tokens []string) string {
	if len(tokens) == 0 {
		return "[]"
	}
	b, err := json.Marshal(tokens)
	if err != nil {
		return strings.Join(tokens, ", ")
	}
	return string(b)
}

func parseJSONList(s string) ([]string, bool) {
	if !strings.HasPrefix(s, "[") {
		return nil, false
	}
	var items []any
	if err := json.Unmarshal([]byte(s), &items); err != nil {
		return nil, false
	}
	raw := make([]string, 0, len(items))
	for _, it := range items {
		switch v := it.(type) {
		case nil:
		case string:
			raw = append(raw, v)
		default:
			raw = append(raw, fmt.Sprint(v))
		}
	}
	return cleanTokens(raw), true
}

// parseLiteralList reads a bracketed list of quoted strings. Any bare token makes
// the attempt fail.
func parseLiteralList(s string) ([]string, bool) {
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return nil, false
	}
	in := []rune(s[1 : len(s)-1])
	var raw []string
	i := 0
	expectItem := true
	for i < len(in) {
		c := in[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == ',':
			if expectItem {
				return nil, false
			}
			expectItem = true
			i++
		case (c == '\'' || c == '"') && expectItem:
			var sb strings.Builder
			j := i + 1
			closed := false
			for j < len(in) {
				if in[j] == '\\' && j+1 < len(in) {
					sb.WriteRune(in[j+1])
					j += 2
					continue
				}
				if in[j] == c {
					closed = true
					break
				}
				sb.WriteRune(in[j])
				j++
			}
			if !closed {
				return nil, false
			}
			raw = append(raw, sb.String())
			expectItem = false
			i = j + 1
		default:
			return nil, false
		}
	}
	return cleanTokens(raw), true
}

func splitDelimited(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' })
	raw := make([]string, 0, len(parts))
	for _, p := range parts {
		raw = append(raw, strings.Trim(strings.TrimSpace(p), `[]'"`))
	}
	return cleanTokens(raw)
}

func cleanTokens(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		t = strings.TrimSpace(t)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNoCandidate means no JSON object could be recovered from the response.
var ErrNoCandidate = errors.New("no parseable analysis in model response")

var (
	fencedBlock   = regexp.MustCompile("(?s)```[A-Za-z0-9_-]*[ \t]*\r?\n?(.*?)```")
	trailingComma = regexp.MustCompile(`,(\s*[}\]])`)
)

// Extract recovers the first decodable JSON document from a model response.
// Candidates are tried in order: the first fenced code block, then each
// balanced top-level {...} or [...] span, then the whole text.
func Extract(raw string) (*RawDocument, error) {
	for _, candidate := range candidates(raw) {
		if doc, ok := decodeCandidate(candidate); ok {
			return doc, nil
		}
	}
	return nil, ErrNoCandidate
}

func candidates(raw string) []string {
	var out []string
	if m := fencedBlock.FindStringSubmatch(raw); m != nil {
		out = append(out, m[1])
	}
	out = append(out, balancedSpans(raw)...)
	out = append(out, raw)
	return out
}

// decodeCandidate parses one candidate strictly, retrying once with trailing
// commas removed. The top-level value must be an object, or an array whose
// first object element is used.
func decodeCandidate(candidate string) (*RawDocument, bool) {
	text := strings.TrimSpace(candidate)
	if text == "" {
		return nil, false
	}
	data := []byte(text)
	if !json.Valid(data) {
		data = trailingComma.ReplaceAll(data, []byte("$1"))
		if !json.Valid(data) {
			return nil, false
		}
	}

	switch data[0] {
	case '{':
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, false
		}
		data = nil
		for _, item := range items {
			item = bytes.TrimSpace(item)
			if len(item) > 0 && item[0] == '{' {
				data = item
				break
			}
		}
		if data == nil {
			return nil, false
		}
	default:
		return nil, false
	}

	var doc RawDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, false
	}
	return &doc, true
}

// balancedSpans returns every top-level bracketed span of raw in order. String
// literals are skipped so braces inside quotes do not count. A span whose
// brackets do not match is abandoned and scanning resumes after its opener.
func balancedSpans(raw string) []string {
	var spans []string
	for i := 0; i < len(raw); i++ {
		if raw[i] != '{' && raw[i] != '[' {
			continue
		}
		end := matchSpan(raw, i)
		if end < 0 {
			continue
		}
		spans = append(spans, raw[i:end+1])
		i = end
	}
	return spans
}

// matchSpan returns the index of the bracket closing raw[start], or -1.
func matchSpan(raw string, start int) int {
	var stack []byte
	inString := false
	escaped := false

	for i := start; i < len(raw); i++ {
		c := raw[i]
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
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return -1
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i
			}
		}
	}
	return -1
}

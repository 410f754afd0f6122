package provider

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// Model responses rarely arrive as bare JSON: they come wrapped in Markdown
// code fences, preceded by prose, or with small syntax defects (trailing
// commas, single quotes). DecodeObject and DecodeArray accept all of these:
// they prefer the first fenced block, slice out the outermost {...} or
// [...], and run the payload through jsonrepair when plain unmarshaling
// fails.

var fenceRe = regexp.MustCompile("(?s)```[a-zA-Z]*[ \t]*\n?(.*?)```")

// DecodeObject extracts the outermost JSON object from a model response and
// unmarshals it into v.
func DecodeObject(raw string, v any) error {
	return decodeLenient(raw, '{', '}', v)
}

// DecodeArray extracts the outermost JSON array from a model response and
// unmarshals it into v.
func DecodeArray(raw string, v any) error {
	return decodeLenient(raw, '[', ']', v)
}

func decodeLenient(raw string, open, close byte, v any) error {
	payload, ok := outermost(fencedBlock(raw), open, close)
	if !ok {
		// The fenced block may hold prose while the JSON sits outside it.
		payload, ok = outermost(raw, open, close)
	}
	if !ok {
		return fmt.Errorf("response contains no %c...%c payload", open, close)
	}

	if err := json.Unmarshal([]byte(payload), v); err == nil {
		return nil
	}

	repaired, err := jsonrepair.JSONRepair(payload)
	if err != nil {
		return fmt.Errorf("repair json payload: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return fmt.Errorf("unmarshal repaired payload: %w", err)
	}
	return nil
}

// fencedBlock returns the body of the first complete Markdown code fence, or
// raw unchanged when no fence pair is present.
func fencedBlock(raw string) string {
	m := fenceRe.FindStringSubmatch(raw)
	if m == nil {
		return raw
	}
	return m[1]
}

// outermost slices from the first open byte to the last close byte.
func outermost(s string, open, close byte) (string, bool) {
	start := strings.IndexByte(s, open)
	end := strings.LastIndexByte(s, close)
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

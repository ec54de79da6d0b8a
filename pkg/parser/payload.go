package parser

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// decodePayload extracts a tool name and argument map from a candidate JSON
// document. Four shapes are accepted, tried in fixed priority order:
//
//	{"name": "...", "arguments": {...}}   (or "args")
//	{"tool": "...", "arguments": {...}}   (or "args")
//	{"function": {"name": "...", "arguments": {...}}}
//
// Anything else (non-object, array, missing name, non-object arguments) is
// not an error, just "no match": the caller's strategy stack moves on.
func decodePayload(raw string) (string, map[string]interface{}, bool) {
	if !gjson.Valid(raw) {
		return "", nil, false
	}
	doc := gjson.Parse(raw)
	if !doc.IsObject() {
		return "", nil, false
	}

	name := doc.Get("name")
	argsRes := firstKey(doc, "arguments", "args")

	if !name.Exists() {
		name = doc.Get("tool")
	}
	if !name.Exists() {
		fn := doc.Get("function")
		if fn.IsObject() {
			name = fn.Get("name")
			argsRes = fn.Get("arguments")
		}
	}

	if name.Type != gjson.String || name.Str == "" {
		return "", nil, false
	}

	args, ok := decodeArgs(argsRes)
	if !ok {
		return "", nil, false
	}
	return name.Str, args, true
}

func firstKey(doc gjson.Result, keys ...string) gjson.Result {
	for _, key := range keys {
		if res := doc.Get(key); res.Exists() {
			return res
		}
	}
	return gjson.Result{}
}

// decodeArgs turns an optional arguments value into a map. A missing value
// defaults to an empty map; a present non-object value is a shape mismatch.
func decodeArgs(res gjson.Result) (map[string]interface{}, bool) {
	if !res.Exists() {
		return map[string]interface{}{}, true
	}
	if !res.IsObject() {
		return nil, false
	}
	args := make(map[string]interface{})
	if err := json.Unmarshal([]byte(res.Raw), &args); err != nil {
		return nil, false
	}
	return args, true
}

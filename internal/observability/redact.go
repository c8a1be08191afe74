package observability

import "encoding/json"

var secretKeys = map[string]bool{
	"api_key":     true,
	"private_key": true,
	"secret":      true,
	"token":       true,
	"password":    true,
}

const redactedPlaceholder = "[REDACTED]"

// toStructuralMap converts any JSON-marshalable message into a generic map,
// the structural dump a record's summary is built from.
func toStructuralMap(msg any) (map[string]any, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// redactSecrets walks m recursively, replacing any value whose key matches
// a known secret-like name with a fixed placeholder.
func redactSecrets(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if secretKeys[k] {
			out[k] = redactedPlaceholder
			continue
		}
		out[k] = redactValue(v)
	}
	return out
}

func redactValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return redactSecrets(val)
	case []any:
		redacted := make([]any, len(val))
		for i, item := range val {
			redacted[i] = redactValue(item)
		}
		return redacted
	default:
		return v
	}
}

// projectRequestAllowList restricts any nested "request" object to the
// fixed allow-list of fields, dropping everything else.
func projectRequestAllowList(m map[string]any, allowList []string) map[string]any {
	req, ok := m["request"].(map[string]any)
	if !ok {
		return m
	}
	allowed := make(map[string]bool, len(allowList))
	for _, k := range allowList {
		allowed[k] = true
	}
	projected := make(map[string]any)
	for k, v := range req {
		if allowed[k] {
			projected[k] = v
		}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	out["request"] = projected
	return out
}

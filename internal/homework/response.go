package homework

import "fmt"

// API soft-error codes reported in place of "homeworks".
const (
	CodeNotAuthenticated = "not_authenticated"
	CodeUnknownError     = "UnknownError"
)

// Record is one homework entry, newest first in a response.
type Record struct {
	Name   string
	Status string

	// HasName and HasStatus distinguish an absent field from an empty one.
	HasName   bool
	HasStatus bool

	Raw map[string]any
}

// ParseResponse validates the shape of an API answer and extracts its records,
// preserving order. An empty slice is a valid result.
func ParseResponse(raw any) ([]Record, error) {
	const op = "check_response"

	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, newError(KindTypeMismatch, op, nil, "response is %s, expected an object", typeName(raw))
	}

	hwRaw, ok := obj["homeworks"]
	if !ok {
		return nil, newError(KindResponseFailure, op, nil, "%s", softErrorText(obj))
	}

	list, ok := hwRaw.([]any)
	if !ok {
		return nil, newError(KindTypeMismatch, op, nil, "homeworks is %s, expected a list", typeName(hwRaw))
	}

	out := make([]Record, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, newError(KindTypeMismatch, op, nil, "homeworks[%d] is %s, expected an object", i, typeName(item))
		}
		out = append(out, recordFrom(m))
	}
	return out, nil
}

func recordFrom(m map[string]any) Record {
	r := Record{Raw: m}
	if v, ok := m["homework_name"]; ok && v != nil {
		r.HasName = true
		r.Name = stringify(v)
	}
	if v, ok := m["status"]; ok && v != nil {
		r.HasStatus = true
		r.Status = stringify(v)
	}
	return r
}

// softErrorText names the API-reported reason a response has no homeworks.
func softErrorText(obj map[string]any) string {
	code, _ := obj["code"].(string)
	switch code {
	case CodeNotAuthenticated:
		return "homeworks key missing: authorization token is invalid (not_authenticated)"
	case CodeUnknownError:
		return "homeworks key missing: invalid from_date range (UnknownError)"
	case "":
		return "homeworks key missing in response"
	default:
		return fmt.Sprintf("homeworks key missing: api reported %q", code)
	}
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "list"
	case string:
		return "string"
	case bool:
		return "bool"
	default:
		return "number"
	}
}

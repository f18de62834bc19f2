package backend

import (
	"encoding/json"
	"fmt"
	"sort"
)

// GenericErrorMessage is shown when the hospital API gives no usable message.
const GenericErrorMessage = "An error occurred"

// APIError is a non-401 failure returned by the hospital API.
type APIError struct {
	Status  int
	Message string
	Body    []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

func (e *APIError) HTTPStatus() int {
	return e.Status
}

// UserMessage is the extracted server message, empty when none was found.
func (e *APIError) UserMessage() string {
	return e.Message
}

// ExtractMessage picks the most specific human message from a failure body.
// Order: non_field_errors[0], message, detail, error, then the first field
// error (fields sorted by name, nested "errors" objects included).
func ExtractMessage(body []byte, fallback string) string {
	var payload map[string]interface{}
	if len(body) == 0 || json.Unmarshal(body, &payload) != nil {
		return fallback
	}
	if msg := firstMessage(payload["non_field_errors"]); msg != "" {
		return msg
	}
	for _, key := range []string{"message", "detail", "error"} {
		if msg := firstMessage(payload[key]); msg != "" {
			return msg
		}
	}
	if nested, ok := payload["errors"].(map[string]interface{}); ok {
		if msg := fieldMessage(nested); msg != "" {
			return msg
		}
	}
	if msg := fieldMessage(payload); msg != "" {
		return msg
	}
	return fallback
}

func fieldMessage(fields map[string]interface{}) string {
	if msg := firstMessage(fields["non_field_errors"]); msg != "" {
		return msg
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch k {
		case "non_field_errors", "message", "detail", "error", "errors", "status", "code":
			continue
		}
		if msg := firstMessage(fields[k]); msg != "" {
			return msg
		}
	}
	return ""
}

func firstMessage(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case []interface{}:
		for _, item := range val {
			if msg := firstMessage(item); msg != "" {
				return msg
			}
		}
	case map[string]interface{}:
		return fieldMessage(val)
	}
	return ""
}

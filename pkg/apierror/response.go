package apierror

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// FromResponse classifies a non-2xx response into a taxonomy member.
// statusLine is the reason phrase ("Internal Server Error"); a leading
// status code is tolerated. An empty or non-JSON body is replaced by
// {"message": statusLine}.
func FromResponse(status int, statusLine, endpoint string, body []byte) error {
	payload := ParsePayload(body, reasonPhrase(status, statusLine))

	switch status {
	case http.StatusUnauthorized:
		return NewAuthError(endpoint, payload)
	case http.StatusUnprocessableEntity:
		return NewValidationError(endpoint, FieldErrors(payload), payload)
	default:
		msg := PayloadMessage(payload)
		if msg == "" {
			msg = fmt.Sprintf("Request failed with status %d", status)
		}
		return NewAPIError(status, msg, endpoint, payload)
	}
}

// ParsePayload returns body when it is valid JSON, else a synthetic
// {"message": fallback} object.
func ParsePayload(body []byte, fallback string) json.RawMessage {
	trimmed := strings.TrimSpace(string(body))
	if trimmed != "" && json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed)
	}
	synthetic, _ := json.Marshal(map[string]string{"message": fallback})
	return synthetic
}

// PayloadMessage extracts a non-empty string "message" field, or "".
func PayloadMessage(payload json.RawMessage) string {
	var body struct {
		Message any `json:"message"`
	}
	if len(payload) == 0 || json.Unmarshal(payload, &body) != nil {
		return ""
	}
	if s, ok := body.Message.(string); ok {
		return s
	}
	return ""
}

// FieldErrors reads the "errors" object of a 422 payload. A field may map to
// a list of messages or to a single message string. Missing or malformed
// input yields an empty map.
func FieldErrors(payload json.RawMessage) map[string][]string {
	fields := map[string][]string{}

	var body struct {
		Errors map[string]json.RawMessage `json:"errors"`
	}
	if len(payload) == 0 || json.Unmarshal(payload, &body) != nil {
		return fields
	}

	for name, raw := range body.Errors {
		var many []string
		if json.Unmarshal(raw, &many) == nil {
			fields[name] = many
			continue
		}
		var one string
		if json.Unmarshal(raw, &one) == nil {
			fields[name] = []string{one}
		}
	}
	return fields
}

func reasonPhrase(status int, statusLine string) string {
	line := strings.TrimSpace(statusLine)
	if code := fmt.Sprintf("%d", status); strings.HasPrefix(line, code) {
		line = strings.TrimSpace(strings.TrimPrefix(line, code))
	}
	if line == "" {
		line = http.StatusText(status)
	}
	return line
}

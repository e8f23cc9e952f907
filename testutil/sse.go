package testutil

import (
	"encoding/json"
	"strings"
)

// SSEFrame renders one server-sent event carrying payload as a single data line.
func SSEFrame(payload string) string {
	return "data: " + payload + "\r\n\r\n"
}

// SSEBody renders each value as JSON in its own frame.
func SSEBody(values ...any) (string, error) {
	var sb strings.Builder
	for _, v := range values {
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		sb.WriteString(SSEFrame(string(b)))
	}
	return sb.String(), nil
}

package smartthings

import (
	"fmt"
	"strings"
)

// TransportError is returned when the API answers with a non-2xx status.
type TransportError struct {
	Op     string // client operation, e.g. "sendCommand"
	Status int
	Body   string // response body text, kept for diagnostics
}

func (e *TransportError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s failed: %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s failed: %d %s", e.Op, e.Status, body)
}

package agui

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EncodeSSE renders an event as one server-sent-events frame. AG-UI clients
// consume frames of the form "data: <json>\n\n" with the event type carried
// inside the payload rather than in an SSE event field.
func EncodeSSE(ev Event) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", ev.Type(), err)
	}
	var buf bytes.Buffer
	buf.WriteString("data: ")
	buf.Write(payload)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}

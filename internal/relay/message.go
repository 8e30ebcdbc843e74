package relay

import "encoding/json"

const (
	typePing = "ping"

	previewLimit   = 200
	truncationMark = "..."
)

// PongMessage is the reserved liveness acknowledgment sent back to a
// client that posted an application-layer ping. It is never relayed.
var PongMessage = []byte(`{"type":"pong"}`)

type typedMessage struct {
	Type string `json:"type"`
}

// IsProbe reports whether payload decodes to the reserved application-layer
// liveness probe {"type":"ping"}.
func IsProbe(payload []byte) bool {
	var msg typedMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return false
	}
	return msg.Type == typePing
}

// normalize re-encodes a decodable JSON payload canonically (stable key
// order, no insignificant whitespace). Payloads that fail to decode are
// forwarded verbatim as opaque text.
func normalize(payload []byte) []byte {
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return payload
	}
	canonical, err := json.Marshal(decoded)
	if err != nil {
		return payload
	}
	return canonical
}

// preview caps payload at previewLimit characters for log records.
func preview(payload []byte) string {
	runes := []rune(string(payload))
	if len(runes) <= previewLimit {
		return string(payload)
	}
	return string(runes[:previewLimit]) + truncationMark
}

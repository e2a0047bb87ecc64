package stream

import "encoding/json"

// Inbound message types sent by the session host.
const (
	typeTranscription = "transcription"
	typeNotification  = "notification"
	typeBattery       = "battery"
	typeError         = "error"
)

// Display layouts sent to the session host.
const (
	LayoutTextWall = "text_wall"
	LayoutBitmap   = "bitmap"
)

type envelope struct {
	Type string `json:"type"`
}

type errorMessage struct {
	Message string `json:"message"`
}

// DisplayMessage is the outbound request to render something on the glasses.
type DisplayMessage struct {
	Type       string `json:"type"`
	Layout     string `json:"layout"`
	Text       string `json:"text,omitempty"`
	Data       string `json:"data,omitempty"`
	DurationMs int64  `json:"durationMs,omitempty"`
	Priority   string `json:"priority,omitempty"`
}

func peekType(data []byte) (string, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", err
	}
	return env.Type, nil
}

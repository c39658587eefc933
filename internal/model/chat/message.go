package chat

import (
	"time"

	"github.com/greenfield-labs/smartfarm/backend/internal/model/sensor"
)

// Sender identifies who authored a message.
const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

// Message is one chat turn. Messages of a session are kept in insertion order.
type Message struct {
	ID               string           `json:"id"`
	SessionID        string           `json:"sessionId"`
	Sender           string           `json:"sender"`
	Content          string           `json:"content"`
	Timestamp        time.Time        `json:"timestamp"`
	IsLoading        bool             `json:"isLoading,omitempty"`
	AttachedReadings *sensor.Snapshot `json:"attachedReadings,omitempty"`
	Image            *ImageRef        `json:"image,omitempty"`
	Classification   *Classification  `json:"classification,omitempty"`
}

// ImageRef describes an uploaded image. The pixels themselves are not retained.
type ImageRef struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	SHA256   string `json:"sha256"`
}

// Classification is the label predicted for an uploaded image.
type Classification struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

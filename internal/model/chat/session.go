package chat

import "time"

// Session captures a transient anonymous conversation.
type Session struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"createdAt"`
	Suggestions []string  `json:"suggestions"`
	Classifying bool      `json:"classifying"`
}

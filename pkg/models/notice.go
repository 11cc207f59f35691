package models

import "time"

const (
	NoticeCreated = "created"
	NoticeRemoved = "removed"
	NoticeSeen    = "seen"
)

// Notice tells a watching panel that a user's key status changed and should
// be reloaded.
type Notice struct {
	Kind string    `json:"kind"`
	Slot string    `json:"slot,omitempty"`
	At   time.Time `json:"at"`
}

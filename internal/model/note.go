package model

import "time"

// Note is the scratch pad. There is exactly one, shared by every user;
// save overwrites it and clear empties it.
type Note struct {
	Text      string    `json:"text"`
	UpdatedAt time.Time `json:"updatedAt"`
}

package model

import "time"

// StoredFile describes one entry in the shared upload area.
// Uploads are global: every signed-in user sees the same listing.
type StoredFile struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
}

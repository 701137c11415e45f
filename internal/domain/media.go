package domain

import "time"

// CompletedMedia is the catalog record written after a successful download.
type CompletedMedia struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Kind      MediaKind `json:"media_type"`
	FileName  string    `json:"file_name"`
	CreatedAt time.Time `json:"created_at"`
}

// String mirrors the "<kind> - <url>" label used in listings and logs.
func (m *CompletedMedia) String() string {
	return string(m.Kind) + " - " + m.URL
}

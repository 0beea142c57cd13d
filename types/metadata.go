package types

import "time"

// DocumentMetadata holds the Info dictionary fields of a document.
// Empty strings and zero times mean "not set".
type DocumentMetadata struct {
	Title        string    `json:"title,omitempty"`
	Author       string    `json:"author,omitempty"`
	Subject      string    `json:"subject,omitempty"`
	Keywords     string    `json:"keywords,omitempty"`
	Creator      string    `json:"creator,omitempty"`
	Producer     string    `json:"producer,omitempty"`
	CreationDate time.Time `json:"creation_date,omitempty"`
	ModDate      time.Time `json:"mod_date,omitempty"`
}

// Merge overwrites each field of m with the corresponding field of other
// when that field is non-empty.
func (m *DocumentMetadata) Merge(other DocumentMetadata) {
	if other.Title != "" {
		m.Title = other.Title
	}
	if other.Author != "" {
		m.Author = other.Author
	}
	if other.Subject != "" {
		m.Subject = other.Subject
	}
	if other.Keywords != "" {
		m.Keywords = other.Keywords
	}
	if other.Creator != "" {
		m.Creator = other.Creator
	}
	if other.Producer != "" {
		m.Producer = other.Producer
	}
	if !other.CreationDate.IsZero() {
		m.CreationDate = other.CreationDate
	}
	if !other.ModDate.IsZero() {
		m.ModDate = other.ModDate
	}
}

// DocumentInfo summarizes a loaded document.
type DocumentInfo struct {
	PDFVersion string           `json:"pdf_version"`
	PageCount  int              `json:"page_count"`
	Encrypted  bool             `json:"encrypted"`
	Decrypted  bool             `json:"decrypted"`
	Metadata   DocumentMetadata `json:"metadata"`
}

package domain

import (
	"encoding/json"
	"time"
)

// ContentEntity is the durable creative output of a job: a book, an image set
// or a video set depending on the domain.
type ContentEntity struct {
	ID             string
	JobID          string
	Domain         Domain
	OwnerID        string
	OrganizationID string
	Title          string
	Summary        string
	Metadata       json.RawMessage
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Artifact is one file-level output of a content entity (chapter, image or video).
type Artifact struct {
	ID              string
	ContentID       string
	Domain          Domain
	Position        int
	Title           string
	Body            string
	StorageKey      string
	URL             string
	MIME            string
	Width           int
	Height          int
	DurationSeconds float64
	Bytes           int64
	Metadata        json.RawMessage
	CreatedAt       time.Time
}

// ArtifactKind names the artifacts of a domain.
func ArtifactKind(d Domain) string {
	switch d {
	case DomainBook:
		return "chapter"
	case DomainImage:
		return "image"
	case DomainVideo:
		return "video"
	}
	return "artifact"
}

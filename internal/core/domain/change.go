package domain

import "time"

// ChangeType indicates what happened to a file in the source
type ChangeType string

const (
	ChangeTypeAdded    ChangeType = "added"
	ChangeTypeModified ChangeType = "modified"
	ChangeTypeRemoved  ChangeType = "removed"
	ChangeTypeMoved    ChangeType = "moved"
)

// Valid reports whether t is a known change type
func (t ChangeType) Valid() bool {
	switch t {
	case ChangeTypeAdded, ChangeTypeModified, ChangeTypeRemoved, ChangeTypeMoved:
		return true
	}
	return false
}

// ChangeStreamScope is the scope of incremental jobs built from the change
// stream. Incremental jobs run one at a time, which keeps each file's
// changes applied in stream order.
const ChangeStreamScope = "changes"

// Change is one notification from the source's change stream
type Change struct {
	FileID        string     `json:"file_id"`
	RevisionToken string     `json:"revision_token"`
	Type          ChangeType `json:"type"`
	ObservedAt    time.Time  `json:"observed_at,omitempty"`
}

// DedupKey is the identity of a change for deduplication
func (c Change) DedupKey() string {
	return c.FileID + "@" + c.RevisionToken
}

// ChangePage is one page of the change stream.
// NextCursor resumes the stream after the last change in the page.
type ChangePage struct {
	Changes    []Change `json:"changes"`
	NextCursor string   `json:"next_cursor"`
	// Exhausted is true when the source has no further changes right now
	Exhausted bool `json:"exhausted"`
}

// FolderPage is one page of a folder listing
type FolderPage struct {
	Entries       []FileEntry `json:"entries"`
	NextPageToken string      `json:"next_page_token,omitempty"`
}

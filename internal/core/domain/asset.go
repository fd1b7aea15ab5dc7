package domain

import (
	"maps"
	"time"
)

// Facet is a named, filterable metadata dimension derived from the folder path.
type Facet string

// Known facets. The set is closed but extensible: a taxonomy grammar may bind
// segments to any Facet value.
const (
	FacetSubject    Facet = "subject"
	FacetGradeLevel Facet = "gradeLevel"
	FacetLesson     Facet = "lesson"
	FacetLessonPart Facet = "lessonPart"
	FacetFileType   Facet = "fileType"
)

// KnownFacets lists the built-in facets in display order.
var KnownFacets = []Facet{FacetSubject, FacetGradeLevel, FacetLesson, FacetLessonPart, FacetFileType}

// Tags maps facet names to values derived from path segments.
type Tags map[Facet]string

// Clone returns a copy of the tags.
func (t Tags) Clone() Tags {
	if t == nil {
		return nil
	}
	return maps.Clone(t)
}

// Equal reports whether both tag sets hold the same facets and values.
func (t Tags) Equal(other Tags) bool {
	return maps.Equal(t, other)
}

// IndexState is the lifecycle state of an Asset in the index.
type IndexState string

const (
	IndexStatePending     IndexState = "pending"
	IndexStateIndexed     IndexState = "indexed"
	IndexStateNeedsReview IndexState = "needsReview"
	IndexStateDeleted     IndexState = "deleted"
)

// Servable reports whether assets in this state may appear in query results.
func (s IndexState) Servable() bool {
	return s == IndexStateIndexed || s == IndexStateNeedsReview
}

// IntrinsicMetadata holds file-level attributes reported by the source.
type IntrinsicMetadata struct {
	AuthorName string    `json:"author_name,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
	SizeBytes  int64     `json:"size_bytes"`
	MimeType   string    `json:"mime_type,omitempty"`
}

// Asset is one indexed file.
type Asset struct {
	FileID            string            `json:"file_id"`
	ScopeID           string            `json:"scope_id"`
	Name              string            `json:"name"`
	Path              string            `json:"path"`
	ParentID          string            `json:"parent_id,omitempty"`
	Tags              Tags              `json:"tags"`
	Confidence        Confidence        `json:"confidence"`
	IntrinsicMetadata IntrinsicMetadata `json:"intrinsic_metadata"`
	RevisionToken     string            `json:"revision_token"`
	IndexState        IndexState        `json:"index_state"`
	SourceURL         string            `json:"source_url,omitempty"`
	IndexedAt         time.Time         `json:"indexed_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// Clone returns a deep copy of the asset.
func (a *Asset) Clone() *Asset {
	if a == nil {
		return nil
	}
	c := *a
	c.Tags = a.Tags.Clone()
	return &c
}

// Confidence is how completely the taxonomy grammar matched a path.
type Confidence string

const (
	ConfidenceFull         Confidence = "full"
	ConfidencePartial      Confidence = "partial"
	ConfidenceUnstructured Confidence = "unstructured"
)

// FileEntry is one item returned by folder enumeration or a metadata fetch.
type FileEntry struct {
	FileID        string `json:"file_id"`
	Name          string `json:"name"`
	Path          string `json:"path"`
	RevisionToken string `json:"revision_token"`
	MimeType      string `json:"mime_type"`
	ParentID      string `json:"parent_id"`
	IsFolder      bool   `json:"is_folder"`
	Trashed       bool   `json:"trashed,omitempty"`
}

// FileMetadata is the result of a per-file metadata fetch.
type FileMetadata struct {
	Entry     FileEntry         `json:"entry"`
	Intrinsic IntrinsicMetadata `json:"intrinsic"`
}

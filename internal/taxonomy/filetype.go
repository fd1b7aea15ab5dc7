package taxonomy

import (
	"path"
	"strings"
)

// FileType is the coarse classification stored under the fileType facet.
type FileType string

const (
	FileTypeVideo        FileType = "video"
	FileTypeImage        FileType = "image"
	FileTypeDocument     FileType = "document"
	FileTypeDesignSource FileType = "design_source"
	FileTypeOther        FileType = "other"
)

// FileTypeTable maps extensions and MIME types to a FileType.
// Extensions win over MIME types; MIME entries may end in "/*".
type FileTypeTable struct {
	Extensions map[string]FileType
	MimeTypes  map[string]FileType
}

// DefaultFileTypes returns the built-in lookup table.
func DefaultFileTypes() FileTypeTable {
	ext := map[string]FileType{}
	add := func(ft FileType, exts ...string) {
		for _, e := range exts {
			ext[e] = ft
		}
	}
	add(FileTypeVideo, ".mp4", ".mov", ".m4v", ".avi", ".mkv", ".webm", ".wmv", ".mpg", ".mpeg")
	add(FileTypeImage, ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".svg", ".webp", ".tif", ".tiff", ".heic")
	add(FileTypeDocument, ".pdf", ".doc", ".docx", ".txt", ".rtf", ".odt", ".md",
		".ppt", ".pptx", ".key", ".odp", ".xls", ".xlsx", ".csv", ".ods", ".pages")
	add(FileTypeDesignSource, ".psd", ".ai", ".sketch", ".fig", ".xd", ".indd", ".afdesign", ".afphoto", ".eps")

	return FileTypeTable{
		Extensions: ext,
		MimeTypes: map[string]FileType{
			"video/*":                                  FileTypeVideo,
			"image/*":                                  FileTypeImage,
			"application/pdf":                          FileTypeDocument,
			"text/*":                                   FileTypeDocument,
			"application/vnd.google-apps.document":     FileTypeDocument,
			"application/vnd.google-apps.spreadsheet":  FileTypeDocument,
			"application/vnd.google-apps.presentation": FileTypeDocument,
			"application/vnd.google-apps.drawing":      FileTypeDesignSource,
			"image/vnd.adobe.photoshop":                FileTypeDesignSource,
			"application/illustrator":                  FileTypeDesignSource,
		},
	}
}

// Lookup classifies a file by name, falling back to its MIME type.
func (t FileTypeTable) Lookup(name, mimeType string) FileType {
	if ext := strings.ToLower(path.Ext(name)); ext != "" {
		if ft, ok := t.Extensions[ext]; ok {
			return ft
		}
	}

	mimeType = normalizeMIME(mimeType)
	if mimeType == "" {
		return FileTypeOther
	}
	if ft, ok := t.MimeTypes[mimeType]; ok {
		return ft
	}
	if i := strings.Index(mimeType, "/"); i > 0 {
		if ft, ok := t.MimeTypes[mimeType[:i]+"/*"]; ok {
			return ft
		}
	}
	return FileTypeOther
}

// FileTypeOf classifies a file using the built-in table.
func FileTypeOf(name, mimeType string) FileType {
	return defaultFileTypes.Lookup(name, mimeType)
}

var defaultFileTypes = DefaultFileTypes()

// normalizeMIME lowercases and strips parameters such as charset.
func normalizeMIME(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if idx := strings.Index(mimeType, ";"); idx != -1 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}
	return mimeType
}

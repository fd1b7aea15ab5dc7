// Package drive implements the file store connector on the Google Drive v3 API.
package drive

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"github.com/custodia-labs/drive-index/internal/core/domain"
	"github.com/custodia-labs/drive-index/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.FileStore = (*FileStore)(nil)

// MimeTypeFolder is the MIME type Drive reports for folders.
const MimeTypeFolder = "application/vnd.google-apps.folder"

const (
	listFields       googleapi.Field = "nextPageToken, files(id, name, mimeType, parents, version, trashed)"
	fileFields       googleapi.Field = "id, name, mimeType, parents, version, trashed, size, createdTime, owners(displayName, emailAddress)"
	folderFields     googleapi.Field = "id, name, parents"
	permissionFields googleapi.Field = "nextPageToken, permissions(type, emailAddress, domain)"
	changeFields     googleapi.Field = "nextPageToken, newStartPageToken, changes(changeType, fileId, removed, time, file(id, version, trashed, mimeType))"

	// maxPathDepth bounds the parent walk when resolving a folder path.
	maxPathDepth = 64
)

// Config holds Drive connector configuration.
type Config struct {
	// PageSize is the page size for files.list requests.
	PageSize int64
	// PathCacheSize bounds the folder path cache.
	PathCacheSize int
	// LinkBase prefixes file IDs to build open-in-Drive links.
	LinkBase string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		PageSize:      100,
		PathCacheSize: 50_000,
		LinkBase:      "https://drive.google.com/open?id=",
	}
}

// FileStore reads folder trees, permissions and the change stream from Drive.
// Folder paths are resolved by walking parents and cached by folder ID.
type FileStore struct {
	svc   *drive.Service
	cfg   Config
	paths *lru.Cache[string, string]
}

// New creates a FileStore over an authenticated Drive service.
func New(svc *drive.Service, cfg Config) (*FileStore, error) {
	def := DefaultConfig()
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.PathCacheSize <= 0 {
		cfg.PathCacheSize = def.PathCacheSize
	}
	if cfg.LinkBase == "" {
		cfg.LinkBase = def.LinkBase
	}

	paths, err := lru.New[string, string](cfg.PathCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create path cache: %w", err)
	}
	return &FileStore{svc: svc, cfg: cfg, paths: paths}, nil
}

// ListFolder returns one page of a folder's non-trashed children.
func (f *FileStore) ListFolder(ctx context.Context, folderID, pageToken string) (*domain.FolderPage, error) {
	parentPath, err := f.folderPath(ctx, folderID)
	if err != nil {
		return nil, err
	}

	call := f.svc.Files.List().
		Q(fmt.Sprintf("'%s' in parents and trashed = false", escapeQuery(folderID))).
		Fields(listFields).
		PageSize(f.cfg.PageSize).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	list, err := call.Do()
	if err != nil {
		return nil, wrapError("files.list", err)
	}

	page := &domain.FolderPage{
		Entries:       make([]domain.FileEntry, 0, len(list.Files)),
		NextPageToken: list.NextPageToken,
	}
	for _, file := range list.Files {
		entry := toEntry(file, parentPath)
		entry.ParentID = folderID
		if entry.IsFolder {
			f.paths.Add(entry.FileID, entry.Path)
		}
		page.Entries = append(page.Entries, entry)
	}
	return page, nil
}

// GetFileMetadata fetches a file with its owner and size.
func (f *FileStore) GetFileMetadata(ctx context.Context, fileID string) (*domain.FileMetadata, error) {
	file, err := f.svc.Files.Get(fileID).
		Fields(fileFields).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, wrapError("files.get", err)
	}

	parentPath := ""
	if len(file.Parents) > 0 {
		if parentPath, err = f.folderPath(ctx, file.Parents[0]); err != nil {
			return nil, err
		}
	}

	meta := &domain.FileMetadata{
		Entry: toEntry(file, parentPath),
		Intrinsic: domain.IntrinsicMetadata{
			SizeBytes: file.Size,
			MimeType:  file.MimeType,
		},
	}
	if len(file.Owners) > 0 {
		meta.Intrinsic.AuthorName = file.Owners[0].DisplayName
	}
	if t, err := time.Parse(time.RFC3339, file.CreatedTime); err == nil {
		meta.Intrinsic.CreatedAt = t
	}
	return meta, nil
}

// GetPermissions lists every permission of a file as principal identifiers:
// user:<email>, group:<email>, domain:<domain> or anyone.
func (f *FileStore) GetPermissions(ctx context.Context, fileID string) ([]string, error) {
	var principals []string
	pageToken := ""
	for {
		call := f.svc.Permissions.List(fileID).
			Fields(permissionFields).
			SupportsAllDrives(true).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		list, err := call.Do()
		if err != nil {
			return nil, wrapError("permissions.list", err)
		}
		for _, p := range list.Permissions {
			if principal := toPrincipal(p); principal != "" {
				principals = append(principals, principal)
			}
		}
		if list.NextPageToken == "" {
			return domain.NormalizePrincipals(principals), nil
		}
		pageToken = list.NextPageToken
	}
}

// StartCursor returns the current start page token of the changes feed.
func (f *FileStore) StartCursor(ctx context.Context) (string, error) {
	tok, err := f.svc.Changes.GetStartPageToken().
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", wrapError("changes.getStartPageToken", err)
	}
	return tok.StartPageToken, nil
}

// FetchChanges reads one page of the changes feed. The page is exhausted
// when Drive hands back a new start page token instead of a next page.
func (f *FileStore) FetchChanges(ctx context.Context, cursor string, pageSize int) (*domain.ChangePage, error) {
	if cursor == "" {
		start, err := f.StartCursor(ctx)
		if err != nil {
			return nil, err
		}
		cursor = start
	}
	if pageSize <= 0 {
		pageSize = int(f.cfg.PageSize)
	}

	list, err := f.svc.Changes.List(cursor).
		Fields(changeFields).
		PageSize(int64(pageSize)).
		IncludeRemoved(true).
		IncludeItemsFromAllDrives(true).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, wrapError("changes.list", err)
	}

	page := &domain.ChangePage{Changes: make([]domain.Change, 0, len(list.Changes))}
	folderChanged := false
	for _, c := range list.Changes {
		if c.ChangeType != "" && c.ChangeType != "file" {
			continue
		}
		change := domain.Change{FileID: c.FileId, Type: domain.ChangeTypeModified}
		if t, err := time.Parse(time.RFC3339, c.Time); err == nil {
			change.ObservedAt = t
		}
		if c.File != nil {
			change.RevisionToken = strconv.FormatInt(c.File.Version, 10)
			if c.File.MimeType == MimeTypeFolder {
				folderChanged = true
			}
		}
		if c.Removed || (c.File != nil && c.File.Trashed) {
			change.Type = domain.ChangeTypeRemoved
			folderChanged = folderChanged || f.paths.Contains(c.FileId)
		}
		page.Changes = append(page.Changes, change)
	}
	if folderChanged {
		// A renamed or moved folder changes the path of everything below it.
		f.paths.Purge()
	}

	if list.NextPageToken != "" {
		page.NextCursor = list.NextPageToken
	} else {
		page.NextCursor = list.NewStartPageToken
		page.Exhausted = true
	}
	return page, nil
}

// OpenInSourceURL returns the Drive link of a file.
func (f *FileStore) OpenInSourceURL(fileID string) string {
	return f.cfg.LinkBase + fileID
}

// folderPath resolves the slash-separated path of a folder. Drive roots
// (folders without parents) contribute no segment.
func (f *FileStore) folderPath(ctx context.Context, folderID string) (string, error) {
	var chain []*drive.File
	id := folderID
	base := ""
	for depth := 0; ; depth++ {
		if cached, ok := f.paths.Get(id); ok {
			base = cached
			break
		}
		if depth >= maxPathDepth {
			return "", fmt.Errorf("resolve path of %s: %w", folderID, domain.ErrInvalidInput)
		}
		folder, err := f.svc.Files.Get(id).
			Fields(folderFields).
			SupportsAllDrives(true).
			Context(ctx).
			Do()
		if err != nil {
			return "", wrapError("files.get", err)
		}
		if len(folder.Parents) == 0 {
			f.paths.Add(id, "")
			break
		}
		chain = append(chain, folder)
		id = folder.Parents[0]
	}

	path := base
	for i := len(chain) - 1; i >= 0; i-- {
		path += "/" + chain[i].Name
		f.paths.Add(chain[i].Id, path)
	}
	return path, nil
}

func toEntry(file *drive.File, parentPath string) domain.FileEntry {
	entry := domain.FileEntry{
		FileID:        file.Id,
		Name:          file.Name,
		Path:          parentPath + "/" + file.Name,
		RevisionToken: strconv.FormatInt(file.Version, 10),
		MimeType:      file.MimeType,
		IsFolder:      file.MimeType == MimeTypeFolder,
		Trashed:       file.Trashed,
	}
	if len(file.Parents) > 0 {
		entry.ParentID = file.Parents[0]
	}
	return entry
}

func toPrincipal(p *drive.Permission) string {
	switch p.Type {
	case "user":
		if p.EmailAddress != "" {
			return "user:" + strings.ToLower(p.EmailAddress)
		}
	case "group":
		if p.EmailAddress != "" {
			return "group:" + strings.ToLower(p.EmailAddress)
		}
	case "domain":
		if p.Domain != "" {
			return "domain:" + strings.ToLower(p.Domain)
		}
	case "anyone":
		return domain.PrincipalAnyone
	}
	return ""
}

// escapeQuery escapes a value for a single-quoted Drive query literal.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

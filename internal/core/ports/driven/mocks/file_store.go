package mocks

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/custodia-labs/drive-index/internal/core/domain"
)

// MockFileStore is an in-memory file tree with a change log.
// Folder paths are derived from parent links; a folder with an empty name is a root.
type MockFileStore struct {
	mu      sync.RWMutex
	files   map[string]*mockFile
	changes []domain.Change

	// PageSize bounds ListFolder pages (default 100)
	PageSize int

	// Custom behavior hooks (optional)
	ListFolderFn      func(ctx context.Context, folderID, pageToken string) (*domain.FolderPage, error)
	GetFileMetadataFn func(ctx context.Context, fileID string) (*domain.FileMetadata, error)
	GetPermissionsFn  func(ctx context.Context, fileID string) ([]string, error)
	FetchChangesFn    func(ctx context.Context, cursor string, pageSize int) (*domain.ChangePage, error)

	// Call counters
	ListFolderCalls  atomic.Int64
	MetadataCalls    atomic.Int64
	PermissionsCalls atomic.Int64
}

type mockFile struct {
	entry      domain.FileEntry
	intrinsic  domain.IntrinsicMetadata
	principals []string
}

// NewMockFileStore creates an empty file tree.
func NewMockFileStore() *MockFileStore {
	return &MockFileStore{
		files:    make(map[string]*mockFile),
		PageSize: 100,
	}
}

// AddFolder adds a folder under parentID. An empty parentID makes a root.
func (m *MockFileStore) AddFolder(id, parentID, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.files[id] = &mockFile{entry: domain.FileEntry{
		FileID:        id,
		Name:          name,
		ParentID:      parentID,
		IsFolder:      true,
		RevisionToken: "1",
		MimeType:      "application/vnd.google-apps.folder",
	}}
}

// PutFile adds or replaces a file.
func (m *MockFileStore) PutFile(entry domain.FileEntry, intrinsic domain.IntrinsicMetadata, principals []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.files[entry.FileID] = &mockFile{entry: entry, intrinsic: intrinsic, principals: slices.Clone(principals)}
}

// SetPermissions replaces the principals of a file.
func (m *MockFileStore) SetPermissions(fileID string, principals []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if f, ok := m.files[fileID]; ok {
		f.principals = slices.Clone(principals)
	}
}

// RemoveFile deletes a file from the tree.
func (m *MockFileStore) RemoveFile(fileID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.files, fileID)
}

// AppendChange adds an event to the change log.
func (m *MockFileStore) AppendChange(c domain.Change) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.changes = append(m.changes, c)
}

// ListFolder returns one page of direct children ordered by file ID.
func (m *MockFileStore) ListFolder(ctx context.Context, folderID, pageToken string) (*domain.FolderPage, error) {
	m.ListFolderCalls.Add(1)
	if m.ListFolderFn != nil {
		return m.ListFolderFn(ctx, folderID, pageToken)
	}
	return m.BaseListFolder(ctx, folderID, pageToken)
}

// BaseListFolder lists the tree, bypassing ListFolderFn.
func (m *MockFileStore) BaseListFolder(ctx context.Context, folderID, pageToken string) (*domain.FolderPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.files[folderID]; !ok {
		return nil, fmt.Errorf("folder %s: %w", folderID, domain.ErrNotFound)
	}

	var children []domain.FileEntry
	for _, f := range m.files {
		if f.entry.ParentID == folderID {
			children = append(children, m.entryLocked(f))
		}
	}
	slices.SortFunc(children, func(a, b domain.FileEntry) int {
		switch {
		case a.FileID < b.FileID:
			return -1
		case a.FileID > b.FileID:
			return 1
		}
		return 0
	})

	offset := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil {
			return nil, fmt.Errorf("bad page token %q: %w", pageToken, domain.ErrInvalidInput)
		}
		offset = n
	}
	end := min(offset+m.PageSize, len(children))
	page := &domain.FolderPage{Entries: children[min(offset, end):end]}
	if end < len(children) {
		page.NextPageToken = strconv.Itoa(end)
	}
	return page, nil
}

// GetFileMetadata returns the current entry of a file.
func (m *MockFileStore) GetFileMetadata(ctx context.Context, fileID string) (*domain.FileMetadata, error) {
	m.MetadataCalls.Add(1)
	if m.GetFileMetadataFn != nil {
		return m.GetFileMetadataFn(ctx, fileID)
	}
	return m.BaseGetFileMetadata(ctx, fileID)
}

// BaseGetFileMetadata reads the tree, bypassing GetFileMetadataFn.
func (m *MockFileStore) BaseGetFileMetadata(ctx context.Context, fileID string) (*domain.FileMetadata, error) {

	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.files[fileID]
	if !ok {
		return nil, fmt.Errorf("file %s: %w", fileID, domain.ErrNotFound)
	}
	return &domain.FileMetadata{Entry: m.entryLocked(f), Intrinsic: f.intrinsic}, nil
}

// GetPermissions returns the principals of a file.
func (m *MockFileStore) GetPermissions(ctx context.Context, fileID string) ([]string, error) {
	m.PermissionsCalls.Add(1)
	if m.GetPermissionsFn != nil {
		return m.GetPermissionsFn(ctx, fileID)
	}
	return m.BaseGetPermissions(ctx, fileID)
}

// BaseGetPermissions reads the tree, bypassing GetPermissionsFn.
func (m *MockFileStore) BaseGetPermissions(ctx context.Context, fileID string) ([]string, error) {

	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.files[fileID]
	if !ok {
		return nil, fmt.Errorf("file %s: %w", fileID, domain.ErrNotFound)
	}
	return slices.Clone(f.principals), nil
}

// StartCursor returns the current end of the change log.
func (m *MockFileStore) StartCursor(ctx context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return strconv.Itoa(len(m.changes)), nil
}

// FetchChanges pages through the change log; cursors are log offsets.
func (m *MockFileStore) FetchChanges(ctx context.Context, cursor string, pageSize int) (*domain.ChangePage, error) {
	if m.FetchChangesFn != nil {
		return m.FetchChangesFn(ctx, cursor, pageSize)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, fmt.Errorf("bad cursor %q: %w", cursor, domain.ErrInvalidInput)
		}
		offset = n
	}
	if pageSize <= 0 {
		pageSize = 100
	}
	offset = min(offset, len(m.changes))
	end := min(offset+pageSize, len(m.changes))
	return &domain.ChangePage{
		Changes:    slices.Clone(m.changes[offset:end]),
		NextCursor: strconv.Itoa(end),
		Exhausted:  end == len(m.changes),
	}, nil
}

// OpenInSourceURL returns a fake link.
func (m *MockFileStore) OpenInSourceURL(fileID string) string {
	return "https://drive.test/file/" + fileID
}

// entryLocked fills in the derived path of a file. Callers hold m.mu.
func (m *MockFileStore) entryLocked(f *mockFile) domain.FileEntry {
	e := f.entry
	e.Path = m.pathLocked(f.entry.ParentID) + "/" + e.Name
	return e
}

func (m *MockFileStore) pathLocked(folderID string) string {
	f, ok := m.files[folderID]
	if !ok || f.entry.Name == "" {
		return ""
	}
	return m.pathLocked(f.entry.ParentID) + "/" + f.entry.Name
}

package domain

import (
	"slices"
	"strings"
	"time"
)

// PrincipalAnyone is granted on files shared with anyone holding the link.
const PrincipalAnyone = "anyone"

// PermissionSnapshot mirrors the read access-control list of one file.
// RevisionToken is the file revision the snapshot was captured alongside;
// a snapshot older than its Asset must not authorize reads.
type PermissionSnapshot struct {
	FileID        string    `json:"file_id"`
	Principals    []string  `json:"principals"`
	RevisionToken string    `json:"revision_token"`
	CapturedAt    time.Time `json:"captured_at"`
}

// NewPermissionSnapshot builds a snapshot with a sorted, de-duplicated principal set.
func NewPermissionSnapshot(fileID string, principals []string, revision string, capturedAt time.Time) *PermissionSnapshot {
	return &PermissionSnapshot{
		FileID:        fileID,
		Principals:    NormalizePrincipals(principals),
		RevisionToken: revision,
		CapturedAt:    capturedAt,
	}
}

// Grants reports whether principal has read access.
func (p *PermissionSnapshot) Grants(principal string) bool {
	if p == nil || principal == "" {
		return false
	}
	_, found := slices.BinarySearch(p.Principals, principal)
	return found
}

// GrantsAny reports whether any of the principals has read access.
func (p *PermissionSnapshot) GrantsAny(principals []string) bool {
	for _, pr := range principals {
		if p.Grants(pr) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the snapshot.
func (p *PermissionSnapshot) Clone() *PermissionSnapshot {
	if p == nil {
		return nil
	}
	c := *p
	c.Principals = slices.Clone(p.Principals)
	return &c
}

// NormalizePrincipals sorts principals and drops blanks and duplicates.
func NormalizePrincipals(principals []string) []string {
	out := make([]string, 0, len(principals))
	for _, p := range principals {
		if p != "" {
			out = append(out, p)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Principal identifies the caller of a query: a user plus the groups it belongs to.
type Principal struct {
	ID     string   `json:"id"`
	Groups []string `json:"groups,omitempty"`
}

// Identities returns the user ID followed by its groups.
func (p Principal) Identities() []string {
	ids := make([]string, 0, len(p.Groups)+1)
	if p.ID != "" {
		ids = append(ids, p.ID)
	}
	return append(ids, p.Groups...)
}

// ReadIdentities returns every principal a snapshot may grant p through:
// Identities, the email domain of a user ID, and PrincipalAnyone.
// An anonymous principal has no identities.
func (p Principal) ReadIdentities() []string {
	if p.ID == "" {
		return nil
	}
	ids := p.Identities()
	if at := strings.LastIndexByte(p.ID, '@'); at >= 0 && at < len(p.ID)-1 {
		ids = append(ids, "domain:"+strings.ToLower(p.ID[at+1:]))
	}
	return append(ids, PrincipalAnyone)
}

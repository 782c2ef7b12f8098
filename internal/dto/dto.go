// Package dto holds the transport projections of registry records and the
// request bodies the HTTP layer accepts.
package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/partsregistry/registry/internal/models"
)

type AccountInfo struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	IsAdmin   bool      `json:"isAdmin"`
}

func Account(a *models.Account) *AccountInfo {
	if a == nil {
		return nil
	}
	return &AccountInfo{
		ID:        a.ID,
		Email:     a.Email,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		IsAdmin:   a.IsAdmin(),
	}
}

// AccessPermission is one explicit grant as shown to clients.
type AccessPermission struct {
	ID          uuid.UUID           `json:"id"`
	TargetKind  models.ResourceKind `json:"targetKind"`
	TargetID    uuid.UUID           `json:"targetID"`
	GranteeKind models.GranteeKind  `json:"granteeKind"`
	GranteeID   uuid.UUID           `json:"granteeID"`
	Display     string              `json:"display"`
	CanRead     bool                `json:"canRead"`
	CanWrite    bool                `json:"canWrite"`
}

func Permission(p *models.Permission) AccessPermission {
	out := AccessPermission{ID: p.ID, CanRead: p.CanRead || p.CanWrite, CanWrite: p.CanWrite}
	if target, err := p.Target(); err == nil {
		out.TargetKind = target.Kind
		out.TargetID = target.ID
	}
	if grantee, err := p.Grantee(); err == nil {
		out.GranteeKind = grantee.Kind
		out.GranteeID = grantee.ID
	}
	switch {
	case p.Account != nil:
		out.Display = p.Account.FullName()
		if out.Display == "" {
			out.Display = p.Account.Email
		}
	case p.Group != nil:
		out.Display = p.Group.Name
	}
	return out
}

func Permissions(rows []models.Permission) []AccessPermission {
	out := make([]AccessPermission, 0, len(rows))
	for i := range rows {
		out = append(out, Permission(&rows[i]))
	}
	return out
}

type PartData struct {
	ID                    uuid.UUID         `json:"id"`
	Kind                  models.EntryKind  `json:"kind"`
	Name                  string            `json:"name"`
	Creator               string            `json:"creator"`
	CreatorEmail          string            `json:"creatorEmail"`
	PrincipalInvestigator string            `json:"principalInvestigator"`
	ShortDescription      string            `json:"shortDescription"`
	BioSafetyLevel        int               `json:"bioSafetyLevel"`
	Status                string            `json:"status"`
	OwnerEmail            string            `json:"ownerEmail"`
	Visibility            models.Visibility `json:"visibility"`
	SelectionMarkers      []string          `json:"selectionMarkers"`
	CreatedAt             time.Time         `json:"createdAt"`

	Strain      *models.StrainData      `json:"strain,omitempty"`
	Plasmid     *models.PlasmidData     `json:"plasmid,omitempty"`
	Arabidopsis *models.ArabidopsisData `json:"arabidopsis,omitempty"`
}

func Part(e *models.Entry) PartData {
	return PartData{
		ID:                    e.ID,
		Kind:                  e.Kind,
		Name:                  e.Name,
		Creator:               e.Creator,
		CreatorEmail:          e.CreatorEmail,
		PrincipalInvestigator: e.PrincipalInvestigator,
		ShortDescription:      e.ShortDescription,
		BioSafetyLevel:        e.BioSafetyLevel,
		Status:                e.Status,
		OwnerEmail:            e.OwnerEmail,
		Visibility:            e.Visibility,
		SelectionMarkers:      e.MarkerNames(),
		CreatedAt:             e.CreatedAt,
		Strain:                e.Strain,
		Plasmid:               e.Plasmid,
		Arabidopsis:           e.Arabidopsis,
	}
}

func Parts(entries []models.Entry) []PartData {
	out := make([]PartData, 0, len(entries))
	for i := range entries {
		out = append(out, Part(&entries[i]))
	}
	return out
}

type FolderDetails struct {
	ID                   uuid.UUID          `json:"id"`
	Name                 string             `json:"name"`
	Description          string             `json:"description"`
	Type                 models.FolderType  `json:"type"`
	OwnerEmail           string             `json:"ownerEmail,omitempty"`
	Owner                *AccountInfo       `json:"owner,omitempty"`
	PropagatePermissions bool               `json:"propagatePermissions"`
	PublicReadAccess     bool               `json:"publicReadAccess"`
	CanEdit              bool               `json:"canEdit"`
	Count                int64              `json:"count"`
	Contents             []PartData         `json:"contents,omitempty"`
	Permissions          []AccessPermission `json:"permissions,omitempty"`
	CreatedAt            time.Time          `json:"createdAt"`
	ModifiedAt           *time.Time         `json:"modifiedAt,omitempty"`
}

func Folder(f *models.Folder) FolderDetails {
	return FolderDetails{
		ID:                   f.ID,
		Name:                 f.Name,
		Description:          f.Description,
		Type:                 f.Type,
		OwnerEmail:           f.OwnerEmail,
		PropagatePermissions: f.PropagatePermissions,
		CreatedAt:            f.CreatedAt,
		ModifiedAt:           f.ModifiedAt,
	}
}

// BulkUpload projects an upload as an UPLOAD-type folder listing row.
func BulkUpload(u *models.BulkUpload, count int64) FolderDetails {
	details := FolderDetails{
		ID:         u.ID,
		Name:       u.Name,
		Type:       models.FolderTypeUpload,
		OwnerEmail: u.Account.Email,
		Owner:      Account(&u.Account),
		Count:      count,
		CanEdit:    u.Status == models.BulkUploadDraft,
		CreatedAt:  u.CreatedAt,
		ModifiedAt: u.SubmittedAt,
	}
	if u.Account.ID == uuid.Nil {
		details.Owner = nil
	}
	return details
}

type BulkUploadInfo struct {
	ID          uuid.UUID               `json:"id"`
	Name        string                  `json:"name"`
	Status      models.BulkUploadStatus `json:"status"`
	Account     *AccountInfo            `json:"account,omitempty"`
	Count       int64                   `json:"count"`
	CreatedAt   time.Time               `json:"createdAt"`
	SubmittedAt *time.Time              `json:"submittedAt,omitempty"`
}

func Upload(u *models.BulkUpload, count int64) BulkUploadInfo {
	info := BulkUploadInfo{
		ID:          u.ID,
		Name:        u.Name,
		Status:      u.Status,
		Count:       count,
		CreatedAt:   u.CreatedAt,
		SubmittedAt: u.SubmittedAt,
	}
	if u.Account.ID != uuid.Nil {
		info.Account = Account(&u.Account)
	}
	return info
}

// CollectionStats are the counters shown next to the built-in collections.
type CollectionStats struct {
	Available int64 `json:"available"`
	Personal  int64 `json:"personal"`
	Shared    int64 `json:"shared"`
	Drafts    int64 `json:"drafts"`
	Pending   int64 `json:"pending,omitempty"`
	Deleted   int64 `json:"deleted"`
}

type ValidationResult struct {
	Valid        bool     `json:"valid"`
	FailedFields []string `json:"failedFields"`
}

package models

import "github.com/google/uuid"

type ResourceKind string

const (
	ResourceFolder ResourceKind = "folder"
	ResourceEntry  ResourceKind = "entry"
	// ResourceUpload is used for audit and denial reporting only; uploads carry no grants.
	ResourceUpload ResourceKind = "upload"

	ResourceGroup   ResourceKind = "group"
	ResourceAccount ResourceKind = "account"
)

// Securable is anything the authorizer can evaluate: a folder or an entry.
type Securable interface {
	ResourceKind() ResourceKind
	ResourceID() uuid.UUID
	// Owner returns the owner email, empty when the resource has no owner.
	Owner() string
	// IsPublicResource reports structural public visibility (public folders).
	IsPublicResource() bool
}

// Target is the resource a permission applies to: exactly one of a folder or an entry.
type Target struct {
	Kind ResourceKind
	ID   uuid.UUID
}

func FolderTarget(id uuid.UUID) Target {
	return Target{Kind: ResourceFolder, ID: id}
}

func EntryTarget(id uuid.UUID) Target {
	return Target{Kind: ResourceEntry, ID: id}
}

func TargetOf(s Securable) Target {
	return Target{Kind: s.ResourceKind(), ID: s.ResourceID()}
}

func (t Target) Valid() bool {
	return (t.Kind == ResourceFolder || t.Kind == ResourceEntry) && t.ID != uuid.Nil
}

func (t Target) String() string {
	return string(t.Kind) + ":" + t.ID.String()
}

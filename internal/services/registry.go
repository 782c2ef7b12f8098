package services

import (
	"github.com/partsregistry/registry/internal/cache"
	"gorm.io/gorm"
)

// Registry wires the services that share one authorizer.
type Registry struct {
	Accounts   *AccountDirectory
	Authorizer *Authorizer
	Propagator *Propagator
	Uploads    *BulkUploadService
	Entries    *EntryService
	Folders    *FolderService
	Audit      *AuditService
}

func NewRegistry(db *gorm.DB, sizes cache.FolderSizes, audit *AuditService) *Registry {
	authorizer := NewAuthorizer(db)
	propagator := NewPropagator(db, authorizer)
	uploads := NewBulkUploadService(db, audit)
	return &Registry{
		Accounts:   NewAccountDirectory(db),
		Authorizer: authorizer,
		Propagator: propagator,
		Uploads:    uploads,
		Entries:    NewEntryService(db, authorizer, audit),
		Folders:    NewFolderService(db, authorizer, propagator, uploads, sizes, audit),
		Audit:      audit,
	}
}

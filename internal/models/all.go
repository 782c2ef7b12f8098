package models

// All lists every persisted model in migration order.
func All() []interface{} {
	return []interface{}{
		&Account{},
		&Group{},
		&GroupMembership{},
		&Entry{},
		&SelectionMarker{},
		&StrainData{},
		&PlasmidData{},
		&ArabidopsisData{},
		&Folder{},
		&FolderEntry{},
		&Permission{},
		&BulkUpload{},
		&BulkUploadEntry{},
		&AuditLog{},
		&AuditExportCursor{},
		&Activity{},
	}
}

package dto

type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"firstName" validate:"not_blank,max=100"`
	LastName  string `json:"lastName" validate:"not_blank,max=100"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type CreateFolderRequest struct {
	Name        string `json:"name" validate:"not_blank,max=255"`
	Description string `json:"description"`
}

// UpdateFolderRequest changes only the fields that are present. Type "public"
// promotes the folder, "private" demotes it.
type UpdateFolderRequest struct {
	Name                 *string `json:"name" validate:"omitempty,not_blank,max=255"`
	Description          *string `json:"description"`
	PropagatePermissions *bool   `json:"propagatePermissions"`
	Type                 *string `json:"type" validate:"omitempty,oneof=private public"`
}

type PermissionRequest struct {
	GranteeType string `json:"granteeType" validate:"required,oneof=account group"`
	GranteeID   string `json:"granteeID" validate:"required,uuid"`
	CanRead     bool   `json:"canRead"`
	CanWrite    bool   `json:"canWrite"`
}

type RemovePermissionRequest struct {
	GranteeType string `json:"granteeType" validate:"required,oneof=account group"`
	GranteeID   string `json:"granteeID" validate:"required,uuid"`
	// WriteOnly downgrades the grant to read-only instead of removing it.
	WriteOnly bool `json:"writeOnly"`
}

type EntriesRequest struct {
	EntryIDs []string `json:"entryIDs" validate:"required,min=1,dive,uuid"`
}

type AddToFoldersRequest struct {
	FolderIDs []string `json:"folderIDs" validate:"required,min=1,dive,uuid"`
	EntryIDs  []string `json:"entryIDs" validate:"required,min=1,dive,uuid"`
}

type MoveEntriesRequest struct {
	DestinationIDs []string `json:"destinationIDs" validate:"required,min=1,dive,uuid"`
	EntryIDs       []string `json:"entryIDs" validate:"required,min=1,dive,uuid"`
}

type CreateEntryRequest struct {
	Kind                  string   `json:"kind" validate:"required,entry_kind"`
	Name                  string   `json:"name" validate:"max=255"`
	Creator               string   `json:"creator" validate:"max=255"`
	CreatorEmail          string   `json:"creatorEmail" validate:"max=255"`
	PrincipalInvestigator string   `json:"principalInvestigator" validate:"max=255"`
	ShortDescription      string   `json:"shortDescription"`
	BioSafetyLevel        int      `json:"bioSafetyLevel"`
	Status                string   `json:"status" validate:"max=50"`
	SelectionMarkers      []string `json:"selectionMarkers" validate:"dive,not_blank,max=100"`

	Host                string `json:"host"`
	GenotypePhenotype   string `json:"genotypePhenotype"`
	Plasmids            string `json:"plasmids"`
	Backbone            string `json:"backbone"`
	OriginOfReplication string `json:"originOfReplication"`
	Promoters           string `json:"promoters"`
	Circular            *bool  `json:"circular"`
	Ecotype             string `json:"ecotype"`
	Generation          string `json:"generation"`
	Parents             string `json:"parents"`
}

type CreateUploadRequest struct {
	Name string `json:"name" validate:"not_blank,max=255"`
}

type UploadEntriesRequest struct {
	Entries []CreateEntryRequest `json:"entries" validate:"required,min=1,dive"`
}

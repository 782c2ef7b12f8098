package models

import (
	"strings"

	"github.com/google/uuid"
)

type EntryKind string

const (
	EntryKindStrain      EntryKind = "strain"
	EntryKindPlasmid     EntryKind = "plasmid"
	EntryKindArabidopsis EntryKind = "arabidopsis"
	EntryKindPart        EntryKind = "part"
)

// ParseEntryKind returns false for record types this registry does not know.
func ParseEntryKind(value string) (EntryKind, bool) {
	switch EntryKind(strings.ToLower(strings.TrimSpace(value))) {
	case EntryKindStrain:
		return EntryKindStrain, true
	case EntryKindPlasmid:
		return EntryKindPlasmid, true
	case EntryKindArabidopsis:
		return EntryKindArabidopsis, true
	case EntryKindPart:
		return EntryKindPart, true
	default:
		return "", false
	}
}

type Visibility string

const (
	VisibilityDraft   Visibility = "draft"
	VisibilityPending Visibility = "pending"
	VisibilityOK      Visibility = "ok"
	VisibilityDeleted Visibility = "deleted"
)

// Entry is a biological record. Kind tags which of the type payloads is populated:
// Strain for strains, Plasmid for plasmids, Arabidopsis for seeds, none for generic parts.
type Entry struct {
	BaseModel
	Kind                  EntryKind         `json:"kind" gorm:"type:varchar(20);not null;index"`
	Name                  string            `json:"name" gorm:"type:varchar(255);not null;default:''"`
	Creator               string            `json:"creator" gorm:"type:varchar(255);not null;default:''"`
	CreatorEmail          string            `json:"creatorEmail" gorm:"type:varchar(255);not null;default:''"`
	PrincipalInvestigator string            `json:"principalInvestigator" gorm:"type:varchar(255);not null;default:''"`
	ShortDescription      string            `json:"shortDescription" gorm:"type:text;not null;default:''"`
	BioSafetyLevel        int               `json:"bioSafetyLevel" gorm:"not null;default:0"`
	Status                string            `json:"status" gorm:"type:varchar(50);not null;default:''"`
	OwnerEmail            string            `json:"ownerEmail" gorm:"type:varchar(255);not null;index"`
	Visibility            Visibility        `json:"visibility" gorm:"type:varchar(20);not null;default:'ok';index"`
	SelectionMarkers      []SelectionMarker `json:"selectionMarkers,omitempty" gorm:"foreignKey:EntryID;constraint:OnDelete:CASCADE"`
	Strain                *StrainData       `json:"strain,omitempty" gorm:"foreignKey:EntryID;constraint:OnDelete:CASCADE"`
	Plasmid               *PlasmidData      `json:"plasmid,omitempty" gorm:"foreignKey:EntryID;constraint:OnDelete:CASCADE"`
	Arabidopsis           *ArabidopsisData  `json:"arabidopsis,omitempty" gorm:"foreignKey:EntryID;constraint:OnDelete:CASCADE"`
}

func (Entry) TableName() string {
	return "entries"
}

func (e *Entry) ResourceKind() ResourceKind { return ResourceEntry }
func (e *Entry) ResourceID() uuid.UUID      { return e.ID }
func (e *Entry) Owner() string              { return e.OwnerEmail }
func (e *Entry) IsPublicResource() bool     { return false }

func (e *Entry) IsLive() bool {
	return e.Visibility != VisibilityDeleted
}

// MarkerNames returns the selection marker names in stored order.
func (e *Entry) MarkerNames() []string {
	names := make([]string, 0, len(e.SelectionMarkers))
	for _, marker := range e.SelectionMarkers {
		names = append(names, marker.Name)
	}
	return names
}

type SelectionMarker struct {
	BaseModel
	EntryID uuid.UUID `json:"entryID" gorm:"type:uuid;not null;index"`
	Name    string    `json:"name" gorm:"type:varchar(100);not null"`
}

type StrainData struct {
	BaseModel
	EntryID           uuid.UUID `json:"entryID" gorm:"type:uuid;not null;uniqueIndex"`
	Host              string    `json:"host" gorm:"type:varchar(255)"`
	GenotypePhenotype string    `json:"genotypePhenotype" gorm:"type:text"`
	Plasmids          string    `json:"plasmids" gorm:"type:text"`
}

type PlasmidData struct {
	BaseModel
	EntryID             uuid.UUID `json:"entryID" gorm:"type:uuid;not null;uniqueIndex"`
	Backbone            string    `json:"backbone" gorm:"type:varchar(255)"`
	OriginOfReplication string    `json:"originOfReplication" gorm:"type:varchar(255)"`
	Promoters           string    `json:"promoters" gorm:"type:varchar(255)"`
	Circular            bool      `json:"circular" gorm:"not null;default:true"`
}

type ArabidopsisData struct {
	BaseModel
	EntryID    uuid.UUID `json:"entryID" gorm:"type:uuid;not null;uniqueIndex"`
	Ecotype    string    `json:"ecotype" gorm:"type:varchar(255)"`
	Generation string    `json:"generation" gorm:"type:varchar(50)"`
	Parents    string    `json:"parents" gorm:"type:varchar(255)"`
}

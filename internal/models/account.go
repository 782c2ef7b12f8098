package models

import "strings"

type AccountType string

const (
	AccountTypeAdmin  AccountType = "admin"
	AccountTypeNormal AccountType = "normal"
)

type Account struct {
	BaseModel
	Email            string            `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash     string            `json:"-" gorm:"type:text;not null"`
	FirstName        string            `json:"firstName" gorm:"type:varchar(100);not null"`
	LastName         string            `json:"lastName" gorm:"type:varchar(100);not null"`
	Type             AccountType       `json:"type" gorm:"type:varchar(20);not null;default:'normal'"`
	GroupMemberships []GroupMembership `json:"-" gorm:"foreignKey:AccountID"`
}

func (Account) TableName() string {
	return "accounts"
}

func (a *Account) IsAdmin() bool {
	return a != nil && a.Type == AccountTypeAdmin
}

func (a *Account) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// NormalizeEmail is the canonical form used for every email lookup and owner comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

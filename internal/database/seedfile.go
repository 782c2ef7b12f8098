package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/partsregistry/registry/internal/models"
	"github.com/partsregistry/registry/internal/services"
	"github.com/partsregistry/registry/pkg/logger"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// SeedFile is a YAML document describing accounts, groups and folders to create
// on a fresh registry. Records that already exist are left untouched.
type SeedFile struct {
	Accounts []SeedAccount `yaml:"accounts"`
	Groups   []SeedGroup   `yaml:"groups"`
	Folders  []SeedFolder  `yaml:"folders"`
}

type SeedAccount struct {
	Email     string `yaml:"email"`
	Password  string `yaml:"password"`
	FirstName string `yaml:"first_name"`
	LastName  string `yaml:"last_name"`
	// Type is "admin" or "normal"; empty means normal.
	Type string `yaml:"type"`
}

type SeedGroup struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Owner       string   `yaml:"owner"`
	Members     []string `yaml:"members"`
}

type SeedFolder struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Owner       string `yaml:"owner"`
	// Public makes the folder available: its contents become readable by everyone.
	Public bool        `yaml:"public"`
	Shares []SeedShare `yaml:"shares"`
}

// SeedShare grants a folder to exactly one of Account (email) or Group (name).
type SeedShare struct {
	Account string `yaml:"account"`
	Group   string `yaml:"group"`
	Write   bool   `yaml:"write"`
}

// SeedReport counts what ApplySeedFile created.
type SeedReport struct {
	Accounts int `json:"accounts"`
	Groups   int `json:"groups"`
	Members  int `json:"members"`
	Folders  int `json:"folders"`
	Shares   int `json:"shares"`
}

func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeedFile(data)
}

func ParseSeedFile(data []byte) (*SeedFile, error) {
	var doc SeedFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	if err := doc.validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (d *SeedFile) validate() error {
	for i, account := range d.Accounts {
		if strings.TrimSpace(account.Email) == "" {
			return fmt.Errorf("accounts[%d]: email is required", i)
		}
		if account.Password == "" {
			return fmt.Errorf("accounts[%d]: password is required", i)
		}
		switch models.AccountType(account.Type) {
		case "", models.AccountTypeAdmin, models.AccountTypeNormal:
		default:
			return fmt.Errorf("accounts[%d]: unknown type %q", i, account.Type)
		}
	}
	for i, group := range d.Groups {
		if strings.TrimSpace(group.Name) == "" || strings.TrimSpace(group.Owner) == "" {
			return fmt.Errorf("groups[%d]: name and owner are required", i)
		}
	}
	for i, folder := range d.Folders {
		if strings.TrimSpace(folder.Name) == "" || strings.TrimSpace(folder.Owner) == "" {
			return fmt.Errorf("folders[%d]: name and owner are required", i)
		}
		for j, share := range folder.Shares {
			if (share.Account == "") == (share.Group == "") {
				return fmt.Errorf("folders[%d].shares[%d]: set exactly one of account or group", i, j)
			}
		}
	}
	return nil
}

// ApplySeedFile creates the records described by doc through the registry services,
// so folder shares go through the same state transitions and propagation as API calls.
func ApplySeedFile(ctx context.Context, registry *services.Registry, doc *SeedFile) (*SeedReport, error) {
	report := &SeedReport{}
	db := registry.Accounts.DB

	for _, account := range doc.Accounts {
		_, err := registry.Accounts.GetByEmail(ctx, account.Email)
		if err == nil {
			continue
		}
		if !errors.Is(err, services.ErrNotFound) {
			return report, err
		}
		if _, err := registry.Accounts.CreateAccount(ctx, account.Email, account.Password, account.FirstName, account.LastName, models.AccountType(account.Type)); err != nil {
			return report, fmt.Errorf("create account %s: %w", account.Email, err)
		}
		report.Accounts++
	}

	groups := make(map[string]*models.Group, len(doc.Groups))
	for _, declared := range doc.Groups {
		owner, err := registry.Accounts.GetByEmail(ctx, declared.Owner)
		if err != nil {
			return report, fmt.Errorf("group %s owner: %w", declared.Name, err)
		}

		var group models.Group
		err = db.WithContext(ctx).Where("name = ? AND created_by_id = ?", declared.Name, owner.ID).First(&group).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			group = models.Group{Name: declared.Name, CreatedByID: &owner.ID}
			if declared.Description != "" {
				description := declared.Description
				group.Description = &description
			}
			if err := db.WithContext(ctx).Create(&group).Error; err != nil {
				return report, fmt.Errorf("create group %s: %w", declared.Name, err)
			}
			report.Groups++
		case err != nil:
			return report, err
		}
		groups[declared.Name] = &group

		roles := map[string]models.GroupMembershipRole{owner.Email: models.GroupRoleOwner}
		for _, email := range declared.Members {
			if _, ok := roles[models.NormalizeEmail(email)]; !ok {
				roles[models.NormalizeEmail(email)] = models.GroupRoleMember
			}
		}
		for email, role := range roles {
			member, err := registry.Accounts.GetByEmail(ctx, email)
			if err != nil {
				return report, fmt.Errorf("group %s member: %w", declared.Name, err)
			}
			isMember, err := registry.Accounts.IsMember(ctx, member.ID, group.ID)
			if err != nil {
				return report, err
			}
			if isMember {
				continue
			}
			if err := db.WithContext(ctx).Create(&models.GroupMembership{
				AccountID: member.ID,
				GroupID:   group.ID,
				Role:      role,
			}).Error; err != nil {
				return report, fmt.Errorf("add %s to group %s: %w", email, declared.Name, err)
			}
			report.Members++
		}
	}

	for _, declared := range doc.Folders {
		owner := models.NormalizeEmail(declared.Owner)
		var existing int64
		if err := db.WithContext(ctx).Model(&models.Folder{}).
			Where("name = ? AND owner_email = ?", strings.TrimSpace(declared.Name), owner).
			Count(&existing).Error; err != nil {
			return report, err
		}
		if existing > 0 {
			continue
		}

		folder, err := registry.Folders.CreatePersonalFolder(ctx, owner, declared.Name, declared.Description)
		if err != nil {
			return report, fmt.Errorf("create folder %s: %w", declared.Name, err)
		}
		report.Folders++

		for _, share := range declared.Shares {
			grantee, err := seedGrantee(ctx, registry, groups, share)
			if err != nil {
				return report, fmt.Errorf("folder %s: %w", declared.Name, err)
			}
			if _, err := registry.Folders.CreateFolderPermission(ctx, owner, folder.ID, grantee, true, share.Write); err != nil {
				return report, fmt.Errorf("share folder %s: %w", declared.Name, err)
			}
			report.Shares++
		}
		if declared.Public {
			if _, err := registry.Folders.EnablePublicReadAccess(ctx, owner, folder.ID); err != nil {
				return report, fmt.Errorf("publish folder %s: %w", declared.Name, err)
			}
			report.Shares++
		}
	}

	logger.Info("seed_file_applied", map[string]interface{}{
		"accounts": report.Accounts,
		"groups":   report.Groups,
		"members":  report.Members,
		"folders":  report.Folders,
		"shares":   report.Shares,
	})
	return report, nil
}

func seedGrantee(ctx context.Context, registry *services.Registry, groups map[string]*models.Group, share SeedShare) (models.Grantee, error) {
	if share.Group != "" {
		group, ok := groups[share.Group]
		if !ok {
			return models.Grantee{}, fmt.Errorf("group %q is not declared in the seed file", share.Group)
		}
		return models.GroupGrantee(group.ID), nil
	}
	account, err := registry.Accounts.GetByEmail(ctx, share.Account)
	if err != nil {
		return models.Grantee{}, err
	}
	return models.AccountGrantee(account.ID), nil
}

// Package seed bootstraps the default organization so a fresh install is
// usable without any provisioning step.
package seed

import (
	"time"

	"github.com/bwmarrin/snowflake"
	orgdomain "github.com/smallbiznis/perkly/internal/organization/domain"
	"gorm.io/gorm"
)

const (
	mainOrgName = "Main"
	mainOrgSlug = "main"
)

// EnsureMainOrg creates the default organization if none exists.
func EnsureMainOrg(db *gorm.DB, genID *snowflake.Node) error {
	return ensure(db, genID.Generate())
}

// EnsureMainOrgWithID creates the default organization under a fixed ID, for
// installs that pin DEFAULT_ORG.
func EnsureMainOrgWithID(db *gorm.DB, id int64) error {
	return ensure(db, snowflake.ID(id))
}

func ensure(db *gorm.DB, id snowflake.ID) error {
	var existing orgdomain.Organization
	err := db.Where("slug = ?", mainOrgSlug).First(&existing).Error
	if err == nil {
		return nil
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}

	now := time.Now().UTC()
	return db.Create(&orgdomain.Organization{
		ID:        id,
		Name:      mainOrgName,
		Slug:      mainOrgSlug,
		CreatedAt: now,
		UpdatedAt: now,
	}).Error
}

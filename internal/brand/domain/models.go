package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Brand struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID      `gorm:"not null;index;uniqueIndex:idx_brands_org_slug,priority:1" json:"organization_id"`
	Name        string            `gorm:"not null" json:"name"`
	Slug        string            `gorm:"not null;uniqueIndex:idx_brands_org_slug,priority:2" json:"slug"`
	Description string            `json:"description,omitempty"`
	LogoURL     string            `gorm:"column:logo_url" json:"logo_url,omitempty"`
	IsActive    bool              `gorm:"not null;default:true" json:"is_active"`
	Metadata    datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Brand) TableName() string { return "brands" }

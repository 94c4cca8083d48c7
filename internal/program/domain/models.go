// Package domain contains persistence models for loyalty programs and rewards.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// ProgramType selects which balance a program's cards accrue.
type ProgramType string

const (
	ProgramTypeStamp  ProgramType = "stamp"
	ProgramTypePoints ProgramType = "points"
)

func (t ProgramType) Valid() bool {
	return t == ProgramTypeStamp || t == ProgramTypePoints
}

// LoyaltyProgram captures a brand's stamp or points configuration.
// Type is immutable after creation; it decides which card mutations are legal.
type LoyaltyProgram struct {
	ID                   snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrgID                snowflake.ID      `gorm:"not null;index;uniqueIndex:idx_programs_org_code,priority:1" json:"organization_id"`
	BrandID              snowflake.ID      `gorm:"not null;index" json:"brand_id"`
	Name                 string            `gorm:"not null" json:"name"`
	Code                 string            `gorm:"not null;uniqueIndex:idx_programs_org_code,priority:2" json:"code"`
	Type                 ProgramType       `gorm:"type:text;not null" json:"type"`
	StampThreshold       int               `gorm:"not null;default:0" json:"stamp_threshold"`
	PointsConversionRate float64           `gorm:"not null;default:0" json:"points_conversion_rate"`
	DailyStampLimit      *int              `json:"daily_stamp_limit,omitempty"`
	MinTransactionAmount float64           `gorm:"not null;default:0" json:"min_transaction_amount"`
	IsActive             bool              `gorm:"not null;default:true" json:"is_active"`
	Expiration           *ExpirationPolicy `gorm:"embedded;embeddedPrefix:expiry_" json:"expiration,omitempty"`
	Metadata             datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt            time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt            time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (LoyaltyProgram) TableName() string { return "loyalty_programs" }

// Reward is an item customers redeem against a program's balance.
type Reward struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID         snowflake.ID `gorm:"not null;index" json:"organization_id"`
	ProgramID     snowflake.ID `gorm:"not null;index" json:"program_id"`
	Title         string       `gorm:"not null" json:"title"`
	Description   string       `json:"description,omitempty"`
	RequiredValue float64      `gorm:"not null" json:"required_value"`
	ValidFrom     *time.Time   `json:"valid_from,omitempty"`
	ValidTo       *time.Time   `json:"valid_to,omitempty"`
	IsActive      bool         `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Reward) TableName() string { return "rewards" }

// EligibleAt reports whether the reward can be redeemed at the given instant.
func (r Reward) EligibleAt(now time.Time) bool {
	if !r.IsActive {
		return false
	}
	if r.ValidFrom != nil && now.Before(*r.ValidFrom) {
		return false
	}
	if r.ValidTo != nil && now.After(*r.ValidTo) {
		return false
	}
	return true
}

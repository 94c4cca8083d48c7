package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/perkly/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListProgramFilter struct {
	BrandID  snowflake.ID
	Type     ProgramType
	IsActive *bool
}

type ListRewardFilter struct {
	IsActive *bool
}

// LedgerTotals aggregates a program's transaction ledger.
type LedgerTotals struct {
	StampsIssued    int64
	PointsAdded     float64
	RewardsRedeemed int64
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, program *LoyaltyProgram) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*LoyaltyProgram, error)
	FindByCode(ctx context.Context, db *gorm.DB, orgID snowflake.ID, code string) (*LoyaltyProgram, error)
	Update(ctx context.Context, db *gorm.DB, program *LoyaltyProgram) error
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListProgramFilter, page pagination.Pagination) ([]*LoyaltyProgram, error)

	InsertReward(ctx context.Context, db *gorm.DB, reward *Reward) error
	FindRewardByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Reward, error)
	UpdateReward(ctx context.Context, db *gorm.DB, reward *Reward) error
	ListRewards(ctx context.Context, db *gorm.DB, orgID, programID snowflake.ID, filter ListRewardFilter) ([]*Reward, error)

	CardStatusCounts(ctx context.Context, db *gorm.DB, orgID, programID snowflake.ID) (map[string]int64, error)
	LedgerTotals(ctx context.Context, db *gorm.DB, orgID, programID snowflake.ID) (LedgerTotals, error)
	RedemptionTimes(ctx context.Context, db *gorm.DB, orgID, programID snowflake.ID, since time.Time) ([]time.Time, error)
}

package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/perkly/pkg/db/pagination"
)

type CreateProgramRequest struct {
	BrandID              string
	Name                 string
	Type                 string
	StampThreshold       int
	PointsConversionRate float64
	DailyStampLimit      *int
	MinTransactionAmount float64
	Expiration           *ExpirationPolicy
}

// UpdateProgramRequest carries partial updates. Type is deliberately absent:
// a program's type is immutable after creation.
type UpdateProgramRequest struct {
	ID                   string
	Name                 *string
	StampThreshold       *int
	PointsConversionRate *float64
	DailyStampLimit      *int
	ClearDailyStampLimit bool
	MinTransactionAmount *float64
	IsActive             *bool
	Expiration           *ExpirationPolicy
	ClearExpiration      bool
}

type GetProgramRequest struct {
	ID string
}

type ListProgramRequest struct {
	PageToken string
	PageSize  int32
	BrandID   string
	Type      string
	IsActive  *bool
}

type ListProgramResponse struct {
	pagination.PageInfo
	Programs []LoyaltyProgram `json:"programs"`
}

type CreateRewardRequest struct {
	ProgramID     string
	Title         string
	Description   string
	RequiredValue float64
	ValidFrom     *time.Time
	ValidTo       *time.Time
}

type UpdateRewardRequest struct {
	ID            string
	Title         *string
	Description   *string
	RequiredValue *float64
	ValidFrom     *time.Time
	ValidTo       *time.Time
	IsActive      *bool
}

type ListRewardRequest struct {
	ProgramID string
	IsActive  *bool
}

// Analytics is a read-side aggregation over a program's cards and ledger.
type Analytics struct {
	ProgramID          string             `json:"program_id"`
	CardsByStatus      map[string]int64   `json:"cards_by_status"`
	StampsIssued       int64              `json:"stamps_issued"`
	PointsAdded        float64            `json:"points_added"`
	RewardsRedeemed    int64              `json:"rewards_redeemed"`
	RedemptionsByMonth []MonthlyRedemption `json:"redemptions_by_month"`
}

type MonthlyRedemption struct {
	Month string `json:"month"`
	Count int64  `json:"count"`
}

type GetAnalyticsRequest struct {
	ProgramID string
}

type Service interface {
	Create(context.Context, CreateProgramRequest) (LoyaltyProgram, error)
	Update(context.Context, UpdateProgramRequest) (LoyaltyProgram, error)
	GetByID(context.Context, GetProgramRequest) (LoyaltyProgram, error)
	List(context.Context, ListProgramRequest) (ListProgramResponse, error)

	CreateReward(context.Context, CreateRewardRequest) (Reward, error)
	UpdateReward(context.Context, UpdateRewardRequest) (Reward, error)
	ListRewards(context.Context, ListRewardRequest) ([]Reward, error)

	GetAnalytics(context.Context, GetAnalyticsRequest) (Analytics, error)
}

var (
	ErrInvalidOrganization  = errors.New("invalid_organization")
	ErrInvalidBrand         = errors.New("invalid_brand")
	ErrInvalidName          = errors.New("invalid_name")
	ErrInvalidType          = errors.New("invalid_type")
	ErrInvalidThreshold     = errors.New("invalid_threshold")
	ErrInvalidConversion    = errors.New("invalid_conversion_rate")
	ErrInvalidDailyLimit    = errors.New("invalid_daily_limit")
	ErrInvalidMinAmount     = errors.New("invalid_min_amount")
	ErrInvalidExpiration    = errors.New("invalid_expiration")
	ErrInvalidTitle         = errors.New("invalid_title")
	ErrInvalidRequiredValue = errors.New("invalid_required_value")
	ErrInvalidDateRange     = errors.New("invalid_date_range")
	ErrInvalidID            = errors.New("invalid_id")
	ErrCodeTaken            = errors.New("code_taken")
	ErrNotFound             = errors.New("not_found")
	ErrRewardNotFound       = errors.New("reward_not_found")
)

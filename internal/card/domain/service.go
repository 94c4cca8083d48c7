package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/perkly/pkg/db/pagination"
)

type IssueCardRequest struct {
	ProgramID  string
	CustomerID string
}

type GetCardRequest struct {
	ID string
}

type GetCardByQRCodeRequest struct {
	QRCode string
}

type ListCardRequest struct {
	PageToken  string
	PageSize   int32
	ProgramID  string
	CustomerID string
	Status     string
}

type ListCardResponse struct {
	pagination.PageInfo
	Cards []LoyaltyCard `json:"cards"`
}

type IssueStampsRequest struct {
	CardID  string
	Count   int
	Amount  float64
	StoreID string
	Note    string
}

type AddPointsRequest struct {
	CardID string
	// Points may be zero when Amount is set; the program's conversion rate
	// then derives the credit.
	Points  float64
	Amount  float64
	StoreID string
	Note    string
}

type RedeemRewardRequest struct {
	CardID   string
	RewardID string
	StoreID  string
}

type SuspendCardRequest struct {
	ID string
}

type ReactivateCardRequest struct {
	ID string
}

type ListTransactionRequest struct {
	CardID    string
	PageToken string
	PageSize  int32
	Type      string
}

type ListTransactionResponse struct {
	pagination.PageInfo
	Transactions []Transaction `json:"transactions"`
}

type Service interface {
	Issue(context.Context, IssueCardRequest) (LoyaltyCard, error)
	GetByID(context.Context, GetCardRequest) (LoyaltyCard, error)
	GetByQRCode(context.Context, GetCardByQRCodeRequest) (LoyaltyCard, error)
	List(context.Context, ListCardRequest) (ListCardResponse, error)

	IssueStamps(context.Context, IssueStampsRequest) (LoyaltyCard, error)
	AddPoints(context.Context, AddPointsRequest) (LoyaltyCard, error)
	RedeemReward(context.Context, RedeemRewardRequest) (LoyaltyCard, error)
	Suspend(context.Context, SuspendCardRequest) (LoyaltyCard, error)
	Reactivate(context.Context, ReactivateCardRequest) (LoyaltyCard, error)

	ListTransactions(context.Context, ListTransactionRequest) (ListTransactionResponse, error)

	// ExpireDue flips active cards whose expiry has passed. Returns how many
	// cards were expired. Called by the scheduler, not the HTTP surface.
	ExpireDue(ctx context.Context, limit int) (int, error)
}

var (
	ErrInvalidOrganization  = errors.New("invalid_organization")
	ErrInvalidID            = errors.New("invalid_id")
	ErrInvalidProgram       = errors.New("invalid_program")
	ErrInvalidCustomer      = errors.New("invalid_customer")
	ErrInvalidStore         = errors.New("invalid_store")
	ErrInvalidCount         = errors.New("invalid_count")
	ErrInvalidPoints        = errors.New("invalid_points")
	ErrInvalidQRCode        = errors.New("invalid_qr_code")
	ErrInvalidStatus        = errors.New("invalid_status")
	ErrInvalidRequiredValue = errors.New("invalid_required_value")
	ErrNotFound             = errors.New("not_found")
	ErrRewardNotFound       = errors.New("reward_not_found")
	ErrCardExists           = errors.New("card_exists")
	ErrCardNotActive        = errors.New("card_not_active")
	ErrCardNotSuspended     = errors.New("card_not_suspended")
	ErrCardExpired          = errors.New("card_expired")
	ErrProgramInactive      = errors.New("program_inactive")
	ErrInvalidOperation     = errors.New("invalid_operation")
	ErrAmountBelowMinimum   = errors.New("amount_below_minimum")
	ErrDailyLimitExceeded   = errors.New("daily_limit_exceeded")
	ErrInsufficientBalance  = errors.New("insufficient_balance")
	ErrRewardNotEligible    = errors.New("reward_not_eligible")
	ErrVersionConflict      = errors.New("version_conflict")
)

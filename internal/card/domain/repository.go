package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/perkly/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListCardFilter struct {
	ProgramID  snowflake.ID
	CustomerID snowflake.ID
	Status     CardStatus
}

type ListTransactionFilter struct {
	Type TransactionType
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, card *LoyaltyCard) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*LoyaltyCard, error)
	FindByQRCode(ctx context.Context, db *gorm.DB, orgID snowflake.ID, qrCode string) (*LoyaltyCard, error)
	FindByProgramAndCustomer(ctx context.Context, db *gorm.DB, orgID, programID, customerID snowflake.ID) (*LoyaltyCard, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListCardFilter, page pagination.Pagination) ([]*LoyaltyCard, error)

	// UpdateVersioned persists card iff the row still carries expectedVersion,
	// bumping the stored version by one. It reports false when another writer
	// got there first.
	UpdateVersioned(ctx context.Context, db *gorm.DB, card *LoyaltyCard, expectedVersion int64) (bool, error)

	InsertTransaction(ctx context.Context, db *gorm.DB, trx *Transaction) error
	ListTransactions(ctx context.Context, db *gorm.DB, orgID, cardID snowflake.ID, filter ListTransactionFilter, page pagination.Pagination) ([]*Transaction, error)
	SumStampsIssuedBetween(ctx context.Context, db *gorm.DB, orgID, cardID snowflake.ID, from, to time.Time) (int64, error)

	// FindExpirable returns active and suspended cards across all
	// organizations whose expires_at has passed. Used by the expiry sweep.
	FindExpirable(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]*LoyaltyCard, error)
}

package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/perkly/internal/card/domain"
	"github.com/smallbiznis/perkly/pkg/db/option"
	"github.com/smallbiznis/perkly/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, card *domain.LoyaltyCard) error {
	return db.WithContext(ctx).Create(card).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.LoyaltyCard, error) {
	var card domain.LoyaltyCard
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&card).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &card, nil
}

func (r *repo) FindByQRCode(ctx context.Context, db *gorm.DB, orgID snowflake.ID, qrCode string) (*domain.LoyaltyCard, error) {
	var card domain.LoyaltyCard
	err := db.WithContext(ctx).
		Where("org_id = ? AND qr_code = ?", orgID, qrCode).
		First(&card).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &card, nil
}

func (r *repo) FindByProgramAndCustomer(ctx context.Context, db *gorm.DB, orgID, programID, customerID snowflake.ID) (*domain.LoyaltyCard, error) {
	var card domain.LoyaltyCard
	err := db.WithContext(ctx).
		Where("org_id = ? AND program_id = ? AND customer_id = ?", orgID, programID, customerID).
		First(&card).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &card, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListCardFilter, page pagination.Pagination) ([]*domain.LoyaltyCard, error) {
	var cards []*domain.LoyaltyCard
	stmt := db.WithContext(ctx).
		Model(&domain.LoyaltyCard{}).
		Where("org_id = ?", orgID)
	if filter.ProgramID != 0 {
		stmt = stmt.Where("program_id = ?", filter.ProgramID)
	}
	if filter.CustomerID != 0 {
		stmt = stmt.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&cards).Error
	if err != nil {
		return nil, err
	}
	return cards, nil
}

func (r *repo) UpdateVersioned(ctx context.Context, db *gorm.DB, card *domain.LoyaltyCard, expectedVersion int64) (bool, error) {
	result := db.WithContext(ctx).
		Model(&domain.LoyaltyCard{}).
		Where("id = ? AND version = ?", card.ID, expectedVersion).
		Updates(map[string]any{
			"status":         card.Status,
			"stamp_count":    card.StampCount,
			"points_balance": card.PointsBalance,
			"version":        expectedVersion + 1,
			"updated_at":     card.UpdatedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	card.Version = expectedVersion + 1
	return true, nil
}

func (r *repo) InsertTransaction(ctx context.Context, db *gorm.DB, trx *domain.Transaction) error {
	return db.WithContext(ctx).Create(trx).Error
}

func (r *repo) ListTransactions(ctx context.Context, db *gorm.DB, orgID, cardID snowflake.ID, filter domain.ListTransactionFilter, page pagination.Pagination) ([]*domain.Transaction, error) {
	var trxs []*domain.Transaction
	stmt := db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("org_id = ? AND card_id = ?", orgID, cardID)
	if filter.Type != "" {
		stmt = stmt.Where("type = ?", filter.Type)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&trxs).Error
	if err != nil {
		return nil, err
	}
	return trxs, nil
}

func (r *repo) SumStampsIssuedBetween(ctx context.Context, db *gorm.DB, orgID, cardID snowflake.ID, from, to time.Time) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Select("coalesce(sum(stamp_count), 0)").
		Where("org_id = ? AND card_id = ? AND type = ? AND occurred_at >= ? AND occurred_at < ?",
			orgID, cardID, domain.TransactionStampIssued, from, to).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *repo) FindExpirable(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]*domain.LoyaltyCard, error) {
	if limit <= 0 {
		limit = 100
	}
	var cards []*domain.LoyaltyCard
	// Suspended cards expire on schedule too; only expired is terminal.
	err := db.WithContext(ctx).
		Model(&domain.LoyaltyCard{}).
		Where("status IN ? AND expires_at IS NOT NULL AND expires_at <= ?",
			[]domain.CardStatus{domain.CardStatusActive, domain.CardStatusSuspended}, now).
		Order("expires_at asc, id asc").
		Limit(limit).
		Find(&cards).Error
	if err != nil {
		return nil, err
	}
	return cards, nil
}

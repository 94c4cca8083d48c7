package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/perkly/internal/program/domain"
	"github.com/smallbiznis/perkly/pkg/db/option"
	"github.com/smallbiznis/perkly/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, program *domain.LoyaltyProgram) error {
	return db.WithContext(ctx).Create(program).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.LoyaltyProgram, error) {
	var program domain.LoyaltyProgram
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&program).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &program, nil
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, orgID snowflake.ID, code string) (*domain.LoyaltyProgram, error) {
	var program domain.LoyaltyProgram
	err := db.WithContext(ctx).
		Where("org_id = ? AND code = ?", orgID, code).
		First(&program).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &program, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, program *domain.LoyaltyProgram) error {
	values := map[string]any{
		"name":                   program.Name,
		"stamp_threshold":        program.StampThreshold,
		"points_conversion_rate": program.PointsConversionRate,
		"daily_stamp_limit":      program.DailyStampLimit,
		"min_transaction_amount": program.MinTransactionAmount,
		"is_active":              program.IsActive,
		"updated_at":             program.UpdatedAt,
	}
	if program.Expiration != nil {
		values["expiry_kind"] = program.Expiration.Kind
		values["expiry_period_unit"] = program.Expiration.PeriodUnit
		values["expiry_period_value"] = program.Expiration.PeriodValue
		values["expiry_day"] = program.Expiration.Day
		values["expiry_month"] = program.Expiration.Month
	} else {
		values["expiry_kind"] = nil
		values["expiry_period_unit"] = nil
		values["expiry_period_value"] = 0
		values["expiry_day"] = 0
		values["expiry_month"] = 0
	}
	return db.WithContext(ctx).
		Model(&domain.LoyaltyProgram{}).
		Where("org_id = ? AND id = ?", program.OrgID, program.ID).
		Updates(values).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListProgramFilter, page pagination.Pagination) ([]*domain.LoyaltyProgram, error) {
	var programs []*domain.LoyaltyProgram
	stmt := db.WithContext(ctx).
		Model(&domain.LoyaltyProgram{}).
		Where("org_id = ?", orgID)
	if filter.BrandID != 0 {
		stmt = stmt.Where("brand_id = ?", filter.BrandID)
	}
	if filter.Type != "" {
		stmt = stmt.Where("type = ?", filter.Type)
	}
	if filter.IsActive != nil {
		stmt = stmt.Where("is_active = ?", *filter.IsActive)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&programs).Error
	if err != nil {
		return nil, err
	}
	return programs, nil
}

func (r *repo) InsertReward(ctx context.Context, db *gorm.DB, reward *domain.Reward) error {
	return db.WithContext(ctx).Create(reward).Error
}

func (r *repo) FindRewardByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Reward, error) {
	var reward domain.Reward
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&reward).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &reward, nil
}

func (r *repo) UpdateReward(ctx context.Context, db *gorm.DB, reward *domain.Reward) error {
	return db.WithContext(ctx).
		Model(&domain.Reward{}).
		Where("org_id = ? AND id = ?", reward.OrgID, reward.ID).
		Updates(map[string]any{
			"title":          reward.Title,
			"description":    reward.Description,
			"required_value": reward.RequiredValue,
			"valid_from":     reward.ValidFrom,
			"valid_to":       reward.ValidTo,
			"is_active":      reward.IsActive,
			"updated_at":     reward.UpdatedAt,
		}).Error
}

func (r *repo) ListRewards(ctx context.Context, db *gorm.DB, orgID, programID snowflake.ID, filter domain.ListRewardFilter) ([]*domain.Reward, error) {
	var rewards []*domain.Reward
	stmt := db.WithContext(ctx).
		Model(&domain.Reward{}).
		Where("org_id = ? AND program_id = ?", orgID, programID)
	if filter.IsActive != nil {
		stmt = stmt.Where("is_active = ?", *filter.IsActive)
	}
	err := stmt.
		Order("created_at desc, id desc").
		Find(&rewards).Error
	if err != nil {
		return nil, err
	}
	return rewards, nil
}

func (r *repo) CardStatusCounts(ctx context.Context, db *gorm.DB, orgID, programID snowflake.ID) (map[string]int64, error) {
	var rows []struct {
		Status string
		Total  int64
	}
	err := db.WithContext(ctx).
		Table("loyalty_cards").
		Select("status, count(*) as total").
		Where("org_id = ? AND program_id = ?", orgID, programID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}

func (r *repo) LedgerTotals(ctx context.Context, db *gorm.DB, orgID, programID snowflake.ID) (domain.LedgerTotals, error) {
	var row struct {
		StampsIssued    int64
		PointsAdded     float64
		RewardsRedeemed int64
	}
	err := db.WithContext(ctx).
		Table("loyalty_transactions").
		Select(
			"coalesce(sum(case when type = ? then stamp_count else 0 end), 0) as stamps_issued, "+
				"coalesce(sum(case when type = ? then points_amount else 0 end), 0) as points_added, "+
				"coalesce(sum(case when type = ? then 1 else 0 end), 0) as rewards_redeemed",
			"stamp_issued", "points_added", "reward_redeemed",
		).
		Where("org_id = ? AND program_id = ?", orgID, programID).
		Scan(&row).Error
	if err != nil {
		return domain.LedgerTotals{}, err
	}
	return domain.LedgerTotals{
		StampsIssued:    row.StampsIssued,
		PointsAdded:     row.PointsAdded,
		RewardsRedeemed: row.RewardsRedeemed,
	}, nil
}

func (r *repo) RedemptionTimes(ctx context.Context, db *gorm.DB, orgID, programID snowflake.ID, since time.Time) ([]time.Time, error) {
	var times []time.Time
	err := db.WithContext(ctx).
		Table("loyalty_transactions").
		Where("org_id = ? AND program_id = ? AND type = ? AND occurred_at >= ?", orgID, programID, "reward_redeemed", since).
		Order("occurred_at asc").
		Pluck("occurred_at", &times).Error
	if err != nil {
		return nil, err
	}
	return times, nil
}

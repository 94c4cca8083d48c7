package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/perkly/internal/store/domain"
	"github.com/smallbiznis/perkly/pkg/db/option"
	"github.com/smallbiznis/perkly/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, store *domain.Store) error {
	return db.WithContext(ctx).Create(store).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Store, error) {
	var store domain.Store
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&store).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &store, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, store *domain.Store) error {
	return db.WithContext(ctx).
		Model(&domain.Store{}).
		Where("org_id = ? AND id = ?", store.OrgID, store.ID).
		Updates(map[string]any{
			"name":       store.Name,
			"address":    store.Address,
			"city":       store.City,
			"country":    store.Country,
			"phone":      store.Phone,
			"is_active":  store.IsActive,
			"updated_at": store.UpdatedAt,
		}).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListStoreFilter, page pagination.Pagination) ([]*domain.Store, error) {
	var stores []*domain.Store
	stmt := db.WithContext(ctx).
		Model(&domain.Store{}).
		Where("org_id = ?", orgID)
	if filter.BrandID != 0 {
		stmt = stmt.Where("brand_id = ?", filter.BrandID)
	}
	if filter.Name != "" {
		stmt = stmt.Where("name = ?", filter.Name)
	}
	if filter.City != "" {
		stmt = stmt.Where("city = ?", filter.City)
	}
	if filter.IsActive != nil {
		stmt = stmt.Where("is_active = ?", *filter.IsActive)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&stores).Error
	if err != nil {
		return nil, err
	}
	return stores, nil
}

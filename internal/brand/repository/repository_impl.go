package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/perkly/internal/brand/domain"
	"github.com/smallbiznis/perkly/pkg/db/option"
	"github.com/smallbiznis/perkly/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, brand *domain.Brand) error {
	return db.WithContext(ctx).Create(brand).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Brand, error) {
	var brand domain.Brand
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&brand).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &brand, nil
}

func (r *repo) FindBySlug(ctx context.Context, db *gorm.DB, orgID snowflake.ID, slug string) (*domain.Brand, error) {
	var brand domain.Brand
	err := db.WithContext(ctx).
		Where("org_id = ? AND slug = ?", orgID, slug).
		First(&brand).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &brand, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, brand *domain.Brand) error {
	return db.WithContext(ctx).
		Model(&domain.Brand{}).
		Where("org_id = ? AND id = ?", brand.OrgID, brand.ID).
		Updates(map[string]any{
			"name":        brand.Name,
			"description": brand.Description,
			"logo_url":    brand.LogoURL,
			"is_active":   brand.IsActive,
			"updated_at":  brand.UpdatedAt,
		}).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListBrandFilter, page pagination.Pagination) ([]*domain.Brand, error) {
	var brands []*domain.Brand
	stmt := db.WithContext(ctx).
		Model(&domain.Brand{}).
		Where("org_id = ?", orgID)
	if filter.Name != "" {
		stmt = stmt.Where("name = ?", filter.Name)
	}
	if filter.Slug != "" {
		stmt = stmt.Where("slug = ?", filter.Slug)
	}
	if filter.IsActive != nil {
		stmt = stmt.Where("is_active = ?", *filter.IsActive)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&brands).Error
	if err != nil {
		return nil, err
	}
	return brands, nil
}

package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/perkly/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListBrandFilter struct {
	Name     string
	Slug     string
	IsActive *bool
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, brand *Brand) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Brand, error)
	FindBySlug(ctx context.Context, db *gorm.DB, orgID snowflake.ID, slug string) (*Brand, error)
	Update(ctx context.Context, db *gorm.DB, brand *Brand) error
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListBrandFilter, page pagination.Pagination) ([]*Brand, error)
}

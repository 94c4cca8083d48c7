package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/perkly/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListStoreFilter struct {
	BrandID  snowflake.ID
	Name     string
	City     string
	IsActive *bool
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, store *Store) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Store, error)
	Update(ctx context.Context, db *gorm.DB, store *Store) error
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListStoreFilter, page pagination.Pagination) ([]*Store, error)
}

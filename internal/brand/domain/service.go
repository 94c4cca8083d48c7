package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/perkly/pkg/db/pagination"
)

type CreateBrandRequest struct {
	Name        string
	Description string
	LogoURL     string
}

type UpdateBrandRequest struct {
	ID          string
	Name        *string
	Description *string
	LogoURL     *string
	IsActive    *bool
}

type GetBrandRequest struct {
	ID string
}

type ListBrandRequest struct {
	PageToken string
	PageSize  int32
	Name      string
	Slug      string
	IsActive  *bool
}

type ListBrandResponse struct {
	pagination.PageInfo
	Brands []Brand `json:"brands"`
}

type Service interface {
	Create(context.Context, CreateBrandRequest) (Brand, error)
	Update(context.Context, UpdateBrandRequest) (Brand, error)
	GetByID(context.Context, GetBrandRequest) (Brand, error)
	List(context.Context, ListBrandRequest) (ListBrandResponse, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidID           = errors.New("invalid_id")
	ErrSlugTaken           = errors.New("slug_taken")
	ErrNotFound            = errors.New("not_found")
)

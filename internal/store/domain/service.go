package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/perkly/pkg/db/pagination"
)

type CreateStoreRequest struct {
	BrandID string
	Name    string
	Address string
	City    string
	Country string
	Phone   string
}

type UpdateStoreRequest struct {
	ID       string
	Name     *string
	Address  *string
	City     *string
	Country  *string
	Phone    *string
	IsActive *bool
}

type GetStoreRequest struct {
	ID string
}

type ListStoreRequest struct {
	PageToken string
	PageSize  int32
	BrandID   string
	Name      string
	City      string
	IsActive  *bool
}

type ListStoreResponse struct {
	pagination.PageInfo
	Stores []Store `json:"stores"`
}

type Service interface {
	Create(context.Context, CreateStoreRequest) (Store, error)
	Update(context.Context, UpdateStoreRequest) (Store, error)
	GetByID(context.Context, GetStoreRequest) (Store, error)
	List(context.Context, ListStoreRequest) (ListStoreResponse, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidBrand        = errors.New("invalid_brand")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidID           = errors.New("invalid_id")
	ErrNotFound            = errors.New("not_found")
)

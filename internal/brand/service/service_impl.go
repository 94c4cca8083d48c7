package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/perkly/internal/brand/domain"
	"github.com/smallbiznis/perkly/internal/orgcontext"
	"github.com/smallbiznis/perkly/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("brand.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateBrandRequest) (domain.Brand, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.Brand{}, domain.ErrInvalidOrganization
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Brand{}, domain.ErrInvalidName
	}

	brandSlug := slug.Make(name)
	existing, err := s.repo.FindBySlug(ctx, s.db, orgID, brandSlug)
	if err != nil {
		return domain.Brand{}, err
	}
	if existing != nil {
		return domain.Brand{}, domain.ErrSlugTaken
	}

	now := time.Now().UTC()
	brand := domain.Brand{
		ID:          s.genID.Generate(),
		OrgID:       orgID,
		Name:        name,
		Slug:        brandSlug,
		Description: strings.TrimSpace(req.Description),
		LogoURL:     strings.TrimSpace(req.LogoURL),
		IsActive:    true,
		Metadata:    datatypes.JSONMap{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Insert(ctx, s.db, &brand); err != nil {
		return domain.Brand{}, err
	}

	return brand, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateBrandRequest) (domain.Brand, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.Brand{}, domain.ErrInvalidOrganization
	}

	id, err := s.parseID(req.ID)
	if err != nil {
		return domain.Brand{}, err
	}

	brand, err := s.repo.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return domain.Brand{}, err
	}
	if brand == nil {
		return domain.Brand{}, domain.ErrNotFound
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Brand{}, domain.ErrInvalidName
		}
		brand.Name = name
	}
	if req.Description != nil {
		brand.Description = strings.TrimSpace(*req.Description)
	}
	if req.LogoURL != nil {
		brand.LogoURL = strings.TrimSpace(*req.LogoURL)
	}
	if req.IsActive != nil {
		brand.IsActive = *req.IsActive
	}
	brand.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, s.db, brand); err != nil {
		return domain.Brand{}, err
	}

	return *brand, nil
}

func (s *Service) GetByID(ctx context.Context, req domain.GetBrandRequest) (domain.Brand, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.Brand{}, domain.ErrInvalidOrganization
	}

	id, err := s.parseID(req.ID)
	if err != nil {
		return domain.Brand{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return domain.Brand{}, err
	}
	if item == nil {
		return domain.Brand{}, domain.ErrNotFound
	}

	return *item, nil
}

func (s *Service) List(ctx context.Context, req domain.ListBrandRequest) (domain.ListBrandResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.ListBrandResponse{}, domain.ErrInvalidOrganization
	}

	filter := domain.ListBrandFilter{
		Name:     strings.TrimSpace(req.Name),
		Slug:     strings.TrimSpace(req.Slug),
		IsActive: req.IsActive,
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.List(ctx, s.db, orgID, filter, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.ListBrandResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(brand *domain.Brand) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        brand.ID.String(),
			CreatedAt: brand.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	brands := make([]domain.Brand, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		brands = append(brands, *item)
	}

	resp := domain.ListBrandResponse{Brands: brands}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}

	return resp, nil
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	branddomain "github.com/smallbiznis/perkly/internal/brand/domain"
	"github.com/smallbiznis/perkly/internal/orgcontext"
	"github.com/smallbiznis/perkly/internal/store/domain"
	"github.com/smallbiznis/perkly/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      domain.Repository
	BrandRepo branddomain.Repository
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	repo      domain.Repository
	brandRepo branddomain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("store.service"),
		genID:     p.GenID,
		repo:      p.Repo,
		brandRepo: p.BrandRepo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateStoreRequest) (domain.Store, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.Store{}, domain.ErrInvalidOrganization
	}

	brandID, err := snowflake.ParseString(strings.TrimSpace(req.BrandID))
	if err != nil || brandID == 0 {
		return domain.Store{}, domain.ErrInvalidBrand
	}
	brand, err := s.brandRepo.FindByID(ctx, s.db, orgID, brandID)
	if err != nil {
		return domain.Store{}, err
	}
	if brand == nil {
		return domain.Store{}, domain.ErrInvalidBrand
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Store{}, domain.ErrInvalidName
	}

	now := time.Now().UTC()
	store := domain.Store{
		ID:        s.genID.Generate(),
		OrgID:     orgID,
		BrandID:   brandID,
		Name:      name,
		Address:   strings.TrimSpace(req.Address),
		City:      strings.TrimSpace(req.City),
		Country:   strings.TrimSpace(req.Country),
		Phone:     strings.TrimSpace(req.Phone),
		IsActive:  true,
		Metadata:  datatypes.JSONMap{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Insert(ctx, s.db, &store); err != nil {
		return domain.Store{}, err
	}

	return store, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateStoreRequest) (domain.Store, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.Store{}, domain.ErrInvalidOrganization
	}

	id, err := s.parseID(req.ID)
	if err != nil {
		return domain.Store{}, err
	}

	store, err := s.repo.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return domain.Store{}, err
	}
	if store == nil {
		return domain.Store{}, domain.ErrNotFound
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Store{}, domain.ErrInvalidName
		}
		store.Name = name
	}
	if req.Address != nil {
		store.Address = strings.TrimSpace(*req.Address)
	}
	if req.City != nil {
		store.City = strings.TrimSpace(*req.City)
	}
	if req.Country != nil {
		store.Country = strings.TrimSpace(*req.Country)
	}
	if req.Phone != nil {
		store.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.IsActive != nil {
		store.IsActive = *req.IsActive
	}
	store.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, s.db, store); err != nil {
		return domain.Store{}, err
	}

	return *store, nil
}

func (s *Service) GetByID(ctx context.Context, req domain.GetStoreRequest) (domain.Store, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.Store{}, domain.ErrInvalidOrganization
	}

	id, err := s.parseID(req.ID)
	if err != nil {
		return domain.Store{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return domain.Store{}, err
	}
	if item == nil {
		return domain.Store{}, domain.ErrNotFound
	}

	return *item, nil
}

func (s *Service) List(ctx context.Context, req domain.ListStoreRequest) (domain.ListStoreResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.ListStoreResponse{}, domain.ErrInvalidOrganization
	}

	filter := domain.ListStoreFilter{
		Name:     strings.TrimSpace(req.Name),
		City:     strings.TrimSpace(req.City),
		IsActive: req.IsActive,
	}
	if raw := strings.TrimSpace(req.BrandID); raw != "" {
		brandID, err := snowflake.ParseString(raw)
		if err != nil || brandID == 0 {
			return domain.ListStoreResponse{}, domain.ErrInvalidBrand
		}
		filter.BrandID = brandID
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
		return domain.ListStoreResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(store *domain.Store) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        store.ID.String(),
			CreatedAt: store.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	stores := make([]domain.Store, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		stores = append(stores, *item)
	}

	resp := domain.ListStoreResponse{Stores: stores}
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

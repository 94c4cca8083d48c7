package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/perkly/internal/clock"
	"github.com/smallbiznis/perkly/internal/config"
	"github.com/smallbiznis/perkly/internal/orgcontext"
	branddomain "github.com/smallbiznis/perkly/internal/brand/domain"
	"github.com/smallbiznis/perkly/internal/program/domain"
	"github.com/smallbiznis/perkly/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Brands  branddomain.Repository
	Loyalty *config.LoyaltyConfigHolder `optional:"true"`
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	brands  branddomain.Repository
	loyalty *config.LoyaltyConfigHolder
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("program.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		brands:  p.Brands,
		loyalty: p.Loyalty,
	}
}

// maxDailyStampLimit is the operator-tunable ceiling on a program's
// configured daily stamp limit.
func (s *Service) maxDailyStampLimit() int {
	if s.loyalty == nil {
		return config.DefaultLoyaltyConfig().MaxDailyStampLimit
	}
	return s.loyalty.Get().MaxDailyStampLimit
}

func (s *Service) Create(ctx context.Context, req domain.CreateProgramRequest) (domain.LoyaltyProgram, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.LoyaltyProgram{}, domain.ErrInvalidOrganization
	}

	brandID, err := snowflake.ParseString(strings.TrimSpace(req.BrandID))
	if err != nil || brandID == 0 {
		return domain.LoyaltyProgram{}, domain.ErrInvalidBrand
	}
	brand, err := s.brands.FindByID(ctx, s.db, orgID, brandID)
	if err != nil {
		return domain.LoyaltyProgram{}, err
	}
	if brand == nil {
		return domain.LoyaltyProgram{}, domain.ErrInvalidBrand
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.LoyaltyProgram{}, domain.ErrInvalidName
	}

	programType := domain.ProgramType(strings.TrimSpace(req.Type))
	if !programType.Valid() {
		return domain.LoyaltyProgram{}, domain.ErrInvalidType
	}

	if programType == domain.ProgramTypeStamp && req.StampThreshold <= 0 {
		return domain.LoyaltyProgram{}, domain.ErrInvalidThreshold
	}
	if programType == domain.ProgramTypePoints && req.PointsConversionRate < 0 {
		return domain.LoyaltyProgram{}, domain.ErrInvalidConversion
	}
	if req.DailyStampLimit != nil && (*req.DailyStampLimit <= 0 || *req.DailyStampLimit > s.maxDailyStampLimit()) {
		return domain.LoyaltyProgram{}, domain.ErrInvalidDailyLimit
	}
	if req.MinTransactionAmount < 0 {
		return domain.LoyaltyProgram{}, domain.ErrInvalidMinAmount
	}
	if req.Expiration != nil {
		if err := req.Expiration.Validate(); err != nil {
			return domain.LoyaltyProgram{}, err
		}
	}

	code := slug.Make(name)
	existing, err := s.repo.FindByCode(ctx, s.db, orgID, code)
	if err != nil {
		return domain.LoyaltyProgram{}, err
	}
	if existing != nil {
		return domain.LoyaltyProgram{}, domain.ErrCodeTaken
	}

	now := s.clock.Now()
	program := domain.LoyaltyProgram{
		ID:                   s.genID.Generate(),
		OrgID:                orgID,
		BrandID:              brandID,
		Name:                 name,
		Code:                 code,
		Type:                 programType,
		StampThreshold:       req.StampThreshold,
		PointsConversionRate: req.PointsConversionRate,
		DailyStampLimit:      req.DailyStampLimit,
		MinTransactionAmount: req.MinTransactionAmount,
		IsActive:             true,
		Expiration:           req.Expiration,
		Metadata:             datatypes.JSONMap{},
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := s.repo.Insert(ctx, s.db, &program); err != nil {
		return domain.LoyaltyProgram{}, err
	}

	return program, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateProgramRequest) (domain.LoyaltyProgram, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.LoyaltyProgram{}, domain.ErrInvalidOrganization
	}

	id, err := s.parseID(req.ID)
	if err != nil {
		return domain.LoyaltyProgram{}, err
	}

	program, err := s.repo.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return domain.LoyaltyProgram{}, err
	}
	if program == nil {
		return domain.LoyaltyProgram{}, domain.ErrNotFound
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.LoyaltyProgram{}, domain.ErrInvalidName
		}
		program.Name = name
	}
	if req.StampThreshold != nil {
		if *req.StampThreshold <= 0 {
			return domain.LoyaltyProgram{}, domain.ErrInvalidThreshold
		}
		program.StampThreshold = *req.StampThreshold
	}
	if req.PointsConversionRate != nil {
		if *req.PointsConversionRate < 0 {
			return domain.LoyaltyProgram{}, domain.ErrInvalidConversion
		}
		program.PointsConversionRate = *req.PointsConversionRate
	}
	if req.ClearDailyStampLimit {
		program.DailyStampLimit = nil
	} else if req.DailyStampLimit != nil {
		if *req.DailyStampLimit <= 0 || *req.DailyStampLimit > s.maxDailyStampLimit() {
			return domain.LoyaltyProgram{}, domain.ErrInvalidDailyLimit
		}
		program.DailyStampLimit = req.DailyStampLimit
	}
	if req.MinTransactionAmount != nil {
		if *req.MinTransactionAmount < 0 {
			return domain.LoyaltyProgram{}, domain.ErrInvalidMinAmount
		}
		program.MinTransactionAmount = *req.MinTransactionAmount
	}
	if req.IsActive != nil {
		program.IsActive = *req.IsActive
	}
	if req.ClearExpiration {
		program.Expiration = nil
	} else if req.Expiration != nil {
		if err := req.Expiration.Validate(); err != nil {
			return domain.LoyaltyProgram{}, err
		}
		program.Expiration = req.Expiration
	}
	program.UpdatedAt = s.clock.Now()

	if err := s.repo.Update(ctx, s.db, program); err != nil {
		return domain.LoyaltyProgram{}, err
	}

	return *program, nil
}

func (s *Service) GetByID(ctx context.Context, req domain.GetProgramRequest) (domain.LoyaltyProgram, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.LoyaltyProgram{}, domain.ErrInvalidOrganization
	}

	id, err := s.parseID(req.ID)
	if err != nil {
		return domain.LoyaltyProgram{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return domain.LoyaltyProgram{}, err
	}
	if item == nil {
		return domain.LoyaltyProgram{}, domain.ErrNotFound
	}

	return *item, nil
}

func (s *Service) List(ctx context.Context, req domain.ListProgramRequest) (domain.ListProgramResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.ListProgramResponse{}, domain.ErrInvalidOrganization
	}

	filter := domain.ListProgramFilter{
		Type:     domain.ProgramType(strings.TrimSpace(req.Type)),
		IsActive: req.IsActive,
	}
	if brandID := strings.TrimSpace(req.BrandID); brandID != "" {
		id, err := snowflake.ParseString(brandID)
		if err != nil {
			return domain.ListProgramResponse{}, domain.ErrInvalidBrand
		}
		filter.BrandID = id
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return domain.ListProgramResponse{}, domain.ErrInvalidType
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
		return domain.ListProgramResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(program *domain.LoyaltyProgram) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        program.ID.String(),
			CreatedAt: program.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	programs := make([]domain.LoyaltyProgram, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		programs = append(programs, *item)
	}

	resp := domain.ListProgramResponse{Programs: programs}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}

	return resp, nil
}

func (s *Service) CreateReward(ctx context.Context, req domain.CreateRewardRequest) (domain.Reward, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.Reward{}, domain.ErrInvalidOrganization
	}

	programID, err := s.parseID(req.ProgramID)
	if err != nil {
		return domain.Reward{}, err
	}
	program, err := s.repo.FindByID(ctx, s.db, orgID, programID)
	if err != nil {
		return domain.Reward{}, err
	}
	if program == nil {
		return domain.Reward{}, domain.ErrNotFound
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return domain.Reward{}, domain.ErrInvalidTitle
	}
	if err := validateRequiredValue(program.Type, req.RequiredValue); err != nil {
		return domain.Reward{}, err
	}
	if req.ValidFrom != nil && req.ValidTo != nil && req.ValidTo.Before(*req.ValidFrom) {
		return domain.Reward{}, domain.ErrInvalidDateRange
	}

	now := s.clock.Now()
	reward := domain.Reward{
		ID:            s.genID.Generate(),
		OrgID:         orgID,
		ProgramID:     programID,
		Title:         title,
		Description:   strings.TrimSpace(req.Description),
		RequiredValue: req.RequiredValue,
		ValidFrom:     req.ValidFrom,
		ValidTo:       req.ValidTo,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.InsertReward(ctx, s.db, &reward); err != nil {
		return domain.Reward{}, err
	}

	return reward, nil
}

func (s *Service) UpdateReward(ctx context.Context, req domain.UpdateRewardRequest) (domain.Reward, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.Reward{}, domain.ErrInvalidOrganization
	}

	id, err := s.parseID(req.ID)
	if err != nil {
		return domain.Reward{}, err
	}

	reward, err := s.repo.FindRewardByID(ctx, s.db, orgID, id)
	if err != nil {
		return domain.Reward{}, err
	}
	if reward == nil {
		return domain.Reward{}, domain.ErrRewardNotFound
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return domain.Reward{}, domain.ErrInvalidTitle
		}
		reward.Title = title
	}
	if req.Description != nil {
		reward.Description = strings.TrimSpace(*req.Description)
	}
	if req.RequiredValue != nil {
		program, err := s.repo.FindByID(ctx, s.db, orgID, reward.ProgramID)
		if err != nil {
			return domain.Reward{}, err
		}
		if program == nil {
			return domain.Reward{}, domain.ErrNotFound
		}
		if err := validateRequiredValue(program.Type, *req.RequiredValue); err != nil {
			return domain.Reward{}, err
		}
		reward.RequiredValue = *req.RequiredValue
	}
	if req.ValidFrom != nil {
		reward.ValidFrom = req.ValidFrom
	}
	if req.ValidTo != nil {
		reward.ValidTo = req.ValidTo
	}
	if reward.ValidFrom != nil && reward.ValidTo != nil && reward.ValidTo.Before(*reward.ValidFrom) {
		return domain.Reward{}, domain.ErrInvalidDateRange
	}
	if req.IsActive != nil {
		reward.IsActive = *req.IsActive
	}
	reward.UpdatedAt = s.clock.Now()

	if err := s.repo.UpdateReward(ctx, s.db, reward); err != nil {
		return domain.Reward{}, err
	}

	return *reward, nil
}

func (s *Service) ListRewards(ctx context.Context, req domain.ListRewardRequest) ([]domain.Reward, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}

	programID, err := s.parseID(req.ProgramID)
	if err != nil {
		return nil, err
	}

	items, err := s.repo.ListRewards(ctx, s.db, orgID, programID, domain.ListRewardFilter{
		IsActive: req.IsActive,
	})
	if err != nil {
		return nil, err
	}

	rewards := make([]domain.Reward, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		rewards = append(rewards, *item)
	}
	return rewards, nil
}

func (s *Service) GetAnalytics(ctx context.Context, req domain.GetAnalyticsRequest) (domain.Analytics, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.Analytics{}, domain.ErrInvalidOrganization
	}

	programID, err := s.parseID(req.ProgramID)
	if err != nil {
		return domain.Analytics{}, err
	}
	program, err := s.repo.FindByID(ctx, s.db, orgID, programID)
	if err != nil {
		return domain.Analytics{}, err
	}
	if program == nil {
		return domain.Analytics{}, domain.ErrNotFound
	}

	counts, err := s.repo.CardStatusCounts(ctx, s.db, orgID, programID)
	if err != nil {
		return domain.Analytics{}, err
	}
	totals, err := s.repo.LedgerTotals(ctx, s.db, orgID, programID)
	if err != nil {
		return domain.Analytics{}, err
	}

	now := s.clock.Now()
	since := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -11, 0)
	redemptions, err := s.repo.RedemptionTimes(ctx, s.db, orgID, programID, since)
	if err != nil {
		return domain.Analytics{}, err
	}

	// Bucket in Go rather than SQL so the grouping works on every dialect.
	byMonth := make(map[string]int64, 12)
	for _, occurred := range redemptions {
		byMonth[occurred.UTC().Format("2006-01")]++
	}
	monthly := make([]domain.MonthlyRedemption, 0, 12)
	for cursor := since; !cursor.After(now); cursor = cursor.AddDate(0, 1, 0) {
		month := cursor.Format("2006-01")
		monthly = append(monthly, domain.MonthlyRedemption{Month: month, Count: byMonth[month]})
	}

	return domain.Analytics{
		ProgramID:          programID.String(),
		CardsByStatus:      counts,
		StampsIssued:       totals.StampsIssued,
		PointsAdded:        totals.PointsAdded,
		RewardsRedeemed:    totals.RewardsRedeemed,
		RedemptionsByMonth: monthly,
	}, nil
}

// validateRequiredValue rejects prices a redemption could never pay: the
// value must be positive, and stamp cards pay with whole stamps.
func validateRequiredValue(programType domain.ProgramType, value float64) error {
	if value <= 0 {
		return domain.ErrInvalidRequiredValue
	}
	if programType == domain.ProgramTypeStamp && float64(int(value)) != value {
		return domain.ErrInvalidRequiredValue
	}
	return nil
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

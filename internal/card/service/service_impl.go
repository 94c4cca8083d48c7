package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/perkly/internal/card/domain"
	"github.com/smallbiznis/perkly/internal/clock"
	customerdomain "github.com/smallbiznis/perkly/internal/customer/domain"
	"github.com/smallbiznis/perkly/internal/events"
	"github.com/smallbiznis/perkly/internal/observability/metrics"
	"github.com/smallbiznis/perkly/internal/orgcontext"
	programdomain "github.com/smallbiznis/perkly/internal/program/domain"
	"github.com/smallbiznis/perkly/internal/ratelimit"
	storedomain "github.com/smallbiznis/perkly/internal/store/domain"
	"github.com/smallbiznis/perkly/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// maxMutationAttempts bounds the optimistic retry loop on version conflicts.
const maxMutationAttempts = 3

// errConflict signals a lost version race inside a mutation transaction so
// the loop can roll back and retry from a fresh read.
var errConflict = errors.New("card_version_race")

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Programs  programdomain.Repository
	Customers customerdomain.Repository
	Stores    storedomain.Repository
	Outbox    *events.Outbox
	Locker    *ratelimit.Locker `optional:"true"`
	Metrics   *metrics.Metrics  `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	programs  programdomain.Repository
	customers customerdomain.Repository
	stores    storedomain.Repository
	outbox    *events.Outbox
	locker    *ratelimit.Locker
	metrics   *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("card.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		programs:  p.Programs,
		customers: p.Customers,
		stores:    p.Stores,
		outbox:    p.Outbox,
		locker:    p.Locker,
		metrics:   p.Metrics,
	}
}

func (s *Service) Issue(ctx context.Context, req domain.IssueCardRequest) (domain.LoyaltyCard, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.LoyaltyCard{}, domain.ErrInvalidOrganization
	}

	programID, err := snowflake.ParseString(strings.TrimSpace(req.ProgramID))
	if err != nil || programID == 0 {
		return domain.LoyaltyCard{}, domain.ErrInvalidProgram
	}
	customerID, err := snowflake.ParseString(strings.TrimSpace(req.CustomerID))
	if err != nil || customerID == 0 {
		return domain.LoyaltyCard{}, domain.ErrInvalidCustomer
	}

	program, err := s.programs.FindByID(ctx, s.db, orgID, programID)
	if err != nil {
		return domain.LoyaltyCard{}, err
	}
	if program == nil {
		return domain.LoyaltyCard{}, domain.ErrInvalidProgram
	}
	if !program.IsActive {
		return domain.LoyaltyCard{}, domain.ErrProgramInactive
	}

	customer, err := s.customers.FindByID(ctx, s.db, orgID, customerID)
	if err != nil {
		return domain.LoyaltyCard{}, err
	}
	if customer == nil {
		return domain.LoyaltyCard{}, domain.ErrInvalidCustomer
	}

	existing, err := s.repo.FindByProgramAndCustomer(ctx, s.db, orgID, programID, customerID)
	if err != nil {
		return domain.LoyaltyCard{}, err
	}
	if existing != nil {
		return domain.LoyaltyCard{}, domain.ErrCardExists
	}

	now := s.clock.Now()
	var expiresAt *time.Time
	if program.Expiration != nil {
		expiry := program.Expiration.ExpiresAt(now)
		expiresAt = &expiry
	}

	card := domain.LoyaltyCard{
		ID:         s.genID.Generate(),
		OrgID:      orgID,
		ProgramID:  programID,
		CustomerID: customerID,
		QRCode:     ulid.Make().String(),
		Status:     domain.CardStatusActive,
		Version:    0,
		IssuedAt:   now,
		ExpiresAt:  expiresAt,
		Metadata:   datatypes.JSONMap{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &card); err != nil {
			return err
		}
		return s.outbox.Publish(ctx, tx, events.Event{
			OrgID: orgID,
			Type:  events.EventCardCreated,
			Payload: map[string]any{
				"card_id":     card.ID.String(),
				"program_id":  programID.String(),
				"customer_id": customerID.String(),
				"issued_at":   now.Format(time.RFC3339),
			},
		})
	})
	if err != nil {
		return domain.LoyaltyCard{}, err
	}

	return card, nil
}

func (s *Service) GetByID(ctx context.Context, req domain.GetCardRequest) (domain.LoyaltyCard, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.LoyaltyCard{}, domain.ErrInvalidOrganization
	}

	id, err := s.parseID(req.ID)
	if err != nil {
		return domain.LoyaltyCard{}, err
	}

	card, err := s.repo.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return domain.LoyaltyCard{}, err
	}
	if card == nil {
		return domain.LoyaltyCard{}, domain.ErrNotFound
	}
	return *card, nil
}

func (s *Service) GetByQRCode(ctx context.Context, req domain.GetCardByQRCodeRequest) (domain.LoyaltyCard, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.LoyaltyCard{}, domain.ErrInvalidOrganization
	}

	qrCode := strings.TrimSpace(req.QRCode)
	if qrCode == "" {
		return domain.LoyaltyCard{}, domain.ErrInvalidQRCode
	}

	card, err := s.repo.FindByQRCode(ctx, s.db, orgID, qrCode)
	if err != nil {
		return domain.LoyaltyCard{}, err
	}
	if card == nil {
		return domain.LoyaltyCard{}, domain.ErrNotFound
	}
	return *card, nil
}

func (s *Service) List(ctx context.Context, req domain.ListCardRequest) (domain.ListCardResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.ListCardResponse{}, domain.ErrInvalidOrganization
	}

	filter := domain.ListCardFilter{}
	if value := strings.TrimSpace(req.ProgramID); value != "" {
		id, err := snowflake.ParseString(value)
		if err != nil {
			return domain.ListCardResponse{}, domain.ErrInvalidProgram
		}
		filter.ProgramID = id
	}
	if value := strings.TrimSpace(req.CustomerID); value != "" {
		id, err := snowflake.ParseString(value)
		if err != nil {
			return domain.ListCardResponse{}, domain.ErrInvalidCustomer
		}
		filter.CustomerID = id
	}
	if value := strings.TrimSpace(req.Status); value != "" {
		status := domain.CardStatus(value)
		switch status {
		case domain.CardStatusActive, domain.CardStatusSuspended, domain.CardStatusExpired:
			filter.Status = status
		default:
			return domain.ListCardResponse{}, domain.ErrInvalidStatus
		}
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
		return domain.ListCardResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(card *domain.LoyaltyCard) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        card.ID.String(),
			CreatedAt: card.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	cards := make([]domain.LoyaltyCard, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		cards = append(cards, *item)
	}

	resp := domain.ListCardResponse{Cards: cards}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) IssueStamps(ctx context.Context, req domain.IssueStampsRequest) (domain.LoyaltyCard, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.LoyaltyCard{}, domain.ErrInvalidOrganization
	}

	cardID, err := s.parseID(req.CardID)
	if err != nil {
		return domain.LoyaltyCard{}, err
	}
	if req.Count <= 0 {
		return domain.LoyaltyCard{}, domain.ErrInvalidCount
	}
	storeID, err := s.resolveStore(ctx, orgID, req.StoreID)
	if err != nil {
		return domain.LoyaltyCard{}, err
	}

	card, err := s.mutate(ctx, orgID, cardID, func(tx *gorm.DB, card *domain.LoyaltyCard, program *programdomain.LoyaltyProgram) (*domain.Transaction, *events.Event, error) {
		if !program.IsActive {
			return nil, nil, domain.ErrProgramInactive
		}
		if program.MinTransactionAmount > 0 && req.Amount < program.MinTransactionAmount {
			return nil, nil, domain.ErrAmountBelowMinimum
		}

		now := s.clock.Now()
		if program.DailyStampLimit != nil {
			// The daily window is a UTC calendar day.
			dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
			issued, err := s.repo.SumStampsIssuedBetween(ctx, tx, orgID, card.ID, dayStart, dayStart.AddDate(0, 0, 1))
			if err != nil {
				return nil, nil, err
			}
			if issued+int64(req.Count) > int64(*program.DailyStampLimit) {
				return nil, nil, domain.ErrDailyLimitExceeded
			}
		}

		trx, err := card.IssueStamps(program.Type, req.Count, req.Amount, storeID, strings.TrimSpace(req.Note), now)
		if err != nil {
			return nil, nil, err
		}

		event := events.Event{
			OrgID: orgID,
			Type:  events.EventStampsIssued,
			Payload: map[string]any{
				"card_id":     card.ID.String(),
				"program_id":  card.ProgramID.String(),
				"count":       req.Count,
				"stamp_count": card.StampCount,
			},
		}
		return &trx, &event, nil
	})
	if err != nil {
		return domain.LoyaltyCard{}, err
	}

	s.metrics.RecordStampsIssued(ctx, card.ProgramID.String(), int64(req.Count))
	return card, nil
}

func (s *Service) AddPoints(ctx context.Context, req domain.AddPointsRequest) (domain.LoyaltyCard, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.LoyaltyCard{}, domain.ErrInvalidOrganization
	}

	cardID, err := s.parseID(req.CardID)
	if err != nil {
		return domain.LoyaltyCard{}, err
	}
	if req.Points < 0 || (req.Points == 0 && req.Amount <= 0) {
		return domain.LoyaltyCard{}, domain.ErrInvalidPoints
	}
	storeID, err := s.resolveStore(ctx, orgID, req.StoreID)
	if err != nil {
		return domain.LoyaltyCard{}, err
	}

	var credited float64
	card, err := s.mutate(ctx, orgID, cardID, func(tx *gorm.DB, card *domain.LoyaltyCard, program *programdomain.LoyaltyProgram) (*domain.Transaction, *events.Event, error) {
		if !program.IsActive {
			return nil, nil, domain.ErrProgramInactive
		}
		if program.MinTransactionAmount > 0 && req.Amount < program.MinTransactionAmount {
			return nil, nil, domain.ErrAmountBelowMinimum
		}

		points := req.Points
		if points == 0 {
			points = req.Amount * program.PointsConversionRate
		}
		if points <= 0 {
			return nil, nil, domain.ErrInvalidPoints
		}
		credited = points

		trx, err := card.AddPoints(program.Type, points, req.Amount, storeID, strings.TrimSpace(req.Note), s.clock.Now())
		if err != nil {
			return nil, nil, err
		}

		event := events.Event{
			OrgID: orgID,
			Type:  events.EventPointsAdded,
			Payload: map[string]any{
				"card_id":        card.ID.String(),
				"program_id":     card.ProgramID.String(),
				"points":         points,
				"points_balance": card.PointsBalance,
			},
		}
		return &trx, &event, nil
	})
	if err != nil {
		return domain.LoyaltyCard{}, err
	}

	s.metrics.RecordPointsAdded(ctx, card.ProgramID.String(), credited)
	return card, nil
}

func (s *Service) RedeemReward(ctx context.Context, req domain.RedeemRewardRequest) (domain.LoyaltyCard, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.LoyaltyCard{}, domain.ErrInvalidOrganization
	}

	cardID, err := s.parseID(req.CardID)
	if err != nil {
		return domain.LoyaltyCard{}, err
	}
	rewardID, err := snowflake.ParseString(strings.TrimSpace(req.RewardID))
	if err != nil || rewardID == 0 {
		return domain.LoyaltyCard{}, domain.ErrRewardNotFound
	}
	storeID, err := s.resolveStore(ctx, orgID, req.StoreID)
	if err != nil {
		return domain.LoyaltyCard{}, err
	}

	card, err := s.mutate(ctx, orgID, cardID, func(tx *gorm.DB, card *domain.LoyaltyCard, program *programdomain.LoyaltyProgram) (*domain.Transaction, *events.Event, error) {
		if !program.IsActive {
			return nil, nil, domain.ErrProgramInactive
		}

		reward, err := s.programs.FindRewardByID(ctx, tx, orgID, rewardID)
		if err != nil {
			return nil, nil, err
		}
		if reward == nil {
			return nil, nil, domain.ErrRewardNotFound
		}
		if reward.ProgramID != card.ProgramID {
			return nil, nil, domain.ErrRewardNotEligible
		}

		now := s.clock.Now()
		if !reward.EligibleAt(now) {
			return nil, nil, domain.ErrRewardNotEligible
		}

		trx, err := card.RedeemReward(program.Type, rewardID, reward.RequiredValue, storeID, now)
		if err != nil {
			return nil, nil, err
		}

		event := events.Event{
			OrgID: orgID,
			Type:  events.EventRewardRedeemed,
			Payload: map[string]any{
				"card_id":    card.ID.String(),
				"program_id": card.ProgramID.String(),
				"reward_id":  rewardID.String(),
			},
		}
		return &trx, &event, nil
	})
	if err != nil {
		return domain.LoyaltyCard{}, err
	}

	s.metrics.RecordRewardRedeemed(ctx, card.ProgramID.String())
	return card, nil
}

func (s *Service) Suspend(ctx context.Context, req domain.SuspendCardRequest) (domain.LoyaltyCard, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.LoyaltyCard{}, domain.ErrInvalidOrganization
	}
	cardID, err := s.parseID(req.ID)
	if err != nil {
		return domain.LoyaltyCard{}, err
	}

	return s.mutate(ctx, orgID, cardID, func(tx *gorm.DB, card *domain.LoyaltyCard, program *programdomain.LoyaltyProgram) (*domain.Transaction, *events.Event, error) {
		if err := card.Suspend(s.clock.Now()); err != nil {
			return nil, nil, err
		}
		return nil, nil, nil
	})
}

func (s *Service) Reactivate(ctx context.Context, req domain.ReactivateCardRequest) (domain.LoyaltyCard, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.LoyaltyCard{}, domain.ErrInvalidOrganization
	}
	cardID, err := s.parseID(req.ID)
	if err != nil {
		return domain.LoyaltyCard{}, err
	}

	return s.mutate(ctx, orgID, cardID, func(tx *gorm.DB, card *domain.LoyaltyCard, program *programdomain.LoyaltyProgram) (*domain.Transaction, *events.Event, error) {
		if err := card.Reactivate(s.clock.Now()); err != nil {
			return nil, nil, err
		}
		return nil, nil, nil
	})
}

func (s *Service) ListTransactions(ctx context.Context, req domain.ListTransactionRequest) (domain.ListTransactionResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.ListTransactionResponse{}, domain.ErrInvalidOrganization
	}

	cardID, err := s.parseID(req.CardID)
	if err != nil {
		return domain.ListTransactionResponse{}, err
	}

	card, err := s.repo.FindByID(ctx, s.db, orgID, cardID)
	if err != nil {
		return domain.ListTransactionResponse{}, err
	}
	if card == nil {
		return domain.ListTransactionResponse{}, domain.ErrNotFound
	}

	filter := domain.ListTransactionFilter{}
	if value := strings.TrimSpace(req.Type); value != "" {
		trxType := domain.TransactionType(value)
		switch trxType {
		case domain.TransactionStampIssued, domain.TransactionPointsAdded, domain.TransactionRewardRedeemed:
			filter.Type = trxType
		default:
			return domain.ListTransactionResponse{}, domain.ErrInvalidStatus
		}
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.ListTransactions(ctx, s.db, orgID, cardID, filter, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.ListTransactionResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(trx *domain.Transaction) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        trx.ID.String(),
			CreatedAt: trx.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	trxs := make([]domain.Transaction, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		trxs = append(trxs, *item)
	}

	resp := domain.ListTransactionResponse{Transactions: trxs}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) ExpireDue(ctx context.Context, limit int) (int, error) {
	now := s.clock.Now()
	cards, err := s.repo.FindExpirable(ctx, s.db, now, limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, card := range cards {
		if card == nil {
			continue
		}
		expected := card.Version
		if err := card.Expire(now); err != nil {
			continue
		}

		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			ok, err := s.repo.UpdateVersioned(ctx, tx, card, expected)
			if err != nil {
				return err
			}
			if !ok {
				// Lost the race; the next sweep reconsiders this card.
				return errConflict
			}
			return s.outbox.Publish(ctx, tx, events.Event{
				OrgID: card.OrgID,
				Type:  events.EventCardExpired,
				Payload: map[string]any{
					"card_id":    card.ID.String(),
					"program_id": card.ProgramID.String(),
					"expired_at": now.Format(time.RFC3339),
				},
				DedupeKey: "card.expired:" + card.ID.String(),
			})
		})
		if errors.Is(err, errConflict) {
			s.metrics.RecordCardConflict(ctx)
			continue
		}
		if err != nil {
			return expired, err
		}
		expired++
	}

	s.metrics.RecordCardsExpired(ctx, int64(expired))
	return expired, nil
}

type mutation func(tx *gorm.DB, card *domain.LoyaltyCard, program *programdomain.LoyaltyProgram) (*domain.Transaction, *events.Event, error)

// mutate runs fn against a fresh read of the card inside a database
// transaction and persists the result with a compare-and-swap on the card's
// version. On a lost race it retries from a new read, up to
// maxMutationAttempts. The redis lease only narrows the race window; the
// version check is what guarantees no lost update.
func (s *Service) mutate(ctx context.Context, orgID, cardID snowflake.ID, fn mutation) (domain.LoyaltyCard, error) {
	if release, ok, err := s.locker.Acquire(ctx, "perkly:card:"+cardID.String()); err == nil && ok {
		defer release()
	}

	for attempt := 0; attempt < maxMutationAttempts; attempt++ {
		card, err := s.repo.FindByID(ctx, s.db, orgID, cardID)
		if err != nil {
			return domain.LoyaltyCard{}, err
		}
		if card == nil {
			return domain.LoyaltyCard{}, domain.ErrNotFound
		}

		program, err := s.programs.FindByID(ctx, s.db, orgID, card.ProgramID)
		if err != nil {
			return domain.LoyaltyCard{}, err
		}
		if program == nil {
			return domain.LoyaltyCard{}, domain.ErrInvalidProgram
		}

		expected := card.Version
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			trx, event, err := fn(tx, card, program)
			if err != nil {
				return err
			}

			ok, err := s.repo.UpdateVersioned(ctx, tx, card, expected)
			if err != nil {
				return err
			}
			if !ok {
				return errConflict
			}

			if trx != nil {
				trx.ID = s.genID.Generate()
				trx.CreatedAt = s.clock.Now()
				if err := s.repo.InsertTransaction(ctx, tx, trx); err != nil {
					return err
				}
			}
			if event != nil {
				if err := s.outbox.Publish(ctx, tx, *event); err != nil {
					return err
				}
			}
			return nil
		})
		if errors.Is(err, errConflict) {
			s.metrics.RecordCardConflict(ctx)
			s.log.Debug("card version conflict, retrying",
				zap.String("card_id", cardID.String()),
				zap.Int("attempt", attempt+1),
			)
			continue
		}
		if err != nil {
			return domain.LoyaltyCard{}, err
		}
		return *card, nil
	}

	return domain.LoyaltyCard{}, domain.ErrVersionConflict
}

func (s *Service) resolveStore(ctx context.Context, orgID snowflake.ID, value string) (*snowflake.ID, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	id, err := snowflake.ParseString(value)
	if err != nil || id == 0 {
		return nil, domain.ErrInvalidStore
	}
	store, err := s.stores.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, domain.ErrInvalidStore
	}
	return &id, nil
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

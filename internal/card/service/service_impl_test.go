package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	carddomain "github.com/smallbiznis/perkly/internal/card/domain"
	cardrepo "github.com/smallbiznis/perkly/internal/card/repository"
	"github.com/smallbiznis/perkly/internal/clock"
	customerdomain "github.com/smallbiznis/perkly/internal/customer/domain"
	customerrepo "github.com/smallbiznis/perkly/internal/customer/repository"
	"github.com/smallbiznis/perkly/internal/events"
	"github.com/smallbiznis/perkly/internal/orgcontext"
	programdomain "github.com/smallbiznis/perkly/internal/program/domain"
	programrepo "github.com/smallbiznis/perkly/internal/program/repository"
	storedomain "github.com/smallbiznis/perkly/internal/store/domain"
	storerepo "github.com/smallbiznis/perkly/internal/store/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type cardFixture struct {
	db    *gorm.DB
	svc   carddomain.Service
	node  *snowflake.Node
	clock *clock.FakeClock
	orgID snowflake.ID
}

func setupCardService(t *testing.T) *cardFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	require.NoError(t, db.AutoMigrate(
		&customerdomain.Customer{},
		&storedomain.Store{},
		&programdomain.LoyaltyProgram{},
		&programdomain.Reward{},
		&carddomain.LoyaltyCard{},
		&carddomain.Transaction{},
		&events.Record{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC))

	svc := New(Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     fake,
		Repo:      cardrepo.Provide(),
		Programs:  programrepo.Provide(),
		Customers: customerrepo.Provide(),
		Stores:    storerepo.Provide(),
		Outbox:    events.NewOutbox(db, node),
	})

	return &cardFixture{
		db:    db,
		svc:   svc,
		node:  node,
		clock: fake,
		orgID: node.Generate(),
	}
}

func (f *cardFixture) ctx() context.Context {
	return orgcontext.WithOrgID(context.Background(), int64(f.orgID))
}

func (f *cardFixture) seedCustomer(t *testing.T) customerdomain.Customer {
	t.Helper()
	customer := customerdomain.Customer{
		ID:        f.node.Generate(),
		OrgID:     f.orgID,
		Name:      "Ayu Lestari",
		Email:     fmt.Sprintf("ayu+%d@example.com", f.node.Generate()),
		Metadata:  datatypes.JSONMap{},
		CreatedAt: f.clock.Now(),
		UpdatedAt: f.clock.Now(),
	}
	require.NoError(t, f.db.Create(&customer).Error)
	return customer
}

func (f *cardFixture) seedProgram(t *testing.T, programType programdomain.ProgramType, mutate func(*programdomain.LoyaltyProgram)) programdomain.LoyaltyProgram {
	t.Helper()
	program := programdomain.LoyaltyProgram{
		ID:             f.node.Generate(),
		OrgID:          f.orgID,
		BrandID:        f.node.Generate(),
		Name:           "Coffee Club",
		Code:           fmt.Sprintf("coffee-club-%d", f.node.Generate()),
		Type:           programType,
		StampThreshold: 10,
		IsActive:       true,
		Metadata:       datatypes.JSONMap{},
		CreatedAt:      f.clock.Now(),
		UpdatedAt:      f.clock.Now(),
	}
	if mutate != nil {
		mutate(&program)
	}
	require.NoError(t, f.db.Create(&program).Error)
	return program
}

func (f *cardFixture) seedReward(t *testing.T, programID snowflake.ID, requiredValue float64) programdomain.Reward {
	t.Helper()
	reward := programdomain.Reward{
		ID:            f.node.Generate(),
		OrgID:         f.orgID,
		ProgramID:     programID,
		Title:         "Free Latte",
		RequiredValue: requiredValue,
		IsActive:      true,
		CreatedAt:     f.clock.Now(),
		UpdatedAt:     f.clock.Now(),
	}
	require.NoError(t, f.db.Create(&reward).Error)
	return reward
}

func (f *cardFixture) issueCard(t *testing.T, programID, customerID snowflake.ID) carddomain.LoyaltyCard {
	t.Helper()
	card, err := f.svc.Issue(f.ctx(), carddomain.IssueCardRequest{
		ProgramID:  programID.String(),
		CustomerID: customerID.String(),
	})
	require.NoError(t, err)
	return card
}

func (f *cardFixture) outboxEvents(t *testing.T, eventType string) []events.Record {
	t.Helper()
	records, err := events.FetchUnpublished(context.Background(), f.db, 100)
	require.NoError(t, err)
	var matched []events.Record
	for _, record := range records {
		if record.EventType == eventType {
			matched = append(matched, record)
		}
	}
	return matched
}

func TestIssueCard(t *testing.T) {
	f := setupCardService(t)
	customer := f.seedCustomer(t)
	program := f.seedProgram(t, programdomain.ProgramTypeStamp, func(p *programdomain.LoyaltyProgram) {
		p.Expiration = &programdomain.ExpirationPolicy{
			Kind:        programdomain.ExpirationRelative,
			PeriodUnit:  programdomain.PeriodDay,
			PeriodValue: 30,
		}
	})

	card := f.issueCard(t, program.ID, customer.ID)

	assert.Equal(t, carddomain.CardStatusActive, card.Status)
	assert.NotEmpty(t, card.QRCode)
	assert.Equal(t, int64(0), card.Version)
	require.NotNil(t, card.ExpiresAt)
	assert.Equal(t, f.clock.Now().AddDate(0, 0, 30), card.ExpiresAt.UTC())

	assert.Len(t, f.outboxEvents(t, events.EventCardCreated), 1)
}

func TestIssueCard_DuplicateEnrollment(t *testing.T) {
	f := setupCardService(t)
	customer := f.seedCustomer(t)
	program := f.seedProgram(t, programdomain.ProgramTypeStamp, nil)

	f.issueCard(t, program.ID, customer.ID)

	_, err := f.svc.Issue(f.ctx(), carddomain.IssueCardRequest{
		ProgramID:  program.ID.String(),
		CustomerID: customer.ID.String(),
	})
	assert.ErrorIs(t, err, carddomain.ErrCardExists)
}

func TestIssueCard_InactiveProgram(t *testing.T) {
	f := setupCardService(t)
	customer := f.seedCustomer(t)
	program := f.seedProgram(t, programdomain.ProgramTypeStamp, func(p *programdomain.LoyaltyProgram) {
		p.IsActive = false
	})

	_, err := f.svc.Issue(f.ctx(), carddomain.IssueCardRequest{
		ProgramID:  program.ID.String(),
		CustomerID: customer.ID.String(),
	})
	assert.ErrorIs(t, err, carddomain.ErrProgramInactive)
}

func TestIssueStamps_AccumulatesAndRecordsLedger(t *testing.T) {
	f := setupCardService(t)
	customer := f.seedCustomer(t)
	program := f.seedProgram(t, programdomain.ProgramTypeStamp, nil)
	card := f.issueCard(t, program.ID, customer.ID)

	updated, err := f.svc.IssueStamps(f.ctx(), carddomain.IssueStampsRequest{
		CardID: card.ID.String(),
		Count:  3,
		Amount: 45.0,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, updated.StampCount)
	assert.Equal(t, int64(1), updated.Version)

	updated, err = f.svc.IssueStamps(f.ctx(), carddomain.IssueStampsRequest{
		CardID: card.ID.String(),
		Count:  2,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, updated.StampCount)
	assert.Equal(t, int64(2), updated.Version)

	var ledger []carddomain.Transaction
	require.NoError(t, f.db.Where("card_id = ?", card.ID).Find(&ledger).Error)
	assert.Len(t, ledger, 2)

	assert.Len(t, f.outboxEvents(t, events.EventStampsIssued), 2)
}

func TestIssueStamps_DailyLimit(t *testing.T) {
	f := setupCardService(t)
	customer := f.seedCustomer(t)
	limit := 4
	program := f.seedProgram(t, programdomain.ProgramTypeStamp, func(p *programdomain.LoyaltyProgram) {
		p.DailyStampLimit = &limit
	})
	card := f.issueCard(t, program.ID, customer.ID)

	for i := 0; i < 2; i++ {
		_, err := f.svc.IssueStamps(f.ctx(), carddomain.IssueStampsRequest{
			CardID: card.ID.String(),
			Count:  2,
		})
		require.NoError(t, err)
	}

	_, err := f.svc.IssueStamps(f.ctx(), carddomain.IssueStampsRequest{
		CardID: card.ID.String(),
		Count:  1,
	})
	assert.ErrorIs(t, err, carddomain.ErrDailyLimitExceeded)

	// The window resets at the next UTC day.
	f.clock.Advance(24 * time.Hour)
	updated, err := f.svc.IssueStamps(f.ctx(), carddomain.IssueStampsRequest{
		CardID: card.ID.String(),
		Count:  1,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, updated.StampCount)
}

func TestIssueStamps_BelowMinimumAmount(t *testing.T) {
	f := setupCardService(t)
	customer := f.seedCustomer(t)
	program := f.seedProgram(t, programdomain.ProgramTypeStamp, func(p *programdomain.LoyaltyProgram) {
		p.MinTransactionAmount = 50
	})
	card := f.issueCard(t, program.ID, customer.ID)

	_, err := f.svc.IssueStamps(f.ctx(), carddomain.IssueStampsRequest{
		CardID: card.ID.String(),
		Count:  1,
		Amount: 49.99,
	})
	assert.ErrorIs(t, err, carddomain.ErrAmountBelowMinimum)
}

func TestIssueStamps_WrongProgramType(t *testing.T) {
	f := setupCardService(t)
	customer := f.seedCustomer(t)
	program := f.seedProgram(t, programdomain.ProgramTypePoints, nil)
	card := f.issueCard(t, program.ID, customer.ID)

	_, err := f.svc.IssueStamps(f.ctx(), carddomain.IssueStampsRequest{
		CardID: card.ID.String(),
		Count:  1,
	})
	assert.ErrorIs(t, err, carddomain.ErrInvalidOperation)
}

func TestAddPoints_DerivedFromAmount(t *testing.T) {
	f := setupCardService(t)
	customer := f.seedCustomer(t)
	program := f.seedProgram(t, programdomain.ProgramTypePoints, func(p *programdomain.LoyaltyProgram) {
		p.PointsConversionRate = 0.5
	})
	card := f.issueCard(t, program.ID, customer.ID)

	updated, err := f.svc.AddPoints(f.ctx(), carddomain.AddPointsRequest{
		CardID: card.ID.String(),
		Amount: 200,
	})
	require.NoError(t, err)
	assert.Equal(t, 100.0, updated.PointsBalance)

	// Explicit points win over the derived credit.
	updated, err = f.svc.AddPoints(f.ctx(), carddomain.AddPointsRequest{
		CardID: card.ID.String(),
		Points: 7.5,
		Amount: 200,
	})
	require.NoError(t, err)
	assert.Equal(t, 107.5, updated.PointsBalance)
}

func TestRedeemReward(t *testing.T) {
	f := setupCardService(t)
	customer := f.seedCustomer(t)
	program := f.seedProgram(t, programdomain.ProgramTypePoints, func(p *programdomain.LoyaltyProgram) {
		p.PointsConversionRate = 1
	})
	reward := f.seedReward(t, program.ID, 40)
	card := f.issueCard(t, program.ID, customer.ID)

	_, err := f.svc.AddPoints(f.ctx(), carddomain.AddPointsRequest{
		CardID: card.ID.String(),
		Points: 100,
	})
	require.NoError(t, err)

	updated, err := f.svc.RedeemReward(f.ctx(), carddomain.RedeemRewardRequest{
		CardID:   card.ID.String(),
		RewardID: reward.ID.String(),
	})
	require.NoError(t, err)
	assert.Equal(t, 60.0, updated.PointsBalance)

	updated, err = f.svc.RedeemReward(f.ctx(), carddomain.RedeemRewardRequest{
		CardID:   card.ID.String(),
		RewardID: reward.ID.String(),
	})
	require.NoError(t, err)
	assert.Equal(t, 20.0, updated.PointsBalance)

	_, err = f.svc.RedeemReward(f.ctx(), carddomain.RedeemRewardRequest{
		CardID:   card.ID.String(),
		RewardID: reward.ID.String(),
	})
	assert.ErrorIs(t, err, carddomain.ErrInsufficientBalance)

	assert.Len(t, f.outboxEvents(t, events.EventRewardRedeemed), 2)
}

func TestRedeemReward_WrongProgram(t *testing.T) {
	f := setupCardService(t)
	customer := f.seedCustomer(t)
	program := f.seedProgram(t, programdomain.ProgramTypePoints, nil)
	other := f.seedProgram(t, programdomain.ProgramTypePoints, nil)
	reward := f.seedReward(t, other.ID, 10)
	card := f.issueCard(t, program.ID, customer.ID)

	_, err := f.svc.RedeemReward(f.ctx(), carddomain.RedeemRewardRequest{
		CardID:   card.ID.String(),
		RewardID: reward.ID.String(),
	})
	assert.ErrorIs(t, err, carddomain.ErrRewardNotEligible)
}

func TestRedeemReward_OutsideValidityWindow(t *testing.T) {
	f := setupCardService(t)
	customer := f.seedCustomer(t)
	program := f.seedProgram(t, programdomain.ProgramTypePoints, nil)
	card := f.issueCard(t, program.ID, customer.ID)

	validTo := f.clock.Now().Add(-time.Hour)
	reward := programdomain.Reward{
		ID:            f.node.Generate(),
		OrgID:         f.orgID,
		ProgramID:     program.ID,
		Title:         "Expired Promo",
		RequiredValue: 1,
		ValidTo:       &validTo,
		IsActive:      true,
		CreatedAt:     f.clock.Now(),
		UpdatedAt:     f.clock.Now(),
	}
	require.NoError(t, f.db.Create(&reward).Error)

	_, err := f.svc.RedeemReward(f.ctx(), carddomain.RedeemRewardRequest{
		CardID:   card.ID.String(),
		RewardID: reward.ID.String(),
	})
	assert.ErrorIs(t, err, carddomain.ErrRewardNotEligible)
}

func TestSuspendAndReactivate(t *testing.T) {
	f := setupCardService(t)
	customer := f.seedCustomer(t)
	program := f.seedProgram(t, programdomain.ProgramTypeStamp, nil)
	card := f.issueCard(t, program.ID, customer.ID)

	suspended, err := f.svc.Suspend(f.ctx(), carddomain.SuspendCardRequest{ID: card.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, carddomain.CardStatusSuspended, suspended.Status)

	_, err = f.svc.IssueStamps(f.ctx(), carddomain.IssueStampsRequest{
		CardID: card.ID.String(),
		Count:  1,
	})
	assert.ErrorIs(t, err, carddomain.ErrCardNotActive)

	reactivated, err := f.svc.Reactivate(f.ctx(), carddomain.ReactivateCardRequest{ID: card.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, carddomain.CardStatusActive, reactivated.Status)

	_, err = f.svc.IssueStamps(f.ctx(), carddomain.IssueStampsRequest{
		CardID: card.ID.String(),
		Count:  1,
	})
	require.NoError(t, err)
}

func TestExpireDue(t *testing.T) {
	f := setupCardService(t)
	customer := f.seedCustomer(t)
	program := f.seedProgram(t, programdomain.ProgramTypeStamp, func(p *programdomain.LoyaltyProgram) {
		p.Expiration = &programdomain.ExpirationPolicy{
			Kind:        programdomain.ExpirationRelative,
			PeriodUnit:  programdomain.PeriodDay,
			PeriodValue: 30,
		}
	})
	card := f.issueCard(t, program.ID, customer.ID)

	// Not due yet.
	expired, err := f.svc.ExpireDue(context.Background(), 100)
	require.NoError(t, err)
	assert.Zero(t, expired)

	f.clock.Advance(31 * 24 * time.Hour)

	expired, err = f.svc.ExpireDue(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	got, err := f.svc.GetByID(f.ctx(), carddomain.GetCardRequest{ID: card.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, carddomain.CardStatusExpired, got.Status)

	_, err = f.svc.IssueStamps(f.ctx(), carddomain.IssueStampsRequest{
		CardID: card.ID.String(),
		Count:  1,
	})
	assert.ErrorIs(t, err, carddomain.ErrCardNotActive)

	assert.Len(t, f.outboxEvents(t, events.EventCardExpired), 1)

	// The sweep is idempotent once the card is expired.
	expired, err = f.svc.ExpireDue(context.Background(), 100)
	require.NoError(t, err)
	assert.Zero(t, expired)
}

func TestExpireDue_SuspendedCard(t *testing.T) {
	f := setupCardService(t)
	customer := f.seedCustomer(t)
	program := f.seedProgram(t, programdomain.ProgramTypeStamp, func(p *programdomain.LoyaltyProgram) {
		p.Expiration = &programdomain.ExpirationPolicy{
			Kind:        programdomain.ExpirationRelative,
			PeriodUnit:  programdomain.PeriodDay,
			PeriodValue: 30,
		}
	})
	card := f.issueCard(t, program.ID, customer.ID)

	_, err := f.svc.Suspend(f.ctx(), carddomain.SuspendCardRequest{ID: card.ID.String()})
	require.NoError(t, err)

	f.clock.Advance(31 * 24 * time.Hour)

	// Suspension is not a shelter from the expiry schedule.
	expired, err := f.svc.ExpireDue(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	got, err := f.svc.GetByID(f.ctx(), carddomain.GetCardRequest{ID: card.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, carddomain.CardStatusExpired, got.Status)

	_, err = f.svc.Reactivate(f.ctx(), carddomain.ReactivateCardRequest{ID: card.ID.String()})
	assert.ErrorIs(t, err, carddomain.ErrCardNotSuspended)
}

func TestGetByQRCode(t *testing.T) {
	f := setupCardService(t)
	customer := f.seedCustomer(t)
	program := f.seedProgram(t, programdomain.ProgramTypeStamp, nil)
	card := f.issueCard(t, program.ID, customer.ID)

	got, err := f.svc.GetByQRCode(f.ctx(), carddomain.GetCardByQRCodeRequest{QRCode: card.QRCode})
	require.NoError(t, err)
	assert.Equal(t, card.ID, got.ID)

	_, err = f.svc.GetByQRCode(f.ctx(), carddomain.GetCardByQRCodeRequest{QRCode: "01ARZ3NDEKTSV4RRFFQ69G5FAV"})
	assert.ErrorIs(t, err, carddomain.ErrNotFound)
}

func TestUpdateVersioned_StaleWriteRejected(t *testing.T) {
	f := setupCardService(t)
	customer := f.seedCustomer(t)
	program := f.seedProgram(t, programdomain.ProgramTypeStamp, nil)
	card := f.issueCard(t, program.ID, customer.ID)

	repo := cardrepo.Provide()
	loaded, err := repo.FindByID(context.Background(), f.db, f.orgID, card.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)

	// Another writer bumps the version underneath us.
	require.NoError(t, f.db.Model(&carddomain.LoyaltyCard{}).
		Where("id = ?", card.ID).
		Update("version", loaded.Version+1).Error)

	loaded.StampCount = 99
	ok, err := repo.UpdateVersioned(context.Background(), f.db, loaded, card.Version)
	require.NoError(t, err)
	assert.False(t, ok)

	var current carddomain.LoyaltyCard
	require.NoError(t, f.db.First(&current, "id = ?", card.ID).Error)
	assert.Zero(t, current.StampCount)
}

func TestListTransactions(t *testing.T) {
	f := setupCardService(t)
	customer := f.seedCustomer(t)
	program := f.seedProgram(t, programdomain.ProgramTypeStamp, nil)
	card := f.issueCard(t, program.ID, customer.ID)

	for i := 0; i < 3; i++ {
		_, err := f.svc.IssueStamps(f.ctx(), carddomain.IssueStampsRequest{
			CardID: card.ID.String(),
			Count:  1,
		})
		require.NoError(t, err)
	}

	resp, err := f.svc.ListTransactions(f.ctx(), carddomain.ListTransactionRequest{
		CardID: card.ID.String(),
	})
	require.NoError(t, err)
	assert.Len(t, resp.Transactions, 3)
	for _, trx := range resp.Transactions {
		assert.Equal(t, carddomain.TransactionStampIssued, trx.Type)
	}
}

package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	branddomain "github.com/smallbiznis/perkly/internal/brand/domain"
	brandrepo "github.com/smallbiznis/perkly/internal/brand/repository"
	carddomain "github.com/smallbiznis/perkly/internal/card/domain"
	"github.com/smallbiznis/perkly/internal/clock"
	"github.com/smallbiznis/perkly/internal/orgcontext"
	"github.com/smallbiznis/perkly/internal/program/domain"
	programrepo "github.com/smallbiznis/perkly/internal/program/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type programFixture struct {
	db    *gorm.DB
	svc   domain.Service
	node  *snowflake.Node
	clock *clock.FakeClock
	orgID snowflake.ID
	brand branddomain.Brand
}

func setupProgramService(t *testing.T) *programFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	require.NoError(t, db.AutoMigrate(
		&branddomain.Brand{},
		&domain.LoyaltyProgram{},
		&domain.Reward{},
		&carddomain.LoyaltyCard{},
		&carddomain.Transaction{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC))
	orgID := node.Generate()

	brand := branddomain.Brand{
		ID:        node.Generate(),
		OrgID:     orgID,
		Name:      "Kopi Kita",
		Slug:      "kopi-kita",
		IsActive:  true,
		Metadata:  datatypes.JSONMap{},
		CreatedAt: fake.Now(),
		UpdatedAt: fake.Now(),
	}
	require.NoError(t, db.Create(&brand).Error)

	svc := New(Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  fake,
		Repo:   programrepo.Provide(),
		Brands: brandrepo.Provide(),
	})

	return &programFixture{
		db:    db,
		svc:   svc,
		node:  node,
		clock: fake,
		orgID: orgID,
		brand: brand,
	}
}

func (f *programFixture) ctx() context.Context {
	return orgcontext.WithOrgID(context.Background(), int64(f.orgID))
}

func (f *programFixture) createStampProgram(t *testing.T, name string) domain.LoyaltyProgram {
	t.Helper()
	program, err := f.svc.Create(f.ctx(), domain.CreateProgramRequest{
		BrandID:        f.brand.ID.String(),
		Name:           name,
		Type:           "stamp",
		StampThreshold: 10,
	})
	require.NoError(t, err)
	return program
}

func TestCreateProgram(t *testing.T) {
	f := setupProgramService(t)

	limit := 5
	program, err := f.svc.Create(f.ctx(), domain.CreateProgramRequest{
		BrandID:         f.brand.ID.String(),
		Name:            "Morning Brew Card",
		Type:            "stamp",
		StampThreshold:  8,
		DailyStampLimit: &limit,
		Expiration: &domain.ExpirationPolicy{
			Kind:        domain.ExpirationRelative,
			PeriodUnit:  domain.PeriodMonth,
			PeriodValue: 6,
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "morning-brew-card", program.Code)
	assert.Equal(t, domain.ProgramTypeStamp, program.Type)
	assert.True(t, program.IsActive)
	require.NotNil(t, program.DailyStampLimit)
	assert.Equal(t, 5, *program.DailyStampLimit)
	require.NotNil(t, program.Expiration)
}

func TestCreateProgram_Validation(t *testing.T) {
	f := setupProgramService(t)

	cases := []struct {
		name string
		req  domain.CreateProgramRequest
		want error
	}{
		{
			"unknown brand",
			domain.CreateProgramRequest{BrandID: f.node.Generate().String(), Name: "X", Type: "stamp", StampThreshold: 5},
			domain.ErrInvalidBrand,
		},
		{
			"blank name",
			domain.CreateProgramRequest{BrandID: f.brand.ID.String(), Name: "   ", Type: "stamp", StampThreshold: 5},
			domain.ErrInvalidName,
		},
		{
			"bad type",
			domain.CreateProgramRequest{BrandID: f.brand.ID.String(), Name: "X", Type: "cashback"},
			domain.ErrInvalidType,
		},
		{
			"stamp without threshold",
			domain.CreateProgramRequest{BrandID: f.brand.ID.String(), Name: "X", Type: "stamp"},
			domain.ErrInvalidThreshold,
		},
		{
			"negative conversion rate",
			domain.CreateProgramRequest{BrandID: f.brand.ID.String(), Name: "X", Type: "points", PointsConversionRate: -1},
			domain.ErrInvalidConversion,
		},
		{
			"negative min amount",
			domain.CreateProgramRequest{BrandID: f.brand.ID.String(), Name: "X", Type: "stamp", StampThreshold: 5, MinTransactionAmount: -1},
			domain.ErrInvalidMinAmount,
		},
		{
			"bad expiration",
			domain.CreateProgramRequest{
				BrandID: f.brand.ID.String(), Name: "X", Type: "stamp", StampThreshold: 5,
				Expiration: &domain.ExpirationPolicy{Kind: domain.ExpirationRelative},
			},
			domain.ErrInvalidExpiration,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(f.ctx(), tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCreateProgram_DailyLimitBounds(t *testing.T) {
	f := setupProgramService(t)

	zero := 0
	_, err := f.svc.Create(f.ctx(), domain.CreateProgramRequest{
		BrandID: f.brand.ID.String(), Name: "Zero", Type: "stamp", StampThreshold: 5,
		DailyStampLimit: &zero,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidDailyLimit)

	// The operator ceiling defaults to 100.
	over := 101
	_, err = f.svc.Create(f.ctx(), domain.CreateProgramRequest{
		BrandID: f.brand.ID.String(), Name: "Over", Type: "stamp", StampThreshold: 5,
		DailyStampLimit: &over,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidDailyLimit)

	atCap := 100
	_, err = f.svc.Create(f.ctx(), domain.CreateProgramRequest{
		BrandID: f.brand.ID.String(), Name: "At Cap", Type: "stamp", StampThreshold: 5,
		DailyStampLimit: &atCap,
	})
	require.NoError(t, err)
}

func TestCreateProgram_DuplicateCode(t *testing.T) {
	f := setupProgramService(t)

	f.createStampProgram(t, "Coffee Club")

	_, err := f.svc.Create(f.ctx(), domain.CreateProgramRequest{
		BrandID:        f.brand.ID.String(),
		Name:           "Coffee Club",
		Type:           "points",
	})
	assert.ErrorIs(t, err, domain.ErrCodeTaken)
}

func TestUpdateProgram(t *testing.T) {
	f := setupProgramService(t)
	program := f.createStampProgram(t, "Coffee Club")

	name := "Coffee Club Plus"
	inactive := false
	limit := 3
	updated, err := f.svc.Update(f.ctx(), domain.UpdateProgramRequest{
		ID:              program.ID.String(),
		Name:            &name,
		IsActive:        &inactive,
		DailyStampLimit: &limit,
	})
	require.NoError(t, err)
	assert.Equal(t, "Coffee Club Plus", updated.Name)
	// The code is fixed at creation, renames do not move it.
	assert.Equal(t, program.Code, updated.Code)
	assert.False(t, updated.IsActive)
	require.NotNil(t, updated.DailyStampLimit)

	updated, err = f.svc.Update(f.ctx(), domain.UpdateProgramRequest{
		ID:                   program.ID.String(),
		ClearDailyStampLimit: true,
	})
	require.NoError(t, err)
	assert.Nil(t, updated.DailyStampLimit)

	got, err := f.svc.GetByID(f.ctx(), domain.GetProgramRequest{ID: program.ID.String()})
	require.NoError(t, err)
	assert.Nil(t, got.DailyStampLimit)
	assert.False(t, got.IsActive)
}

func TestUpdateProgram_ClearExpiration(t *testing.T) {
	f := setupProgramService(t)
	program, err := f.svc.Create(f.ctx(), domain.CreateProgramRequest{
		BrandID:        f.brand.ID.String(),
		Name:           "Expiring",
		Type:           "stamp",
		StampThreshold: 5,
		Expiration: &domain.ExpirationPolicy{
			Kind:        domain.ExpirationRelative,
			PeriodUnit:  domain.PeriodDay,
			PeriodValue: 90,
		},
	})
	require.NoError(t, err)
	require.NotNil(t, program.Expiration)

	updated, err := f.svc.Update(f.ctx(), domain.UpdateProgramRequest{
		ID:              program.ID.String(),
		ClearExpiration: true,
	})
	require.NoError(t, err)
	assert.Nil(t, updated.Expiration)

	got, err := f.svc.GetByID(f.ctx(), domain.GetProgramRequest{ID: program.ID.String()})
	require.NoError(t, err)
	assert.Nil(t, got.Expiration)
}

func TestRewardLifecycle(t *testing.T) {
	f := setupProgramService(t)
	program := f.createStampProgram(t, "Coffee Club")

	reward, err := f.svc.CreateReward(f.ctx(), domain.CreateRewardRequest{
		ProgramID:     program.ID.String(),
		Title:         "Free Latte",
		RequiredValue: 10,
	})
	require.NoError(t, err)
	assert.True(t, reward.IsActive)

	_, err = f.svc.CreateReward(f.ctx(), domain.CreateRewardRequest{
		ProgramID: program.ID.String(),
		Title:     "   ",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTitle)

	from := f.clock.Now()
	to := from.Add(-time.Hour)
	_, err = f.svc.CreateReward(f.ctx(), domain.CreateRewardRequest{
		ProgramID:     program.ID.String(),
		Title:         "Backwards",
		RequiredValue: 1,
		ValidFrom:     &from,
		ValidTo:       &to,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidDateRange)

	retired := false
	value := 12.0
	updated, err := f.svc.UpdateReward(f.ctx(), domain.UpdateRewardRequest{
		ID:            reward.ID.String(),
		RequiredValue: &value,
		IsActive:      &retired,
	})
	require.NoError(t, err)
	assert.Equal(t, 12.0, updated.RequiredValue)
	assert.False(t, updated.IsActive)

	active := true
	rewards, err := f.svc.ListRewards(f.ctx(), domain.ListRewardRequest{
		ProgramID: program.ID.String(),
		IsActive:  &active,
	})
	require.NoError(t, err)
	assert.Empty(t, rewards)

	rewards, err = f.svc.ListRewards(f.ctx(), domain.ListRewardRequest{
		ProgramID: program.ID.String(),
	})
	require.NoError(t, err)
	assert.Len(t, rewards, 1)
}

func TestCreateReward_RequiredValue(t *testing.T) {
	f := setupProgramService(t)
	stampProgram := f.createStampProgram(t, "Stamp Club")
	pointsProgram, err := f.svc.Create(f.ctx(), domain.CreateProgramRequest{
		BrandID:              f.brand.ID.String(),
		Name:                 "Points Club",
		Type:                 "points",
		PointsConversionRate: 1,
	})
	require.NoError(t, err)

	// A price no redemption could pay is rejected up front.
	_, err = f.svc.CreateReward(f.ctx(), domain.CreateRewardRequest{
		ProgramID: stampProgram.ID.String(),
		Title:     "Freebie",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidRequiredValue)

	// Stamp cards pay with whole stamps.
	_, err = f.svc.CreateReward(f.ctx(), domain.CreateRewardRequest{
		ProgramID:     stampProgram.ID.String(),
		Title:         "Half Stamp",
		RequiredValue: 2.5,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidRequiredValue)

	// Points rewards may carry fractional prices.
	reward, err := f.svc.CreateReward(f.ctx(), domain.CreateRewardRequest{
		ProgramID:     pointsProgram.ID.String(),
		Title:         "Discount",
		RequiredValue: 2.5,
	})
	require.NoError(t, err)
	assert.Equal(t, 2.5, reward.RequiredValue)

	whole, err := f.svc.CreateReward(f.ctx(), domain.CreateRewardRequest{
		ProgramID:     stampProgram.ID.String(),
		Title:         "Free Coffee",
		RequiredValue: 5,
	})
	require.NoError(t, err)

	fractional := 4.5
	_, err = f.svc.UpdateReward(f.ctx(), domain.UpdateRewardRequest{
		ID:            whole.ID.String(),
		RequiredValue: &fractional,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidRequiredValue)
}

func TestGetAnalytics(t *testing.T) {
	f := setupProgramService(t)
	program := f.createStampProgram(t, "Coffee Club")

	// Empty program still reports a full 12-month series.
	analytics, err := f.svc.GetAnalytics(f.ctx(), domain.GetAnalyticsRequest{ProgramID: program.ID.String()})
	require.NoError(t, err)
	assert.Zero(t, analytics.StampsIssued)
	assert.Len(t, analytics.RedemptionsByMonth, 12)

	now := f.clock.Now()
	rewardID := f.node.Generate()
	seedCard := func(status carddomain.CardStatus) snowflake.ID {
		card := carddomain.LoyaltyCard{
			ID:         f.node.Generate(),
			OrgID:      f.orgID,
			ProgramID:  program.ID,
			CustomerID: f.node.Generate(),
			QRCode:     fmt.Sprintf("qr-%d", f.node.Generate()),
			Status:     status,
			IssuedAt:   now,
			Metadata:   datatypes.JSONMap{},
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		require.NoError(t, f.db.Create(&card).Error)
		return card.ID
	}
	cardID := seedCard(carddomain.CardStatusActive)
	seedCard(carddomain.CardStatusActive)
	seedCard(carddomain.CardStatusExpired)

	ledger := []carddomain.Transaction{
		{ID: f.node.Generate(), OrgID: f.orgID, CardID: cardID, ProgramID: program.ID, Type: carddomain.TransactionStampIssued, StampCount: 3, OccurredAt: now, CreatedAt: now},
		{ID: f.node.Generate(), OrgID: f.orgID, CardID: cardID, ProgramID: program.ID, Type: carddomain.TransactionStampIssued, StampCount: 2, OccurredAt: now.AddDate(0, -1, 0), CreatedAt: now},
		{ID: f.node.Generate(), OrgID: f.orgID, CardID: cardID, ProgramID: program.ID, Type: carddomain.TransactionPointsAdded, PointsAmount: 40.5, OccurredAt: now, CreatedAt: now},
		{ID: f.node.Generate(), OrgID: f.orgID, CardID: cardID, ProgramID: program.ID, Type: carddomain.TransactionRewardRedeemed, RewardID: &rewardID, StampCount: -4, OccurredAt: now, CreatedAt: now},
		{ID: f.node.Generate(), OrgID: f.orgID, CardID: cardID, ProgramID: program.ID, Type: carddomain.TransactionRewardRedeemed, RewardID: &rewardID, StampCount: -4, OccurredAt: now.AddDate(0, -2, 0), CreatedAt: now},
	}
	for i := range ledger {
		require.NoError(t, f.db.Create(&ledger[i]).Error)
	}

	analytics, err = f.svc.GetAnalytics(f.ctx(), domain.GetAnalyticsRequest{ProgramID: program.ID.String()})
	require.NoError(t, err)

	assert.Equal(t, int64(2), analytics.CardsByStatus["active"])
	assert.Equal(t, int64(1), analytics.CardsByStatus["expired"])
	assert.Equal(t, int64(5), analytics.StampsIssued)
	assert.Equal(t, 40.5, analytics.PointsAdded)
	assert.Equal(t, int64(2), analytics.RewardsRedeemed)

	require.Len(t, analytics.RedemptionsByMonth, 12)
	byMonth := make(map[string]int64, 12)
	for _, bucket := range analytics.RedemptionsByMonth {
		byMonth[bucket.Month] = bucket.Count
	}
	assert.Equal(t, int64(1), byMonth[now.Format("2006-01")])
	assert.Equal(t, int64(1), byMonth[now.AddDate(0, -2, 0).Format("2006-01")])
}

func TestGetAnalytics_UnknownProgram(t *testing.T) {
	f := setupProgramService(t)

	_, err := f.svc.GetAnalytics(f.ctx(), domain.GetAnalyticsRequest{ProgramID: f.node.Generate().String()})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

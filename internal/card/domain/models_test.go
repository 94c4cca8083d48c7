package domain

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	programdomain "github.com/smallbiznis/perkly/internal/program/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

func activeCard(status CardStatus) *LoyaltyCard {
	return &LoyaltyCard{
		ID:         snowflake.ID(101),
		OrgID:      snowflake.ID(1),
		ProgramID:  snowflake.ID(201),
		CustomerID: snowflake.ID(301),
		Status:     status,
	}
}

func TestIssueStamps(t *testing.T) {
	card := activeCard(CardStatusActive)

	trx, err := card.IssueStamps(programdomain.ProgramTypeStamp, 3, 25.0, nil, "coffee", testNow)
	require.NoError(t, err)

	assert.Equal(t, 3, card.StampCount)
	assert.Equal(t, TransactionStampIssued, trx.Type)
	assert.Equal(t, 3, trx.StampCount)
	assert.Equal(t, 25.0, trx.Amount)
	assert.Equal(t, card.ID, trx.CardID)
	assert.Equal(t, testNow, trx.OccurredAt)

	// Issuing again accumulates; the operation is not idempotent.
	_, err = card.IssueStamps(programdomain.ProgramTypeStamp, 3, 25.0, nil, "", testNow)
	require.NoError(t, err)
	assert.Equal(t, 6, card.StampCount)
}

func TestIssueStamps_Guards(t *testing.T) {
	card := activeCard(CardStatusActive)

	_, err := card.IssueStamps(programdomain.ProgramTypePoints, 1, 0, nil, "", testNow)
	assert.ErrorIs(t, err, ErrInvalidOperation)

	_, err = card.IssueStamps(programdomain.ProgramTypeStamp, 0, 0, nil, "", testNow)
	assert.ErrorIs(t, err, ErrInvalidCount)

	suspended := activeCard(CardStatusSuspended)
	_, err = suspended.IssueStamps(programdomain.ProgramTypeStamp, 1, 0, nil, "", testNow)
	assert.ErrorIs(t, err, ErrCardNotActive)

	expired := activeCard(CardStatusExpired)
	_, err = expired.IssueStamps(programdomain.ProgramTypeStamp, 1, 0, nil, "", testNow)
	assert.ErrorIs(t, err, ErrCardNotActive)

	// No guard failure touched the balance.
	assert.Equal(t, 0, card.StampCount)
}

func TestAddPoints(t *testing.T) {
	card := activeCard(CardStatusActive)

	trx, err := card.AddPoints(programdomain.ProgramTypePoints, 12.5, 125.0, nil, "", testNow)
	require.NoError(t, err)

	assert.Equal(t, 12.5, card.PointsBalance)
	assert.Equal(t, TransactionPointsAdded, trx.Type)
	assert.Equal(t, 12.5, trx.PointsAmount)
	assert.Equal(t, 125.0, trx.Amount)
}

func TestAddPoints_Guards(t *testing.T) {
	card := activeCard(CardStatusActive)

	_, err := card.AddPoints(programdomain.ProgramTypeStamp, 10, 0, nil, "", testNow)
	assert.ErrorIs(t, err, ErrInvalidOperation)

	_, err = card.AddPoints(programdomain.ProgramTypePoints, 0, 0, nil, "", testNow)
	assert.ErrorIs(t, err, ErrInvalidPoints)

	_, err = card.AddPoints(programdomain.ProgramTypePoints, -5, 0, nil, "", testNow)
	assert.ErrorIs(t, err, ErrInvalidPoints)

	assert.Equal(t, 0.0, card.PointsBalance)
}

func TestRedeemReward_Stamps(t *testing.T) {
	card := activeCard(CardStatusActive)
	card.StampCount = 10
	rewardID := snowflake.ID(401)

	trx, err := card.RedeemReward(programdomain.ProgramTypeStamp, rewardID, 4, nil, testNow)
	require.NoError(t, err)

	assert.Equal(t, 6, card.StampCount)
	assert.Equal(t, TransactionRewardRedeemed, trx.Type)
	assert.Equal(t, -4, trx.StampCount)
	require.NotNil(t, trx.RewardID)
	assert.Equal(t, rewardID, *trx.RewardID)
}

func TestRedeemReward_InsufficientStamps(t *testing.T) {
	card := activeCard(CardStatusActive)
	card.StampCount = 3

	_, err := card.RedeemReward(programdomain.ProgramTypeStamp, snowflake.ID(401), 4, nil, testNow)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, 3, card.StampCount)
}

func TestRedeemReward_FractionalStampCost(t *testing.T) {
	card := activeCard(CardStatusActive)
	card.StampCount = 10

	_, err := card.RedeemReward(programdomain.ProgramTypeStamp, snowflake.ID(401), 2.5, nil, testNow)
	assert.ErrorIs(t, err, ErrInvalidRequiredValue)
	assert.Equal(t, 10, card.StampCount)
}

func TestRedeemReward_Points(t *testing.T) {
	card := activeCard(CardStatusActive)
	card.PointsBalance = 50.5

	trx, err := card.RedeemReward(programdomain.ProgramTypePoints, snowflake.ID(402), 20.25, nil, testNow)
	require.NoError(t, err)

	assert.Equal(t, 30.25, card.PointsBalance)
	assert.Equal(t, -20.25, trx.PointsAmount)

	// Balance never goes negative.
	_, err = card.RedeemReward(programdomain.ProgramTypePoints, snowflake.ID(402), 31, nil, testNow)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, 30.25, card.PointsBalance)
}

func TestRedeemReward_NotActive(t *testing.T) {
	card := activeCard(CardStatusSuspended)
	card.StampCount = 10

	_, err := card.RedeemReward(programdomain.ProgramTypeStamp, snowflake.ID(401), 4, nil, testNow)
	assert.ErrorIs(t, err, ErrCardNotActive)
}

func TestStatusTransitions(t *testing.T) {
	card := activeCard(CardStatusActive)

	require.NoError(t, card.Suspend(testNow))
	assert.Equal(t, CardStatusSuspended, card.Status)

	assert.ErrorIs(t, card.Suspend(testNow), ErrCardNotActive)

	require.NoError(t, card.Reactivate(testNow))
	assert.Equal(t, CardStatusActive, card.Status)

	assert.ErrorIs(t, card.Reactivate(testNow), ErrCardNotSuspended)

	require.NoError(t, card.Expire(testNow))
	assert.Equal(t, CardStatusExpired, card.Status)

	// Expired is terminal.
	assert.ErrorIs(t, card.Reactivate(testNow), ErrCardNotSuspended)
	assert.ErrorIs(t, card.Expire(testNow), ErrCardExpired)
}

func TestSuspendKeepsBalances(t *testing.T) {
	card := activeCard(CardStatusActive)
	card.StampCount = 7
	card.PointsBalance = 3.5

	require.NoError(t, card.Suspend(testNow))
	assert.Equal(t, 7, card.StampCount)
	assert.Equal(t, 3.5, card.PointsBalance)
}

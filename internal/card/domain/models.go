// Package domain contains the loyalty card state machine and its ledger.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	programdomain "github.com/smallbiznis/perkly/internal/program/domain"
	"gorm.io/datatypes"
)

// CardStatus is the card lifecycle state.
type CardStatus string

const (
	CardStatusActive    CardStatus = "active"
	CardStatusSuspended CardStatus = "suspended"
	CardStatusExpired   CardStatus = "expired"
)

// TransactionType tags a ledger entry.
type TransactionType string

const (
	TransactionStampIssued    TransactionType = "stamp_issued"
	TransactionPointsAdded    TransactionType = "points_added"
	TransactionRewardRedeemed TransactionType = "reward_redeemed"
)

// LoyaltyCard is a customer's enrollment in a program. Version backs the
// optimistic concurrency check on every balance mutation: writers update
// WHERE id = ? AND version = ? and bump version by one.
type LoyaltyCard struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrgID         snowflake.ID      `gorm:"not null;index" json:"organization_id"`
	ProgramID     snowflake.ID      `gorm:"not null;uniqueIndex:idx_cards_program_customer,priority:1" json:"program_id"`
	CustomerID    snowflake.ID      `gorm:"not null;uniqueIndex:idx_cards_program_customer,priority:2" json:"customer_id"`
	QRCode        string            `gorm:"not null;uniqueIndex" json:"qr_code"`
	Status        CardStatus        `gorm:"type:text;not null;default:'active';index" json:"status"`
	StampCount    int               `gorm:"not null;default:0" json:"stamp_count"`
	PointsBalance float64           `gorm:"not null;default:0" json:"points_balance"`
	Version       int64             `gorm:"not null;default:0" json:"version"`
	IssuedAt      time.Time         `gorm:"not null" json:"issued_at"`
	ExpiresAt     *time.Time        `gorm:"index" json:"expires_at,omitempty"`
	Metadata      datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (LoyaltyCard) TableName() string { return "loyalty_cards" }

// Transaction is an append-only ledger entry. Every balance mutation on a
// card produces exactly one row; rows are never updated or deleted.
type Transaction struct {
	ID           snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrgID        snowflake.ID    `gorm:"not null;index" json:"organization_id"`
	CardID       snowflake.ID    `gorm:"not null;index" json:"card_id"`
	ProgramID    snowflake.ID    `gorm:"not null;index" json:"program_id"`
	StoreID      *snowflake.ID   `json:"store_id,omitempty"`
	Type         TransactionType `gorm:"type:text;not null" json:"type"`
	StampCount   int             `gorm:"not null;default:0" json:"stamp_count"`
	PointsAmount float64         `gorm:"not null;default:0" json:"points_amount"`
	Amount       float64         `gorm:"not null;default:0" json:"amount"`
	RewardID     *snowflake.ID   `json:"reward_id,omitempty"`
	Note         string          `json:"note,omitempty"`
	OccurredAt   time.Time       `gorm:"not null;index" json:"occurred_at"`
	CreatedAt    time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Transaction) TableName() string { return "loyalty_transactions" }

// IssueStamps adds count stamps to an active stamp card and returns the
// ledger entry describing the mutation. The caller assigns IDs and persists
// both sides atomically.
func (c *LoyaltyCard) IssueStamps(programType programdomain.ProgramType, count int, amount float64, storeID *snowflake.ID, note string, now time.Time) (Transaction, error) {
	if programType != programdomain.ProgramTypeStamp {
		return Transaction{}, ErrInvalidOperation
	}
	if c.Status != CardStatusActive {
		return Transaction{}, ErrCardNotActive
	}
	if count <= 0 {
		return Transaction{}, ErrInvalidCount
	}

	c.StampCount += count
	c.UpdatedAt = now

	return Transaction{
		OrgID:      c.OrgID,
		CardID:     c.ID,
		ProgramID:  c.ProgramID,
		StoreID:    storeID,
		Type:       TransactionStampIssued,
		StampCount: count,
		Amount:     amount,
		Note:       note,
		OccurredAt: now,
	}, nil
}

// AddPoints credits points to an active points card.
func (c *LoyaltyCard) AddPoints(programType programdomain.ProgramType, points, amount float64, storeID *snowflake.ID, note string, now time.Time) (Transaction, error) {
	if programType != programdomain.ProgramTypePoints {
		return Transaction{}, ErrInvalidOperation
	}
	if c.Status != CardStatusActive {
		return Transaction{}, ErrCardNotActive
	}
	if points <= 0 {
		return Transaction{}, ErrInvalidPoints
	}

	c.PointsBalance += points
	c.UpdatedAt = now

	return Transaction{
		OrgID:        c.OrgID,
		CardID:       c.ID,
		ProgramID:    c.ProgramID,
		StoreID:      storeID,
		Type:         TransactionPointsAdded,
		PointsAmount: points,
		Amount:       amount,
		Note:         note,
		OccurredAt:   now,
	}, nil
}

// RedeemReward debits the balance the program type accrues. Stamp cards pay
// with whole stamps, points cards with points; the balance never goes
// negative.
func (c *LoyaltyCard) RedeemReward(programType programdomain.ProgramType, rewardID snowflake.ID, requiredValue float64, storeID *snowflake.ID, now time.Time) (Transaction, error) {
	if c.Status != CardStatusActive {
		return Transaction{}, ErrCardNotActive
	}

	tx := Transaction{
		OrgID:      c.OrgID,
		CardID:     c.ID,
		ProgramID:  c.ProgramID,
		StoreID:    storeID,
		Type:       TransactionRewardRedeemed,
		RewardID:   &rewardID,
		OccurredAt: now,
	}

	switch programType {
	case programdomain.ProgramTypeStamp:
		cost := int(requiredValue)
		if cost <= 0 || float64(cost) != requiredValue {
			return Transaction{}, ErrInvalidRequiredValue
		}
		if c.StampCount < cost {
			return Transaction{}, ErrInsufficientBalance
		}
		c.StampCount -= cost
		tx.StampCount = -cost
	case programdomain.ProgramTypePoints:
		if requiredValue <= 0 {
			return Transaction{}, ErrInvalidRequiredValue
		}
		if c.PointsBalance < requiredValue {
			return Transaction{}, ErrInsufficientBalance
		}
		c.PointsBalance -= requiredValue
		tx.PointsAmount = -requiredValue
	default:
		return Transaction{}, ErrInvalidOperation
	}

	c.UpdatedAt = now
	return tx, nil
}

// Suspend moves an active card to suspended. Balances are untouched.
func (c *LoyaltyCard) Suspend(now time.Time) error {
	if c.Status != CardStatusActive {
		return ErrCardNotActive
	}
	c.Status = CardStatusSuspended
	c.UpdatedAt = now
	return nil
}

// Reactivate moves a suspended card back to active. Expired cards stay
// expired.
func (c *LoyaltyCard) Reactivate(now time.Time) error {
	if c.Status != CardStatusSuspended {
		return ErrCardNotSuspended
	}
	c.Status = CardStatusActive
	c.UpdatedAt = now
	return nil
}

// Expire is terminal: there is no transition out of expired.
func (c *LoyaltyCard) Expire(now time.Time) error {
	if c.Status == CardStatusExpired {
		return ErrCardExpired
	}
	c.Status = CardStatusExpired
	c.UpdatedAt = now
	return nil
}

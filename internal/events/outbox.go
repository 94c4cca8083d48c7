package events

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/perkly/pkg/repository"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Event types emitted by the card lifecycle.
const (
	EventCardCreated    = "card.created"
	EventStampsIssued   = "card.stamps_issued"
	EventPointsAdded    = "card.points_added"
	EventRewardRedeemed = "card.reward_redeemed"
	EventCardExpired    = "card.expired"
)

// Event is a domain event headed for the outbox.
type Event struct {
	OrgID     snowflake.ID
	Type      string
	Payload   map[string]any
	DedupeKey string
}

// Record is a persisted outbox row.
type Record struct {
	ID        snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID      `gorm:"not null;index" json:"org_id"`
	EventType string            `gorm:"not null" json:"event_type"`
	Payload   datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"payload"`
	DedupeKey string            `gorm:"index" json:"dedupe_key,omitempty"`
	Published bool              `gorm:"not null;default:false;index" json:"published"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Record) TableName() string { return "loyalty_events" }

// Outbox writes events to the loyalty_events table. Publish takes the caller's
// transaction handle so the event row commits or rolls back with the state
// change it describes.
type Outbox struct {
	genID   *snowflake.Node
	records repository.Repository[Record]
}

func NewOutbox(db *gorm.DB, genID *snowflake.Node) *Outbox {
	return &Outbox{
		genID:   genID,
		records: repository.ProvideStore[Record](db),
	}
}

func (o *Outbox) Publish(ctx context.Context, tx *gorm.DB, event Event) error {
	if o == nil || tx == nil {
		return nil
	}

	payload := datatypes.JSONMap{}
	for k, v := range event.Payload {
		payload[k] = v
	}

	record := Record{
		ID:        o.genID.Generate(),
		OrgID:     event.OrgID,
		EventType: event.Type,
		Payload:   payload,
		DedupeKey: event.DedupeKey,
		Published: false,
		CreatedAt: time.Now().UTC(),
	}
	return o.records.WithTrx(tx).Create(ctx, &record)
}

// FetchUnpublished returns the oldest undelivered rows.
func FetchUnpublished(ctx context.Context, db *gorm.DB, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	var records []Record
	err := db.WithContext(ctx).
		Where("published = ?", false).
		Order("created_at asc, id asc").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// MarkPublished flips delivered rows so they are not re-dispatched.
func MarkPublished(ctx context.Context, db *gorm.DB, ids []snowflake.ID) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Model(&Record{}).
		Where("id IN ?", ids).
		Update("published", true).Error
}

package events

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupOutbox(t *testing.T) (*gorm.DB, *Outbox, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&Record{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return db, NewOutbox(db, node), node
}

func TestPublish_RollsBackWithTransaction(t *testing.T) {
	db, outbox, node := setupOutbox(t)
	ctx := context.Background()
	orgID := node.Generate()

	boom := errors.New("boom")
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := outbox.Publish(ctx, tx, Event{
			OrgID:   orgID,
			Type:    EventCardCreated,
			Payload: map[string]any{"card_id": "1"},
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	records, err := FetchUnpublished(ctx, db, 10)
	require.NoError(t, err)
	assert.Empty(t, records)

	// A committed transaction leaves the row behind.
	err = db.Transaction(func(tx *gorm.DB) error {
		return outbox.Publish(ctx, tx, Event{
			OrgID:   orgID,
			Type:    EventCardCreated,
			Payload: map[string]any{"card_id": "2"},
		})
	})
	require.NoError(t, err)

	records, err = FetchUnpublished(ctx, db, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, EventCardCreated, records[0].EventType)
	assert.Equal(t, "2", records[0].Payload["card_id"])
}

func TestDispatch_DeliversAndMarksPublished(t *testing.T) {
	db, outbox, node := setupOutbox(t)
	ctx := context.Background()
	orgID := node.Generate()

	for i := 0; i < 3; i++ {
		require.NoError(t, outbox.Publish(ctx, db, Event{
			OrgID:   orgID,
			Type:    EventStampsIssued,
			Payload: map[string]any{"seq": i},
		}))
	}

	dispatcher := NewDispatcher(db, zap.NewNop())
	var seen []Record
	dispatcher.Subscribe(EventStampsIssued, func(ctx context.Context, record Record) error {
		seen = append(seen, record)
		return nil
	})

	delivered, err := dispatcher.Dispatch(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, delivered)
	assert.Len(t, seen, 3)

	// Nothing left to deliver.
	delivered, err = dispatcher.Dispatch(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, delivered)
}

func TestDispatch_FailedHandlerLeavesRowForRetry(t *testing.T) {
	db, outbox, node := setupOutbox(t)
	ctx := context.Background()

	require.NoError(t, outbox.Publish(ctx, db, Event{
		OrgID: node.Generate(),
		Type:  EventCardExpired,
	}))

	dispatcher := NewDispatcher(db, zap.NewNop())
	attempts := 0
	dispatcher.Subscribe(EventCardExpired, func(ctx context.Context, record Record) error {
		attempts++
		if attempts == 1 {
			return errors.New("downstream unavailable")
		}
		return nil
	})

	delivered, err := dispatcher.Dispatch(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, delivered)

	delivered, err = dispatcher.Dispatch(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 2, attempts)
}

func TestDispatch_NoHandlerMarksPublished(t *testing.T) {
	db, outbox, node := setupOutbox(t)
	ctx := context.Background()

	require.NoError(t, outbox.Publish(ctx, db, Event{
		OrgID: node.Generate(),
		Type:  EventPointsAdded,
	}))

	dispatcher := NewDispatcher(db, zap.NewNop())
	delivered, err := dispatcher.Dispatch(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)

	records, err := FetchUnpublished(ctx, db, 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

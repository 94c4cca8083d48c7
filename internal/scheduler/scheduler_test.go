package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	carddomain "github.com/smallbiznis/perkly/internal/card/domain"
	"github.com/smallbiznis/perkly/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubCardService struct {
	carddomain.Service

	calls   int
	limits  []int
	expired int
	err     error
}

func (s *stubCardService) ExpireDue(ctx context.Context, limit int) (int, error) {
	s.calls++
	s.limits = append(s.limits, limit)
	return s.expired, s.err
}

func setupDispatcher(t *testing.T) (*gorm.DB, *events.Dispatcher, *events.Outbox) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&events.Record{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return db, events.NewDispatcher(db, zap.NewNop()), events.NewOutbox(db, node)
}

func TestSweepExpired(t *testing.T) {
	cards := &stubCardService{expired: 3}
	_, dispatcher, _ := setupDispatcher(t)
	s := New(zap.NewNop(), cards, dispatcher, nil)

	s.SweepExpired(context.Background())

	assert.Equal(t, 1, cards.calls)
	// Without an operator override the default batch size applies.
	require.Len(t, cards.limits, 1)
	assert.Equal(t, 200, cards.limits[0])
}

func TestSweepExpired_ErrorDoesNotPanic(t *testing.T) {
	cards := &stubCardService{err: errors.New("db down")}
	_, dispatcher, _ := setupDispatcher(t)
	s := New(zap.NewNop(), cards, dispatcher, nil)

	s.SweepExpired(context.Background())
	assert.Equal(t, 1, cards.calls)
}

func TestDispatchOutbox(t *testing.T) {
	db, dispatcher, outbox := setupDispatcher(t)
	cards := &stubCardService{}
	s := New(zap.NewNop(), cards, dispatcher, nil)
	ctx := context.Background()

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	require.NoError(t, outbox.Publish(ctx, db, events.Event{
		OrgID: node.Generate(),
		Type:  events.EventCardCreated,
	}))

	delivered := 0
	dispatcher.Subscribe(events.EventCardCreated, func(ctx context.Context, record events.Record) error {
		delivered++
		return nil
	})

	s.DispatchOutbox(ctx)
	assert.Equal(t, 1, delivered)

	records, err := events.FetchUnpublished(ctx, db, 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRun_TicksBothJobs(t *testing.T) {
	db, dispatcher, outbox := setupDispatcher(t)
	cards := &stubCardService{}
	s := New(zap.NewNop(), cards, dispatcher, nil)
	s.expiryInterval = 5 * time.Millisecond
	s.dispatchInterval = 5 * time.Millisecond

	ctx := context.Background()
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	require.NoError(t, outbox.Publish(ctx, db, events.Event{
		OrgID: node.Generate(),
		Type:  events.EventCardExpired,
	}))

	runCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	s.Run(runCtx)

	assert.Greater(t, cards.calls, 0)

	records, err := events.FetchUnpublished(ctx, db, 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

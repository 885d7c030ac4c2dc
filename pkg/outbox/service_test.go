package outbox

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koipond/koipond-backend/internal/testutil"
	"github.com/koipond/koipond-backend/pkg/db/models"
	"github.com/koipond/koipond-backend/pkg/enums"
)

func TestEmitWritesEnvelope(t *testing.T) {
	conn := testutil.OpenDB(t)
	svc := NewService(NewRepository(conn), nil)
	orderID := uuid.New()
	actor := uuid.New()
	occurred := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	err := svc.Emit(context.Background(), conn, DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Actor:         &ActorRef{UserID: actor, Role: "buyer"},
		Data:          map[string]string{"total": "20.00"},
		OccurredAt:    occurred,
	})
	require.NoError(t, err)

	var row models.OutboxEvent
	require.NoError(t, conn.First(&row).Error)
	assert.Equal(t, enums.EventOrderCreated, row.EventType)
	assert.Equal(t, orderID, row.AggregateID)
	assert.Nil(t, row.PublishedAt)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &envelope))
	assert.Equal(t, envelopeVersion, envelope.Version)
	assert.NotEmpty(t, envelope.EventID)
	assert.True(t, occurred.Equal(envelope.OccurredAt))
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, actor, envelope.Actor.UserID)
	assert.JSONEq(t, `{"total":"20.00"}`, string(envelope.Data))
}

func TestEmitRejectsUnknownTypesAndMissingTx(t *testing.T) {
	conn := testutil.OpenDB(t)
	svc := NewService(NewRepository(conn), nil)

	err := svc.Emit(context.Background(), conn, DomainEvent{EventType: "order.exploded", AggregateType: enums.AggregateOrder, AggregateID: uuid.New()})
	assert.Error(t, err)

	err = svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New()})
	assert.Error(t, err)

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRepositoryLifecycle(t *testing.T) {
	conn := testutil.OpenDB(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Emit(ctx, conn, DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Data:          map[string]int{"n": i},
		}))
	}

	rows, err := repo.FetchUnpublished(ctx, conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	require.NoError(t, repo.MarkPublished(ctx, conn, rows[0].ID))
	require.NoError(t, repo.MarkFailed(ctx, conn, rows[1].ID, assert.AnError))
	require.NoError(t, repo.MarkTerminal(ctx, conn, rows[2].ID, assert.AnError, 3))

	pending, err := repo.FetchUnpublished(ctx, conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, rows[1].ID, pending[0].ID)
	assert.Equal(t, 1, pending[0].AttemptCount)
	require.NotNil(t, pending[0].LastError)

	deleted, err := repo.DeletePublishedBefore(ctx, conn, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, deleted)

	deleted, err = repo.DeletePublishedBefore(ctx, conn, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var remaining int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&remaining).Error)
	assert.Equal(t, int64(2), remaining)
}

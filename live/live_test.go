package live_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fvm/db/db"
	"fvm/live"
)

func TestMemStoreRoundTrip(t *testing.T) {
	store := live.NewMemStore()
	ctx := context.Background()

	visitID := uuid.New()
	_, err := store.GetSnapshot(ctx, visitID)
	assert.ErrorIs(t, err, live.ErrNoSnapshot)

	snap := live.Snapshot{
		VisitID:    visitID,
		Fix:        db.LocationPoint{Latitude: 25.0330, Longitude: 121.5654},
		ETASeconds: 280,
		UpdatedAt:  time.Now(),
	}
	require.NoError(t, store.SetSnapshot(ctx, snap))

	got, err := store.GetSnapshot(ctx, visitID)
	require.NoError(t, err)
	assert.Equal(t, snap.VisitID, got.VisitID)
	assert.InDelta(t, 280, got.ETASeconds, 1e-9)

	// latest write wins
	snap.ETASeconds = 120
	require.NoError(t, store.SetSnapshot(ctx, snap))
	got, err = store.GetSnapshot(ctx, visitID)
	require.NoError(t, err)
	assert.InDelta(t, 120, got.ETASeconds, 1e-9)
}

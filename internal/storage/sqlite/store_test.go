package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casthaven/troupe/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "troupe.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}

func testEntity(id string) *types.Entity {
	now := time.Now().UTC().Truncate(time.Second)
	traits := types.NewTraitVector(types.DefaultTraitKeys)
	traits[types.TraitHumor] = 0.8
	return &types.Entity{
		ID:           id,
		Name:         "Asha",
		Traits:       traits,
		Anchor:       traits.Clone(),
		SocialEnergy: 0.75,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestSaveAndGetEntity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e := testEntity("chr:a")
	require.NoError(t, store.SaveEntity(ctx, e))

	got, err := store.GetEntity(ctx, "chr:a")
	require.NoError(t, err)
	assert.Equal(t, e.Name, got.Name)
	assert.Equal(t, e.Traits, got.Traits)
	assert.Equal(t, e.Anchor, got.Anchor)
	assert.Equal(t, e.SocialEnergy, got.SocialEnergy)
	assert.True(t, got.Active)
	assert.Empty(t, got.OriginLineage)
}

func TestSaveEntityUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e := testEntity("chr:a")
	require.NoError(t, store.SaveEntity(ctx, e))

	e.Traits[types.TraitHumor] = 0.2
	e.SocialEnergy = 0.5
	e.Active = false
	require.NoError(t, store.SaveEntity(ctx, e))

	got, err := store.GetEntity(ctx, "chr:a")
	require.NoError(t, err)
	assert.Equal(t, 0.2, got.Traits[types.TraitHumor])
	assert.Equal(t, 0.5, got.SocialEnergy)
	assert.False(t, got.Active)
}

func TestSaveEntityWithLineage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e := testEntity("chr:fused")
	e.OriginLineage = []string{"chr:a", "chr:b", "chr:c"}
	require.NoError(t, store.SaveEntity(ctx, e))

	got, err := store.GetEntity(ctx, "chr:fused")
	require.NoError(t, err)
	assert.Equal(t, []string{"chr:a", "chr:b", "chr:c"}, got.OriginLineage)
	assert.True(t, got.IsFused())
}

func TestGetEntityNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetEntity(context.Background(), "chr:ghost")
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestSaveEntityValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	assert.True(t, errors.Is(store.SaveEntity(ctx, nil), types.ErrValidation))
	assert.True(t, errors.Is(store.SaveEntity(ctx, &types.Entity{}), types.ErrValidation))
}

func TestListEntitiesSorted(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"chr:c", "chr:a", "chr:b"} {
		require.NoError(t, store.SaveEntity(ctx, testEntity(id)))
	}

	entities, err := store.ListEntities(ctx)
	require.NoError(t, err)
	require.Len(t, entities, 3)
	assert.Equal(t, "chr:a", entities[0].ID)
	assert.Equal(t, "chr:b", entities[1].ID)
	assert.Equal(t, "chr:c", entities[2].ID)
}

func TestSaveAndGetEdge(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	edge := types.NewRelationshipEdge("chr:b", "chr:a", 50)
	edge.Strength = 0.6
	edge.Trust = 0.45
	edge.Familiarity = 0.3
	edge.LastInteractionAt = now
	edge.AppendHistory(types.InteractionRecord{
		InitiatorID: "chr:b",
		Valence:     0.9,
		Intensity:   0.7,
		ContextTag:  "banter",
		At:          now,
	})
	require.NoError(t, store.SaveEdge(ctx, edge))

	// Retrievable in either pair order.
	got, err := store.GetEdge(ctx, "chr:a", "chr:b")
	require.NoError(t, err)
	assert.Equal(t, "chr:b", got.Source)
	assert.Equal(t, "chr:a", got.Target)
	assert.Equal(t, 0.6, got.Strength)
	assert.Equal(t, 0.45, got.Trust)
	assert.Equal(t, 0.3, got.Familiarity)
	require.Len(t, got.History, 1)
	assert.Equal(t, "banter", got.History[0].ContextTag)

	got2, err := store.GetEdge(ctx, "chr:b", "chr:a")
	require.NoError(t, err)
	assert.Equal(t, got.Strength, got2.Strength)
}

func TestSaveEdgeUpsertByPair(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	edge := types.NewRelationshipEdge("chr:a", "chr:b", 50)
	edge.Strength = 0.2
	require.NoError(t, store.SaveEdge(ctx, edge))

	// Saving with reversed direction updates the same pair row.
	reversed := types.NewRelationshipEdge("chr:b", "chr:a", 50)
	reversed.Strength = 0.8
	require.NoError(t, store.SaveEdge(ctx, reversed))

	edges, err := store.ListEdges(ctx)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, 0.8, edges[0].Strength)
	assert.Equal(t, "chr:b", edges[0].Source)
}

func TestGetEdgeNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetEdge(context.Background(), "chr:a", "chr:b")
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestZeroTimestampsRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveEntity(ctx, testEntity("chr:a")))
	require.NoError(t, store.SaveEntity(ctx, testEntity("chr:b")))

	// A fresh edge has zero interaction and decay timestamps; they must come
	// back zero, not as a mangled epoch value.
	edge := types.NewRelationshipEdge("chr:a", "chr:b", 50)
	require.NoError(t, store.SaveEdge(ctx, edge))

	got, err := store.GetEdge(ctx, "chr:a", "chr:b")
	require.NoError(t, err)
	assert.True(t, got.LastInteractionAt.IsZero())
	assert.True(t, got.LastDecayAt.IsZero())
}

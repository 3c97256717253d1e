package vectorstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomizerhq/atomizer/internal/apptype"
	"github.com/atomizerhq/atomizer/internal/database"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := &database.Config{
		URL:           fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
		EmbeddingDims: 4,
	}
	dm, err := database.NewDBManager(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { dm.Close() })
	return NewStore(dm, &mapProvider{vectors: map[string][]float32{
		"alpha": {1, 0, 0, 0},
		"beta":  {0.9, 0.1, 0, 0},
		"gamma": {0, 1, 0, 0},
	}})
}

// mapProvider returns a fixed vector per input text.
type mapProvider struct {
	vectors map[string][]float32
}

func (p *mapProvider) Name() string    { return "map" }
func (p *mapProvider) Dimensions() int { return 4 }

func (p *mapProvider) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, 0, len(inputs))
	for _, in := range inputs {
		v, ok := p.vectors[in]
		if !ok {
			return nil, fmt.Errorf("no vector for %q", in)
		}
		out = append(out, v)
	}
	return out, nil
}

func TestQueryByIDExcludesSelfAndOrdersByDistance(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ids := map[string]string{}
	for _, text := range []string{"alpha", "beta", "gamma"} {
		id, err := store.Upsert(ctx, apptype.NamespaceAtoms, "", text,
			Metadata{RecordID: "atom-" + text, Type: apptype.TypeAtom})
		require.NoError(t, err)
		ids[text] = id
	}

	matches, err := store.QueryByID(ctx, apptype.NamespaceAtoms, ids["alpha"], 10, apptype.TypeAtom)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "atom-beta", matches[0].Metadata.RecordID, "nearest neighbor first")
	assert.Equal(t, "atom-gamma", matches[1].Metadata.RecordID)
	assert.Less(t, matches[0].Distance, matches[1].Distance)
	for _, m := range matches {
		assert.NotEqual(t, ids["alpha"], m.ID, "query vector's own row is excluded")
	}
}

func TestQueryByIDUnknownVector(t *testing.T) {
	store := newTestStore(t)
	_, err := store.QueryByID(context.Background(), apptype.NamespaceAtoms, "missing", 10, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vector not found")
}

func TestUpsertDuplicateIDReplaces(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Upsert(ctx, apptype.NamespaceAtoms, "fixed", "alpha",
		Metadata{RecordID: "atom-1", Type: apptype.TypeAtom})
	require.NoError(t, err)
	_, err = store.Upsert(ctx, apptype.NamespaceAtoms, "fixed", "gamma",
		Metadata{RecordID: "atom-1", Type: apptype.TypeAtom})
	require.NoError(t, err)

	recs, err := store.Fetch(ctx, apptype.NamespaceAtoms, []string{id})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, []float32{0, 1, 0, 0}, recs[0].Vector)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats[apptype.NamespaceAtoms])
}

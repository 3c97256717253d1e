package database

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomizerhq/atomizer/internal/apptype"
)

func newTestDB(t *testing.T) *DBManager {
	t.Helper()
	cfg := &Config{
		URL:           fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
		EmbeddingDims: 4,
	}
	dm, err := NewDBManager(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { dm.Close() })
	return dm
}

func TestCreateSourceValidation(t *testing.T) {
	db := newTestDB(t)
	err := db.CreateSource(context.Background(), &apptype.Source{Title: "T"})
	require.Error(t, err)
	var verr *apptype.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"url"}, verr.Missing)
}

func TestSourceRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	src := &apptype.Source{
		Title:         "T",
		URL:           "http://x",
		Author:        "A",
		PublishedDate: "2024-01-02",
		MainPoints:    []apptype.TextItem{{Text: "p1"}, {Text: "p2"}},
		Tags:          []string{"a", "b"},
		Category:      "cat",
	}
	require.NoError(t, db.CreateSource(ctx, src))
	require.NotEmpty(t, src.ID)

	got, err := db.GetSource(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, "T", got.Title)
	assert.Equal(t, []apptype.TextItem{{Text: "p1"}, {Text: "p2"}}, got.MainPoints)
	assert.Equal(t, []string{"a", "b"}, got.Tags)
	assert.Empty(t, got.VectorID)

	require.NoError(t, db.SetSourceVectorID(ctx, src.ID, "vec-1"))
	got, err = db.GetSource(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, "vec-1", got.VectorID)
}

func TestGetSourceNotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetSource(context.Background(), "nope")
	assert.ErrorIs(t, err, apptype.ErrNotFound)
}

func TestListSourcesPaging(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, db.CreateSource(ctx, &apptype.Source{
			Title: fmt.Sprintf("s%d", i), URL: "http://x",
		}))
	}
	page, err := db.ListSources(ctx, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.TotalDocs)
	assert.Equal(t, 3, page.TotalPages)
	assert.Len(t, page.Docs, 2)

	last, err := db.ListSources(ctx, 2, 3)
	require.NoError(t, err)
	assert.Len(t, last.Docs, 1)
}

func seedSourceAndAtoms(t *testing.T, db *DBManager, n int) (*apptype.Source, []apptype.Atom) {
	t.Helper()
	ctx := context.Background()
	src := &apptype.Source{Title: "S", URL: "http://s"}
	require.NoError(t, db.CreateSource(ctx, src))
	atoms := make([]apptype.Atom, 0, n)
	for i := 0; i < n; i++ {
		a := apptype.Atom{MainContent: fmt.Sprintf("idea %d", i), SourceID: src.ID}
		require.NoError(t, db.CreateAtom(ctx, &a))
		atoms = append(atoms, a)
	}
	return src, atoms
}

func TestCreateAtomValidation(t *testing.T) {
	db := newTestDB(t)
	err := db.CreateAtom(context.Background(), &apptype.Atom{MainContent: "x"})
	assert.Error(t, err, "atom requires a source reference")
	err = db.CreateAtom(context.Background(), &apptype.Atom{SourceID: "s"})
	assert.Error(t, err, "atom requires mainContent")
}

func TestAtomOffsetSelection(t *testing.T) {
	db := newTestDB(t)
	_, atoms := seedSourceAndAtoms(t, db, 3)
	ctx := context.Background()

	total, err := db.CountAtoms(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	seen := map[string]bool{}
	for off := int64(0); off < total; off++ {
		a, err := db.AtomAt(ctx, off)
		require.NoError(t, err)
		seen[a.ID] = true
	}
	assert.Len(t, seen, 3, "each offset addresses a distinct atom")

	excluded := atoms[0].ID
	for off := int64(0); off < total-1; off++ {
		a, err := db.AtomAtExcluding(ctx, off, excluded)
		require.NoError(t, err)
		assert.NotEqual(t, excluded, a.ID)
	}
}

func TestDeleteAtomReturnsVectorID(t *testing.T) {
	db := newTestDB(t)
	_, atoms := seedSourceAndAtoms(t, db, 1)
	ctx := context.Background()
	require.NoError(t, db.SetAtomVectorID(ctx, atoms[0].ID, "vec-9"))

	vectorID, err := db.DeleteAtom(ctx, atoms[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "vec-9", vectorID)

	_, err = db.GetAtom(ctx, atoms[0].ID)
	assert.ErrorIs(t, err, apptype.ErrNotFound)
}

func TestAtomsMissingVector(t *testing.T) {
	db := newTestDB(t)
	_, atoms := seedSourceAndAtoms(t, db, 2)
	ctx := context.Background()
	require.NoError(t, db.SetAtomVectorID(ctx, atoms[0].ID, "vec-1"))

	missing, err := db.AtomsMissingVector(ctx, 3, 10)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, atoms[1].ID, missing[0].ID)

	// Exhaust the attempt budget and the atom drops out of the scan.
	for i := 0; i < 3; i++ {
		require.NoError(t, db.BumpAtomEmbedAttempts(ctx, atoms[1].ID))
	}
	missing, err = db.AtomsMissingVector(ctx, 3, 10)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestSynthesizedAtomRoundTrip(t *testing.T) {
	db := newTestDB(t)
	_, atoms := seedSourceAndAtoms(t, db, 2)
	ctx := context.Background()

	sa := &apptype.SynthesizedAtom{
		Title:          "S",
		MainContent:    "combined",
		SupportingInfo: []apptype.TextItem{{Text: "why"}},
		TheoryFiction:  "scenario",
		ParentAtomA:    atoms[0].ID,
		ParentAtomB:    atoms[1].ID,
		MethodID:       "m1",
	}
	require.NoError(t, db.CreateSynthesizedAtom(ctx, sa))

	got, err := db.GetSynthesizedAtom(ctx, sa.ID)
	require.NoError(t, err)
	assert.Equal(t, atoms[0].ID, got.ParentAtomA)
	assert.False(t, got.Posted)

	require.NoError(t, db.MarkSynthesizedAtomPosted(ctx, sa.ID, "https://t/1", ""))
	got, err = db.GetSynthesizedAtom(ctx, sa.ID)
	require.NoError(t, err)
	assert.True(t, got.Posted)
	assert.Equal(t, "https://t/1", got.TwitterURL)
}

func TestCreateSynthesizedAtomRequiresParents(t *testing.T) {
	db := newTestDB(t)
	err := db.CreateSynthesizedAtom(context.Background(), &apptype.SynthesizedAtom{
		Title: "S", MainContent: "c",
	})
	assert.Error(t, err)
}

func TestSeedSynthesisMethodsIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	methods := []apptype.SynthesisMethod{
		{ID: "m1", Title: "One", MethodKey: "one"},
		{ID: "m2", Title: "Two", MethodKey: "two"},
	}
	require.NoError(t, db.SeedSynthesisMethods(ctx, methods))
	require.NoError(t, db.SeedSynthesisMethods(ctx, methods))

	got, err := db.ListSynthesisMethods(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	byKey, err := db.GetSynthesisMethodByKey(ctx, "two")
	require.NoError(t, err)
	assert.Equal(t, "m2", byKey.ID)
}

func TestIngestJobTransitions(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.CreateIngestJob(ctx, "src-1"))

	job, err := db.GetIngestJob(ctx, "src-1")
	require.NoError(t, err)
	assert.Equal(t, apptype.JobQueued, job.State)

	require.NoError(t, db.SetIngestJobState(ctx, "src-1", apptype.JobAtomsExtracting, ""))
	require.NoError(t, db.SetIngestJobState(ctx, "src-1", apptype.JobFailed, "llm unavailable"))

	job, err = db.GetIngestJob(ctx, "src-1")
	require.NoError(t, err)
	assert.Equal(t, apptype.JobFailed, job.State)
	assert.Equal(t, "llm unavailable", job.Error)

	// Re-creating the job resets it to queued with a clean error.
	require.NoError(t, db.CreateIngestJob(ctx, "src-1"))
	job, err = db.GetIngestJob(ctx, "src-1")
	require.NoError(t, err)
	assert.Equal(t, apptype.JobQueued, job.State)
	assert.Empty(t, job.Error)
}

func TestPostPlatformUpdates(t *testing.T) {
	db := newTestDB(t)
	_, atoms := seedSourceAndAtoms(t, db, 2)
	ctx := context.Background()
	sa := &apptype.SynthesizedAtom{
		Title: "S", MainContent: "c", ParentAtomA: atoms[0].ID, ParentAtomB: atoms[1].ID,
	}
	require.NoError(t, db.CreateSynthesizedAtom(ctx, sa))

	post := &apptype.Post{
		SynthesizedAtomID: sa.ID,
		Content:           []apptype.TextItem{{Text: "one"}, {Text: "two"}},
	}
	require.NoError(t, db.CreatePost(ctx, post))

	require.NoError(t, db.UpdatePostPlatform(ctx, post.ID, "twitter", apptype.PlatformPost{
		Posted: true, URL: "https://t/1", PostID: "1",
	}))
	got, err := db.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.True(t, got.Twitter.Posted)
	assert.Equal(t, "1", got.Twitter.PostID)
	assert.False(t, got.Bsky.Posted)
	assert.Len(t, got.Content, 2)
}

func TestPageBounds(t *testing.T) {
	l, p, offset, totalPages := pageBounds(10, 2, 25)
	assert.Equal(t, 10, l)
	assert.Equal(t, 2, p)
	assert.Equal(t, 10, offset)
	assert.Equal(t, 3, totalPages)

	// Defaults kick in for nonsense values.
	l, p, offset, totalPages = pageBounds(0, 0, 0)
	assert.Greater(t, l, 0)
	assert.Equal(t, 1, p)
	assert.Equal(t, 0, offset)
	assert.Equal(t, 0, totalPages)
}

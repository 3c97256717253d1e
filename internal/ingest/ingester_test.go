package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomizerhq/atomizer/internal/apptype"
	"github.com/atomizerhq/atomizer/internal/database"
	"github.com/atomizerhq/atomizer/internal/llm"
)

func newTestDB(t *testing.T) *database.DBManager {
	t.Helper()
	cfg := &database.Config{
		URL:           fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
		EmbeddingDims: 4,
	}
	dm, err := database.NewDBManager(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { dm.Close() })
	return dm
}

type stubCompleter struct {
	content string
	err     error
}

func (s *stubCompleter) Complete(_ context.Context, _, _ string) (*llm.Completion, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Completion{Content: s.content, Model: "stub"}, nil
}

type stubExtractor struct {
	db  *database.DBManager
	err error
}

func (s *stubExtractor) Extract(ctx context.Context, source *apptype.Source, _ string) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	atom := &apptype.Atom{MainContent: "extracted idea", SourceID: source.ID}
	if err := s.db.CreateAtom(ctx, atom); err != nil {
		return 0, err
	}
	return 1, nil
}

const summaryJSON = `{
    "oneSentenceSummary": "A document about systems.",
    "mainPoints": ["first point", "second point"],
    "bulletSummary": "- bullet one\n- bullet two",
    "quotations": [{"text": "a quote"}]
}`

func TestIngestCreatesSourceAndAtoms(t *testing.T) {
	db := newTestDB(t)
	ing := NewIngester(db, nil, &stubCompleter{content: summaryJSON}, &stubExtractor{db: db})

	src, err := ing.Ingest(context.Background(), `---
title: "T"
url: "http://x"
---
Body text about systems.`, "cat-1")
	require.NoError(t, err)

	assert.Equal(t, "T", src.Title)
	assert.Equal(t, "http://x", src.URL)
	assert.Equal(t, "cat-1", src.Category)
	assert.Equal(t, "A document about systems.", src.OneSentenceSummary)
	// Newline-delimited bulletSummary normalizes into {text} items.
	require.Len(t, src.BulletSummary, 2)
	assert.Equal(t, "bullet one", src.BulletSummary[0].Text)

	stored, err := db.GetSource(context.Background(), src.ID)
	require.NoError(t, err)
	assert.Equal(t, "T", stored.Title)
	assert.NotEmpty(t, stored.AttachmentID)

	att, err := db.GetAttachment(context.Background(), stored.AttachmentID)
	require.NoError(t, err)
	assert.Contains(t, string(att.Data), "Body text about systems.")

	atoms, err := db.AtomsBySource(context.Background(), src.ID)
	require.NoError(t, err)
	require.NotEmpty(t, atoms)
	assert.Equal(t, src.ID, atoms[0].SourceID)

	job, err := db.GetIngestJob(context.Background(), src.ID)
	require.NoError(t, err)
	assert.Equal(t, apptype.JobAtomsComplete, job.State)
}

func TestIngestMissingURL(t *testing.T) {
	db := newTestDB(t)
	// LLM output has no url either, so validation must fail.
	ing := NewIngester(db, nil, &stubCompleter{content: `{"oneSentenceSummary": "s"}`}, &stubExtractor{db: db})

	_, err := ing.Ingest(context.Background(), "---\ntitle: T\n---\nbody", "cat-1")
	require.Error(t, err)

	var verr *apptype.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Missing, "url")
	assert.Contains(t, verr.MissingFromFrontMatter, "url")

	page, err := db.ListSources(context.Background(), 10, 1)
	require.NoError(t, err)
	assert.Empty(t, page.Docs, "no source persisted on validation failure")

	var jobs int64
	err = db.Handle().QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM ingest_jobs").Scan(&jobs)
	require.NoError(t, err)
	assert.Zero(t, jobs, "no job row persisted on validation failure")
}

func TestIngestFrontMatterWinsOverModel(t *testing.T) {
	db := newTestDB(t)
	content := `{"title": "model title", "url": "http://model", "author": "model author"}`
	ing := NewIngester(db, nil, &stubCompleter{content: content}, nil)

	src, err := ing.Ingest(context.Background(), `---
title: "FM Title"
url: "http://fm"
---
body`, "")
	require.NoError(t, err)
	assert.Equal(t, "FM Title", src.Title)
	assert.Equal(t, "http://fm", src.URL)
	assert.Equal(t, "model author", src.Author, "model fills gaps front matter leaves")
}

func TestIngestModelJSONFailureSurfacesRaw(t *testing.T) {
	db := newTestDB(t)
	ing := NewIngester(db, nil, &stubCompleter{content: "not json at all"}, nil)

	_, err := ing.Ingest(context.Background(), "---\ntitle: T\nurl: http://x\n---\nbody", "")
	require.Error(t, err)

	var moe *apptype.ModelOutputError
	require.True(t, errors.As(err, &moe))
	assert.Equal(t, "not json at all", moe.Raw)
}

func TestIngestExtractionFailureStillReturnsSource(t *testing.T) {
	db := newTestDB(t)
	ing := NewIngester(db, nil, &stubCompleter{content: summaryJSON},
		&stubExtractor{db: db, err: errors.New("extract boom")})

	src, err := ing.Ingest(context.Background(), "---\ntitle: T\nurl: http://x\n---\nbody", "")
	require.NoError(t, err, "extraction is best-effort")
	require.NotNil(t, src)

	job, err := db.GetIngestJob(context.Background(), src.ID)
	require.NoError(t, err)
	assert.Equal(t, apptype.JobFailed, job.State)
	assert.Contains(t, job.Error, "extract boom")
}

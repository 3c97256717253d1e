package extract

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

func seedSource(t *testing.T, db *database.DBManager) *apptype.Source {
	t.Helper()
	src := &apptype.Source{Title: "T", URL: "http://x"}
	require.NoError(t, db.CreateSource(context.Background(), src))
	return src
}

func TestExtractAtomsPersistsBatch(t *testing.T) {
	db := newTestDB(t)
	src := seedSource(t, db)
	content := `{"atoms": [
        {"title": "A1", "mainContent": "first idea", "supportingQuote": "q1"},
        {"title": "A2", "mainContent": "second idea"}
    ]}`
	ex := NewExtractor(db, nil, &stubCompleter{content: content})

	result, err := ex.ExtractAtoms(context.Background(), src, "raw text")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Count)

	atoms, err := db.AtomsBySource(context.Background(), src.ID)
	require.NoError(t, err)
	require.Len(t, atoms, 2)
	for _, a := range atoms {
		assert.Equal(t, src.ID, a.SourceID)
	}
}

func TestExtractAtomsSkipsEmptyContent(t *testing.T) {
	db := newTestDB(t)
	src := seedSource(t, db)
	content := `{"atoms": [
        {"title": "empty", "mainContent": "  "},
        {"title": "ok", "mainContent": "real idea"}
    ]}`
	ex := NewExtractor(db, nil, &stubCompleter{content: content})

	result, err := ex.ExtractAtoms(context.Background(), src, "raw")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count, "atom without mainContent is skipped, not fatal")
}

func TestExtractAtomsBatchParseFailure(t *testing.T) {
	db := newTestDB(t)
	src := seedSource(t, db)
	ex := NewExtractor(db, nil, &stubCompleter{content: "no json here"})

	_, err := ex.ExtractAtoms(context.Background(), src, "raw")
	require.Error(t, err)

	var moe *apptype.ModelOutputError
	require.True(t, errors.As(err, &moe))
	assert.Equal(t, "no json here", moe.Raw)

	atoms, err := db.AtomsBySource(context.Background(), src.ID)
	require.NoError(t, err)
	assert.Empty(t, atoms, "no partial persistence on batch failure")
}

func TestExtractAtomsFencedOutput(t *testing.T) {
	db := newTestDB(t)
	src := seedSource(t, db)
	content := "Here you go:\n```json\n{\"atoms\": [{\"mainContent\": \"idea\"}]}\n```"
	ex := NewExtractor(db, nil, &stubCompleter{content: content})

	result, err := ex.ExtractAtoms(context.Background(), src, "raw")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count)
}

func TestBuildExtractPromptIncludesSourceContext(t *testing.T) {
	src := &apptype.Source{Title: "T", URL: "http://x", OneSentenceSummary: "the gist"}
	prompt := buildExtractPrompt(src, "original body")
	assert.Contains(t, prompt, "T")
	assert.Contains(t, prompt, "http://x")
	assert.Contains(t, prompt, "the gist")
	assert.Contains(t, prompt, "original body")
}

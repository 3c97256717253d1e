package synthesis

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

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
	calls   []string
}

func (s *stubCompleter) Complete(_ context.Context, _, user string) (*llm.Completion, error) {
	s.calls = append(s.calls, user)
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Completion{Content: s.content, Model: "stub"}, nil
}

func seedAtoms(t *testing.T, db *database.DBManager, n int) []apptype.Atom {
	t.Helper()
	src := &apptype.Source{Title: "S", URL: "http://s"}
	require.NoError(t, db.CreateSource(context.Background(), src))
	out := make([]apptype.Atom, 0, n)
	for i := 0; i < n; i++ {
		a := apptype.Atom{
			Title:       fmt.Sprintf("atom %d", i),
			MainContent: fmt.Sprintf("idea %d", i),
			SourceID:    src.ID,
		}
		require.NoError(t, db.CreateAtom(context.Background(), &a))
		out = append(out, a)
	}
	return out
}

func TestSelectPairRandomWithoutVectors(t *testing.T) {
	db := newTestDB(t)
	seedAtoms(t, db, 3)
	e := NewEngine(db, nil, &stubCompleter{}, WithRand(rand.New(rand.NewSource(1))))

	pair, err := e.SelectPair(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PairMethodRandom, pair.Method)
	require.NotNil(t, pair.AtomB)
	assert.NotEqual(t, pair.AtomA.ID, pair.AtomB.ID)
}

func TestSelectPairNeedsTwoAtoms(t *testing.T) {
	db := newTestDB(t)
	seedAtoms(t, db, 1)
	e := NewEngine(db, nil, &stubCompleter{})

	_, err := e.SelectPair(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 2 atoms")
}

const goodSynthesisJSON = `{
    "title": "Combined Concept",
    "mainContent": "the combination",
    "supportingInfo": [{"text": "why it holds"}],
    "theoryFiction": "a short scenario"
}`

func TestSynthesizeParsesModelOutput(t *testing.T) {
	db := newTestDB(t)
	atoms := seedAtoms(t, db, 2)
	e := NewEngine(db, nil, &stubCompleter{content: goodSynthesisJSON})
	method := &apptype.SynthesisMethod{ID: "m1", MethodKey: MethodDualDissimilar}

	sa, err := e.Synthesize(context.Background(), &atoms[0], &atoms[1], method)
	require.NoError(t, err)
	assert.Equal(t, "Combined Concept", sa.Title)
	assert.Equal(t, "the combination", sa.MainContent)
	assert.Equal(t, "a short scenario", sa.TheoryFiction)
	assert.Equal(t, atoms[0].ID, sa.ParentAtomA)
	assert.Equal(t, atoms[1].ID, sa.ParentAtomB)
	assert.Equal(t, "m1", sa.MethodID)
	assert.Empty(t, sa.ID, "candidate is not persisted until saved")
}

func TestSynthesizeDegradesOnMalformedJSON(t *testing.T) {
	db := newTestDB(t)
	atoms := seedAtoms(t, db, 2)
	raw := "The two ideas resist combination entirely, but here is my attempt in prose."
	e := NewEngine(db, nil, &stubCompleter{content: raw})
	method := &apptype.SynthesisMethod{ID: "m1", MethodKey: MethodContrast}

	sa, err := e.Synthesize(context.Background(), &atoms[0], &atoms[1], method)
	require.NoError(t, err, "parse failure degrades instead of erroring")
	assert.Equal(t, "Synthesized Concept", sa.Title)
	assert.Equal(t, raw, sa.MainContent)
	require.Len(t, sa.SupportingInfo, 1)
	assert.Contains(t, sa.SupportingInfo[0].Text, "could not be parsed")
}

func TestSynthesizeDegradedTruncatesAt200(t *testing.T) {
	db := newTestDB(t)
	atoms := seedAtoms(t, db, 2)
	long := ""
	for i := 0; i < 50; i++ {
		long += "abcdefgh"
	}
	e := NewEngine(db, nil, &stubCompleter{content: long})
	method := &apptype.SynthesisMethod{ID: "m1", MethodKey: MethodDualDissimilar}

	sa, err := e.Synthesize(context.Background(), &atoms[0], &atoms[1], method)
	require.NoError(t, err)
	assert.Len(t, sa.MainContent, 200)
}

func TestSynthesizeDegradedKeepsRunesIntact(t *testing.T) {
	db := newTestDB(t)
	atoms := seedAtoms(t, db, 2)
	long := strings.Repeat("é", 250)
	e := NewEngine(db, nil, &stubCompleter{content: long})
	method := &apptype.SynthesisMethod{ID: "m1", MethodKey: MethodDualDissimilar}

	sa, err := e.Synthesize(context.Background(), &atoms[0], &atoms[1], method)
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(sa.MainContent), "truncation must not split a rune")
	assert.Equal(t, 200, utf8.RuneCountInString(sa.MainContent))
}

func TestSelectPairConcurrent(t *testing.T) {
	db := newTestDB(t)
	seedAtoms(t, db, 5)
	e := NewEngine(db, nil, &stubCompleter{}, WithRand(rand.New(rand.NewSource(1))))

	var wg sync.WaitGroup
	errs := make(chan error, 8*25)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				if _, err := e.SelectPair(context.Background()); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func TestSynthesizeUnknownMethodKey(t *testing.T) {
	db := newTestDB(t)
	atoms := seedAtoms(t, db, 2)
	e := NewEngine(db, nil, &stubCompleter{content: goodSynthesisJSON})

	_, err := e.Synthesize(context.Background(), &atoms[0], &atoms[1],
		&apptype.SynthesisMethod{ID: "m9", MethodKey: "nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown synthesis method")
}

func TestSynthesizeDeterministicForFixedResponse(t *testing.T) {
	db := newTestDB(t)
	atoms := seedAtoms(t, db, 2)
	method := &apptype.SynthesisMethod{ID: "m1", MethodKey: MethodDualDissimilar}

	e1 := NewEngine(db, nil, &stubCompleter{content: goodSynthesisJSON})
	e2 := NewEngine(db, nil, &stubCompleter{content: goodSynthesisJSON})
	a, err := e1.Synthesize(context.Background(), &atoms[0], &atoms[1], method)
	require.NoError(t, err)
	b, err := e2.Synthesize(context.Background(), &atoms[0], &atoms[1], method)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSaveAndDiscard(t *testing.T) {
	db := newTestDB(t)
	atoms := seedAtoms(t, db, 2)
	e := NewEngine(db, nil, &stubCompleter{content: goodSynthesisJSON})
	method := &apptype.SynthesisMethod{ID: "m1", MethodKey: MethodDualDissimilar}

	saved, err := e.Synthesize(context.Background(), &atoms[0], &atoms[1], method)
	require.NoError(t, err)
	discarded, err := e.Synthesize(context.Background(), &atoms[1], &atoms[0], method)
	require.NoError(t, err)
	_ = discarded // never saved; no row should exist for it

	require.NoError(t, e.Save(context.Background(), saved))
	require.NotEmpty(t, saved.ID)

	page, err := db.ListSynthesizedAtoms(context.Background(), 10, 1)
	require.NoError(t, err)
	require.Len(t, page.Docs, 1)
	assert.Equal(t, saved.ID, page.Docs[0].ID)
}

func TestSynthesisPromptIncludesSourceContext(t *testing.T) {
	db := newTestDB(t)
	atoms := seedAtoms(t, db, 2)
	stub := &stubCompleter{content: goodSynthesisJSON}
	e := NewEngine(db, nil, stub)
	method := &apptype.SynthesisMethod{ID: "m1", MethodKey: MethodTheoryFiction}

	_, err := e.Synthesize(context.Background(), &atoms[0], &atoms[1], method)
	require.NoError(t, err)
	require.Len(t, stub.calls, 1)
	assert.Contains(t, stub.calls[0], atoms[0].MainContent)
	assert.Contains(t, stub.calls[0], atoms[1].MainContent)
	assert.Contains(t, stub.calls[0], "From source: S")
}

package synthesis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/atomizerhq/atomizer/internal/apptype"
	"github.com/atomizerhq/atomizer/internal/database"
	"github.com/atomizerhq/atomizer/internal/llm"
	"github.com/atomizerhq/atomizer/internal/metrics"
	"github.com/atomizerhq/atomizer/internal/vectorstore"
)

// Pair selection method tags, reported to the caller.
const (
	PairMethodRandom         = "random"
	PairMethodVector         = "vector"
	PairMethodRandomFallback = "random-fallback"
)

// Pair is a selected atom pair with the method that chose it.
type Pair struct {
	AtomA  *apptype.Atom `json:"atomA"`
	AtomB  *apptype.Atom `json:"atomB"`
	Method string        `json:"method"`
}

// Engine selects pairs and synthesizes new atoms from them. One Engine is
// shared by all request handlers; rngMu guards the generator, which
// rand.Rand leaves unsynchronized.
type Engine struct {
	db           *database.DBManager
	store        *vectorstore.Store
	completer    llm.Completer
	poolSize     int
	candidateCap int
	rngMu        sync.Mutex
	rng          *rand.Rand
}

func (e *Engine) randInt63n(n int64) int64 {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.rng.Int63n(n)
}

func (e *Engine) randIntn(n int) int {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.rng.Intn(n)
}

// Option configures an Engine.
type Option func(*Engine)

// WithPoolSize sets how many least-similar candidates form the pick pool.
func WithPoolSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.poolSize = n
		}
	}
}

// WithCandidateCap bounds how many stored vectors are ranked per selection.
func WithCandidateCap(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.candidateCap = n
		}
	}
}

// WithRand fixes the random source, for tests.
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) { e.rng = rng }
}

// NewEngine wires the synthesis engine. store may be nil, which forces the
// uniform-random pair path.
func NewEngine(db *database.DBManager, store *vectorstore.Store, completer llm.Completer, opts ...Option) *Engine {
	e := &Engine{
		db:           db,
		store:        store,
		completer:    completer,
		poolSize:     5,
		candidateCap: 100,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SelectPair picks two atoms for synthesis. The first is uniform random;
// the second comes from the dissimilarity pool when the first atom has a
// stored vector, falling back to uniform random on any vector-path error.
func (e *Engine) SelectPair(ctx context.Context) (*Pair, error) {
	total, err := e.db.CountAtoms(ctx)
	if err != nil {
		return nil, err
	}
	if total < 2 {
		return nil, fmt.Errorf("need at least 2 atoms to synthesize, have %d", total)
	}

	atomA, err := e.db.AtomAt(ctx, e.randInt63n(total))
	if err != nil {
		return nil, err
	}

	if atomA.VectorID == "" || e.store == nil {
		atomB, err := e.randomSecond(ctx, total, atomA.ID)
		if err != nil {
			return nil, err
		}
		return &Pair{AtomA: atomA, AtomB: atomB, Method: PairMethodRandom}, nil
	}

	atomB, err := e.dissimilarSecond(ctx, atomA)
	if err != nil {
		log.Printf("Warning: vector pair selection failed, falling back to random: %v", err)
		atomB, err = e.randomSecond(ctx, total, atomA.ID)
		if err != nil {
			return nil, err
		}
		return &Pair{AtomA: atomA, AtomB: atomB, Method: PairMethodRandomFallback}, nil
	}
	return &Pair{AtomA: atomA, AtomB: atomB, Method: PairMethodVector}, nil
}

func (e *Engine) randomSecond(ctx context.Context, total int64, excludeID string) (*apptype.Atom, error) {
	return e.db.AtomAtExcluding(ctx, e.randInt63n(total-1), excludeID)
}

// dissimilarSecond ranks up to candidateCap stored atom vectors by cosine
// similarity to the first atom, takes the poolSize least similar, and picks
// one at random.
func (e *Engine) dissimilarSecond(ctx context.Context, atomA *apptype.Atom) (*apptype.Atom, error) {
	recs, err := e.store.Fetch(ctx, apptype.NamespaceAtoms, []string{atomA.VectorID})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("vector %s not found for atom %s", atomA.VectorID, atomA.ID)
	}
	base := recs[0].Vector

	stored, err := e.store.List(ctx, apptype.NamespaceAtoms, e.candidateCap)
	if err != nil {
		return nil, err
	}
	candidates := make([]vectorstore.Candidate, 0, len(stored))
	for _, r := range stored {
		if r.Metadata.Type != apptype.TypeAtom || r.Metadata.RecordID == atomA.ID || r.Metadata.RecordID == "" {
			continue
		}
		candidates = append(candidates, vectorstore.Candidate{ID: r.Metadata.RecordID, Vector: r.Vector})
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no other atom vectors stored")
	}

	pool, err := vectorstore.MostDissimilar(base, candidates, e.poolSize)
	if err != nil {
		return nil, err
	}
	pick := pool[e.randIntn(len(pool))]
	return e.db.GetAtom(ctx, pick.ID)
}

// Synthesize generates a candidate synthesized atom. The candidate is not
// persisted; callers save or discard it explicitly. Undecodable model output
// degrades to a fallback object instead of failing.
func (e *Engine) Synthesize(ctx context.Context, atomA, atomB *apptype.Atom, method *apptype.SynthesisMethod) (*apptype.SynthesizedAtom, error) {
	done := metrics.TimePipeline("synthesize")
	success := false
	defer func() { done(success) }()

	build, ok := promptRegistry[method.MethodKey]
	if !ok {
		return nil, fmt.Errorf("unknown synthesis method key: %q", method.MethodKey)
	}

	system, user := build(e.atomContext(ctx, atomA), e.atomContext(ctx, atomB))
	completion, err := e.completer.Complete(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("synthesis call failed: %w", err)
	}

	sa := &apptype.SynthesizedAtom{
		ParentAtomA: atomA.ID,
		ParentAtomB: atomB.ID,
		MethodID:    method.ID,
	}
	var payload struct {
		Title          string             `json:"title"`
		MainContent    string             `json:"mainContent"`
		SupportingInfo []apptype.TextItem `json:"supportingInfo"`
		TheoryFiction  string             `json:"theoryFiction"`
	}
	if err := llm.DecodeModelJSON(completion.Content, &payload); err != nil {
		var moe *apptype.ModelOutputError
		if !errors.As(err, &moe) {
			return nil, err
		}
		log.Printf("Warning: synthesis output not decodable, degrading: %v", err)
		degraded(sa, completion.Content)
		success = true
		return sa, nil
	}

	sa.Title = payload.Title
	sa.MainContent = payload.MainContent
	sa.SupportingInfo = payload.SupportingInfo
	sa.TheoryFiction = payload.TheoryFiction
	success = true
	return sa, nil
}

// degraded fills the fallback object from raw model text so the user can
// still see and correct what came back.
func degraded(sa *apptype.SynthesizedAtom, raw string) {
	content := raw
	if runes := []rune(content); len(runes) > 200 {
		content = string(runes[:200])
	}
	sa.Title = "Synthesized Concept"
	sa.MainContent = content
	sa.SupportingInfo = []apptype.TextItem{
		{Text: "The model response could not be parsed as JSON; this content is the raw beginning of that response."},
	}
}

// Save persists a candidate and best-effort embeds it.
func (e *Engine) Save(ctx context.Context, sa *apptype.SynthesizedAtom) error {
	if err := e.db.CreateSynthesizedAtom(ctx, sa); err != nil {
		return err
	}
	e.embed(ctx, sa)
	return nil
}

func (e *Engine) embed(ctx context.Context, sa *apptype.SynthesizedAtom) {
	if e.store == nil {
		return
	}
	vectorID, err := e.store.Upsert(ctx, apptype.NamespaceAtoms, "", EmbeddingText(sa), vectorstore.Metadata{
		RecordID:    sa.ID,
		Type:        apptype.TypeSynthesizedAtom,
		ParentAtoms: []string{sa.ParentAtomA, sa.ParentAtomB},
	})
	if err != nil {
		log.Printf("Warning: failed to embed synthesized atom %s: %v", sa.ID, err)
		if berr := e.db.BumpSynthesizedAtomEmbedAttempts(ctx, sa.ID); berr != nil {
			log.Printf("Warning: failed to bump embed attempts for %s: %v", sa.ID, berr)
		}
		return
	}
	if err := e.db.SetSynthesizedAtomVectorID(ctx, sa.ID, vectorID); err != nil {
		log.Printf("Warning: failed to record vector id for synthesized atom %s: %v", sa.ID, err)
	} else {
		sa.VectorID = vectorID
	}
}

// EmbeddingText builds the text embedded for a synthesized atom.
func EmbeddingText(sa *apptype.SynthesizedAtom) string {
	text := sa.Title + "\n" + sa.MainContent
	for _, info := range sa.SupportingInfo {
		text += "\n" + info.Text
	}
	return text
}

func (e *Engine) atomContext(ctx context.Context, atom *apptype.Atom) atomContext {
	ac := atomContext{Atom: atom}
	if atom.SourceID != "" {
		src, err := e.db.GetSource(ctx, atom.SourceID)
		if err == nil {
			ac.Source = src
		}
	}
	return ac
}

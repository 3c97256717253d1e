// Package atomizer provides a library-first API over the whole pipeline:
// ingest, extract, synthesize, project, post. The HTTP and MCP servers are
// thin layers over this Service.
package atomizer

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/atomizerhq/atomizer/internal/apptype"
	"github.com/atomizerhq/atomizer/internal/database"
	"github.com/atomizerhq/atomizer/internal/embeddings"
	"github.com/atomizerhq/atomizer/internal/extract"
	"github.com/atomizerhq/atomizer/internal/ingest"
	"github.com/atomizerhq/atomizer/internal/llm"
	"github.com/atomizerhq/atomizer/internal/projection"
	"github.com/atomizerhq/atomizer/internal/social"
	"github.com/atomizerhq/atomizer/internal/synthesis"
	"github.com/atomizerhq/atomizer/internal/vectorstore"
	"github.com/atomizerhq/atomizer/internal/worker"
)

// ErrLLMRequired is returned by operations that need a model when no API key
// was configured.
var ErrLLMRequired = errors.New("no LLM configured: set ANTHROPIC_API_KEY")

// Service wires the full pipeline over one database handle.
type Service struct {
	cfg        *Config
	db         *database.DBManager
	store      *vectorstore.Store
	completer  llm.Completer
	ingester   *ingest.Ingester
	extractor  *extract.Extractor
	engine     *synthesis.Engine
	projector  *projection.Projector
	social     *social.Service
	reconciler *worker.Reconciler
}

// NewService constructs a Service. The embeddings provider comes from the
// environment and may be absent; everything then runs CMS-only.
func NewService(cfg *Config) (*Service, error) {
	db, err := database.NewDBManager(cfg.toDatabase())
	if err != nil {
		return nil, err
	}

	provider := embeddings.WrapToDims(embeddings.NewFromEnv(), cfg.EmbeddingDims)
	var store *vectorstore.Store
	if provider != nil {
		store = vectorstore.NewStore(db, provider)
	}

	var completer llm.Completer
	if cfg.AnthropicAPIKey != "" {
		client, err := llm.NewClient(cfg.AnthropicAPIKey,
			llm.WithModel(cfg.Model),
			llm.WithMaxTokens(cfg.MaxTokens),
			llm.WithTemperature(cfg.Temperature),
			llm.WithRateLimit(cfg.LLMRatePerSec))
		if err != nil {
			db.Close()
			return nil, err
		}
		completer = client
	}

	s := &Service{cfg: cfg, db: db, store: store, completer: completer}
	s.extractor = extract.NewExtractor(db, store, completer)
	s.ingester = ingest.NewIngester(db, store, completer, s.extractor)
	s.engine = synthesis.NewEngine(db, store, completer,
		synthesis.WithPoolSize(cfg.DissimilarPoolSize),
		synthesis.WithCandidateCap(cfg.CandidateVectors))
	if store != nil {
		s.projector = projection.NewProjector(store, cfg.GraphVectorCap)
	}
	generator := social.NewGenerator(completer, cfg.BaseURL, cfg.AgentBio)
	s.social = social.NewService(db, generator, social.NewPublishers(cfg.SocialDryRun))
	s.reconciler = worker.NewReconciler(db, store, cfg.ReconcileInterval, cfg.ReconcileRetries)

	if err := db.SeedSynthesisMethods(context.Background(), synthesis.SeedMethods()); err != nil {
		log.Printf("Warning: failed to seed synthesis methods: %v", err)
	}
	return s, nil
}

// Close releases the database handle.
func (s *Service) Close() error { return s.db.Close() }

// DB exposes the database manager for servers that report pool stats.
func (s *Service) DB() *database.DBManager { return s.db }

// Reconciler returns the background embed-retry worker; callers decide
// whether to run it.
func (s *Service) Reconciler() *worker.Reconciler { return s.reconciler }

// IngestMarkdown runs the source ingestion pipeline.
func (s *Service) IngestMarkdown(ctx context.Context, markdown, category string) (*apptype.Source, error) {
	if s.completer == nil {
		return nil, ErrLLMRequired
	}
	return s.ingester.Ingest(ctx, markdown, category)
}

// SourceStatus reports ingestion progress for polling clients.
type SourceStatus struct {
	SourceID  string `json:"sourceId"`
	HasSource bool   `json:"hasSource"`
	HasAtoms  bool   `json:"hasAtoms"`
	Complete  bool   `json:"complete"`
	State     string `json:"state"`
	Message   string `json:"message"`
}

// Status reports whether a source and its atoms exist yet, plus the
// persisted job state.
func (s *Service) Status(ctx context.Context, sourceID string) (*SourceStatus, error) {
	st := &SourceStatus{SourceID: sourceID}

	job, err := s.db.GetIngestJob(ctx, sourceID)
	if err != nil && !errors.Is(err, apptype.ErrNotFound) {
		return nil, err
	}
	if job != nil {
		st.State = job.State
		st.Message = job.Error
	}

	if _, err := s.db.GetSource(ctx, sourceID); err == nil {
		st.HasSource = true
	} else if !errors.Is(err, apptype.ErrNotFound) {
		return nil, err
	}
	atoms, err := s.db.AtomsBySource(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	st.HasAtoms = len(atoms) > 0
	st.Complete = st.HasSource && st.HasAtoms
	if st.Complete && st.Message == "" {
		st.Message = "processing complete"
	}
	return st, nil
}

// ListAtoms pages over stored atoms.
func (s *Service) ListAtoms(ctx context.Context, limit, page int) (*apptype.Page[apptype.Atom], error) {
	return s.db.ListAtoms(ctx, limit, page)
}

// GetAtom fetches one atom.
func (s *Service) GetAtom(ctx context.Context, id string) (*apptype.Atom, error) {
	return s.db.GetAtom(ctx, id)
}

// DeleteAtom removes an atom and best-effort deletes its vector. Rows
// referencing the atom (synthesized atoms) are left alone.
func (s *Service) DeleteAtom(ctx context.Context, id string) error {
	vectorID, err := s.db.DeleteAtom(ctx, id)
	if err != nil {
		return err
	}
	if vectorID != "" && s.store != nil {
		if err := s.store.Delete(ctx, apptype.NamespaceAtoms, vectorID); err != nil {
			log.Printf("Warning: failed to delete vector %s for atom %s: %v", vectorID, id, err)
		}
	}
	return nil
}

// ListSources pages over stored sources.
func (s *Service) ListSources(ctx context.Context, limit, page int) (*apptype.Page[apptype.Source], error) {
	return s.db.ListSources(ctx, limit, page)
}

// GetSource fetches one source.
func (s *Service) GetSource(ctx context.Context, id string) (*apptype.Source, error) {
	return s.db.GetSource(ctx, id)
}

// SearchAtoms embeds a text query and returns the closest atoms.
func (s *Service) SearchAtoms(ctx context.Context, query string, topK int) ([]apptype.Atom, error) {
	if s.store == nil {
		return nil, fmt.Errorf("vector search unavailable: no embeddings provider configured")
	}
	vecs, err := s.store.Provider().Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("provider returned %d embeddings for one query", len(vecs))
	}
	matches, err := s.store.Query(ctx, apptype.NamespaceAtoms, vecs[0], topK, apptype.TypeAtom, "")
	if err != nil {
		return nil, err
	}
	atoms := make([]apptype.Atom, 0, len(matches))
	for _, m := range matches {
		if m.Metadata.RecordID == "" {
			continue
		}
		atom, err := s.db.GetAtom(ctx, m.Metadata.RecordID)
		if err != nil {
			log.Printf("Warning: vector match %s has no atom row: %v", m.ID, err)
			continue
		}
		atoms = append(atoms, *atom)
	}
	return atoms, nil
}

// SimilarAtoms returns the stored atoms nearest to an existing atom's
// vector, excluding the atom itself.
func (s *Service) SimilarAtoms(ctx context.Context, atomID string, topK int) ([]apptype.Atom, error) {
	if s.store == nil {
		return nil, fmt.Errorf("vector search unavailable: no embeddings provider configured")
	}
	atom, err := s.db.GetAtom(ctx, atomID)
	if err != nil {
		return nil, err
	}
	if atom.VectorID == "" {
		return []apptype.Atom{}, nil
	}
	matches, err := s.store.QueryByID(ctx, apptype.NamespaceAtoms, atom.VectorID, topK, apptype.TypeAtom)
	if err != nil {
		return nil, err
	}
	atoms := make([]apptype.Atom, 0, len(matches))
	for _, m := range matches {
		if m.Metadata.RecordID == "" || m.Metadata.RecordID == atomID {
			continue
		}
		match, err := s.db.GetAtom(ctx, m.Metadata.RecordID)
		if err != nil {
			log.Printf("Warning: vector match %s has no atom row: %v", m.ID, err)
			continue
		}
		atoms = append(atoms, *match)
	}
	return atoms, nil
}

// SelectPair picks an atom pair for synthesis.
func (s *Service) SelectPair(ctx context.Context) (*synthesis.Pair, error) {
	return s.engine.SelectPair(ctx)
}

// Synthesize generates a candidate from two atoms and a method id.
func (s *Service) Synthesize(ctx context.Context, atomAID, atomBID, methodID string) (*apptype.SynthesizedAtom, error) {
	if s.completer == nil {
		return nil, ErrLLMRequired
	}
	atomA, err := s.db.GetAtom(ctx, atomAID)
	if err != nil {
		return nil, err
	}
	atomB, err := s.db.GetAtom(ctx, atomBID)
	if err != nil {
		return nil, err
	}
	method, err := s.db.GetSynthesisMethod(ctx, methodID)
	if err != nil {
		return nil, err
	}
	return s.engine.Synthesize(ctx, atomA, atomB, method)
}

// SaveSynthesizedAtom persists a candidate produced by Synthesize.
func (s *Service) SaveSynthesizedAtom(ctx context.Context, sa *apptype.SynthesizedAtom) error {
	return s.engine.Save(ctx, sa)
}

// ListSynthesizedAtoms pages over saved synthesized atoms.
func (s *Service) ListSynthesizedAtoms(ctx context.Context, limit, page int) (*apptype.Page[apptype.SynthesizedAtom], error) {
	return s.db.ListSynthesizedAtoms(ctx, limit, page)
}

// ListSynthesisMethods returns the seeded method catalog.
func (s *Service) ListSynthesisMethods(ctx context.Context) ([]apptype.SynthesisMethod, error) {
	return s.db.ListSynthesisMethods(ctx)
}

// Graph computes the 2D concept-graph layout.
func (s *Service) Graph(ctx context.Context) ([]projection.Point, error) {
	if s.projector == nil {
		return []projection.Point{}, nil
	}
	return s.projector.Project(ctx)
}

// PublishPost generates and publishes a thread for a synthesized atom.
func (s *Service) PublishPost(ctx context.Context, synthesizedAtomID string) (*apptype.Post, error) {
	if s.completer == nil {
		return nil, ErrLLMRequired
	}
	return s.social.CreateAndPublish(ctx, synthesizedAtomID)
}

// Health pings the database and reports vector-store stats when available.
func (s *Service) Health(ctx context.Context) (map[string]any, error) {
	if err := s.db.Handle().PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database unreachable: %w", err)
	}
	out := map[string]any{"status": "ok"}
	if s.store != nil {
		stats, err := s.store.Stats(ctx)
		if err != nil {
			out["vectors"] = fmt.Sprintf("unavailable: %v", err)
		} else {
			out["vectors"] = stats
		}
	}
	return out, nil
}

// Package worker holds the background reconciliation sweep. Embeds during
// ingestion are fire-and-forget, so records can exist without a vector; the
// reconciler retries those with a bounded attempt budget instead of leaving
// them permanently unindexed.
package worker

import (
	"context"
	"log"
	"time"

	"github.com/atomizerhq/atomizer/internal/apptype"
	"github.com/atomizerhq/atomizer/internal/database"
	"github.com/atomizerhq/atomizer/internal/extract"
	"github.com/atomizerhq/atomizer/internal/ingest"
	"github.com/atomizerhq/atomizer/internal/synthesis"
	"github.com/atomizerhq/atomizer/internal/vectorstore"
)

// Reconciler periodically re-embeds records whose vector write failed.
type Reconciler struct {
	db          *database.DBManager
	store       *vectorstore.Store
	interval    time.Duration
	maxAttempts int
	batchSize   int
}

// NewReconciler creates a sweep with the given interval and per-record
// attempt budget.
func NewReconciler(db *database.DBManager, store *vectorstore.Store, interval time.Duration, maxAttempts int) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Reconciler{db: db, store: store, interval: interval, maxAttempts: maxAttempts, batchSize: 50}
}

// Run sweeps until the context is canceled. Call in its own goroutine.
func (r *Reconciler) Run(ctx context.Context) {
	if r.store == nil {
		log.Printf("Reconciler disabled: no vector store configured")
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep runs one pass over every embeddable collection.
func (r *Reconciler) Sweep(ctx context.Context) {
	if n := r.sweepSources(ctx); n > 0 {
		log.Printf("Reconciler embedded %d sources", n)
	}
	if n := r.sweepAtoms(ctx); n > 0 {
		log.Printf("Reconciler embedded %d atoms", n)
	}
	if n := r.sweepSynthesizedAtoms(ctx); n > 0 {
		log.Printf("Reconciler embedded %d synthesized atoms", n)
	}
}

func (r *Reconciler) sweepSources(ctx context.Context) int {
	sources, err := r.db.SourcesMissingVector(ctx, r.maxAttempts, r.batchSize)
	if err != nil {
		log.Printf("Warning: reconciler source scan failed: %v", err)
		return 0
	}
	embedded := 0
	for i := range sources {
		src := &sources[i]
		vectorID, err := r.store.Upsert(ctx, apptype.NamespaceSources, "", ingest.EmbeddingText(src), vectorstore.Metadata{
			RecordID: src.ID,
			Type:     apptype.TypeSource,
			Category: src.Category,
		})
		if err != nil {
			log.Printf("Warning: reconciler embed failed for source %s: %v", src.ID, err)
			r.bump(ctx, r.db.BumpSourceEmbedAttempts, src.ID)
			continue
		}
		if err := r.db.SetSourceVectorID(ctx, src.ID, vectorID); err != nil {
			log.Printf("Warning: reconciler could not record vector id for source %s: %v", src.ID, err)
			continue
		}
		embedded++
	}
	return embedded
}

func (r *Reconciler) sweepAtoms(ctx context.Context) int {
	atoms, err := r.db.AtomsMissingVector(ctx, r.maxAttempts, r.batchSize)
	if err != nil {
		log.Printf("Warning: reconciler atom scan failed: %v", err)
		return 0
	}
	embedded := 0
	for i := range atoms {
		atom := &atoms[i]
		vectorID, err := r.store.Upsert(ctx, apptype.NamespaceAtoms, "", extract.EmbeddingText(atom), vectorstore.Metadata{
			RecordID: atom.ID,
			Type:     apptype.TypeAtom,
		})
		if err != nil {
			log.Printf("Warning: reconciler embed failed for atom %s: %v", atom.ID, err)
			r.bump(ctx, r.db.BumpAtomEmbedAttempts, atom.ID)
			continue
		}
		if err := r.db.SetAtomVectorID(ctx, atom.ID, vectorID); err != nil {
			log.Printf("Warning: reconciler could not record vector id for atom %s: %v", atom.ID, err)
			continue
		}
		embedded++
	}
	return embedded
}

func (r *Reconciler) sweepSynthesizedAtoms(ctx context.Context) int {
	sas, err := r.db.SynthesizedAtomsMissingVector(ctx, r.maxAttempts, r.batchSize)
	if err != nil {
		log.Printf("Warning: reconciler synthesized-atom scan failed: %v", err)
		return 0
	}
	embedded := 0
	for i := range sas {
		sa := &sas[i]
		vectorID, err := r.store.Upsert(ctx, apptype.NamespaceAtoms, "", synthesis.EmbeddingText(sa), vectorstore.Metadata{
			RecordID:    sa.ID,
			Type:        apptype.TypeSynthesizedAtom,
			ParentAtoms: []string{sa.ParentAtomA, sa.ParentAtomB},
		})
		if err != nil {
			log.Printf("Warning: reconciler embed failed for synthesized atom %s: %v", sa.ID, err)
			r.bump(ctx, r.db.BumpSynthesizedAtomEmbedAttempts, sa.ID)
			continue
		}
		if err := r.db.SetSynthesizedAtomVectorID(ctx, sa.ID, vectorID); err != nil {
			log.Printf("Warning: reconciler could not record vector id for synthesized atom %s: %v", sa.ID, err)
			continue
		}
		embedded++
	}
	return embedded
}

func (r *Reconciler) bump(ctx context.Context, f func(context.Context, string) error, id string) {
	if err := f(ctx, id); err != nil {
		log.Printf("Warning: reconciler could not bump attempts for %s: %v", id, err)
	}
}

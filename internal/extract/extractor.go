// Package extract breaks an ingested source into atomic ideas. One LLM call
// yields the whole batch; each atom's persistence and embedding are then
// independently best-effort so one bad atom never sinks its siblings.
package extract

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/atomizerhq/atomizer/internal/apptype"
	"github.com/atomizerhq/atomizer/internal/database"
	"github.com/atomizerhq/atomizer/internal/llm"
	"github.com/atomizerhq/atomizer/internal/metrics"
	"github.com/atomizerhq/atomizer/internal/vectorstore"
)

const extractSystemPrompt = `You are extracting atomic ideas from a source document for a personal knowledge base.
An atom is one self-contained idea that stands on its own without the source.
Respond with a single JSON object: {"atoms": [{"title", "mainContent", "supportingQuote", "supportingInfo": [{"text"}]}]}.
Every atom must carry "mainContent". Respond with the JSON object only.`

// Result is the outcome of one extraction run.
type Result struct {
	Success bool           `json:"success"`
	Atoms   []apptype.Atom `json:"atoms"`
	Count   int            `json:"count"`
}

// Extractor runs the atom extraction pipeline for a source.
type Extractor struct {
	db        *database.DBManager
	store     *vectorstore.Store
	completer llm.Completer
}

// NewExtractor wires the pipeline. store may be nil to skip embedding.
func NewExtractor(db *database.DBManager, store *vectorstore.Store, completer llm.Completer) *Extractor {
	return &Extractor{db: db, store: store, completer: completer}
}

// ExtractAtoms extracts, persists, and embeds atoms for a source. A batch
// parse failure aborts with ModelOutputError; after that, per-atom failures
// are logged and skipped.
func (e *Extractor) ExtractAtoms(ctx context.Context, source *apptype.Source, rawText string) (*Result, error) {
	done := metrics.TimePipeline("extract")
	success := false
	defer func() { done(success) }()

	completion, err := e.completer.Complete(ctx, extractSystemPrompt, buildExtractPrompt(source, rawText))
	if err != nil {
		return nil, fmt.Errorf("extraction call failed: %w", err)
	}

	var payload struct {
		Atoms []apptype.Atom `json:"atoms"`
	}
	if err := llm.DecodeModelJSON(completion.Content, &payload); err != nil {
		return nil, err
	}

	result := &Result{Success: true, Atoms: []apptype.Atom{}}
	for _, atom := range payload.Atoms {
		if strings.TrimSpace(atom.MainContent) == "" {
			log.Printf("Warning: skipping atom without mainContent from source %s", source.ID)
			continue
		}
		atom.SourceID = source.ID
		if err := e.db.CreateAtom(ctx, &atom); err != nil {
			log.Printf("Warning: failed to persist atom for source %s: %v", source.ID, err)
			continue
		}
		e.embedAtom(ctx, &atom)
		result.Atoms = append(result.Atoms, atom)
	}
	result.Count = len(result.Atoms)
	success = true
	return result, nil
}

// Extract adapts ExtractAtoms to the ingestion pipeline's trigger contract.
func (e *Extractor) Extract(ctx context.Context, source *apptype.Source, rawText string) (int, error) {
	result, err := e.ExtractAtoms(ctx, source, rawText)
	if err != nil {
		return 0, err
	}
	return result.Count, nil
}

func buildExtractPrompt(source *apptype.Source, rawText string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Source title: %s\n", source.Title)
	fmt.Fprintf(&b, "Source URL: %s\n", source.URL)
	if source.OneSentenceSummary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", source.OneSentenceSummary)
	}
	b.WriteString("\nOriginal text:\n")
	b.WriteString(rawText)
	return b.String()
}

// embedAtom is best-effort; a failure leaves the atom for the reconciler.
func (e *Extractor) embedAtom(ctx context.Context, atom *apptype.Atom) {
	if e.store == nil {
		return
	}
	vectorID, err := e.store.Upsert(ctx, apptype.NamespaceAtoms, "", EmbeddingText(atom), vectorstore.Metadata{
		RecordID: atom.ID,
		Type:     apptype.TypeAtom,
	})
	if err != nil {
		log.Printf("Warning: failed to embed atom %s: %v", atom.ID, err)
		if berr := e.db.BumpAtomEmbedAttempts(ctx, atom.ID); berr != nil {
			log.Printf("Warning: failed to bump embed attempts for %s: %v", atom.ID, berr)
		}
		return
	}
	if err := e.db.SetAtomVectorID(ctx, atom.ID, vectorID); err != nil {
		log.Printf("Warning: failed to record vector id for atom %s: %v", atom.ID, err)
	} else {
		atom.VectorID = vectorID
	}
}

// EmbeddingText builds the text embedded for an atom. Shared with the
// reconciler so retried embeds match the original input.
func EmbeddingText(atom *apptype.Atom) string {
	var b strings.Builder
	if atom.Title != "" {
		b.WriteString(atom.Title)
		b.WriteString("\n")
	}
	b.WriteString(atom.MainContent)
	if atom.SupportingQuote != "" {
		b.WriteString("\n")
		b.WriteString(atom.SupportingQuote)
	}
	return b.String()
}

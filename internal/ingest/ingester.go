package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/atomizerhq/atomizer/internal/apptype"
	"github.com/atomizerhq/atomizer/internal/database"
	"github.com/atomizerhq/atomizer/internal/llm"
	"github.com/atomizerhq/atomizer/internal/metrics"
	"github.com/atomizerhq/atomizer/internal/vectorstore"
)

const summarySystemPrompt = `You are a research assistant summarizing a document for a personal knowledge base.
Given the document text, respond with a single JSON object with these fields:
  "title": the document title if evident
  "url": the canonical URL if mentioned
  "author": the author if evident
  "oneSentenceSummary": one sentence capturing the document's thesis
  "mainPoints": array of the main points
  "bulletSummary": array of short bullets summarizing the document
  "peopleplacesthingsevents": array of notable named entities
  "details": array of supporting details worth keeping
  "quotations": array of direct quotations worth keeping
Respond with the JSON object only.`

// Extractor triggers atom extraction for a freshly ingested source. It
// returns the number of atoms produced.
type Extractor interface {
	Extract(ctx context.Context, source *apptype.Source, rawText string) (int, error)
}

// Ingester runs the source ingestion pipeline.
type Ingester struct {
	db        *database.DBManager
	store     *vectorstore.Store
	completer llm.Completer
	extractor Extractor
}

// NewIngester wires the pipeline. store and extractor may be nil; the
// corresponding steps then degrade to no-ops.
func NewIngester(db *database.DBManager, store *vectorstore.Store, completer llm.Completer, extractor Extractor) *Ingester {
	return &Ingester{db: db, store: store, completer: completer, extractor: extractor}
}

// flexItems tolerates the shapes models return for list fields: an array of
// {text} objects, an array of strings, or one newline-delimited string.
type flexItems []apptype.TextItem

func (f *flexItems) UnmarshalJSON(data []byte) error {
	var objs []apptype.TextItem
	if err := json.Unmarshal(data, &objs); err == nil {
		*f = objs
		return nil
	}
	var strs []string
	if err := json.Unmarshal(data, &strs); err == nil {
		out := make(flexItems, 0, len(strs))
		for _, s := range strs {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, apptype.TextItem{Text: s})
			}
		}
		*f = out
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err != nil {
		return fmt.Errorf("unsupported list shape: %s", string(data))
	}
	*f = splitLines(one)
	return nil
}

func splitLines(s string) flexItems {
	var out flexItems
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-* \t"))
		if line != "" {
			out = append(out, apptype.TextItem{Text: line})
		}
	}
	return out
}

// summaryFields is the LLM's structured read of the document body.
type summaryFields struct {
	Title                    string    `json:"title"`
	URL                      string    `json:"url"`
	Author                   string    `json:"author"`
	OneSentenceSummary       string    `json:"oneSentenceSummary"`
	MainPoints               flexItems `json:"mainPoints"`
	BulletSummary            flexItems `json:"bulletSummary"`
	PeoplePlacesThingsEvents flexItems `json:"peopleplacesthingsevents"`
	Details                  flexItems `json:"details"`
	Quotations               flexItems `json:"quotations"`
}

// Ingest runs the full pipeline for one markdown document and returns the
// persisted source. The job row for the source id tracks progress; callers
// poll it through the status endpoint.
func (ing *Ingester) Ingest(ctx context.Context, markdown, category string) (*apptype.Source, error) {
	done := metrics.TimePipeline("ingest")
	success := false
	defer func() { done(success) }()

	fm, body, err := ParseFrontMatter(markdown)
	if err != nil {
		return nil, err
	}

	sourceID := uuid.NewString()

	fields, err := ing.summarize(ctx, body)
	if err != nil {
		return nil, err
	}

	src := mergeSource(fm, fields)
	src.ID = sourceID
	src.Category = category

	if verr := validateSource(src, fm); verr != nil {
		return nil, verr
	}

	attachmentID, err := ing.attachRawText(ctx, src.Title, markdown)
	if err != nil {
		return nil, fmt.Errorf("failed to store raw text: %w", err)
	}
	src.AttachmentID = attachmentID

	// The job row exists only once the document has passed validation;
	// earlier failures surface in the returned error and the caller never
	// learns a source id, so a row there would be unreachable.
	if err := ing.db.CreateIngestJob(ctx, sourceID); err != nil {
		return nil, err
	}
	fail := func(cause error) error {
		if jerr := ing.db.SetIngestJobState(ctx, sourceID, apptype.JobFailed, cause.Error()); jerr != nil {
			log.Printf("Warning: failed to record job failure for %s: %v", sourceID, jerr)
		}
		return cause
	}

	if err := ing.db.CreateSource(ctx, src); err != nil {
		return nil, fail(err)
	}
	if err := ing.db.SetIngestJobState(ctx, sourceID, apptype.JobSourceCreated, ""); err != nil {
		log.Printf("Warning: failed to advance job %s: %v", sourceID, err)
	}

	ing.embedSource(ctx, src)

	if ing.extractor != nil {
		if err := ing.db.SetIngestJobState(ctx, sourceID, apptype.JobAtomsExtracting, ""); err != nil {
			log.Printf("Warning: failed to advance job %s: %v", sourceID, err)
		}
		if _, err := ing.extractor.Extract(ctx, src, body); err != nil {
			log.Printf("Warning: atom extraction failed for source %s: %v", src.ID, err)
			if jerr := ing.db.SetIngestJobState(ctx, sourceID, apptype.JobFailed, err.Error()); jerr != nil {
				log.Printf("Warning: failed to record job failure for %s: %v", sourceID, jerr)
			}
			success = true
			return src, nil
		}
		if err := ing.db.SetIngestJobState(ctx, sourceID, apptype.JobAtomsComplete, ""); err != nil {
			log.Printf("Warning: failed to advance job %s: %v", sourceID, err)
		}
	}

	success = true
	return src, nil
}

func (ing *Ingester) summarize(ctx context.Context, body string) (*summaryFields, error) {
	completion, err := ing.completer.Complete(ctx, summarySystemPrompt, body)
	if err != nil {
		return nil, fmt.Errorf("summarization failed: %w", err)
	}
	fields := &summaryFields{}
	if err := llm.DecodeModelJSON(completion.Content, fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// mergeSource layers front matter over the LLM's fields; front matter wins.
func mergeSource(fm *FrontMatter, fields *summaryFields) *apptype.Source {
	src := &apptype.Source{
		Title:                    fields.Title,
		URL:                      fields.URL,
		Author:                   fields.Author,
		OneSentenceSummary:       fields.OneSentenceSummary,
		MainPoints:               fields.MainPoints,
		BulletSummary:            fields.BulletSummary,
		PeoplePlacesThingsEvents: fields.PeoplePlacesThingsEvents,
		Details:                  fields.Details,
		Quotations:               fields.Quotations,
	}
	if fm.Title != "" {
		src.Title = fm.Title
	}
	if fm.URL != "" {
		src.URL = fm.URL
	}
	if fm.Author != "" {
		src.Author = fm.Author
	}
	src.PublishedDate = fm.PublishedDate
	src.Tags = fm.Tags
	return src
}

func validateSource(src *apptype.Source, fm *FrontMatter) error {
	var missing, missingFM []string
	if strings.TrimSpace(src.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(src.URL) == "" {
		missing = append(missing, "url")
	}
	if len(missing) == 0 {
		return nil
	}
	if fm.Title == "" {
		missingFM = append(missingFM, "title")
	}
	if fm.URL == "" {
		missingFM = append(missingFM, "url")
	}
	return &apptype.ValidationError{Missing: missing, MissingFromFrontMatter: missingFM}
}

// attachRawText spools the submitted markdown through a temp file and stores
// it as an attachment. The temp file is removed whatever the outcome.
func (ing *Ingester) attachRawText(ctx context.Context, title, markdown string) (string, error) {
	tmp, err := os.CreateTemp("", "atomizer-source-*.md")
	if err != nil {
		return "", err
	}
	defer func() {
		tmp.Close()
		if rerr := os.Remove(tmp.Name()); rerr != nil {
			log.Printf("Warning: failed to remove temp file %s: %v", tmp.Name(), rerr)
		}
	}()

	if _, err := tmp.WriteString(markdown); err != nil {
		return "", err
	}
	if _, err := tmp.Seek(0, 0); err != nil {
		return "", err
	}
	data, err := os.ReadFile(tmp.Name())
	if err != nil {
		return "", err
	}

	att := &apptype.Attachment{
		Filename: slugFilename(title),
		MimeType: "text/markdown",
		Data:     data,
	}
	if err := ing.db.CreateAttachment(ctx, att); err != nil {
		return "", err
	}
	return att.ID, nil
}

func slugFilename(title string) string {
	slug := strings.ToLower(strings.TrimSpace(title))
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == ' ' || r == '-' || r == '_':
			return '-'
		default:
			return -1
		}
	}, slug)
	if slug == "" {
		slug = "source"
	}
	return slug + ".md"
}

// embedSource is best-effort; failure leaves the source without a vector id
// for the reconciler to pick up later.
func (ing *Ingester) embedSource(ctx context.Context, src *apptype.Source) {
	if ing.store == nil {
		return
	}
	vectorID, err := ing.store.Upsert(ctx, apptype.NamespaceSources, "", EmbeddingText(src), vectorstore.Metadata{
		RecordID: src.ID,
		Type:     apptype.TypeSource,
		Category: src.Category,
	})
	if err != nil {
		log.Printf("Warning: failed to embed source %s: %v", src.ID, err)
		if berr := ing.db.BumpSourceEmbedAttempts(ctx, src.ID); berr != nil {
			log.Printf("Warning: failed to bump embed attempts for %s: %v", src.ID, berr)
		}
		return
	}
	if err := ing.db.SetSourceVectorID(ctx, src.ID, vectorID); err != nil {
		log.Printf("Warning: failed to record vector id for source %s: %v", src.ID, err)
	} else {
		src.VectorID = vectorID
	}
}

// EmbeddingText builds the text embedded for a source. The reconciler uses
// the same construction so retried embeds land on identical input.
func EmbeddingText(src *apptype.Source) string {
	var b strings.Builder
	b.WriteString(src.Title)
	if src.OneSentenceSummary != "" {
		b.WriteString("\n")
		b.WriteString(src.OneSentenceSummary)
	}
	for _, item := range src.BulletSummary {
		b.WriteString("\n")
		b.WriteString(item.Text)
	}
	return b.String()
}

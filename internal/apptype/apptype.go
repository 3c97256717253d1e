package apptype

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Namespace names for the vector store partitions.
const (
	NamespaceAtoms   = "atoms"
	NamespaceSources = "sources"
)

// Record type tags carried in vector metadata.
const (
	TypeAtom            = "atom"
	TypeSource          = "source"
	TypeSynthesizedAtom = "synthesizedAtom"
)

// TextItem is a single list entry for the JSON-array columns
// (mainPoints, bulletSummary, supportingInfo, ...).
type TextItem struct {
	Text string `json:"text"`
}

// Source is an ingested document from which atoms are extracted.
type Source struct {
	ID                       string     `json:"id"`
	Title                    string     `json:"title"`
	URL                      string     `json:"url"`
	Author                   string     `json:"author,omitempty"`
	PublishedDate            string     `json:"publishedDate,omitempty"`
	OneSentenceSummary       string     `json:"oneSentenceSummary,omitempty"`
	MainPoints               []TextItem `json:"mainPoints,omitempty"`
	BulletSummary            []TextItem `json:"bulletSummary,omitempty"`
	Quotations               []TextItem `json:"quotations,omitempty"`
	PeoplePlacesThingsEvents []TextItem `json:"peopleplacesthingsevents,omitempty"`
	Details                  []TextItem `json:"details,omitempty"`
	Tags                     []string   `json:"tags,omitempty"`
	Category                 string     `json:"sourceCategory,omitempty"`
	AttachmentID             string     `json:"fullText,omitempty"`
	VectorID                 string     `json:"vectorId,omitempty"`
	CreatedAt                time.Time  `json:"createdAt"`
	UpdatedAt                time.Time  `json:"updatedAt"`
}

// Atom is a single atomic idea extracted from exactly one source.
type Atom struct {
	ID              string     `json:"id"`
	Title           string     `json:"title,omitempty"`
	MainContent     string     `json:"mainContent"`
	SupportingQuote string     `json:"supportingQuote,omitempty"`
	SupportingInfo  []TextItem `json:"supportingInfo,omitempty"`
	SourceID        string     `json:"source"`
	VectorID        string     `json:"vectorId,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// SynthesizedAtom is a novel idea generated from exactly two parent atoms.
type SynthesizedAtom struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	MainContent    string     `json:"mainContent"`
	SupportingInfo []TextItem `json:"supportingInfo,omitempty"`
	TheoryFiction  string     `json:"theoryFiction,omitempty"`
	ParentAtomA    string     `json:"parentAtomA"`
	ParentAtomB    string     `json:"parentAtomB"`
	MethodID       string     `json:"synthesisMethod,omitempty"`
	VectorID       string     `json:"vectorId,omitempty"`
	Posted         bool       `json:"posted"`
	TwitterURL     string     `json:"twitterUrl,omitempty"`
	BskyURL        string     `json:"bskyUrl,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// SynthesisMethod is a named prompt-generation strategy. Seeded once,
// read-only at runtime; MethodKey maps into the static prompt registry.
type SynthesisMethod struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	MethodKey   string `json:"methodKey"`
}

// PlatformPost records the publish outcome on a single platform.
type PlatformPost struct {
	Posted bool   `json:"posted"`
	URL    string `json:"url,omitempty"`
	PostID string `json:"postId,omitempty"`
}

// Post is a social-media thread derived from a synthesized atom.
type Post struct {
	ID                string       `json:"id"`
	SynthesizedAtomID string       `json:"synthesizedAtom"`
	Content           []TextItem   `json:"content"`
	Twitter           PlatformPost `json:"twitterPost"`
	Bsky              PlatformPost `json:"bskyPost"`
	CreatedAt         time.Time    `json:"createdAt"`
}

// Attachment stores the raw submitted markdown for a source.
type Attachment struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	MimeType  string    `json:"mimeType"`
	Data      []byte    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

// Ingest job states. The job row is the single record of truth for
// multi-stage ingestion progress.
const (
	JobQueued          = "queued"
	JobSourceCreated   = "source_created"
	JobAtomsExtracting = "atoms_extracting"
	JobAtomsComplete   = "atoms_complete"
	JobFailed          = "failed"
)

// IngestJob tracks a source ingestion through its stages.
type IngestJob struct {
	SourceID  string    `json:"sourceId"`
	State     string    `json:"state"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Page is a paginated list result mirroring the listing endpoints.
type Page[T any] struct {
	Docs       []T   `json:"docs"`
	TotalDocs  int64 `json:"totalDocs"`
	Page       int   `json:"page"`
	TotalPages int   `json:"totalPages"`
}

// ErrNotFound is returned by lookups for missing records. Read endpoints
// translate it into empty results rather than errors.
var ErrNotFound = errors.New("record not found")

// ValidationError reports required fields missing before persistence.
type ValidationError struct {
	Missing                []string
	MissingFromFrontMatter []string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("missing required fields: %s", strings.Join(e.Missing, ", "))
	if len(e.MissingFromFrontMatter) > 0 {
		msg += fmt.Sprintf(" (absent from front matter: %s)", strings.Join(e.MissingFromFrontMatter, ", "))
	}
	return msg
}

// ModelOutputError reports LLM output that could not be decoded even after
// recovery. Raw carries the unparsed text so callers can surface it.
type ModelOutputError struct {
	Raw string
	Err error
}

func (e *ModelOutputError) Error() string {
	return fmt.Sprintf("model output not decodable: %v", e.Err)
}

func (e *ModelOutputError) Unwrap() error { return e.Err }

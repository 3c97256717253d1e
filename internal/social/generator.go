// Package social turns saved synthesized atoms into post threads and
// publishes them platform by platform. The final thread item is always a
// deterministic source post with a deep link, never model output.
package social

import (
	"context"
	"fmt"
	"strings"

	"github.com/atomizerhq/atomizer/internal/apptype"
	"github.com/atomizerhq/atomizer/internal/llm"
)

// MaxPostLength is the per-item character limit enforced before publishing.
const MaxPostLength = 280

const defaultBio = "I collect ideas from what I read and combine them into new ones."

// Generator produces post threads from synthesized atoms.
type Generator struct {
	completer llm.Completer
	baseURL   string
	bio       string
}

// NewGenerator creates a Generator. baseURL anchors deep links; bio shapes
// the model's voice and may be empty.
func NewGenerator(completer llm.Completer, baseURL, bio string) *Generator {
	if bio == "" {
		bio = defaultBio
	}
	return &Generator{completer: completer, baseURL: strings.TrimRight(baseURL, "/"), bio: bio}
}

// Generate builds the post thread for a synthesized atom. parents carry any
// resolvable parent atoms and their sources for context.
func (g *Generator) Generate(ctx context.Context, sa *apptype.SynthesizedAtom, parents []ParentContext) ([]apptype.TextItem, error) {
	completion, err := g.completer.Complete(ctx, g.systemPrompt(), renderPostPrompt(sa, parents))
	if err != nil {
		return nil, fmt.Errorf("post generation failed: %w", err)
	}

	var texts []string
	if err := llm.DecodeModelJSON(completion.Content, &texts); err != nil {
		return nil, err
	}

	items := make([]apptype.TextItem, 0, len(texts)+1)
	for _, t := range texts {
		if t = strings.TrimSpace(t); t != "" {
			items = append(items, apptype.TextItem{Text: t})
		}
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("model produced no usable posts")
	}
	items = append(items, apptype.TextItem{Text: g.SourcePost(sa)})
	return items, nil
}

// SourcePost is the deterministic closing item: title plus deep link.
func (g *Generator) SourcePost(sa *apptype.SynthesizedAtom) string {
	return fmt.Sprintf("%s %s/synthesized-atoms/%s", sa.Title, g.baseURL, sa.ID)
}

func (g *Generator) systemPrompt() string {
	return fmt.Sprintf(`You are writing a short social media thread. Author bio: %s
Write 1 to 4 posts, each under %d characters, that present the idea below as a thread.
Respond with a JSON array of strings only.`, g.bio, MaxPostLength)
}

// ParentContext is one parent atom with its source, when resolvable.
type ParentContext struct {
	Atom   *apptype.Atom
	Source *apptype.Source
}

func renderPostPrompt(sa *apptype.SynthesizedAtom, parents []ParentContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Idea: %s\n%s\n", sa.Title, sa.MainContent)
	for _, info := range sa.SupportingInfo {
		fmt.Fprintf(&b, "Supporting: %s\n", info.Text)
	}
	if sa.TheoryFiction != "" {
		fmt.Fprintf(&b, "Narrative: %s\n", sa.TheoryFiction)
	}
	for _, p := range parents {
		if p.Atom == nil {
			continue
		}
		fmt.Fprintf(&b, "\nBuilt from: %s\n%s\n", p.Atom.Title, p.Atom.MainContent)
		if p.Source != nil {
			fmt.Fprintf(&b, "Originally from: %s", p.Source.Title)
			if p.Source.Author != "" {
				fmt.Fprintf(&b, " by %s", p.Source.Author)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// ValidateThread enforces the per-item character limit before publishing.
func ValidateThread(items []apptype.TextItem) error {
	for i, item := range items {
		if n := len([]rune(item.Text)); n > MaxPostLength {
			return fmt.Errorf("post %d is %d characters, limit is %d", i+1, n, MaxPostLength)
		}
	}
	return nil
}

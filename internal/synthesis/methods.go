// Package synthesis pairs dissimilar atoms and asks the model for a genuinely
// new idea combining them. Generation and persistence are decoupled so a
// candidate can be discarded without a trace.
package synthesis

import (
	"fmt"
	"strings"

	"github.com/atomizerhq/atomizer/internal/apptype"
)

// Method keys in the static prompt registry.
const (
	MethodDualDissimilar = "dual-dissimilar"
	MethodContrast       = "contrast"
	MethodTheoryFiction  = "theory-fiction"
)

const synthesisResponseShape = `Respond with a single JSON object: {"title", "mainContent", "supportingInfo": [{"text"}], "theoryFiction"}. JSON only.`

// promptBuilder renders the system and user prompts for one method.
type promptBuilder func(a, b atomContext) (system, user string)

// atomContext is one atom plus its resolved parent source, when available.
type atomContext struct {
	Atom   *apptype.Atom
	Source *apptype.Source
}

var promptRegistry = map[string]promptBuilder{
	MethodDualDissimilar: dualDissimilarPrompt,
	MethodContrast:       contrastPrompt,
	MethodTheoryFiction:  theoryFictionPrompt,
}

// SeedMethods is the catalog persisted on startup. Read-only at runtime.
func SeedMethods() []apptype.SynthesisMethod {
	return []apptype.SynthesisMethod{
		{
			ID:          "method-dual-dissimilar",
			Title:       "Dual Dissimilar",
			Description: "Combine two deliberately unrelated ideas into a novel concept.",
			MethodKey:   MethodDualDissimilar,
		},
		{
			ID:          "method-contrast",
			Title:       "Contrast",
			Description: "Find the productive tension between two ideas and name what it reveals.",
			MethodKey:   MethodContrast,
		},
		{
			ID:          "method-theory-fiction",
			Title:       "Theory Fiction",
			Description: "Extrapolate both ideas into a short speculative narrative.",
			MethodKey:   MethodTheoryFiction,
		},
	}
}

func dualDissimilarPrompt(a, b atomContext) (string, string) {
	system := "You are a concept synthesizer. Given two unrelated ideas, produce one genuinely novel idea that could only exist by combining them. " + synthesisResponseShape
	return system, renderAtoms(a, b)
}

func contrastPrompt(a, b atomContext) (string, string) {
	system := "You are a concept synthesizer. Identify the sharpest tension between the two ideas below and articulate the insight that tension reveals. " + synthesisResponseShape
	return system, renderAtoms(a, b)
}

func theoryFictionPrompt(a, b atomContext) (string, string) {
	system := "You are a concept synthesizer writing theory fiction. Extrapolate the two ideas below into a near-future scenario, then distill the concept it illustrates. Put the narrative in theoryFiction. " + synthesisResponseShape
	return system, renderAtoms(a, b)
}

func renderAtoms(a, b atomContext) string {
	var sb strings.Builder
	renderAtom(&sb, "Idea A", a)
	sb.WriteString("\n")
	renderAtom(&sb, "Idea B", b)
	return sb.String()
}

func renderAtom(sb *strings.Builder, label string, ac atomContext) {
	fmt.Fprintf(sb, "%s: %s\n", label, ac.Atom.Title)
	fmt.Fprintf(sb, "Content: %s\n", ac.Atom.MainContent)
	if ac.Atom.SupportingQuote != "" {
		fmt.Fprintf(sb, "Quote: %s\n", ac.Atom.SupportingQuote)
	}
	for _, info := range ac.Atom.SupportingInfo {
		fmt.Fprintf(sb, "Supporting: %s\n", info.Text)
	}
	if ac.Source != nil {
		fmt.Fprintf(sb, "From source: %s", ac.Source.Title)
		if ac.Source.Author != "" {
			fmt.Fprintf(sb, " by %s", ac.Source.Author)
		}
		sb.WriteString("\n")
		for _, item := range ac.Source.BulletSummary {
			fmt.Fprintf(sb, "Source note: %s\n", item.Text)
		}
	}
}

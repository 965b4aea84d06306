package drafting

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/joelkehle/irb-copilot/internal/intake"
	"github.com/joelkehle/irb-copilot/internal/irbprofile"
)

// Generator produces drafts and rewrites, preferring the configured text
// backend and degrading to the deterministic templates and rules when no
// backend is available or a call fails.
type Generator struct {
	caller TextCaller
}

// Refines reports whether a model backend is configured.
func (g *Generator) Refines() bool {
	return g != nil && g.caller != nil
}

// NewGenerator accepts a nil caller; template-only operation is the normal
// mode when no API key is configured.
func NewGenerator(caller TextCaller) *Generator {
	return &Generator{caller: caller}
}

// Draft result, reporting which path produced the text.
type Draft struct {
	DocType string `json:"docType"`
	Text    string `json:"text"`
	Backend string `json:"backend"` // template or anthropic
}

func (g *Generator) Generate(ctx context.Context, docType string, form intake.Form, profile irbprofile.Profile) (Draft, error) {
	base, err := BuildTemplate(docType, form, profile)
	if err != nil {
		return Draft{}, err
	}
	if g.caller == nil {
		return Draft{DocType: docType, Text: base, Backend: "template"}, nil
	}

	prompt := fmt.Sprintf(
		"Refine this %s draft for an IRB submission. Keep the structure and every bracketed placeholder intact.\n\n%s",
		docType, base)
	text, err := callWithRetry(ctx, g.caller, prompt)
	if err != nil {
		log.Printf("draft backend failed for %s, using template: %v", docType, err)
		return Draft{DocType: docType, Text: base, Backend: "template"}, nil
	}
	return Draft{DocType: docType, Text: text, Backend: "anthropic"}, nil
}

// Rewrite improves existing draft text toward the goal. The rule-based
// fallback runs when no backend is configured or the backend call fails.
func (g *Generator) Rewrite(ctx context.Context, text, goal string) (string, string, error) {
	if strings.TrimSpace(text) == "" {
		return "", "", fmt.Errorf("text to rewrite is empty")
	}
	fallback, err := RewriteFallback(text, goal)
	if err != nil {
		return "", "", err
	}
	if g.caller == nil {
		return fallback, "rules", nil
	}

	var instruction string
	switch goal {
	case GoalLessCoercive:
		instruction = "Rewrite so participation reads as fully voluntary, with no pressure and no penalty for declining."
	case GoalClearer:
		instruction = "Rewrite in plain language a first-year student understands, with short sentences."
	}
	prompt := fmt.Sprintf("%s Keep the meaning and every bracketed placeholder.\n\n%s", instruction, text)
	out, err := callWithRetry(ctx, g.caller, prompt)
	if err != nil {
		log.Printf("rewrite backend failed, using rules: %v", err)
		return fallback, "rules", nil
	}
	return out, "anthropic", nil
}

// Package profileimport builds draft institution profiles from web pages and
// pasted policy text. An import never touches the catalog; callers apply the
// returned draft explicitly.
package profileimport

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/joelkehle/irb-copilot/internal/irbprofile"
)

// Request carries the caller's organization identifiers. OrganizationName is
// the only required field.
type Request struct {
	OrganizationName    string `json:"organizationName"`
	OrganizationWebsite string `json:"organizationWebsite,omitempty"`
	IRBPageURL          string `json:"irbPageUrl,omitempty"`
	RawPolicyText       string `json:"rawPolicyText,omitempty"`
	BaseProfileID       string `json:"baseProfileId,omitempty"`
}

type DocumentLink struct {
	URL   string `json:"url"`
	Label string `json:"label"`
}

type Stats struct {
	CandidateSourceCount int `json:"candidateSourceCount"`
	FetchedSourceCount   int `json:"fetchedSourceCount"`
	FailedSourceCount    int `json:"failedSourceCount"`
	SignalCount          int `json:"signalCount"`
}

// Result is the full import report. Confidence always lands in [0,1].
type Result struct {
	Confidence     float64            `json:"confidence"`
	ConfidenceBand string             `json:"confidenceBand"`
	Warnings       []string           `json:"warnings"`
	Notes          []string           `json:"notes"`
	Signals        []Signal           `json:"signals"`
	Sources        []Source           `json:"sources"`
	DocumentLinks  []DocumentLink     `json:"documentLinks"`
	ProfileDraft   irbprofile.Profile `json:"profileDraft"`
	Stats          Stats              `json:"stats"`
}

// RequestError is a caller-facing input problem, as opposed to per-source
// fetch trouble which is recorded in the result.
type RequestError struct {
	Field   string
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("import request field %q: %s", e.Field, e.Message)
}

type searchFunc func(orgName string) []string

// Importer resolves, fetches, and scans candidate sources. Safe for
// concurrent use; every call works on its own state.
type Importer struct {
	catalog *irbprofile.Catalog
	fetcher *fetcher
	search  searchFunc
	tracer  trace.Tracer
}

func NewImporter(catalog *irbprofile.Catalog) *Importer {
	imp := &Importer{
		catalog: catalog,
		fetcher: newFetcher(),
		tracer:  otel.Tracer("profileimport"),
	}
	imp.search = imp.searchWeb
	return imp
}

// Import runs the full pipeline: candidate resolution, bounded-concurrency
// fetch, signal extraction, confidence scoring, and draft synthesis. Fetch
// failures are per-source diagnostics; the only hard errors are a missing
// organization name or a draft that cannot be synthesized at all.
func (imp *Importer) Import(ctx context.Context, req Request) (Result, error) {
	req.OrganizationName = strings.TrimSpace(req.OrganizationName)
	if req.OrganizationName == "" {
		return Result{}, &RequestError{Field: "organizationName", Message: "organization name is required"}
	}

	ctx, span := imp.tracer.Start(ctx, "profileimport.Import",
		trace.WithAttributes(attribute.String("org.name", req.OrganizationName)))
	defer span.End()

	candidates := buildCandidates(req, imp.search)
	sources := imp.fetcher.fetchAll(ctx, candidates)
	signals := extractSignals(sources)
	docLinks := collectDocumentLinks(sources)

	networkFetched, failed := 0, 0
	for _, s := range sources {
		switch {
		case s.Status == "fetched" && s.Kind != "inline":
			networkFetched++
		case s.Status == "error":
			failed++
		}
	}
	inlineOnly := len(sources) > 0 && networkFetched == 0 && strings.TrimSpace(req.RawPolicyText) != ""

	confidence := scoreConfidence(networkFetched, failed, signals)
	band := confidenceBand(confidence)

	draft, err := imp.synthesizeDraft(req, signals)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Confidence:     confidence,
		ConfidenceBand: band,
		Signals:        signals,
		Sources:        sources,
		DocumentLinks:  docLinks,
		ProfileDraft:   draft,
		Stats: Stats{
			CandidateSourceCount: len(sources),
			FetchedSourceCount:   networkFetched,
			FailedSourceCount:    failed,
			SignalCount:          len(signals),
		},
	}
	res.Warnings, res.Notes = diagnostics(res, inlineOnly)

	span.SetAttributes(
		attribute.Int("sources.candidates", len(sources)),
		attribute.Int("sources.fetched", networkFetched),
		attribute.Int("sources.failed", failed),
		attribute.Int("signals.count", len(signals)),
		attribute.Float64("confidence", confidence),
	)
	return res, nil
}

// scoreConfidence mixes fetch success with signal strength. The signal term
// is capped at 0.42 so pasted text alone never reads as high confidence, and
// the fetch term is capped so successful fetches without evidence stay below
// the medium band.
func scoreConfidence(networkFetched, failed int, signals []Signal) float64 {
	score := 0.22
	if networkFetched > 0 {
		score += 0.24
	}
	if len(signals) > 0 {
		sum := 0.0
		for _, s := range signals {
			sum += s.weight
		}
		if sum > 0.42 {
			sum = 0.42
		}
		score += sum
	} else {
		score -= 0.05
	}
	if failed > networkFetched {
		score -= 0.08
	}
	if score < 0.08 {
		score = 0.08
	}
	if score > 0.93 {
		score = 0.93
	}
	// hard invariant regardless of tuning above
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

func confidenceBand(score float64) string {
	switch {
	case score >= 0.72:
		return "high"
	case score >= 0.5:
		return "medium"
	default:
		return "low"
	}
}

var docLinkHints = []string{"consent", "template", "application", "checklist", "protocol"}

const maxDocumentLinks = 18

// collectDocumentLinks gathers links that look like downloadable forms or
// policy documents.
func collectDocumentLinks(sources []Source) []DocumentLink {
	var out []DocumentLink
	seen := map[string]bool{}
	for _, src := range sources {
		for _, link := range src.links {
			if len(out) >= maxDocumentLinks {
				return out
			}
			if seen[link.URL] || !looksLikeDocument(link) {
				continue
			}
			seen[link.URL] = true
			label := link.Text
			if label == "" {
				label = link.URL
			}
			out = append(out, DocumentLink{URL: link.URL, Label: clip(label, 120)})
		}
	}
	return out
}

func looksLikeDocument(link pageLink) bool {
	lower := strings.ToLower(link.URL)
	for _, suffix := range []string{".pdf", ".doc", ".docx", ".rtf"} {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	haystack := lower + " " + strings.ToLower(link.Text)
	for _, hint := range docLinkHints {
		if strings.Contains(haystack, hint) {
			return true
		}
	}
	return false
}

// synthesizeDraft builds the draft profile from the base profile and the
// detected signals. Attachments implied by signals are added when the base
// profile does not already require them.
func (imp *Importer) synthesizeDraft(req Request, signals []Signal) (irbprofile.Profile, error) {
	baseID := strings.TrimSpace(req.BaseProfileID)
	base := imp.catalog.Resolve(baseID)

	draft := base
	draft.ID = imp.catalog.ImportedProfileID(req.OrganizationName)
	draft.Name = fmt.Sprintf("%s IRB Draft Profile (Imported)", req.OrganizationName)
	draft.ShortName = req.OrganizationName
	draft.Version = irbprofile.ImporterVersionPrefix + "v1"
	draft.Description = fmt.Sprintf("Draft requirements for %s, synthesized from imported sources. Review before relying on it.", req.OrganizationName)
	draft.IRBOfficeLabel = fmt.Sprintf("the %s IRB office", req.OrganizationName)

	// copy requirement slices so edits never alias the base profile
	draft.RequiredFields = append([]irbprofile.FieldSpec(nil), base.RequiredFields...)
	draft.RequiredDrafts = append([]irbprofile.DraftSpec(nil), base.RequiredDrafts...)
	draft.RequiredAttachments = append([]irbprofile.AttachmentSpec(nil), base.RequiredAttachments...)
	draft.RecommendedAttachments = append([]irbprofile.AttachmentSpec(nil), base.RecommendedAttachments...)
	draft.SectionMappings = append([]irbprofile.SectionMapping(nil), base.SectionMappings...)

	ensureRequired := func(spec irbprofile.AttachmentSpec) {
		for _, a := range draft.RequiredAttachments {
			if a.ID == spec.ID {
				return
			}
		}
		draft.RequiredAttachments = append(draft.RequiredAttachments, spec)
	}
	ensureRecommended := func(spec irbprofile.AttachmentSpec) {
		for _, a := range draft.RecommendedAttachments {
			if a.ID == spec.ID {
				return
			}
		}
		draft.RecommendedAttachments = append(draft.RecommendedAttachments, spec)
	}

	if hasSignal(signals, "consent_template") {
		ensureRequired(irbprofile.AttachmentSpec{
			ID:          "institution_consent_template_check",
			Label:       "Institution consent template check",
			Description: "Confirm the consent draft follows the institution's published template.",
		})
	}
	if hasSignal(signals, "training") {
		ensureRequired(irbprofile.AttachmentSpec{
			ID:          "training_completion_proof",
			Label:       "Training completion proof",
			Description: "Certificate showing required human subjects training is complete.",
		})
	}
	if hasSignal(signals, "recruitment_materials") {
		ensureRequired(irbprofile.AttachmentSpec{
			ID:          "recruitment_material_copies",
			Label:       "Recruitment material copies",
			Description: "Final copies of every recruitment message, flyer, or script.",
		})
	}
	if hasSignal(signals, "hipaa_health_data") {
		ensureRecommended(irbprofile.AttachmentSpec{
			ID:          "hipaa_applicability_note",
			Label:       "HIPAA applicability note",
			Description: "Short note on whether protected health information is in scope.",
		})
	}
	ensureRecommended(irbprofile.AttachmentSpec{
		ID:          "imported_form_links_review",
		Label:       "Imported form links review",
		Description: "Verify the discovered institutional form links are current before submitting.",
	})

	return draft, nil
}

// diagnostics derives the caller-facing warnings and notes from the
// assembled result.
func diagnostics(res Result, inlineOnly bool) (warnings, notes []string) {
	if res.Stats.FetchedSourceCount == 0 && res.Stats.CandidateSourceCount > 0 && !inlineOnly {
		warnings = append(warnings, "No candidate sources could be fetched; the draft relies on the generic baseline.")
	}
	if res.Stats.FailedSourceCount > 0 {
		warnings = append(warnings, fmt.Sprintf("%d source(s) failed to fetch; see the source list for details.", res.Stats.FailedSourceCount))
	}
	if res.Stats.SignalCount == 0 {
		warnings = append(warnings, "No requirement signals were detected in the available text.")
	}
	if inlineOnly {
		warnings = append(warnings, "The only evidence was pasted text; institutional pages were not consulted.")
	}
	if res.ConfidenceBand == "low" {
		warnings = append(warnings, "Import confidence is low; verify every requirement against the institution's own pages.")
	}
	warnings = append(warnings, "This draft is a best-effort starting point, not an official requirements list.")

	if len(res.DocumentLinks) > 0 {
		notes = append(notes, fmt.Sprintf("Found %d likely form or policy document link(s); versions on the institution site may be newer.", len(res.DocumentLinks)))
	}
	if res.ConfidenceBand == "high" {
		notes = append(notes, "Multiple institutional sources agreed on the detected requirements.")
	}
	return warnings, notes
}

package profileimport

import (
	"fmt"
	"strings"
)

// Signal is evidence that a requirement category applies at the target
// institution.
type Signal struct {
	ID            string   `json:"id"`
	Label         string   `json:"label"`
	Summary       string   `json:"summary"`
	EvidenceCount int      `json:"evidenceCount"`
	Highlights    []string `json:"highlights,omitempty"`

	weight float64
}

// signalRule maps keyword evidence to a requirement category. Weights feed
// the confidence score; keyword lists are tuned by hand against real IRB
// office pages.
type signalRule struct {
	id       string
	label    string
	weight   float64
	patterns []string
	summary  string
}

var signalRules = []signalRule{
	{
		id: "review_categories", label: "Review categories", weight: 0.12,
		patterns: []string{"exempt review", "expedited review", "full board", "exempt category", "level of review", "review category"},
		summary:  "The office distinguishes exempt, expedited, and full-board review tracks.",
	},
	{
		id: "training", label: "Human subjects training", weight: 0.11,
		patterns: []string{"citi", "citi training", "human subjects training", "research ethics training", "training requirement", "training certificate"},
		summary:  "Researcher training (such as CITI) is required before data collection.",
	},
	{
		id: "consent_template", label: "Consent template", weight: 0.10,
		patterns: []string{"consent template", "consent form template", "informed consent form", "consent document", "sample consent"},
		summary:  "The office publishes consent form templates or sample language.",
	},
	{
		id: "recruitment_materials", label: "Recruitment materials", weight: 0.08,
		patterns: []string{"recruitment material", "recruitment flyer", "recruitment script", "recruitment email", "advertisement approval"},
		summary:  "Recruitment materials must be submitted for review.",
	},
	{
		id: "survey_instrument", label: "Survey instruments", weight: 0.09,
		patterns: []string{"survey instrument", "questionnaire", "interview guide", "data collection instrument", "instrument copy"},
		summary:  "Copies of survey or interview instruments are expected with the application.",
	},
	{
		id: "privacy_data_security", label: "Privacy and data security", weight: 0.10,
		patterns: []string{"data security", "data management plan", "confidentiality", "encryption", "secure storage", "data protection"},
		summary:  "The office reviews data security and confidentiality arrangements.",
	},
	{
		id: "education_records", label: "Education records (FERPA)", weight: 0.08,
		patterns: []string{"ferpa", "education record", "student record", "registrar approval"},
		summary:  "Education-record research triggers FERPA review steps.",
	},
	{
		id: "minors_assent", label: "Minors and assent", weight: 0.08,
		patterns: []string{"parental permission", "parental consent", "child assent", "assent form", "minors", "under 18"},
		summary:  "Research with minors requires parental permission and assent procedures.",
	},
	{
		id: "hipaa_health_data", label: "HIPAA health data", weight: 0.05,
		patterns: []string{"hipaa", "protected health information", "phi", "health record"},
		summary:  "Health-data research involves HIPAA authorization steps.",
	},
}

const (
	maxHighlightsPerRule   = 3
	maxHighlightsPerSource = 2
)

// extractSignals scans fetched source text for every rule. A rule becomes a
// Signal once any pattern matches; evidence counts accumulate across sources.
func extractSignals(sources []Source) []Signal {
	var out []Signal
	for _, rule := range signalRules {
		total := 0
		var highlights []string
		for _, src := range sources {
			if src.Status != "fetched" || src.text == "" {
				continue
			}
			lower := strings.ToLower(src.text)
			hits := 0
			for _, p := range rule.patterns {
				hits += strings.Count(lower, p)
			}
			if hits == 0 {
				continue
			}
			total += hits
			fromSource := 0
			for _, sentence := range sentences(src.text) {
				if fromSource >= maxHighlightsPerSource || len(highlights) >= maxHighlightsPerRule {
					break
				}
				ls := strings.ToLower(sentence)
				for _, p := range rule.patterns {
					if strings.Contains(ls, p) {
						highlights = append(highlights, clip(sentence, 220))
						fromSource++
						break
					}
				}
			}
		}
		if total > 0 {
			out = append(out, Signal{
				ID:            rule.id,
				Label:         rule.label,
				Summary:       rule.summary,
				EvidenceCount: total,
				Highlights:    highlights,
				weight:        rule.weight,
			})
		}
	}
	return out
}

func hasSignal(signals []Signal, id string) bool {
	for _, s := range signals {
		if s.ID == id {
			return true
		}
	}
	return false
}

// sentences splits text on sentence-ending punctuation. Rough, but signal
// highlights only need readable snippets.
func sentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?', '\n':
			if s := strings.TrimSpace(text[start : i+1]); len(s) > 3 {
				out = append(out, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(text[start:]); len(s) > 3 {
		out = append(out, s)
	}
	return out
}

func clip(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return fmt.Sprintf("%s…", strings.TrimSpace(s[:max]))
}

// Package readiness computes the gap between the current submission
// materials and an institution profile's requirements. Check is a pure
// function and recomputes everything on every call.
package readiness

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/joelkehle/irb-copilot/internal/intake"
	"github.com/joelkehle/irb-copilot/internal/irbprofile"
	"github.com/joelkehle/irb-copilot/internal/screening"
)

type MissingField struct {
	Key    string `json:"key"`
	Label  string `json:"label"`
	Reason string `json:"reason"`
}

type MissingDraft struct {
	Type  string `json:"type"`
	Label string `json:"label"`
}

type MissingAttachment struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

type PlaceholderFinding struct {
	DraftType    string   `json:"draftType"`
	Count        int      `json:"count"`
	Placeholders []string `json:"placeholders"`
}

// Item is one blocking or warning entry with enough context to render and to
// assert on in tests.
type Item struct {
	Kind   string `json:"kind"` // risk_flag, missing_field, missing_draft, placeholder, missing_attachment
	Ref    string `json:"ref"`
	Label  string `json:"label"`
	Detail string `json:"detail,omitempty"`
}

type SectionStatus struct {
	SectionID    string `json:"sectionId"`
	SectionLabel string `json:"sectionLabel"`
	SourceType   string `json:"sourceType"`
	SourceKey    string `json:"sourceKey"`
	Status       string `json:"status"` // complete, missing, review_needed
	Notes        string `json:"notes,omitempty"`
}

type Summary struct {
	ReadyForAdvisorReview  bool `json:"readyForAdvisorReview"`
	ReadyForIRBDraftPacket bool `json:"readyForIrbDraftPacket"`
	BlockingCount          int  `json:"blockingCount"`
	WarningCount           int  `json:"warningCount"`
	MissingFieldCount      int  `json:"missingFieldCount"`
	MissingDraftCount      int  `json:"missingDraftCount"`
	PlaceholderIssueCount  int  `json:"placeholderIssueCount"`
}

type Readiness struct {
	Summary                  Summary              `json:"summary"`
	BlockingItems            []Item               `json:"blockingItems"`
	MissingFields            []MissingField       `json:"missingFields"`
	MissingDrafts            []MissingDraft       `json:"missingDrafts"`
	MissingManualAttachments []MissingAttachment  `json:"missingManualAttachments"`
	PlaceholderFindings      []PlaceholderFinding `json:"placeholderFindings"`
	WarningItems             []Item               `json:"warningItems"`
	NextSteps                []string             `json:"nextSteps"`
	SectionChecklist         []SectionStatus      `json:"sectionChecklist"`
}

var placeholderPattern = regexp.MustCompile(`\[[^\[\]\n]{2,100}\]`)

// Check reconciles the profile's requirements against the intake, the risk
// evaluation, the draft texts, and the set of attachment ids the researcher
// has acknowledged supplying.
func Check(profile irbprofile.Profile, form intake.Form, eval screening.Evaluation, drafts map[string]string, acknowledged []string) Readiness {
	acked := map[string]bool{}
	for _, id := range acknowledged {
		acked[strings.TrimSpace(id)] = true
	}

	missingFields := checkRequiredFields(profile, form)
	missingDrafts := checkRequiredDrafts(profile, drafts)
	findings := scanPlaceholders(profile, drafts)
	missingAttachments := checkAttachments(profile, form, acked)

	var blocking, warnings []Item
	for _, fl := range eval.Flags {
		item := Item{Kind: "risk_flag", Ref: fl.ID, Label: fl.Title, Detail: fl.Rationale}
		if fl.Severity == screening.SeverityHigh {
			blocking = append(blocking, item)
		} else {
			warnings = append(warnings, item)
		}
	}
	for _, mf := range missingFields {
		blocking = append(blocking, Item{Kind: "missing_field", Ref: mf.Key, Label: mf.Label, Detail: mf.Reason})
	}
	for _, md := range missingDrafts {
		blocking = append(blocking, Item{Kind: "missing_draft", Ref: md.Type, Label: md.Label})
	}
	for _, pf := range findings {
		warnings = append(warnings, Item{
			Kind:   "placeholder",
			Ref:    pf.DraftType,
			Label:  fmt.Sprintf("Unresolved placeholders in %s draft", pf.DraftType),
			Detail: fmt.Sprintf("%d placeholder(s) still need real values.", pf.Count),
		})
	}
	requiredAttachmentMissing := false
	for _, ma := range missingAttachments {
		item := Item{Kind: "missing_attachment", Ref: ma.ID, Label: ma.Label, Detail: ma.Description}
		if ma.Required {
			requiredAttachmentMissing = true
		}
		warnings = append(warnings, item)
	}

	placeholderIssues := 0
	for _, pf := range findings {
		placeholderIssues += pf.Count
	}

	advisorReady := len(blocking) == 0
	packetReady := advisorReady && placeholderIssues == 0 && !requiredAttachmentMissing

	return Readiness{
		Summary: Summary{
			ReadyForAdvisorReview:  advisorReady,
			ReadyForIRBDraftPacket: packetReady,
			BlockingCount:          len(blocking),
			WarningCount:           len(warnings),
			MissingFieldCount:      len(missingFields),
			MissingDraftCount:      len(missingDrafts),
			PlaceholderIssueCount:  placeholderIssues,
		},
		BlockingItems:            blocking,
		MissingFields:            missingFields,
		MissingDrafts:            missingDrafts,
		MissingManualAttachments: missingAttachments,
		PlaceholderFindings:      findings,
		WarningItems:             warnings,
		NextSteps:                nextSteps(blocking, findings, missingAttachments, eval),
		SectionChecklist:         buildChecklist(profile, form, eval, drafts, findings, missingAttachments),
	}
}

// conditionalApplies decides whether a profile requirement is in play for
// this intake. A nil conditional always applies.
func conditionalApplies(c *irbprofile.Conditional, form intake.Form) bool {
	if c == nil {
		return true
	}
	if c.FieldTruthy != "" && !form.RawBool(c.FieldTruthy) {
		return false
	}
	if c.FieldFalsy != "" && form.RawBool(c.FieldFalsy) {
		return false
	}
	if c.FieldEquals != nil && form.RawString(c.FieldEquals.Field) != c.FieldEquals.Value {
		return false
	}
	if len(c.MethodIn) > 0 && !intersects(form.DataCollectionMethods, c.MethodIn) {
		return false
	}
	if len(c.ParticipantIn) > 0 && !intersects(form.ParticipantGroups, c.ParticipantIn) {
		return false
	}
	return true
}

func intersects(have, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}

func checkRequiredFields(profile irbprofile.Profile, form intake.Form) []MissingField {
	var out []MissingField
	for _, spec := range profile.RequiredFields {
		if !conditionalApplies(spec.Conditional, form) {
			continue
		}
		if reason, missing := fieldMissing(spec, form); missing {
			out = append(out, MissingField{Key: spec.Key, Label: spec.Label, Reason: reason})
		}
	}
	return out
}

func fieldMissing(spec irbprofile.FieldSpec, form intake.Form) (string, bool) {
	switch spec.Type {
	case "multi_select":
		if len(form.RawList(spec.Key)) == 0 {
			return "select at least one option", true
		}
	case "bool_true":
		if !form.RawBool(spec.Key) {
			return "must be confirmed", true
		}
	default: // text and select
		v := form.RawString(spec.Key)
		if v == "" {
			return "value is empty", true
		}
		for _, bad := range spec.DisallowValues {
			if strings.EqualFold(v, bad) {
				return fmt.Sprintf("%q is not an acceptable answer", v), true
			}
		}
	}
	return "", false
}

func checkRequiredDrafts(profile irbprofile.Profile, drafts map[string]string) []MissingDraft {
	var out []MissingDraft
	for _, spec := range profile.RequiredDrafts {
		if strings.TrimSpace(drafts[spec.Type]) == "" {
			out = append(out, MissingDraft{Type: spec.Type, Label: spec.Label})
		}
	}
	return out
}

// scanPlaceholders finds unresolved [bracketed] template tokens in each
// required draft that has text. Counts are per distinct token.
func scanPlaceholders(profile irbprofile.Profile, drafts map[string]string) []PlaceholderFinding {
	var out []PlaceholderFinding
	for _, spec := range profile.RequiredDrafts {
		text := drafts[spec.Type]
		if strings.TrimSpace(text) == "" {
			continue
		}
		matches := placeholderPattern.FindAllString(text, -1)
		if len(matches) == 0 {
			continue
		}
		distinct := map[string]bool{}
		for _, m := range matches {
			distinct[m] = true
		}
		tokens := make([]string, 0, len(distinct))
		for tok := range distinct {
			tokens = append(tokens, tok)
		}
		sort.Slice(tokens, func(i, j int) bool {
			return strings.ToLower(tokens[i]) < strings.ToLower(tokens[j])
		})
		out = append(out, PlaceholderFinding{DraftType: spec.Type, Count: len(tokens), Placeholders: tokens})
	}
	return out
}

func checkAttachments(profile irbprofile.Profile, form intake.Form, acked map[string]bool) []MissingAttachment {
	var out []MissingAttachment
	for _, spec := range profile.RequiredAttachments {
		if !conditionalApplies(spec.Conditional, form) || acked[spec.ID] {
			continue
		}
		out = append(out, MissingAttachment{ID: spec.ID, Label: spec.Label, Description: spec.Description, Required: true})
	}
	for _, spec := range profile.RecommendedAttachments {
		if !conditionalApplies(spec.Conditional, form) || acked[spec.ID] {
			continue
		}
		out = append(out, MissingAttachment{ID: spec.ID, Label: spec.Label, Description: spec.Description, Required: false})
	}
	return out
}

func buildChecklist(profile irbprofile.Profile, form intake.Form, eval screening.Evaluation, drafts map[string]string, findings []PlaceholderFinding, missingAttachments []MissingAttachment) []SectionStatus {
	placeholdersIn := map[string]int{}
	for _, pf := range findings {
		placeholdersIn[pf.DraftType] = pf.Count
	}
	requiredMissing, recommendedMissing := 0, 0
	for _, ma := range missingAttachments {
		if ma.Required {
			requiredMissing++
		} else {
			recommendedMissing++
		}
	}

	var out []SectionStatus
	for _, m := range profile.SectionMappings {
		st := SectionStatus{
			SectionID:    m.SectionID,
			SectionLabel: m.SectionLabel,
			SourceType:   m.SourceType,
			SourceKey:    m.SourceKey,
		}
		switch m.SourceType {
		case "intake":
			if form.RawString(m.SourceKey) != "" || len(form.RawList(m.SourceKey)) > 0 {
				st.Status = "complete"
			} else {
				st.Status = "missing"
				st.Notes = "answer the intake question for this section"
			}
		case "generated_doc":
			switch {
			case strings.TrimSpace(drafts[m.SourceKey]) == "":
				st.Status = "missing"
				st.Notes = "generate this draft"
			case placeholdersIn[m.SourceKey] > 0:
				st.Status = "review_needed"
				st.Notes = fmt.Sprintf("%d placeholder(s) to resolve", placeholdersIn[m.SourceKey])
			default:
				st.Status = "complete"
			}
		case "derived":
			st.Status, st.Notes = derivedStatus(m.SourceKey, form, eval)
		case "manual_attachment_bundle":
			switch {
			case requiredMissing > 0:
				st.Status = "missing"
				st.Notes = fmt.Sprintf("%d required attachment(s) outstanding", requiredMissing)
			case recommendedMissing > 0:
				st.Status = "review_needed"
				st.Notes = fmt.Sprintf("%d recommended attachment(s) outstanding", recommendedMissing)
			default:
				st.Status = "complete"
			}
		default:
			st.Status = "review_needed"
			st.Notes = fmt.Sprintf("unknown section source %q", m.SourceType)
		}
		out = append(out, st)
	}
	return out
}

func derivedStatus(key string, form intake.Form, eval screening.Evaluation) (string, string) {
	switch key {
	case "participants_and_recruiter":
		if len(form.ParticipantGroups) > 0 && form.RecruiterRole != "" && form.RecruiterRole != "undecided" {
			return "complete", ""
		}
		return "missing", "declare participant groups and the recruiter role"
	case "evaluation_flags":
		if eval.Summary.FlagCounts[screening.SeverityHigh] > 0 {
			return "review_needed", "high-severity risk flags are unresolved"
		}
		return "complete", ""
	}
	return "review_needed", fmt.Sprintf("unknown derived source %q", key)
}

func nextSteps(blocking []Item, findings []PlaceholderFinding, missingAttachments []MissingAttachment, eval screening.Evaluation) []string {
	var out []string
	seen := map[string]bool{}
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, b := range blocking {
		switch b.Kind {
		case "risk_flag":
			add(fmt.Sprintf("Resolve the high-severity flag: %s.", b.Label))
		case "missing_field":
			add(fmt.Sprintf("Complete the intake answer: %s.", b.Label))
		case "missing_draft":
			add(fmt.Sprintf("Generate the missing draft: %s.", b.Label))
		}
	}
	for _, pf := range findings {
		add(fmt.Sprintf("Replace the %d placeholder(s) in the %s draft with real values.", pf.Count, pf.DraftType))
	}
	for _, ma := range missingAttachments {
		if ma.Required {
			add(fmt.Sprintf("Attach and confirm: %s.", ma.Label))
		}
	}
	if len(out) == 0 {
		if eval.Summary.FlagCounts[screening.SeverityMedium] > 0 {
			add("Review the medium-severity flags with your advisor before submitting.")
		} else {
			add("Share the packet with your advisor for a final review.")
		}
	}
	return out
}

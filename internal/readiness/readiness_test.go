package readiness

import (
	"testing"

	"github.com/joelkehle/irb-copilot/internal/intake"
	"github.com/joelkehle/irb-copilot/internal/irbprofile"
	"github.com/joelkehle/irb-copilot/internal/screening"
)

func completeIntake() map[string]any {
	return map[string]any{
		"studyTitle":                  "AI Tutor Study",
		"institution":                 "Acme University",
		"courseName":                  "CS 101",
		"projectPurpose":              "Measure whether an AI tutor improves quiz scores.",
		"participantGroups":           []any{"students"},
		"dataCollectionMethods":       []any{"survey"},
		"recruiterRole":               "research_assistant",
		"includesMinors":              "no",
		"participationVoluntary":      true,
		"researchSeparateFromGrades":  true,
		"alternativeActivityProvided": true,
		"deidentifyBeforeAnalysis":    true,
		"storageLocation":             "university encrypted drive",
		"accessRoles":                 "PI and one research assistant",
		"retentionPeriod":             "3 years after publication",
	}
}

func completeDrafts() map[string]string {
	return map[string]string{
		"consent":       "You are invited to participate. Participation is voluntary.",
		"recruitment":   "We are looking for volunteers for a study about AI tutoring.",
		"data_handling": "Responses are stored on the university encrypted drive.",
	}
}

func allRequiredAcks() []string {
	return []string{"survey_instrument_copy", "advisor_review_notes"}
}

func run(t *testing.T, raw map[string]any, drafts map[string]string, acks []string) Readiness {
	t.Helper()
	form, err := intake.Normalize(raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	profile := irbprofile.NewCatalog().Resolve("")
	return Check(profile, form, screening.Evaluate(form), drafts, acks)
}

func TestFullyPreparedSubmission(t *testing.T) {
	r := run(t, completeIntake(), completeDrafts(), allRequiredAcks())
	if !r.Summary.ReadyForAdvisorReview {
		t.Fatalf("not advisor-ready: blocking=%v missing=%v", r.BlockingItems, r.MissingFields)
	}
	if !r.Summary.ReadyForIRBDraftPacket {
		t.Fatalf("not packet-ready: %+v", r.Summary)
	}
	if r.Summary.BlockingCount != 0 || r.Summary.MissingFieldCount != 0 {
		t.Fatalf("summary = %+v", r.Summary)
	}
}

func TestPacketImpliesAdvisor(t *testing.T) {
	scenarios := []struct {
		raw    map[string]any
		drafts map[string]string
		acks   []string
	}{
		{completeIntake(), completeDrafts(), allRequiredAcks()},
		{completeIntake(), completeDrafts(), nil},
		{map[string]any{}, nil, nil},
		{completeIntake(), map[string]string{"consent": "Dear [PARTICIPANT NAME], welcome."}, allRequiredAcks()},
	}
	for i, sc := range scenarios {
		r := run(t, sc.raw, sc.drafts, sc.acks)
		if r.Summary.ReadyForIRBDraftPacket && !r.Summary.ReadyForAdvisorReview {
			t.Fatalf("scenario %d: packet-ready without advisor-ready", i)
		}
	}
}

func TestMissingFieldsBlock(t *testing.T) {
	raw := completeIntake()
	delete(raw, "storageLocation")
	raw["recruiterRole"] = "undecided"
	r := run(t, raw, completeDrafts(), allRequiredAcks())

	if r.Summary.ReadyForAdvisorReview {
		t.Fatal("advisor-ready despite missing fields")
	}
	keys := map[string]bool{}
	for _, mf := range r.MissingFields {
		keys[mf.Key] = true
	}
	if !keys["storageLocation"] || !keys["recruiterRole"] {
		t.Fatalf("missing fields = %v", r.MissingFields)
	}
}

func TestConditionalFieldOnlyWhenTriggered(t *testing.T) {
	r := run(t, completeIntake(), completeDrafts(), allRequiredAcks())
	for _, mf := range r.MissingFields {
		if mf.Key == "identifierTypes" {
			t.Fatal("identifierTypes required without collectsIdentifiers")
		}
	}

	raw := completeIntake()
	raw["collectsIdentifiers"] = true
	r = run(t, raw, completeDrafts(), append(allRequiredAcks(), "data_coding_or_linkage_plan"))
	found := false
	for _, mf := range r.MissingFields {
		if mf.Key == "identifierTypes" {
			found = true
		}
	}
	if !found {
		t.Fatalf("identifierTypes not required: %v", r.MissingFields)
	}
}

func TestMissingDraftBlocks(t *testing.T) {
	drafts := completeDrafts()
	drafts["consent"] = "   "
	r := run(t, completeIntake(), drafts, allRequiredAcks())
	if r.Summary.MissingDraftCount != 1 {
		t.Fatalf("missing drafts = %v", r.MissingDrafts)
	}
	if r.Summary.ReadyForAdvisorReview {
		t.Fatal("advisor-ready despite missing draft")
	}
}

func TestPlaceholdersDowngradeToWarning(t *testing.T) {
	drafts := completeDrafts()
	drafts["consent"] = "Dear [PARTICIPANT NAME], contact [PI EMAIL] or [PI EMAIL] with questions."
	r := run(t, completeIntake(), drafts, allRequiredAcks())

	if !r.Summary.ReadyForAdvisorReview {
		t.Fatalf("placeholders should not block advisor review: %v", r.BlockingItems)
	}
	if r.Summary.ReadyForIRBDraftPacket {
		t.Fatal("packet-ready despite placeholders")
	}
	if len(r.PlaceholderFindings) != 1 {
		t.Fatalf("findings = %v", r.PlaceholderFindings)
	}
	pf := r.PlaceholderFindings[0]
	if pf.Count != 2 {
		t.Fatalf("distinct placeholder count = %d, want 2", pf.Count)
	}
	if pf.Placeholders[0] != "[PARTICIPANT NAME]" {
		t.Fatalf("placeholders not sorted: %v", pf.Placeholders)
	}
}

func TestAttachmentAcknowledgement(t *testing.T) {
	r := run(t, completeIntake(), completeDrafts(), nil)
	if r.Summary.ReadyForIRBDraftPacket {
		t.Fatal("packet-ready with unacknowledged required attachment")
	}
	var required []string
	for _, ma := range r.MissingManualAttachments {
		if ma.Required {
			required = append(required, ma.ID)
		}
	}
	if len(required) != 1 || required[0] != "survey_instrument_copy" {
		t.Fatalf("required attachments = %v", required)
	}

	r = run(t, completeIntake(), completeDrafts(), allRequiredAcks())
	if !r.Summary.ReadyForIRBDraftPacket {
		t.Fatalf("acknowledged attachments still missing: %v", r.MissingManualAttachments)
	}
}

func TestHighFlagsBlock(t *testing.T) {
	raw := completeIntake()
	raw["includesMinors"] = "yes"
	r := run(t, raw, completeDrafts(), allRequiredAcks())
	if r.Summary.ReadyForAdvisorReview {
		t.Fatal("advisor-ready despite high-severity flag")
	}
	found := false
	for _, b := range r.BlockingItems {
		if b.Kind == "risk_flag" && b.Ref == "minor_status_unclear" {
			found = true
		}
	}
	if !found {
		t.Fatalf("blocking items = %v", r.BlockingItems)
	}
}

func TestSectionChecklist(t *testing.T) {
	r := run(t, completeIntake(), completeDrafts(), allRequiredAcks())
	statuses := map[string]string{}
	for _, s := range r.SectionChecklist {
		statuses[s.SectionID] = s.Status
	}
	for _, id := range []string{"study_overview", "participants", "consent_doc", "risk_review", "attachments"} {
		if statuses[id] != "complete" {
			t.Fatalf("section %s = %q, want complete (all: %v)", id, statuses[id], statuses)
		}
	}

	raw := completeIntake()
	raw["includesMinors"] = "yes"
	drafts := completeDrafts()
	drafts["consent"] = "Dear [NAME]"
	delete(raw, "projectPurpose")
	r = run(t, raw, drafts, allRequiredAcks())
	statuses = map[string]string{}
	for _, s := range r.SectionChecklist {
		statuses[s.SectionID] = s.Status
	}
	if statuses["risk_review"] != "review_needed" {
		t.Fatalf("risk_review = %q", statuses["risk_review"])
	}
	if statuses["consent_doc"] != "review_needed" {
		t.Fatalf("consent_doc = %q", statuses["consent_doc"])
	}
	if statuses["study_overview"] != "missing" {
		t.Fatalf("study_overview = %q", statuses["study_overview"])
	}
}

func TestDeterministic(t *testing.T) {
	a := run(t, completeIntake(), completeDrafts(), nil)
	b := run(t, completeIntake(), completeDrafts(), nil)
	if len(a.NextSteps) != len(b.NextSteps) || len(a.SectionChecklist) != len(b.SectionChecklist) {
		t.Fatal("repeat check diverged")
	}
	for i := range a.NextSteps {
		if a.NextSteps[i] != b.NextSteps[i] {
			t.Fatalf("next steps diverged at %d", i)
		}
	}
}

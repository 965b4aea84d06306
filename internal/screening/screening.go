// Package screening runs the deterministic risk rules over a normalized
// intake form. Evaluation is a pure function: identical input yields
// identical flags in identical order.
package screening

import (
	"sort"

	"github.com/joelkehle/irb-copilot/internal/intake"
)

type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

var severityRank = map[Severity]int{
	SeverityHigh:   0,
	SeverityMedium: 1,
	SeverityLow:    2,
}

// Flag is a single triggered risk finding. Flags are value objects and are
// never mutated after Evaluate returns them.
type Flag struct {
	ID        string   `json:"id"`
	Severity  Severity `json:"severity"`
	Title     string   `json:"title"`
	Rationale string   `json:"rationale"`
	Actions   []string `json:"actions"`
}

type Summary struct {
	FlagCounts                  map[Severity]int `json:"flagCounts"`
	LikelyHumanSubjectsResearch bool             `json:"likelyHumanSubjectsResearch"`
	LikelyMinimalRisk           bool             `json:"likelyMinimalRisk"`
	NextSteps                   []string         `json:"nextSteps"`
}

type Evaluation struct {
	Flags   []Flag  `json:"flags"`
	Summary Summary `json:"summary"`
}

// rule is one independent condition. Rules never share state; any number may
// fire on the same intake. Severity may depend on the form (minors status).
type rule struct {
	id        string
	severity  func(f intake.Form) Severity
	when      func(f intake.Form) bool
	title     string
	rationale string
	actions   []string
}

func fixed(s Severity) func(intake.Form) Severity {
	return func(intake.Form) Severity { return s }
}

func contains(list []string, want string) bool {
	for _, item := range list {
		if item == want {
			return true
		}
	}
	return false
}

// rules fire in declaration order; Evaluate sorts the output by severity
// first, so declaration order only breaks ties.
var rules = []rule{
	{
		id:       "power_imbalance_recruitment",
		severity: fixed(SeverityHigh),
		when: func(f intake.Form) bool {
			return contains(f.ParticipantGroups, "students") &&
				(f.RecruiterRole == "instructor" || f.RecruiterRole == "ta")
		},
		title:     "Recruiting your own students creates a power imbalance",
		rationale: "When the recruiter controls grades or standing, students may feel unable to decline.",
		actions: []string{
			"Have a neutral third party handle recruitment and consent.",
			"State explicitly that participation has no effect on grades or standing.",
		},
	},
	{
		id:       "extra_credit_no_alternative",
		severity: fixed(SeverityHigh),
		when: func(f intake.Form) bool {
			return f.OffersExtraCredit && !f.AlternativeActivityProvided
		},
		title:     "Extra credit offered without an equivalent alternative",
		rationale: "Credit tied to participation is coercive unless a comparable non-research option exists.",
		actions: []string{
			"Offer an alternative activity of equal effort and equal credit.",
			"Describe the alternative in the consent materials.",
		},
	},
	{
		id:       "ai_grade_impact",
		severity: fixed(SeverityHigh),
		when: func(f intake.Form) bool {
			return f.AIAffectsOfficialGrades && !f.ResearchSeparateFromGrades
		},
		title:     "Study outputs feed into official grades",
		rationale: "Research-driven grading entangles the study with students' academic records and consequences.",
		actions: []string{
			"Separate research measurements from official grading entirely.",
			"If separation is impossible, document the grading safeguards for review.",
		},
	},
	{
		id:       "participation_not_clearly_voluntary",
		severity: fixed(SeverityMedium),
		when: func(f intake.Form) bool {
			return !f.ParticipationVoluntary
		},
		title:     "Voluntariness of participation is not established",
		rationale: "The intake does not confirm that participation is clearly voluntary and refusable without penalty.",
		actions: []string{
			"State in recruitment and consent materials that participation is voluntary.",
			"Confirm withdrawal carries no penalty.",
		},
	},
	{
		id:       "ferpa_records",
		severity: fixed(SeverityHigh),
		when: func(f intake.Form) bool {
			return f.CollectsEducationRecords ||
				f.AIAffectsOfficialGrades ||
				contains(f.DataCollectionMethods, "lms_data")
		},
		title:     "Education records are in scope (FERPA)",
		rationale: "Grades, LMS activity, and other education records carry FERPA obligations beyond IRB review.",
		actions: []string{
			"Confirm FERPA handling with the registrar or records office.",
			"Limit collection to the minimum records the research question needs.",
		},
	},
	{
		id:       "identifiable_data",
		severity: fixed(SeverityMedium),
		when: func(f intake.Form) bool {
			return f.CollectsIdentifiers || len(f.IdentifierTypes) > 0
		},
		title:     "Identifiable data will be collected",
		rationale: "Direct or indirect identifiers raise the confidentiality bar for storage and access.",
		actions: []string{
			"Document where identifiers live, who can access them, and when they are destroyed.",
			"Prefer a coded linkage file stored separately from response data.",
		},
	},
	{
		id:       "sensitive_data",
		severity: fixed(SeverityMedium),
		when: func(f intake.Form) bool {
			return f.CollectsSensitive
		},
		title:     "Sensitive data categories are in scope",
		rationale: "Sensitive topics increase the potential harm from a confidentiality breach.",
		actions: []string{
			"Justify each sensitive data element in the protocol.",
			"Describe breach-mitigation and participant-support plans.",
		},
	},
	{
		id: "minor_status_unclear",
		severity: func(f intake.Form) Severity {
			if f.IncludesMinors == "yes" {
				return SeverityHigh
			}
			return SeverityMedium
		},
		when: func(f intake.Form) bool {
			return f.IncludesMinors == "yes" || f.IncludesMinors == "unknown"
		},
		title:     "Minors may be in the participant pool",
		rationale: "Research with minors requires parental permission and child assent procedures.",
		actions: []string{
			"Determine definitively whether anyone under 18 can participate.",
			"If minors participate, prepare parental permission and assent forms.",
		},
	},
	{
		id:       "grade_separation_unclear",
		severity: fixed(SeverityMedium),
		when: func(f intake.Form) bool {
			return contains(f.ParticipantGroups, "students") && !f.ResearchSeparateFromGrades
		},
		title:     "Separation between research and grading is not confirmed",
		rationale: "Student participants need assurance that research activity cannot touch their grades.",
		actions: []string{
			"Confirm and document that research data never informs grading.",
		},
	},
	{
		id:       "deidentification_missing",
		severity: fixed(SeverityMedium),
		when: func(f intake.Form) bool {
			return (f.CollectsIdentifiers || f.CollectsEducationRecords) && !f.DeidentifyBeforeAnalysis
		},
		title:     "No de-identification step before analysis",
		rationale: "Analyzing identifiable records without a de-identification step increases exposure.",
		actions: []string{
			"Add a de-identification or coding step before analysis.",
		},
	},
	{
		id:       "storage_location_missing",
		severity: fixed(SeverityLow),
		when: func(f intake.Form) bool {
			return f.StorageLocation == ""
		},
		title:     "Data storage location not specified",
		rationale: "Reviewers expect a named, access-controlled storage location.",
		actions: []string{
			"Name the storage system and its access controls.",
		},
	},
	{
		id:       "access_roles_missing",
		severity: fixed(SeverityLow),
		when: func(f intake.Form) bool {
			return f.AccessRoles == ""
		},
		title:     "Data access roles not specified",
		rationale: "The protocol should list who can see raw and identifiable data.",
		actions: []string{
			"List the roles with data access and what each role can see.",
		},
	},
	{
		id:       "retention_period_missing",
		severity: fixed(SeverityLow),
		when: func(f intake.Form) bool {
			return f.RetentionPeriod == ""
		},
		title:     "Retention period not specified",
		rationale: "Reviewers expect a concrete retention and destruction timeline.",
		actions: []string{
			"State how long data is kept and when it is destroyed.",
		},
	},
	{
		id:       "third_party_tools",
		severity: fixed(SeverityLow),
		when: func(f intake.Form) bool {
			return f.ThirdPartyTools != ""
		},
		title:     "Third-party tools handle participant data",
		rationale: "External tools introduce additional data processors and terms of service to vet.",
		actions: []string{
			"List each third-party tool and confirm its data-handling terms.",
		},
	},
}

// Evaluate runs every rule against the form and assembles the ordered flag
// list plus the derived summary.
func Evaluate(f intake.Form) Evaluation {
	var flags []Flag
	for _, r := range rules {
		if !r.when(f) {
			continue
		}
		flags = append(flags, Flag{
			ID:        r.id,
			Severity:  r.severity(f),
			Title:     r.title,
			Rationale: r.rationale,
			Actions:   append([]string(nil), r.actions...),
		})
	}
	sort.SliceStable(flags, func(i, j int) bool {
		return severityRank[flags[i].Severity] < severityRank[flags[j].Severity]
	})

	counts := map[Severity]int{SeverityHigh: 0, SeverityMedium: 0, SeverityLow: 0}
	var nextSteps []string
	seen := map[string]bool{}
	for _, fl := range flags {
		counts[fl.Severity]++
		for _, a := range fl.Actions {
			if !seen[a] {
				seen[a] = true
				nextSteps = append(nextSteps, a)
			}
		}
	}

	return Evaluation{
		Flags: flags,
		Summary: Summary{
			FlagCounts:                  counts,
			LikelyHumanSubjectsResearch: len(f.DataCollectionMethods) > 0 || len(f.ParticipantGroups) > 0,
			LikelyMinimalRisk:           counts[SeverityHigh] == 0 && !f.CollectsSensitive,
			NextSteps:                   nextSteps,
		},
	}
}

// Package irbprofile defines institution requirement profiles and the
// in-process catalog that holds them.
package irbprofile

// Conditional gates a requirement on the shape of the intake. Zero value
// means unconditional.
type Conditional struct {
	FieldTruthy   string   `json:"fieldTruthy,omitempty"`
	FieldFalsy    string   `json:"fieldFalsy,omitempty"`
	FieldEquals   *KV      `json:"fieldEquals,omitempty"`
	MethodIn      []string `json:"methodIn,omitempty"`
	ParticipantIn []string `json:"participantIn,omitempty"`
}

type KV struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// FieldSpec declares an intake field a profile requires.
type FieldSpec struct {
	Key            string       `json:"key"`
	Label          string       `json:"label"`
	Type           string       `json:"type"` // text, select, multi_select, bool_true
	DisallowValues []string     `json:"disallowValues,omitempty"`
	Conditional    *Conditional `json:"conditional,omitempty"`
}

// DraftSpec declares a generated document type a profile requires.
type DraftSpec struct {
	Type  string `json:"type"`
	Label string `json:"label"`
}

// AttachmentSpec declares a document the researcher must supply by hand.
type AttachmentSpec struct {
	ID          string       `json:"id"`
	Label       string       `json:"label"`
	Description string       `json:"description"`
	Conditional *Conditional `json:"conditional,omitempty"`
}

// SectionMapping ties a checklist section to the material that satisfies it.
// SourceType is one of intake, generated_doc, derived, manual_attachment_bundle.
type SectionMapping struct {
	SectionID    string `json:"sectionId"`
	SectionLabel string `json:"sectionLabel"`
	SourceType   string `json:"sourceType"`
	SourceKey    string `json:"sourceKey"`
}

// Profile is an institution's requirement set. Built-in profiles are
// immutable; imported drafts become catalog entries only through an explicit
// apply.
type Profile struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	ShortName      string `json:"shortName"`
	Version        string `json:"version"`
	Description    string `json:"description"`
	IRBOfficeLabel string `json:"irbOfficeLabel"`

	RequiredFields         []FieldSpec      `json:"requiredIntakeFields"`
	RequiredDrafts         []DraftSpec      `json:"requiredGeneratedDrafts"`
	RequiredAttachments    []AttachmentSpec `json:"requiredManualAttachments"`
	RecommendedAttachments []AttachmentSpec `json:"recommendedManualAttachments"`
	SectionMappings        []SectionMapping `json:"sectionMappings"`
}

// BuiltinID is the catalog default seeded at process start.
const BuiltinID = "generic_classroom_research_us_v1"

func builtinProfile() Profile {
	return Profile{
		ID:             BuiltinID,
		Name:           "Generic US Classroom Research",
		ShortName:      "Generic Classroom",
		Version:        "builtin-v1",
		Description:    "Baseline expectations for classroom research with student participants at a US institution.",
		IRBOfficeLabel: "your institution's IRB office",
		RequiredFields: []FieldSpec{
			{Key: "studyTitle", Label: "Study title", Type: "text"},
			{Key: "institution", Label: "Institution", Type: "text"},
			{Key: "courseName", Label: "Course name", Type: "text"},
			{Key: "projectPurpose", Label: "Project purpose", Type: "text"},
			{Key: "participantGroups", Label: "Participant groups", Type: "multi_select"},
			{Key: "dataCollectionMethods", Label: "Data collection methods", Type: "multi_select"},
			{Key: "recruiterRole", Label: "Recruiter role", Type: "select", DisallowValues: []string{"", "undecided"}},
			{Key: "includesMinors", Label: "Minors in participant pool", Type: "select", DisallowValues: []string{"", "unknown"}},
			{Key: "storageLocation", Label: "Data storage location", Type: "text"},
			{Key: "accessRoles", Label: "Data access roles", Type: "text"},
			{Key: "retentionPeriod", Label: "Retention period", Type: "text"},
			{
				Key: "identifierTypes", Label: "Identifier types", Type: "multi_select",
				Conditional: &Conditional{FieldTruthy: "collectsIdentifiers"},
			},
		},
		RequiredDrafts: []DraftSpec{
			{Type: "consent", Label: "Consent form draft"},
			{Type: "recruitment", Label: "Recruitment message draft"},
			{Type: "data_handling", Label: "Data handling plan draft"},
		},
		RequiredAttachments: []AttachmentSpec{
			{
				ID: "survey_instrument_copy", Label: "Survey instrument copy",
				Description: "Final copy of every survey instrument shown to participants.",
				Conditional: &Conditional{MethodIn: []string{"survey"}},
			},
			{
				ID: "interview_guide", Label: "Interview or focus group guide",
				Description: "Question guide for interview or focus group sessions.",
				Conditional: &Conditional{MethodIn: []string{"interview", "focus_group"}},
			},
			{
				ID: "data_coding_or_linkage_plan", Label: "Data coding or linkage plan",
				Description: "How identifiers map to coded records and where the key is kept.",
				Conditional: &Conditional{FieldTruthy: "collectsIdentifiers"},
			},
		},
		RecommendedAttachments: []AttachmentSpec{
			{
				ID: "advisor_review_notes", Label: "Advisor review notes",
				Description: "Written advisor feedback on the protocol before submission.",
			},
		},
		SectionMappings: []SectionMapping{
			{SectionID: "study_overview", SectionLabel: "Study overview", SourceType: "intake", SourceKey: "projectPurpose"},
			{SectionID: "participants", SectionLabel: "Participants and recruitment", SourceType: "derived", SourceKey: "participants_and_recruiter"},
			{SectionID: "methods", SectionLabel: "Data collection methods", SourceType: "intake", SourceKey: "dataCollectionMethods"},
			{SectionID: "risk_review", SectionLabel: "Risk review", SourceType: "derived", SourceKey: "evaluation_flags"},
			{SectionID: "consent_doc", SectionLabel: "Consent form", SourceType: "generated_doc", SourceKey: "consent"},
			{SectionID: "recruitment_doc", SectionLabel: "Recruitment message", SourceType: "generated_doc", SourceKey: "recruitment"},
			{SectionID: "data_handling_doc", SectionLabel: "Data handling plan", SourceType: "generated_doc", SourceKey: "data_handling"},
			{SectionID: "storage", SectionLabel: "Storage and retention", SourceType: "intake", SourceKey: "storageLocation"},
			{SectionID: "access", SectionLabel: "Access controls", SourceType: "intake", SourceKey: "accessRoles"},
			{SectionID: "attachments", SectionLabel: "Manual attachments", SourceType: "manual_attachment_bundle", SourceKey: "manual"},
		},
	}
}

// Package drafting produces submission document drafts. Templates are the
// baseline; an Anthropic-backed generator can refine them when an API key is
// configured. The screening engine never calls into this package; drafts flow
// back in as plain text.
package drafting

import (
	"fmt"
	"strings"

	"github.com/joelkehle/irb-copilot/internal/intake"
	"github.com/joelkehle/irb-copilot/internal/irbprofile"
)

// DocTypes lists the generated document types in the order profiles usually
// require them.
var DocTypes = []string{"consent", "recruitment", "data_handling"}

// UnknownDocTypeError identifies a draft request for a type no template
// covers.
type UnknownDocTypeError struct {
	DocType string
}

func (e *UnknownDocTypeError) Error() string {
	return fmt.Sprintf("no template for document type %q", e.DocType)
}

func orPlaceholder(value, placeholder string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return placeholder
}

func listOrPlaceholder(values []string, placeholder string) string {
	if len(values) > 0 {
		return strings.Join(values, ", ")
	}
	return placeholder
}

// BuildTemplate renders the baseline draft for docType from the intake.
// Unanswered intake questions surface as [BRACKETED] placeholders so the
// readiness placeholder scan catches them.
func BuildTemplate(docType string, form intake.Form, profile irbprofile.Profile) (string, error) {
	switch docType {
	case "consent":
		return consentTemplate(form, profile), nil
	case "recruitment":
		return recruitmentTemplate(form), nil
	case "data_handling":
		return dataHandlingTemplate(form), nil
	default:
		return "", &UnknownDocTypeError{DocType: docType}
	}
}

func consentTemplate(form intake.Form, profile irbprofile.Profile) string {
	var b strings.Builder
	title := orPlaceholder(form.StudyTitle, "[STUDY TITLE]")
	fmt.Fprintf(&b, "Consent to Participate in Research: %s\n\n", title)
	fmt.Fprintf(&b, "You are being invited to take part in a research study at %s",
		orPlaceholder(form.Institution, "[INSTITUTION]"))
	if form.CourseName != "" {
		fmt.Fprintf(&b, " connected to %s", form.CourseName)
	}
	b.WriteString(".\n\n")
	fmt.Fprintf(&b, "Purpose: %s\n\n", orPlaceholder(form.ProjectPurpose, "[PROJECT PURPOSE]"))
	fmt.Fprintf(&b, "What participation involves: %s.\n\n",
		listOrPlaceholder(form.DataCollectionMethods, "[DATA COLLECTION ACTIVITIES]"))
	b.WriteString("Participation is completely voluntary. You may decline or withdraw at any time without penalty, and your decision will not affect your grades, standing, or relationship with the institution.\n\n")
	if form.OffersExtraCredit {
		if form.AlternativeActivityProvided {
			b.WriteString("Extra credit is offered for participation. An alternative activity of equal effort earns the same credit if you prefer not to participate.\n\n")
		} else {
			b.WriteString("Extra credit is offered for participation. [DESCRIBE THE EQUAL-CREDIT ALTERNATIVE ACTIVITY].\n\n")
		}
	}
	fmt.Fprintf(&b, "Data handling: your responses are stored in %s, accessible to %s, and retained for %s.\n\n",
		orPlaceholder(form.StorageLocation, "[STORAGE LOCATION]"),
		orPlaceholder(form.AccessRoles, "[WHO HAS ACCESS]"),
		orPlaceholder(form.RetentionPeriod, "[RETENTION PERIOD]"))
	if form.IncludesMinors == "yes" {
		b.WriteString("Because participants may be under 18, parental permission and participant assent are collected before any study activity.\n\n")
	}
	fmt.Fprintf(&b, "Questions about the study: contact [PRINCIPAL INVESTIGATOR CONTACT]. Questions about your rights as a participant: contact %s.\n", profile.IRBOfficeLabel)
	return b.String()
}

func recruitmentTemplate(form intake.Form) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Research participants wanted: %s\n\n", orPlaceholder(form.StudyTitle, "[STUDY TITLE]"))
	fmt.Fprintf(&b, "We are conducting a study about %s.\n\n", orPlaceholder(form.ProjectPurpose, "[PROJECT PURPOSE]"))
	fmt.Fprintf(&b, "Who can take part: %s.\n", listOrPlaceholder(form.ParticipantGroups, "[ELIGIBLE GROUPS]"))
	fmt.Fprintf(&b, "What it involves: %s.\n\n", listOrPlaceholder(form.DataCollectionMethods, "[ACTIVITIES AND TIME COMMITMENT]"))
	b.WriteString("Taking part is entirely optional. Choosing not to participate has no effect on your grades or standing.\n\n")
	b.WriteString("To learn more or sign up, contact [CONTACT PERSON AND EMAIL].\n")
	return b.String()
}

func dataHandlingTemplate(form intake.Form) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Data Handling Plan: %s\n\n", orPlaceholder(form.StudyTitle, "[STUDY TITLE]"))
	fmt.Fprintf(&b, "Data collected: %s.\n", listOrPlaceholder(form.DataCollectionMethods, "[DATA TYPES]"))
	if form.CollectsIdentifiers {
		fmt.Fprintf(&b, "Identifiers collected: %s. Identifiers are separated from response data and linked only through a coded key stored apart from the data.\n",
			listOrPlaceholder(form.IdentifierTypes, "[IDENTIFIER TYPES]"))
	} else {
		b.WriteString("No direct identifiers are collected.\n")
	}
	if form.DeidentifyBeforeAnalysis {
		b.WriteString("All records are de-identified before analysis.\n")
	} else if form.CollectsIdentifiers || form.CollectsEducationRecords {
		b.WriteString("[DESCRIBE THE DE-IDENTIFICATION OR CODING STEP BEFORE ANALYSIS].\n")
	}
	fmt.Fprintf(&b, "\nStorage: %s.\nAccess: %s.\nRetention: %s, after which data is destroyed.\n",
		orPlaceholder(form.StorageLocation, "[STORAGE LOCATION]"),
		orPlaceholder(form.AccessRoles, "[ACCESS ROLES]"),
		orPlaceholder(form.RetentionPeriod, "[RETENTION PERIOD]"))
	if form.ThirdPartyTools != "" {
		fmt.Fprintf(&b, "Third-party tools: %s. Each tool's data-handling terms have been reviewed.\n", form.ThirdPartyTools)
	}
	if form.CollectsEducationRecords || form.AIAffectsOfficialGrades {
		b.WriteString("Education records are in scope; FERPA handling is coordinated with the records office.\n")
	}
	return b.String()
}

// Package packet assembles the advisor-facing submission packet: a markdown
// report over the evaluation, readiness, and draft texts, optionally rendered
// to PDF.
package packet

import (
	"fmt"
	"strings"
	"time"

	"github.com/joelkehle/irb-copilot/internal/intake"
	"github.com/joelkehle/irb-copilot/internal/irbprofile"
	"github.com/joelkehle/irb-copilot/internal/readiness"
	"github.com/joelkehle/irb-copilot/internal/screening"
)

// Input bundles everything the report covers.
type Input struct {
	Profile    irbprofile.Profile
	Form       intake.Form
	Evaluation screening.Evaluation
	Readiness  readiness.Readiness
	Drafts     map[string]string
	Now        time.Time
}

var draftOrder = []string{"consent", "recruitment", "data_handling"}

var draftLabels = map[string]string{
	"consent":       "Consent Form",
	"recruitment":   "Recruitment Message",
	"data_handling": "Data Handling Plan",
}

// BuildMarkdown renders the packet report. Output is deterministic for a
// given input so packets can be diffed between revisions.
func BuildMarkdown(in Input) string {
	var b strings.Builder

	title := strings.TrimSpace(in.Form.StudyTitle)
	if title == "" {
		title = "Untitled Study"
	}
	fmt.Fprintf(&b, "# IRB Submission Packet: %s\n\n", title)
	if !in.Now.IsZero() {
		fmt.Fprintf(&b, "Prepared %s.\n\n", in.Now.Format("January 2, 2006"))
	}
	fmt.Fprintf(&b, "Requirement profile: **%s** (%s).\n\n", in.Profile.Name, in.Profile.Version)

	b.WriteString("## Study Overview\n\n")
	writeOverviewRow(&b, "Institution", in.Form.Institution)
	writeOverviewRow(&b, "Course", in.Form.CourseName)
	writeOverviewRow(&b, "Purpose", in.Form.ProjectPurpose)
	writeOverviewRow(&b, "Participant groups", strings.Join(in.Form.ParticipantGroups, ", "))
	writeOverviewRow(&b, "Data collection", strings.Join(in.Form.DataCollectionMethods, ", "))
	writeOverviewRow(&b, "Recruiter role", in.Form.RecruiterRole)
	writeOverviewRow(&b, "Minors in pool", in.Form.IncludesMinors)
	b.WriteString("\n")

	writeVerdict(&b, in.Readiness)
	writeFlags(&b, in.Evaluation)
	writeChecklist(&b, in.Readiness)
	writeDrafts(&b, in.Drafts)
	writeNextSteps(&b, in.Readiness)

	return b.String()
}

func writeOverviewRow(b *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		value = "_not provided_"
	}
	fmt.Fprintf(b, "- **%s:** %s\n", label, value)
}

func writeVerdict(b *strings.Builder, r readiness.Readiness) {
	b.WriteString("## Readiness Verdict\n\n")
	advisor := "not yet ready"
	if r.Summary.ReadyForAdvisorReview {
		advisor = "ready"
	}
	packetV := "not yet ready"
	if r.Summary.ReadyForIRBDraftPacket {
		packetV = "ready"
	}
	fmt.Fprintf(b, "- Advisor review: **%s**\n", advisor)
	fmt.Fprintf(b, "- IRB draft packet: **%s**\n", packetV)
	fmt.Fprintf(b, "- Blocking items: %d, warnings: %d\n\n", r.Summary.BlockingCount, r.Summary.WarningCount)
}

func writeFlags(b *strings.Builder, ev screening.Evaluation) {
	b.WriteString("## Risk Review\n\n")
	if len(ev.Flags) == 0 {
		b.WriteString("No risk flags fired.\n\n")
		return
	}
	b.WriteString("| Severity | Finding | Why it matters |\n|---|---|---|\n")
	for _, f := range ev.Flags {
		fmt.Fprintf(b, "| %s | %s | %s |\n", f.Severity, f.Title, f.Rationale)
	}
	b.WriteString("\n")
}

func writeChecklist(b *strings.Builder, r readiness.Readiness) {
	b.WriteString("## Section Checklist\n\n")
	for _, s := range r.SectionChecklist {
		marker := map[string]string{
			"complete":      "x",
			"missing":       " ",
			"review_needed": "-",
		}[s.Status]
		line := fmt.Sprintf("- [%s] %s", marker, s.SectionLabel)
		if s.Notes != "" {
			line += " (" + s.Notes + ")"
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\n")
}

func writeDrafts(b *strings.Builder, drafts map[string]string) {
	b.WriteString("## Draft Documents\n\n")
	for _, docType := range draftOrder {
		text := strings.TrimSpace(drafts[docType])
		label := draftLabels[docType]
		fmt.Fprintf(b, "### %s\n\n", label)
		if text == "" {
			b.WriteString("_Not yet drafted._\n\n")
			continue
		}
		b.WriteString(text + "\n\n")
	}
}

func writeNextSteps(b *strings.Builder, r readiness.Readiness) {
	if len(r.NextSteps) == 0 {
		return
	}
	b.WriteString("## Next Steps\n\n")
	for i, s := range r.NextSteps {
		fmt.Fprintf(b, "%d. %s\n", i+1, s)
	}
	b.WriteString("\n")
}

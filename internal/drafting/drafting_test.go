package drafting

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/joelkehle/irb-copilot/internal/intake"
	"github.com/joelkehle/irb-copilot/internal/irbprofile"
)

func testForm(t *testing.T, raw map[string]any) intake.Form {
	t.Helper()
	f, err := intake.Normalize(raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	return f
}

func testProfile() irbprofile.Profile {
	return irbprofile.NewCatalog().Resolve("")
}

func TestConsentTemplateFillsAnswers(t *testing.T) {
	form := testForm(t, map[string]any{
		"studyTitle":            "AI Tutor Study",
		"institution":           "Acme University",
		"projectPurpose":        "measure quiz improvement",
		"dataCollectionMethods": []any{"survey"},
		"storageLocation":       "encrypted drive",
		"accessRoles":           "PI only",
		"retentionPeriod":       "3 years",
	})
	text, err := BuildTemplate("consent", form, testProfile())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for _, want := range []string{"AI Tutor Study", "Acme University", "voluntary", "encrypted drive"} {
		if !strings.Contains(text, want) {
			t.Fatalf("consent draft missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "[STUDY TITLE]") {
		t.Fatal("placeholder left for an answered field")
	}
	// PI contact is never derivable from intake
	if !strings.Contains(text, "[PRINCIPAL INVESTIGATOR CONTACT]") {
		t.Fatal("missing PI contact placeholder")
	}
}

func TestTemplatesPlaceholderUnanswered(t *testing.T) {
	form := testForm(t, map[string]any{})
	for _, docType := range DocTypes {
		text, err := BuildTemplate(docType, form, testProfile())
		if err != nil {
			t.Fatalf("%s: %v", docType, err)
		}
		if !strings.Contains(text, "[") {
			t.Fatalf("%s draft has no placeholders for an empty intake:\n%s", docType, text)
		}
	}
}

func TestConsentExtraCreditBranches(t *testing.T) {
	withAlt := testForm(t, map[string]any{
		"offersExtraCredit":           true,
		"alternativeActivityProvided": true,
	})
	text, _ := BuildTemplate("consent", withAlt, testProfile())
	if !strings.Contains(text, "alternative activity of equal effort") {
		t.Fatalf("alternative not described:\n%s", text)
	}

	noAlt := testForm(t, map[string]any{"offersExtraCredit": true})
	text, _ = BuildTemplate("consent", noAlt, testProfile())
	if !strings.Contains(text, "[DESCRIBE THE EQUAL-CREDIT ALTERNATIVE ACTIVITY]") {
		t.Fatalf("missing alternative placeholder:\n%s", text)
	}
}

func TestBuildTemplateUnknownType(t *testing.T) {
	_, err := BuildTemplate("press_release", testForm(t, nil), testProfile())
	var unknown *UnknownDocTypeError
	if !errors.As(err, &unknown) || unknown.DocType != "press_release" {
		t.Fatalf("err = %v", err)
	}
}

func TestRewriteLessCoercive(t *testing.T) {
	out, err := RewriteFallback("Students must participate in this mandatory study.", GoalLessCoercive)
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	lower := strings.ToLower(out)
	if strings.Contains(lower, "must participate") || strings.Contains(lower, "mandatory") {
		t.Fatalf("coercive language survived: %s", out)
	}
	if !strings.Contains(lower, "voluntary") || !strings.Contains(lower, "without penalty") {
		t.Fatalf("voluntariness statements missing: %s", out)
	}
}

func TestRewriteClearer(t *testing.T) {
	out, err := RewriteFallback("Prior to the study we will utilize a survey in the event that you enroll.", GoalClearer)
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	lower := strings.ToLower(out)
	if strings.Contains(lower, "utilize") || strings.Contains(lower, "prior to") {
		t.Fatalf("jargon survived: %s", out)
	}
}

func TestRewriteUnknownGoal(t *testing.T) {
	_, err := RewriteFallback("text", "funnier")
	var unknown *UnknownGoalError
	if !errors.As(err, &unknown) {
		t.Fatalf("err = %v", err)
	}
}

type fakeCaller struct {
	text string
	err  error
}

func (f *fakeCaller) GenerateText(ctx context.Context, prompt string) (string, error) {
	return f.text, f.err
}

func TestGeneratorPrefersBackend(t *testing.T) {
	g := NewGenerator(&fakeCaller{text: "Refined consent text with [PRINCIPAL INVESTIGATOR CONTACT]."})
	d, err := g.Generate(context.Background(), "consent", testForm(t, nil), testProfile())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if d.Backend != "anthropic" || !strings.Contains(d.Text, "Refined consent") {
		t.Fatalf("draft = %+v", d)
	}
}

func TestGeneratorFallsBackOnError(t *testing.T) {
	g := NewGenerator(&fakeCaller{err: errors.New("status code: 400 bad request")})
	d, err := g.Generate(context.Background(), "consent", testForm(t, nil), testProfile())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if d.Backend != "template" || d.Text == "" {
		t.Fatalf("draft = %+v", d)
	}
}

func TestGeneratorTemplateOnly(t *testing.T) {
	g := NewGenerator(nil)
	d, err := g.Generate(context.Background(), "recruitment", testForm(t, nil), testProfile())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if d.Backend != "template" {
		t.Fatalf("backend = %q", d.Backend)
	}

	out, backend, err := g.Rewrite(context.Background(), "You must participate.", GoalLessCoercive)
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if backend != "rules" || strings.Contains(out, "must participate") {
		t.Fatalf("rewrite = %q via %q", out, backend)
	}
}

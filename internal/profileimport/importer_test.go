package profileimport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/joelkehle/irb-copilot/internal/irbprofile"
)

func testImporter(cat *irbprofile.Catalog) *Importer {
	imp := NewImporter(cat)
	imp.search = func(string) []string { return nil }
	imp.fetcher.validate = func(raw string) (*url.URL, error) {
		return url.Parse(raw)
	}
	return imp
}

const irbPageHTML = `<html><head><title>Acme IRB Office</title></head><body>
<h1>Human Subjects Research</h1>
<p>All researchers must complete CITI training before data collection begins.</p>
<p>Use the published consent form template for every study. Studies qualify for
exempt review or expedited review depending on risk.</p>
<p>Recruitment material copies must be submitted with the application.</p>
<a href="/forms/consent-template.pdf">Consent template (PDF)</a>
<a href="/about">About the office</a>
</body></html>`

func TestImportEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(irbPageHTML))
	}))
	defer srv.Close()

	cat := irbprofile.NewCatalog()
	imp := testImporter(cat)
	res, err := imp.Import(context.Background(), Request{
		OrganizationName: "Acme University",
		IRBPageURL:       srv.URL + "/irb",
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	if len(res.Sources) != res.Stats.CandidateSourceCount {
		t.Fatalf("sources %d != candidates %d", len(res.Sources), res.Stats.CandidateSourceCount)
	}
	if res.Sources[0].Status != "fetched" {
		t.Fatalf("source status = %q (%s)", res.Sources[0].Status, res.Sources[0].Error)
	}
	if res.Confidence < 0 || res.Confidence > 1 {
		t.Fatalf("confidence out of range: %f", res.Confidence)
	}
	if !hasSignal(res.Signals, "training") {
		t.Fatalf("training signal missing: %+v", res.Signals)
	}
	if !hasSignal(res.Signals, "consent_template") || !hasSignal(res.Signals, "review_categories") {
		t.Fatalf("expected consent/review signals: %+v", res.Signals)
	}

	foundPDF := false
	for _, dl := range res.DocumentLinks {
		if dl.URL == srv.URL+"/forms/consent-template.pdf" {
			foundPDF = true
		}
	}
	if !foundPDF {
		t.Fatalf("pdf link missing: %+v", res.DocumentLinks)
	}

	draft := res.ProfileDraft
	if draft.ID != "imported_acme_university_v1" {
		t.Fatalf("draft id = %q", draft.ID)
	}
	if draft.Version != "importer-v1" {
		t.Fatalf("draft version = %q", draft.Version)
	}
	hasAttachment := func(id string) bool {
		for _, a := range draft.RequiredAttachments {
			if a.ID == id {
				return true
			}
		}
		return false
	}
	if !hasAttachment("training_completion_proof") || !hasAttachment("institution_consent_template_check") {
		t.Fatalf("signal-driven attachments missing: %+v", draft.RequiredAttachments)
	}

	// import never touches the catalog
	if cat.Exists(draft.ID) {
		t.Fatal("import mutated the catalog")
	}
}

func TestImportInlineTextOnly(t *testing.T) {
	cat := irbprofile.NewCatalog()
	imp := testImporter(cat)
	// keep the importer off the network entirely
	imp.fetcher.validate = func(raw string) (*url.URL, error) {
		return nil, errors.New("network disabled in test")
	}

	res, err := imp.Import(context.Background(), Request{
		OrganizationName: "Acme University",
		RawPolicyText:    "All researchers must complete CITI training before data collection.",
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !hasSignal(res.Signals, "training") {
		t.Fatalf("training signal missing: %+v", res.Signals)
	}
	if res.Stats.FetchedSourceCount != 0 {
		t.Fatalf("network fetched = %d, want 0", res.Stats.FetchedSourceCount)
	}
	if res.ConfidenceBand == "high" {
		t.Fatalf("pasted text alone scored high confidence: %f", res.Confidence)
	}
	foundInlineWarning := false
	for _, w := range res.Warnings {
		if w == "The only evidence was pasted text; institutional pages were not consulted." {
			foundInlineWarning = true
		}
	}
	if !foundInlineWarning {
		t.Fatalf("inline warning missing: %v", res.Warnings)
	}
}

func TestImportRequiresOrganizationName(t *testing.T) {
	imp := testImporter(irbprofile.NewCatalog())
	_, err := imp.Import(context.Background(), Request{OrganizationName: "   "})
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected RequestError, got %v", err)
	}
	if reqErr.Field != "organizationName" {
		t.Fatalf("field = %q", reqErr.Field)
	}
}

func TestImportRecordsFailuresPerSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	imp := testImporter(irbprofile.NewCatalog())
	res, err := imp.Import(context.Background(), Request{
		OrganizationName: "Acme University",
		IRBPageURL:       srv.URL + "/irb",
	})
	if err != nil {
		t.Fatalf("failed fetches must not fail the import: %v", err)
	}
	if res.Sources[0].Status != "error" || res.Sources[0].HTTPStatus != http.StatusNotFound {
		t.Fatalf("source = %+v", res.Sources[0])
	}
	if res.Stats.FailedSourceCount != 1 {
		t.Fatalf("failed count = %d", res.Stats.FailedSourceCount)
	}
	if res.ConfidenceBand != "low" {
		t.Fatalf("band = %q, want low", res.ConfidenceBand)
	}
}

func TestImportFollowsRedirectsWithCap(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/start":
			http.Redirect(w, r, "/irb", http.StatusFound)
		case "/irb":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html><body>CITI training is required.</body></html>"))
		case "/loop":
			http.Redirect(w, r, "/loop", http.StatusFound)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	imp := testImporter(irbprofile.NewCatalog())
	res, err := imp.Import(context.Background(), Request{
		OrganizationName: "Acme University",
		IRBPageURL:       srv.URL + "/start",
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Sources[0].Status != "fetched" {
		t.Fatalf("redirect follow failed: %+v", res.Sources[0])
	}
	if !hasSignal(res.Signals, "training") {
		t.Fatal("signal lost across redirect")
	}

	res, err = imp.Import(context.Background(), Request{
		OrganizationName: "Acme University",
		IRBPageURL:       srv.URL + "/loop",
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Sources[0].Status != "error" {
		t.Fatalf("redirect loop not capped: %+v", res.Sources[0])
	}
}

func TestConfidenceScoring(t *testing.T) {
	allSignals := make([]Signal, 0, len(signalRules))
	for _, r := range signalRules {
		allSignals = append(allSignals, Signal{ID: r.id, weight: r.weight})
	}

	full := scoreConfidence(5, 0, allSignals)
	if full < 0.72 {
		t.Fatalf("strong evidence scored %f, want high band", full)
	}
	if full > 0.93 {
		t.Fatalf("score %f exceeds operating ceiling", full)
	}

	nothing := scoreConfidence(0, 3, nil)
	if nothing >= 0.5 {
		t.Fatalf("no evidence scored %f, want low band", nothing)
	}
	if nothing < 0.08 {
		t.Fatalf("score %f below operating floor", nothing)
	}

	textOnly := scoreConfidence(0, 0, allSignals)
	if textOnly >= 0.72 {
		t.Fatalf("text-only evidence scored %f, must stay below high band", textOnly)
	}
}

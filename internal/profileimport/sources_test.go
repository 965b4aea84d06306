package profileimport

import (
	"net"
	"strings"
	"testing"
)

func TestNormalizeURL(t *testing.T) {
	got, err := normalizeURL("example.edu/irb")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got != "https://example.edu/irb" {
		t.Fatalf("got %q", got)
	}
	if _, err := normalizeURL("ftp://example.edu"); err == nil {
		t.Fatal("expected scheme rejection")
	}
	if _, err := normalizeURL("   "); err == nil {
		t.Fatal("expected empty rejection")
	}
}

func fakeLookup(ips ...string) lookupFunc {
	return func(host string) ([]net.IP, error) {
		var out []net.IP
		for _, s := range ips {
			out = append(out, net.ParseIP(s))
		}
		return out, nil
	}
}

func TestValidateFetchURLPolicy(t *testing.T) {
	public := fakeLookup("93.184.216.34")

	if _, err := validateFetchURL("https://example.edu/irb", public); err != nil {
		t.Fatalf("public host rejected: %v", err)
	}
	cases := []struct {
		name   string
		url    string
		lookup lookupFunc
	}{
		{"credentials", "https://user:pw@example.edu/", public},
		{"odd port", "https://example.edu:8443/", public},
		{"blocked hostname", "http://localhost/irb", public},
		{"metadata host", "http://metadata.google.internal/", public},
		{"loopback ip", "http://127.0.0.1/", public},
		{"private ip literal", "http://10.0.0.8/", public},
		{"resolves private", "https://internal.example.edu/", fakeLookup("192.168.1.4")},
		{"resolves loopback among public", "https://dual.example.edu/", fakeLookup("93.184.216.34", "127.0.0.1")},
		{"bad scheme", "gopher://example.edu/", public},
	}
	for _, tc := range cases {
		if _, err := validateFetchURL(tc.url, tc.lookup); err == nil {
			t.Fatalf("%s: %s was allowed", tc.name, tc.url)
		}
	}
}

func TestBuildCandidatesWebsitePaths(t *testing.T) {
	cands := buildCandidates(Request{
		OrganizationName:    "Acme University",
		OrganizationWebsite: "acme.edu",
	}, nil)
	if len(cands) != maxSourceFetch {
		t.Fatalf("candidate count = %d, want %d", len(cands), maxSourceFetch)
	}
	if cands[0].URL != "https://acme.edu" {
		t.Fatalf("first candidate = %q", cands[0].URL)
	}
	for _, c := range cands[1:] {
		if !strings.HasPrefix(c.URL, "https://acme.edu/") {
			t.Fatalf("unexpected candidate %q", c.URL)
		}
	}
}

func TestBuildCandidatesExplicitURLFirst(t *testing.T) {
	cands := buildCandidates(Request{
		OrganizationName:    "Acme University",
		OrganizationWebsite: "acme.edu",
		IRBPageURL:          "https://acme.edu/research/irb-office",
	}, nil)
	if cands[0].URL != "https://acme.edu/research/irb-office" || cands[0].Kind != "explicit" {
		t.Fatalf("first candidate = %+v", cands[0])
	}
}

func TestBuildCandidatesInlinePrepended(t *testing.T) {
	cands := buildCandidates(Request{
		OrganizationName: "Acme University",
		RawPolicyText:    "All researchers must complete CITI training.",
	}, func(string) []string { return nil })
	if len(cands) == 0 || cands[0].Kind != "inline" || cands[0].URL != InlineSourceURL {
		t.Fatalf("inline candidate missing: %+v", cands)
	}
	// no website given, so a guessed .edu host appears
	found := false
	for _, c := range cands {
		if c.Kind == "guessed" && strings.Contains(c.URL, "acmeuniversity.edu") {
			found = true
		}
	}
	if !found {
		t.Fatalf("no guessed host in %+v", cands)
	}
}

func TestBuildCandidatesSearchFallback(t *testing.T) {
	cands := buildCandidates(Request{OrganizationName: "Tiny College"}, func(string) []string {
		return []string{"https://tiny.edu/irb", "https://tiny.edu/irb"}
	})
	hits := 0
	for _, c := range cands {
		if c.Kind == "search" {
			hits++
		}
	}
	if hits != 1 {
		t.Fatalf("search hits = %d, want 1 (deduplicated)", hits)
	}
}

func TestBuildCandidatesDeduplicates(t *testing.T) {
	cands := buildCandidates(Request{
		OrganizationName:    "Acme",
		OrganizationWebsite: "https://acme.edu",
		IRBPageURL:          "https://acme.edu/irb",
	}, nil)
	seen := map[string]bool{}
	for _, c := range cands {
		if seen[c.URL] {
			t.Fatalf("duplicate candidate %q", c.URL)
		}
		seen[c.URL] = true
	}
}

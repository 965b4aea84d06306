package profileimport

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/joelkehle/irb-copilot/internal/irbprofile"
)

// Fetch bounds. Candidate lists and responses are capped so a hostile or
// misconfigured site cannot balloon an import.
const (
	maxSourceFetch   = 7
	maxLinksPerPage  = 120
	maxTextChars     = 240000
	maxResponseBytes = 2500000
	maxRedirects     = 4
)

// InlineSourceURL is the pseudo-URL recorded for pasted policy text.
const InlineSourceURL = "inline://raw_policy_text"

var likelyIRBPaths = []string{
	"/irb",
	"/research/irb",
	"/research-compliance/irb",
	"/research-compliance/human-subjects",
	"/human-subjects",
	"/hrpp",
	"/research/human-subjects",
}

var blockedHostnames = map[string]bool{
	"localhost":                true,
	"localhost.localdomain":    true,
	"0.0.0.0":                  true,
	"127.0.0.1":                true,
	"::1":                      true,
	"metadata.google.internal": true,
}

// candidate is one potential source before fetching.
type candidate struct {
	URL    string
	Kind   string // explicit, website, guessed, search, inline
	Inline string // pasted text for inline candidates
}

// lookupFunc resolves a hostname to addresses. Swappable in tests.
type lookupFunc func(host string) ([]net.IP, error)

func defaultLookup(host string) ([]net.IP, error) {
	addrs, err := net.LookupIP(host)
	if err != nil {
		return nil, err
	}
	return addrs, nil
}

// normalizeURL coerces bare hostnames to https and validates the scheme.
func normalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty url")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host")
	}
	return u.String(), nil
}

// validateFetchURL enforces the outbound-request policy. It rejects
// credentials, non-web ports, known local hostnames, and any host whose
// literal or resolved address is private, loopback, link-local, multicast,
// or unspecified. Callers re-run it on every redirect hop.
func validateFetchURL(raw string, lookup lookupFunc) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("scheme %q not allowed", u.Scheme)
	}
	if u.User != nil {
		return nil, fmt.Errorf("credentialed urls not allowed")
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return nil, fmt.Errorf("missing host")
	}
	if port := u.Port(); port != "" && port != "80" && port != "443" {
		return nil, fmt.Errorf("port %s not allowed", port)
	}
	if blockedHostnames[host] {
		return nil, fmt.Errorf("host %q is blocked", host)
	}
	if ip := net.ParseIP(host); ip != nil {
		if err := checkIP(ip); err != nil {
			return nil, err
		}
		return u, nil
	}
	if lookup == nil {
		lookup = defaultLookup
	}
	addrs, err := lookup(host)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", host, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("host %q resolved to no addresses", host)
	}
	for _, ip := range addrs {
		if err := checkIP(ip); err != nil {
			return nil, err
		}
	}
	return u, nil
}

func checkIP(ip net.IP) error {
	switch {
	case ip.IsLoopback():
		return fmt.Errorf("address %s is loopback", ip)
	case ip.IsPrivate():
		return fmt.Errorf("address %s is private", ip)
	case ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast():
		return fmt.Errorf("address %s is link-local", ip)
	case ip.IsMulticast():
		return fmt.Errorf("address %s is multicast", ip)
	case ip.IsUnspecified():
		return fmt.Errorf("address %s is unspecified", ip)
	}
	return nil
}

// buildCandidates assembles the ordered candidate list for a request:
// explicit IRB page first, then the website root and likely IRB paths under
// it, then a guessed .edu host plus search results when the caller gave no
// URL at all, then the inline text pseudo-source.
func buildCandidates(req Request, searchFn searchFunc) []candidate {
	var out []candidate
	seen := map[string]bool{}
	add := func(raw, kind string) {
		u, err := normalizeURL(raw)
		if err != nil {
			return
		}
		if seen[u] {
			return
		}
		seen[u] = true
		out = append(out, candidate{URL: u, Kind: kind})
	}

	if req.IRBPageURL != "" {
		add(req.IRBPageURL, "explicit")
	}
	base := strings.TrimSpace(req.OrganizationWebsite)
	if base != "" {
		add(base, "website")
		if normalized, err := normalizeURL(base); err == nil {
			if u, err := url.Parse(normalized); err == nil {
				root := u.Scheme + "://" + u.Host
				for _, p := range likelyIRBPaths {
					add(root+p, "guessed")
				}
			}
		}
	} else if req.IRBPageURL == "" {
		if slug := irbprofile.Slug(req.OrganizationName); slug != "org" {
			host := "https://www." + strings.ReplaceAll(slug, "_", "") + ".edu"
			add(host, "guessed")
			for _, p := range likelyIRBPaths[:3] {
				add(host+p, "guessed")
			}
		}
		if searchFn != nil {
			for _, hit := range searchFn(req.OrganizationName) {
				add(hit, "search")
			}
		}
	}

	if len(out) > maxSourceFetch {
		out = out[:maxSourceFetch]
	}
	if strings.TrimSpace(req.RawPolicyText) != "" {
		out = append([]candidate{{URL: InlineSourceURL, Kind: "inline", Inline: req.RawPolicyText}}, out...)
	}
	return out
}

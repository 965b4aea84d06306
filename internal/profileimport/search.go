package profileimport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const maxSearchResults = 8

var searchQueryTemplates = []string{
	"%q institutional review board",
	"%s IRB human subjects",
	"%s research compliance office",
}

// searchWeb finds candidate IRB pages through DuckDuckGo's HTML endpoint
// when the caller supplied neither a website nor an IRB page URL. Failures
// return an empty list; search is opportunistic.
func (imp *Importer) searchWeb(orgName string) []string {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var out []string
	seen := map[string]bool{}
	for _, tmpl := range searchQueryTemplates {
		if len(out) >= maxSearchResults {
			break
		}
		query := fmt.Sprintf(tmpl, orgName)
		for _, hit := range imp.searchOnce(ctx, query) {
			if len(out) >= maxSearchResults {
				break
			}
			if !seen[hit] {
				seen[hit] = true
				out = append(out, hit)
			}
		}
	}
	return out
}

func (imp *Importer) searchOnce(ctx context.Context, query string) []string {
	endpoint := "https://duckduckgo.com/html/?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := imp.fetcher.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil
	}

	base, _ := url.Parse(endpoint)
	page := parsePage(body, base)
	var out []string
	for _, link := range page.links {
		target := resultTarget(link.URL)
		if target == "" {
			continue
		}
		if _, err := normalizeURL(target); err != nil {
			continue
		}
		out = append(out, target)
	}
	return out
}

// resultTarget unwraps DuckDuckGo's redirect links (uddg parameter) into the
// real destination URL.
func resultTarget(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if uddg := u.Query().Get("uddg"); uddg != "" {
		if decoded, err := url.QueryUnescape(uddg); err == nil {
			return decoded
		}
		return uddg
	}
	if strings.Contains(u.Host, "duckduckgo.com") {
		return ""
	}
	return raw
}

package profileimport

import (
	"bytes"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

type pageLink struct {
	URL  string
	Text string
}

type parsedPage struct {
	title string
	text  string
	links []pageLink
}

var skipElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"svg":      true,
	"iframe":   true,
}

// parsePage pulls visible text and hyperlinks out of an HTML document. A
// parse failure degrades to treating the body as plain text; the importer
// only needs keyword evidence, not a faithful DOM.
func parsePage(body []byte, base *url.URL) parsedPage {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return parsedPage{text: string(body)}
	}

	var page parsedPage
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if skipElements[n.Data] {
				return
			}
			if n.Data == "title" && page.title == "" {
				page.title = strings.TrimSpace(textContent(n))
			}
			if n.Data == "a" && len(page.links) < maxLinksPerPage {
				if link, ok := resolveLink(n, base); ok {
					page.links = append(page.links, link)
				}
			}
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				sb.WriteString(t)
				sb.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	page.text = strings.TrimSpace(sb.String())
	return page
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		} else {
			sb.WriteString(textContent(c))
		}
	}
	return sb.String()
}

func resolveLink(n *html.Node, base *url.URL) (pageLink, bool) {
	var href string
	for _, attr := range n.Attr {
		if attr.Key == "href" {
			href = strings.TrimSpace(attr.Val)
			break
		}
	}
	if href == "" || strings.HasPrefix(href, "#") ||
		strings.HasPrefix(strings.ToLower(href), "javascript:") ||
		strings.HasPrefix(strings.ToLower(href), "mailto:") {
		return pageLink{}, false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return pageLink{}, false
	}
	abs := ref
	if base != nil {
		abs = base.ResolveReference(ref)
	}
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return pageLink{}, false
	}
	return pageLink{URL: abs.String(), Text: strings.TrimSpace(textContent(n))}, true
}

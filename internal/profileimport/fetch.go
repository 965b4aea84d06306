package profileimport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html/charset"
)

const (
	requestTimeout = 7 * time.Second
	fetchWorkers   = 3
	userAgent      = "irb-copilot-profile-importer/1.0"
)

// Source is the terminal record for one candidate. Every candidate produces
// exactly one Source; a failed fetch is recorded, never raised.
type Source struct {
	URL         string `json:"url"`
	Kind        string `json:"kind"`
	Status      string `json:"status"` // fetched, skipped, error
	HTTPStatus  int    `json:"httpStatus,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Error       string `json:"error,omitempty"`

	text  string
	links []pageLink
}

// fetcher retrieves candidate pages under the outbound-request policy.
// Redirects are followed manually so every hop is revalidated.
type fetcher struct {
	client   *http.Client
	timeout  time.Duration
	validate func(raw string) (*url.URL, error)
}

func newFetcher() *fetcher {
	return &fetcher{
		client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		timeout: requestTimeout,
		validate: func(raw string) (*url.URL, error) {
			return validateFetchURL(raw, nil)
		},
	}
}

// fetchAll resolves every candidate concurrently under a small worker cap.
// The slice returned is position-aligned with the input; fetchAll returns
// only after every worker has finished.
func (f *fetcher) fetchAll(ctx context.Context, candidates []candidate) []Source {
	results := make([]Source, len(candidates))
	sem := make(chan struct{}, fetchWorkers)
	var wg sync.WaitGroup
	for i, c := range candidates {
		if c.Kind == "inline" {
			results[i] = Source{
				URL:         c.URL,
				Kind:        c.Kind,
				Status:      "fetched",
				ContentType: "text/plain; charset=utf-8",
				text:        truncateText(c.Inline),
			}
			continue
		}
		wg.Add(1)
		go func(i int, c candidate) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = f.fetchOne(ctx, c)
		}(i, c)
	}
	wg.Wait()
	return results
}

func (f *fetcher) fetchOne(ctx context.Context, c candidate) Source {
	src := Source{URL: c.URL, Kind: c.Kind}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	current := c.URL
	for hop := 0; ; hop++ {
		u, err := f.validate(current)
		if err != nil {
			src.Status = "skipped"
			src.Error = err.Error()
			return src
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			src.Status = "error"
			src.Error = err.Error()
			return src
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")

		resp, err := f.client.Do(req)
		if err != nil {
			src.Status = "error"
			src.Error = err.Error()
			return src
		}
		if loc := redirectTarget(resp); loc != "" {
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			if hop >= maxRedirects {
				src.Status = "error"
				src.HTTPStatus = resp.StatusCode
				src.Error = fmt.Sprintf("more than %d redirects", maxRedirects)
				return src
			}
			next, err := url.Parse(loc)
			if err != nil {
				src.Status = "error"
				src.Error = fmt.Sprintf("bad redirect target: %v", err)
				return src
			}
			current = u.ResolveReference(next).String()
			continue
		}

		src.HTTPStatus = resp.StatusCode
		src.ContentType = resp.Header.Get("Content-Type")
		body, readErr := readBounded(resp)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			src.Status = "error"
			src.Error = fmt.Sprintf("http status %d", resp.StatusCode)
			return src
		}
		if readErr != nil {
			src.Status = "error"
			src.Error = readErr.Error()
			return src
		}
		if !textLike(src.ContentType) {
			src.Status = "skipped"
			src.Error = fmt.Sprintf("unsupported content type %q", src.ContentType)
			return src
		}
		if strings.Contains(src.ContentType, "html") {
			page := parsePage(body, u)
			src.text = truncateText(page.text)
			src.links = page.links
		} else {
			src.text = truncateText(string(body))
		}
		src.Status = "fetched"
		return src
	}
}

func redirectTarget(resp *http.Response) string {
	switch resp.StatusCode {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return resp.Header.Get("Location")
	}
	return ""
}

// readBounded reads at most maxResponseBytes, decoding legacy charsets into
// UTF-8 from the Content-Type declaration or document sniffing.
func readBounded(resp *http.Response) ([]byte, error) {
	limited := io.LimitReader(resp.Body, maxResponseBytes+1)
	reader, err := charset.NewReader(limited, resp.Header.Get("Content-Type"))
	if err != nil {
		reader = limited
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxResponseBytes {
		return nil, fmt.Errorf("response exceeds %d bytes", maxResponseBytes)
	}
	return body, nil
}

func textLike(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "html") ||
		strings.Contains(ct, "text/plain") ||
		strings.Contains(ct, "xml") ||
		ct == ""
}

func truncateText(s string) string {
	if len(s) > maxTextChars {
		return s[:maxTextChars]
	}
	return s
}

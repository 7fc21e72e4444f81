// Package search implements the GitHub-compatible Code Search provider:
// query expansion, paginated search, and raw file-content fetch, all paced
// through a token pool.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"keyhunter/internal/detect"
	"keyhunter/internal/errs"
	"keyhunter/internal/httpx"
	"keyhunter/internal/model"
	"keyhunter/internal/netpolicy"
	"keyhunter/internal/tokenpool"
)

const (
	maxResultsPerQuery = 1000
	perPage            = 100
	maxContentBytes    = 1 << 20
)

// Provider executes searches and content fetches against a GitHub-compatible
// code search API, leasing tokens from a Pool and retrying transient
// failures the same way this codebase's other HTTP bridges do.
type Provider struct {
	baseURL string
	pool    *tokenpool.Pool
	client  *http.Client
}

// New builds a Provider. baseURL defaults to https://api.github.com.
func New(baseURL string, pool *tokenpool.Pool) *Provider {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://api.github.com"
	}
	return &Provider{baseURL: baseURL, pool: pool, client: httpx.SharedClient(30 * time.Second)}
}

// ExpandQueries builds the Cartesian product of a detector's seed queries
// and the fixed list of file-type qualifiers. A detector that reports a
// single empty FileExtensions() entry opts out of expansion entirely (used
// for a custom user query, which bypasses expansion, and for tests that
// want a small, deterministic fan-out).
func ExpandQueries(d detect.Detector) []model.SearchQuery {
	var out []model.SearchQuery
	exts := d.FileExtensions()
	qualifiers := fileQualifiers
	if len(exts) == 1 && exts[0] == "" {
		qualifiers = []string{""}
	}
	for _, q := range d.SearchQueries() {
		for _, qualifier := range qualifiers {
			query := q
			if qualifier != "" {
				query = fmt.Sprintf("%s %s", q, qualifier)
			}
			out = append(out, model.SearchQuery{Query: query, KeyType: d.Name(), PerPage: perPage})
		}
	}
	return out
}

type codeSearchResponse struct {
	TotalCount int `json:"total_count"`
	Items      []struct {
		Path       string `json:"path"`
		HTMLURL    string `json:"html_url"`
		SHA        string `json:"sha"`
		Repository struct {
			FullName string `json:"full_name"`
		} `json:"repository"`
		URL string `json:"url"`
	} `json:"items"`
}

// Search runs q, paging until the provider's hard cap, an empty page, or a
// 422 (invalid query), and returns every matching file.
func (p *Provider) Search(ctx context.Context, q model.SearchQuery) ([]model.SearchResult, error) {
	var out []model.SearchResult
	page := 1
	for len(out) < maxResultsPerQuery {
		if err := ctx.Err(); err != nil {
			return out, errs.Wrap(errs.Cancelled, "search cancelled", err)
		}
		batch, more, err := p.searchPage(ctx, q, page)
		if err != nil {
			return out, err
		}
		out = append(out, batch...)
		if !more || len(batch) == 0 {
			break
		}
		page++
	}
	return out, nil
}

func (p *Provider) searchPage(ctx context.Context, q model.SearchQuery, page int) ([]model.SearchResult, bool, error) {
	u := fmt.Sprintf("%s/search/code?q=%s&per_page=%d&page=%d", p.baseURL, url.QueryEscape(q.Query), perPage, page)

	for attempt := 1; attempt <= 4; attempt++ {
		slot, err := p.pool.Lease(ctx)
		if err != nil {
			return nil, false, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, false, errs.Wrap(errs.Unknown, "build search request", err)
		}
		req.Header.Set("Authorization", "Bearer "+slot.Token)
		req.Header.Set("Accept", "application/vnd.github.v3+json")
		req.Header.Set("User-Agent", "key-hunter")

		resp, err := p.client.Do(req)
		if err != nil {
			p.pool.Release(slot, 0, nil)
			if netpolicy.IsRetryableNetwork(req.Method) && attempt < 4 {
				if sleepErr := netpolicy.SleepForRetry(ctx, attempt, nil); sleepErr != nil {
					return nil, false, errs.Wrap(errs.Cancelled, "search retry cancelled", sleepErr)
				}
				continue
			}
			return nil, false, errs.Wrap(errs.Network, "search request failed", err)
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxContentBytes))
		resp.Body.Close()
		p.pool.Release(slot, resp.StatusCode, resp.Header)

		if resp.StatusCode == 422 {
			return nil, false, nil
		}
		if netpolicy.IsRetryableHTTP(http.MethodGet, resp.StatusCode, resp.Header, string(body)) && attempt < 4 {
			if sleepErr := netpolicy.SleepForRetry(ctx, attempt, resp.Header); sleepErr != nil {
				return nil, false, errs.Wrap(errs.Cancelled, "search retry cancelled", sleepErr)
			}
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, false, errs.FromHTTP(errs.Network, "search request failed", resp.StatusCode, resp.Header.Get("X-GitHub-Request-Id"))
		}

		var parsed codeSearchResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, false, errs.Wrap(errs.Parse, "decode search response", err)
		}
		out := make([]model.SearchResult, 0, len(parsed.Items))
		for _, item := range parsed.Items {
			rawURL := p.rawContentURL(item.Repository.FullName, item.Path, item.SHA)
			out = append(out, model.SearchResult{
				Repository: item.Repository.FullName,
				FilePath:   item.Path,
				FileURL:    item.HTMLURL,
				RawURL:     rawURL,
				SHA:        item.SHA,
			})
		}
		next := parseNextLink(resp.Header.Get("Link"))
		return out, next != "" || (len(out) == perPage), nil
	}
	return nil, false, errs.New(errs.Network, "search exhausted retries")
}

// rawContentURL builds the raw-content URL for a search hit. Against the
// public default base URL it points at raw.githubusercontent.com, the
// GitHub.com-specific raw content host; against any other base URL (a
// GitHub Enterprise instance, or a test double) it derives a same-host
// "/raw/..." path instead, since those hosts don't carry a separate raw
// content domain.
func (p *Provider) rawContentURL(repo, path, sha string) string {
	if repo == "" || path == "" {
		return ""
	}
	ref := sha
	if ref == "" {
		ref = "HEAD"
	}
	if p.baseURL == "https://api.github.com" {
		return fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/%s", repo, ref, path)
	}
	return fmt.Sprintf("%s/raw/%s/%s/%s", strings.TrimSuffix(p.baseURL, "/"), repo, ref, path)
}

// FetchContent retrieves a file's raw content, capped at 1 MiB; larger
// files are skipped. Non-UTF-8 content is lossily decoded so detectors can
// still run regex/entropy checks against it.
func (p *Provider) FetchContent(ctx context.Context, rawURL string) (string, bool, error) {
	if strings.TrimSpace(rawURL) == "" {
		return "", false, nil
	}
	slot, err := p.pool.Lease(ctx)
	if err != nil {
		return "", false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		p.pool.Release(slot, 0, nil)
		return "", false, errs.Wrap(errs.Unknown, "build content request", err)
	}
	req.Header.Set("Authorization", "Bearer "+slot.Token)

	resp, err := p.client.Do(req)
	if err != nil {
		p.pool.Release(slot, 0, nil)
		return "", false, errs.Wrap(errs.Network, "content fetch failed", err)
	}
	defer resp.Body.Close()
	p.pool.Release(slot, resp.StatusCode, resp.Header)

	if resp.StatusCode != http.StatusOK {
		return "", false, nil
	}
	if resp.ContentLength > maxContentBytes {
		return "", false, nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxContentBytes+1))
	if err != nil {
		return "", false, errs.Wrap(errs.Io, "read content body", err)
	}
	if len(body) > maxContentBytes {
		return "", false, nil
	}
	return strings.ToValidUTF8(string(body), "�"), true, nil
}

func parseNextLink(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		pieces := strings.SplitN(part, ";", 2)
		if len(pieces) < 2 || !strings.Contains(pieces[1], `rel="next"`) {
			continue
		}
		u := strings.TrimSpace(pieces[0])
		return strings.TrimSuffix(strings.TrimPrefix(u, "<"), ">")
	}
	return ""
}

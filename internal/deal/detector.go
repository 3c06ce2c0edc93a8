package deal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// ErrFeedNotFound はページからセール情報フィードを検出できなかったことを表す。
var ErrFeedNotFound = errors.New("deal: feed not found")

// feedKind はフィードの種類。Atomを優先する。
type feedKind int

const (
	kindRSS feedKind = iota + 1
	kindAtom
)

type feedLink struct {
	url  string
	kind feedKind
}

// Fetcher はSSRF対策済みのHTTPクライアントを提供する。
type Fetcher interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// Detector は店舗ページのURLからセール情報フィードのURLを求める。
// URLがフィードそのものを指している場合はそのまま返す。
type Detector struct {
	fetcher     Fetcher
	timeout     time.Duration
	maxBodySize int64
}

// NewDetector はDetectorを生成する。
func NewDetector(fetcher Fetcher, timeout time.Duration, maxBodySize int64) *Detector {
	return &Detector{
		fetcher:     fetcher,
		timeout:     timeout,
		maxBodySize: maxBodySize,
	}
}

// ResolveFeedURL はpageURLを取得し、フィードURLを返す。
// HTMLの場合はheadのlink rel="alternate"から同一ホスト、Atom、出現順の優先度で1件を選ぶ。
func (d *Detector) ResolveFeedURL(ctx context.Context, pageURL string) (string, error) {
	if err := d.fetcher.ValidateURL(pageURL); err != nil {
		return "", fmt.Errorf("invalid page url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "okane/1.0 DealFetcher")
	req.Header.Set("Accept", "application/atom+xml, application/rss+xml, application/xml, text/xml, text/html;q=0.9")

	resp, err := d.fetcher.NewSafeClient(d.timeout, d.maxBodySize).Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBodySize))
	if err != nil {
		return "", fmt.Errorf("failed to read page: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if isFeed(contentType, body) {
		return pageURL, nil
	}
	if !strings.Contains(mediaType(contentType), "html") {
		return "", ErrFeedNotFound
	}

	best, ok := pickFeedLink(feedLinksFromHTML(body, pageURL), pageURL)
	if !ok {
		return "", ErrFeedNotFound
	}
	return best, nil
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	return strings.ToLower(mt)
}

// isFeed はContent-Typeと本文の先頭からRSS/Atomかどうかを判定する。
func isFeed(contentType string, body []byte) bool {
	switch mediaType(contentType) {
	case "application/rss+xml", "application/atom+xml":
		return true
	case "text/xml", "application/xml":
	default:
		return false
	}

	head := body
	if len(head) > 4096 {
		head = head[:4096]
	}
	s := strings.ToLower(string(head))
	if strings.Contains(s, "<rss") || strings.Contains(s, "<rdf:rdf") {
		return true
	}
	return strings.Contains(s, "<feed") && strings.Contains(s, "http://www.w3.org/2005/atom")
}

// feedLinksFromHTML はhead内のフィードリンクを出現順に返す。相対URLはbaseURLで解決する。
func feedLinksFromHTML(body []byte, baseURL string) []feedLink {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	var links []feedLink
	z := html.NewTokenizer(bytes.NewReader(body))
	inHead := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			return links
		case html.EndTagToken:
			if name, _ := z.TagName(); string(name) == "head" {
				return links
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			switch string(name) {
			case "head":
				inHead = true
				continue
			case "body":
				return links
			case "link":
			default:
				continue
			}
			if !inHead || !hasAttr {
				continue
			}

			attrs := map[string]string{}
			for more := true; more; {
				var k, v []byte
				k, v, more = z.TagAttr()
				attrs[strings.ToLower(string(k))] = string(v)
			}
			if strings.ToLower(attrs["rel"]) != "alternate" || attrs["href"] == "" {
				continue
			}

			var kind feedKind
			switch strings.ToLower(attrs["type"]) {
			case "application/rss+xml":
				kind = kindRSS
			case "application/atom+xml":
				kind = kindAtom
			default:
				continue
			}

			ref, err := url.Parse(attrs["href"])
			if err != nil {
				continue
			}
			links = append(links, feedLink{url: base.ResolveReference(ref).String(), kind: kind})
		}
	}
}

// pickFeedLink は同一ホスト、Atom、出現順の優先度で1件を選ぶ。
func pickFeedLink(links []feedLink, pageURL string) (string, bool) {
	if len(links) == 0 {
		return "", false
	}
	pageHost := hostOf(pageURL)

	best, bestScore := 0, -1
	for i, l := range links {
		score := 0
		if hostOf(l.url) == pageHost {
			score += 100
		}
		if l.kind == kindAtom {
			score += 10
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return links[best].url, true
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// Package resolve turns obfuscated aggregator URLs (notably Google News
// redirect and base64 article encodings) into canonical publisher URLs and
// strips tracking parameters. Resolution never fails: malformed input
// degrades to returning the best available candidate.
package resolve

import (
	"context"
	"encoding/base64"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"curator/internal/logger"
)

const (
	defaultAggregatorHost = "news.google.com"
	defaultUserAgent      = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	maxBodyBytes          = 2 << 20
)

// trackingParams are query parameters stripped from resolved URLs: UTM,
// click-id, and analytics-id families.
var trackingParams = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
	"utm_id":       true,
	"gclid":        true,
	"fbclid":       true,
	"msclkid":      true,
	"dclid":        true,
	"twclid":       true,
	"igshid":       true,
	"mc_cid":       true,
	"mc_eid":       true,
	"_ga":          true,
	"_gl":          true,
	"ref":          true,
	"oc":           true,
	"ved":          true,
	"usg":          true,
}

// infrastructureDenylist lists first-party aggregator infrastructure domains
// that must never be accepted as a resolved article URL during body scans.
var infrastructureDenylist = []string{
	"google.com",
	"gstatic.com",
	"googleusercontent.com",
	"googleapis.com",
	"googletagmanager.com",
	"google-analytics.com",
	"doubleclick.net",
	"schema.org",
	"w3.org",
}

var (
	httpURLPattern      = regexp.MustCompile(`https?://[^\s"'<>\\]+`)
	locationHrefPattern = regexp.MustCompile(`location(?:\.href)?\s*=\s*["']([^"']+)["']`)
)

// Resolver decodes aggregator URLs into canonical source URLs.
type Resolver struct {
	aggregatorHost string
	client         *http.Client
	userAgent      string
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithAggregatorHost overrides the aggregator host used for redirect and
// opaque-path detection.
func WithAggregatorHost(host string) Option {
	return func(r *Resolver) { r.aggregatorHost = host }
}

// WithHTTPClient overrides the HTTP client used for redirect-following
// fetches.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) { r.client = c }
}

// NewResolver creates a Resolver with a redirect-following HTTP client.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		aggregatorHost: defaultAggregatorHost,
		client:         &http.Client{Timeout: 15 * time.Second},
		userAgent:      defaultUserAgent,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve applies the decoding strategies in order and returns the first
// terminal result, then strips tracking parameters. It never returns an
// error; input that defeats every strategy comes back unchanged apart from
// parameter cleanup. Resolve is idempotent: an already-clean URL maps to
// itself.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) string {
	candidate := html.UnescapeString(strings.TrimSpace(rawURL))
	if candidate == "" {
		return rawURL
	}

	parsed, err := url.Parse(candidate)
	if err != nil || parsed.Host == "" {
		return cleanURL(candidate)
	}

	if !r.isAggregator(parsed.Host) {
		return cleanURL(candidate)
	}

	// Target embedded in a redirect query parameter.
	if target := redirectParam(parsed); target != "" {
		return cleanURL(target)
	}

	// Opaque base64 article identifier in the path.
	if target := r.decodeOpaquePath(parsed); target != "" {
		return cleanURL(target)
	}

	// Network fallback: follow redirects off the aggregator domain.
	if target := r.resolveByFetch(ctx, candidate); target != "" {
		return cleanURL(target)
	}

	logger.Debug("url resolution exhausted all strategies", map[string]any{"url": rawURL})
	return cleanURL(candidate)
}

func (r *Resolver) isAggregator(host string) bool {
	host = strings.ToLower(host)
	return host == r.aggregatorHost || strings.HasSuffix(host, "."+r.aggregatorHost)
}

// redirectParam extracts the target from ?url= / ?q= style aggregator
// redirects.
func redirectParam(u *url.URL) string {
	q := u.Query()
	for _, key := range []string{"url", "q"} {
		// Query() already percent-decodes the value.
		value := q.Get(key)
		if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
			return value
		}
	}
	return ""
}

// decodeOpaquePath attempts structured decoding of a base64 article
// identifier embedded in the aggregator path (e.g. /rss/articles/<opaque>).
// The decoded bytes sometimes contain the URL directly and sometimes wrap a
// second base64 layer.
func (r *Resolver) decodeOpaquePath(u *url.URL) string {
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) == 0 {
		return ""
	}
	opaque := segments[len(segments)-1]
	if len(opaque) < 24 {
		return ""
	}

	decoded := base64Decode(opaque)
	if decoded == "" {
		return ""
	}
	if target := firstEmbeddedURL(decoded, nil); target != "" {
		return target
	}

	// Some encodings nest a second base64 payload; scan the decoded bytes
	// for a plausible inner token and try once more.
	for _, token := range base64TokenPattern.FindAllString(decoded, -1) {
		inner := base64Decode(token)
		if inner == "" {
			continue
		}
		if target := firstEmbeddedURL(inner, nil); target != "" {
			return target
		}
	}
	return ""
}

var base64TokenPattern = regexp.MustCompile(`[A-Za-z0-9+/_-]{24,}={0,2}`)

func base64Decode(s string) string {
	for _, enc := range []*base64.Encoding{
		base64.URLEncoding, base64.StdEncoding,
		base64.RawURLEncoding, base64.RawStdEncoding,
	} {
		if b, err := enc.DecodeString(s); err == nil {
			return string(b)
		}
	}
	return ""
}

// firstEmbeddedURL scans text for an http(s) URL signature, skipping hosts on
// the denylist (plus any extra entries supplied by the caller).
func firstEmbeddedURL(text string, extraDeny []string) string {
	for _, match := range httpURLPattern.FindAllString(text, -1) {
		// Decoded protobuf-ish bytes run URLs straight into binary framing;
		// cut the match at the first non-printable byte.
		for i := 0; i < len(match); i++ {
			if match[i] < 0x21 || match[i] > 0x7e {
				match = match[:i]
				break
			}
		}
		parsed, err := url.Parse(match)
		if err != nil || parsed.Host == "" {
			continue
		}
		if deniedHost(parsed.Host, extraDeny) {
			continue
		}
		return match
	}
	return ""
}

func deniedHost(host string, extra []string) bool {
	host = strings.ToLower(host)
	for _, deny := range infrastructureDenylist {
		if host == deny || strings.HasSuffix(host, "."+deny) {
			return true
		}
	}
	for _, deny := range extra {
		if deny != "" && (host == deny || strings.HasSuffix(host, "."+deny)) {
			return true
		}
	}
	return false
}

// resolveByFetch performs a network fetch following HTTP redirects. If the
// final response URL leaves the aggregator domain it wins outright;
// otherwise the body is scanned for a client-side redirect, an off-domain
// anchor, and finally any non-infrastructure URL.
func (r *Resolver) resolveByFetch(ctx context.Context, rawURL string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		logger.Debug("redirect-follow fetch failed", map[string]any{"url": rawURL, "error": err.Error()})
		return ""
	}
	defer resp.Body.Close()

	if final := resp.Request.URL; final != nil && !r.isAggregator(final.Host) {
		return final.String()
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return ""
	}
	return r.scanBody(string(body))
}

// scanBody looks for redirect targets inside an aggregator interstitial page.
func (r *Resolver) scanBody(body string) string {
	deny := []string{r.aggregatorHost}

	// Client-side redirect assignment.
	if m := locationHrefPattern.FindStringSubmatch(body); len(m) == 2 {
		target := html.UnescapeString(m[1])
		if parsed, err := url.Parse(target); err == nil && parsed.Host != "" && !r.isAggregator(parsed.Host) {
			return target
		}
	}

	// First anchor pointing off-domain.
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(body)); err == nil {
		var found string
		doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			href, _ := s.Attr("href")
			parsed, err := url.Parse(href)
			if err != nil || parsed.Host == "" {
				return true
			}
			if r.isAggregator(parsed.Host) || deniedHost(parsed.Host, deny) {
				return true
			}
			found = href
			return false
		})
		if found != "" {
			return found
		}
	}

	// Bare scan for any plausible URL.
	return firstEmbeddedURL(body, deny)
}

// cleanURL strips tracking query parameters and, when no parameters remain,
// reduces the URL to origin + path.
func cleanURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return rawURL
	}

	q := parsed.Query()
	for key := range q {
		if trackingParams[strings.ToLower(key)] {
			q.Del(key)
		}
	}

	if len(q) == 0 {
		parsed.RawQuery = ""
		parsed.Fragment = ""
		return parsed.Scheme + "://" + parsed.Host + parsed.Path
	}
	parsed.RawQuery = q.Encode()
	return parsed.String()
}

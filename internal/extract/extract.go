// Package extract converts a resolved URL into structured markdown through a
// layered fallback: a remote reader rendering service first, then a direct
// fetch parsed with goquery. Each result carries a heuristic quality score.
package extract

import (
	"context"
	"fmt"
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
	// minReaderLength is the minimum byte length for a reader-service
	// response to count as article content rather than an error page.
	minReaderLength = 200
	// minContentLength is the minimum text length for a selector candidate
	// to be accepted as the content root during direct extraction.
	minContentLength = 250
	browserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	maxBodyBytes     = 5 << 20
)

// botBlockMarkers flag reader responses that are bot walls, not articles.
var botBlockMarkers = []string{
	"access denied",
	"are you a robot",
	"verify you are human",
	"enable javascript and cookies",
	"captcha",
	"attention required",
	"403 forbidden",
	"rate limited",
}

// contentSelectors is the ordered candidate list for the content root:
// semantic article containers first, generic content containers next, body
// as the last resort.
var contentSelectors = []string{
	"article",
	"main",
	"[role='main']",
	".article-body",
	".post-content",
	".entry-content",
	".post-body",
	".story-body",
	".main-content",
	"#content",
	".content",
	"body",
}

// sponsorLinePattern matches sponsor/advertisement marker lines dropped in
// post-processing.
var sponsorLinePattern = regexp.MustCompile(`(?im)^\s*(advertisement|sponsored( content)?|sponsor(ed)? by .*|promoted content|continue reading below)\s*$`)

var blankRunPattern = regexp.MustCompile(`\n{3,}`)

// Result is the output of a successful extraction.
type Result struct {
	Markdown     string  // Extracted body as markdown
	CleanedText  string  // Markdown with markup stripped
	WordCount    int     // Words in CleanedText
	QualityScore float64 // Heuristic usefulness, 0.0-1.0
	Source       string  // "reader" or "direct"
}

// Error is a terminal extraction failure: both strategies were tried and
// neither produced usable content.
type Error struct {
	URL       string
	ReaderErr error
	DirectErr error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extraction failed for %s: reader: %v; direct: %v", e.URL, e.ReaderErr, e.DirectErr)
}

// Extractor fetches and converts article content.
type Extractor struct {
	readerBaseURL string
	client        *http.Client
}

// Option customizes an Extractor.
type Option func(*Extractor)

// WithHTTPClient overrides the HTTP client used by both strategies.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Extractor) { e.client = c }
}

// NewExtractor creates an Extractor. readerBaseURL is the base of the
// reader rendering service ("<base>/<target-url>" returns markdown); when
// empty the reader strategy is skipped entirely.
func NewExtractor(readerBaseURL string, opts ...Option) *Extractor {
	e := &Extractor{
		readerBaseURL: strings.TrimRight(readerBaseURL, "/"),
		client:        &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract runs the reader strategy and falls back to direct fetch + HTML
// parsing. It does not retry internally; transient-failure retries belong to
// the caller. Both strategies failing yields a terminal *Error.
func (e *Extractor) Extract(ctx context.Context, targetURL string) (*Result, error) {
	var readerErr error
	if e.readerBaseURL != "" {
		result, err := e.extractViaReader(ctx, targetURL)
		if err == nil {
			return result, nil
		}
		readerErr = err
		logger.Debug("reader extraction failed, falling back to direct fetch",
			map[string]any{"url": targetURL, "error": err.Error()})
	} else {
		readerErr = fmt.Errorf("reader service not configured")
	}

	result, err := e.extractDirect(ctx, targetURL)
	if err != nil {
		return nil, &Error{URL: targetURL, ReaderErr: readerErr, DirectErr: err}
	}
	return result, nil
}

// extractViaReader asks the remote reader service to render the page as
// markdown.
func (e *Extractor) extractViaReader(ctx context.Context, targetURL string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.readerBaseURL+"/"+targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build reader request: %w", err)
	}
	req.Header.Set("Accept", "text/markdown, text/plain")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reader request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reader service returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read reader response: %w", err)
	}

	markdown := postProcess(string(body))
	if len(markdown) < minReaderLength {
		return nil, fmt.Errorf("reader response too short (%d bytes)", len(markdown))
	}
	lower := strings.ToLower(markdown)
	for _, marker := range botBlockMarkers {
		if strings.Contains(lower, marker) {
			return nil, fmt.Errorf("reader response contains bot-block marker %q", marker)
		}
	}

	return buildResult(markdown, "reader"), nil
}

// extractDirect fetches the raw page with a browser-like user agent and
// rebuilds markdown from the structural elements of the best content root.
func (e *Extractor) extractDirect(ctx context.Context, targetURL string) (*Result, error) {
	if _, err := url.ParseRequestURI(targetURL); err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", targetURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch %s: status code %d", targetURL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	markdown := MarkdownFromDocument(doc)
	if strings.TrimSpace(markdown) == "" {
		return nil, fmt.Errorf("no content extracted from %s", targetURL)
	}

	return buildResult(markdown, "direct"), nil
}

// MarkdownFromDocument strips non-content elements, selects a content root
// from the ordered candidate list, and walks its structural elements in
// document order to build markdown.
func MarkdownFromDocument(doc *goquery.Document) string {
	doc.Find("script, style, nav, footer, header, aside, form, iframe, noscript, " +
		".sidebar, #sidebar, .ad, .ads, .advertisement, .popup, .modal, .cookie-banner, " +
		".newsletter-signup, .social-share, .comments, #comments").Remove()

	root := doc.Selection
	for _, selector := range contentSelectors {
		candidate := doc.Find(selector).First()
		if candidate.Length() == 0 {
			continue
		}
		if len(strings.TrimSpace(candidate.Text())) >= minContentLength || selector == "body" {
			root = candidate
			break
		}
	}

	var b strings.Builder
	root.Find("h1, h2, h3, h4, h5, h6, p, li, blockquote, pre").Each(func(_ int, s *goquery.Selection) {
		// Paragraphs nested in list items or quotes are emitted through
		// their parent.
		if s.Is("p") && s.ParentsFiltered("li, blockquote").Length() > 0 {
			return
		}
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}

		switch goquery.NodeName(s) {
		case "h1", "h2", "h3", "h4", "h5", "h6":
			level := int(goquery.NodeName(s)[1] - '0')
			b.WriteString(strings.Repeat("#", level) + " " + text + "\n\n")
		case "p":
			b.WriteString(text + "\n\n")
		case "li":
			if s.Parent().Is("ol") {
				b.WriteString(fmt.Sprintf("%d. %s\n", s.Index()+1, text))
			} else {
				b.WriteString("- " + text + "\n")
			}
		case "blockquote":
			for _, line := range strings.Split(text, "\n") {
				b.WriteString("> " + strings.TrimSpace(line) + "\n")
			}
			b.WriteString("\n")
		case "pre":
			b.WriteString("```\n" + text + "\n```\n\n")
		}
	})

	return postProcess(b.String())
}

// postProcess strips sponsor marker lines and collapses runs of blank lines.
func postProcess(markdown string) string {
	markdown = sponsorLinePattern.ReplaceAllString(markdown, "")
	markdown = blankRunPattern.ReplaceAllString(markdown, "\n\n")
	return strings.TrimSpace(markdown)
}

func buildResult(markdown, source string) *Result {
	cleaned := CleanText(markdown)
	wordCount := len(strings.Fields(cleaned))
	return &Result{
		Markdown:     markdown,
		CleanedText:  cleaned,
		WordCount:    wordCount,
		QualityScore: QualityScore(markdown, wordCount),
		Source:       source,
	}
}

var markdownMarkupPattern = regexp.MustCompile("(?m)^#{1,6} |^[-*] |^\\d+\\. |^> |`{1,3}")

// CleanText strips markdown markup, leaving plain prose for word counting
// and prompt assembly.
func CleanText(markdown string) string {
	text := markdownMarkupPattern.ReplaceAllString(markdown, "")
	text = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`).ReplaceAllString(text, "$1")
	return strings.TrimSpace(text)
}

// QualityScore rates extracted text on a 0-1 scale: a neutral baseline,
// a bonus for word counts in the normal-article range, a penalty for very
// short output, and small bonuses for structural richness.
func QualityScore(markdown string, wordCount int) float64 {
	score := 0.5

	switch {
	case wordCount == 0:
		return 0
	case wordCount < 100:
		score -= 0.3
	case wordCount >= 300 && wordCount <= 5000:
		score += 0.2
	}

	if strings.Contains(markdown, "# ") || strings.Contains(markdown, "\n## ") {
		score += 0.1
	}
	if strings.Count(markdown, "\n\n") >= 3 {
		score += 0.1
	}
	if strings.Contains(markdown, "\n- ") || strings.Contains(markdown, "\n1. ") {
		score += 0.05
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

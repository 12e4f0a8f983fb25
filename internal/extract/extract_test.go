package extract

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const articleHTML = `<!DOCTYPE html>
<html><head><title>Test Article</title></head>
<body>
<nav><a href="/">Home</a><a href="/about">About</a></nav>
<div class="cookie-banner">We use cookies. Accept?</div>
<article>
<h1>Widget Market Shifts</h1>
<p>The widget market saw significant movement this quarter as three major
vendors announced new product lines targeting enterprise customers with
improved reliability guarantees.</p>
<h2>What Changed</h2>
<p>Analysts point to supply chain normalization and renewed capital
spending as the primary drivers behind the sudden expansion of inventory
across every regional distributor.</p>
<ul><li>Vendor A doubled output</li><li>Vendor B entered Europe</li></ul>
<ol><li>First takeaway</li><li>Second takeaway</li></ol>
<blockquote>The market has never moved this fast.</blockquote>
<p>ADVERTISEMENT</p>
<p>Margins remain under pressure, however, and several smaller suppliers
are expected to consolidate before the end of the fiscal year.</p>
</article>
<footer>Copyright</footer>
<script>trackPageView();</script>
</body></html>`

func readerMarkdown() string {
	var b strings.Builder
	b.WriteString("# Widget Market Shifts\n\n")
	for i := 0; i < 40; i++ {
		b.WriteString("The widget market saw significant movement this quarter across vendors.\n\n")
	}
	return b.String()
}

func TestExtractPrefersReaderService(t *testing.T) {
	reader := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !strings.Contains(req.URL.Path, "realsite.com") {
			t.Errorf("Reader request missing target url, got path %q", req.URL.Path)
		}
		fmt.Fprint(w, readerMarkdown())
	}))
	defer reader.Close()

	e := NewExtractor(reader.URL, WithHTTPClient(reader.Client()))
	result, err := e.Extract(context.Background(), "https://realsite.com/article")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if result.Source != "reader" {
		t.Errorf("Expected source 'reader', got %q", result.Source)
	}
	if result.WordCount == 0 {
		t.Error("Expected non-zero word count")
	}
	if result.QualityScore <= 0 || result.QualityScore > 1 {
		t.Errorf("Quality score out of range: %f", result.QualityScore)
	}
}

func TestExtractFallsBackOnShortReaderResponse(t *testing.T) {
	mux := http.NewServeMux()
	site := httptest.NewServer(mux)
	defer site.Close()

	mux.HandleFunc("/reader/", func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, "nope")
	})
	mux.HandleFunc("/article", func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, articleHTML)
	})

	e := NewExtractor(site.URL+"/reader", WithHTTPClient(site.Client()))
	result, err := e.Extract(context.Background(), site.URL+"/article")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if result.Source != "direct" {
		t.Errorf("Expected fallback to direct extraction, got source %q", result.Source)
	}
}

func TestExtractFallsBackOnBotBlockMarker(t *testing.T) {
	mux := http.NewServeMux()
	site := httptest.NewServer(mux)
	defer site.Close()

	mux.HandleFunc("/reader/", func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, strings.Repeat("Please verify you are human before continuing to the site. ", 20))
	})
	mux.HandleFunc("/article", func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, articleHTML)
	})

	e := NewExtractor(site.URL+"/reader", WithHTTPClient(site.Client()))
	result, err := e.Extract(context.Background(), site.URL+"/article")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if result.Source != "direct" {
		t.Errorf("Expected bot-block marker to trigger fallback, got source %q", result.Source)
	}
}

func TestDirectExtractionStructure(t *testing.T) {
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if ua := req.Header.Get("User-Agent"); !strings.Contains(ua, "Mozilla") {
			t.Errorf("Expected browser-like user agent, got %q", ua)
		}
		fmt.Fprint(w, articleHTML)
	}))
	defer site.Close()

	e := NewExtractor("", WithHTTPClient(site.Client()))
	result, err := e.Extract(context.Background(), site.URL+"/article")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	md := result.Markdown
	if !strings.Contains(md, "# Widget Market Shifts") {
		t.Error("Expected h1 preserved as level-1 heading")
	}
	if !strings.Contains(md, "## What Changed") {
		t.Error("Expected h2 preserved as level-2 heading")
	}
	if !strings.Contains(md, "- Vendor A doubled output") {
		t.Error("Expected unordered list items")
	}
	if !strings.Contains(md, "1. First takeaway") || !strings.Contains(md, "2. Second takeaway") {
		t.Error("Expected ordered list numbering preserved")
	}
	if !strings.Contains(md, "> The market has never moved this fast.") {
		t.Error("Expected blockquote prefix")
	}
	if strings.Contains(md, "ADVERTISEMENT") {
		t.Error("Expected sponsor marker line stripped")
	}
	if strings.Contains(md, "Home") || strings.Contains(md, "cookies") {
		t.Error("Expected nav and cookie banner removed")
	}
	if strings.Contains(md, "\n\n\n") {
		t.Error("Expected blank-line runs collapsed")
	}
}

func TestExtractTerminalErrorWhenBothStrategiesFail(t *testing.T) {
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer site.Close()

	e := NewExtractor(site.URL+"/reader", WithHTTPClient(site.Client()))
	_, err := e.Extract(context.Background(), site.URL+"/article")
	if err == nil {
		t.Fatal("Expected terminal error when both strategies fail")
	}

	var extractErr *Error
	if !errors.As(err, &extractErr) {
		t.Fatalf("Expected *Error, got %T: %v", err, err)
	}
	if extractErr.ReaderErr == nil || extractErr.DirectErr == nil {
		t.Error("Terminal error must carry both strategy failures")
	}
}

func TestQualityScoreShortArticle(t *testing.T) {
	// A ~30 word page extracts "successfully" but scores under the usual
	// quality floor.
	words := strings.Repeat("word ", 30)
	score := QualityScore(words, 30)
	if score >= 0.3 {
		t.Errorf("Expected short article to score below 0.3, got %f", score)
	}
	if score < 0 {
		t.Errorf("Score must be clamped to [0,1], got %f", score)
	}
}

func TestQualityScoreZeroWords(t *testing.T) {
	if score := QualityScore("", 0); score != 0 {
		t.Errorf("Expected 0 for empty content, got %f", score)
	}
}

func TestQualityScoreNormalArticle(t *testing.T) {
	var b strings.Builder
	b.WriteString("# Heading\n\n")
	for i := 0; i < 50; i++ {
		b.WriteString("This paragraph carries roughly ten words of plain article prose.\n\n")
	}
	b.WriteString("- point one\n- point two\n")

	md := b.String()
	wordCount := len(strings.Fields(CleanText(md)))
	score := QualityScore(md, wordCount)
	if score < 0.7 {
		t.Errorf("Expected structured normal-length article to score >= 0.7, got %f", score)
	}
	if score > 1 {
		t.Errorf("Score must be clamped to [0,1], got %f", score)
	}
}

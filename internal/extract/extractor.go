// Package extract parses fetched HTML into page metadata and outbound links.
package extract

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/quarryhq/quarry/internal/domain"
)

// maxLinkTextLen bounds stored anchor text.
const maxLinkTextLen = 100

// minDetectableTextLen is the minimum body text length worth running
// statistical language detection on.
const minDetectableTextLen = 40

// Link is one outbound edge found in a page.
type Link struct {
	TargetURL string
	Text      string
	Type      string // domain.LinkTypeInternal or domain.LinkTypeExternal
}

// Result holds everything extracted from one fetched page.
type Result struct {
	Title       string
	Description string
	Language    string
	ContentHash string
	Links       []Link
}

// Extractor parses a fetched body. The scheduler depends on this interface;
// HTMLExtractor below is the default implementation.
type Extractor interface {
	Extract(pageURL string, body []byte) (*Result, error)
}

// LanguageDetector guesses the language of plain text, returning an ISO
// 639-1 code and whether the guess is usable.
type LanguageDetector interface {
	Detect(text string) (string, bool)
}

// HTMLExtractor extracts metadata and links using goquery.
type HTMLExtractor struct {
	detector LanguageDetector
}

// NewHTMLExtractor creates an extractor. detector may be nil, in which case
// only declared document language is reported.
func NewHTMLExtractor(detector LanguageDetector) *HTMLExtractor {
	return &HTMLExtractor{detector: detector}
}

// Extract parses the HTML body. The content hash is a SHA-256 over the raw
// bytes, so two fetches compare equal only when the payload is
// byte-identical.
func (e *HTMLExtractor) Extract(pageURL string, body []byte) (*Result, error) {
	base, baseErr := url.Parse(pageURL)
	if baseErr != nil {
		return nil, fmt.Errorf("extract: parse page url: %w", baseErr)
	}

	doc, docErr := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if docErr != nil {
		return nil, fmt.Errorf("extract: parse html: %w", docErr)
	}

	result := &Result{
		Title:       extractTitle(doc),
		Description: extractDescription(doc),
		ContentHash: HashBody(body),
		Links:       extractLinks(doc, base),
	}
	result.Language = e.extractLanguage(doc)

	return result, nil
}

// extractTitle prefers <title>, falling back to og:title.
func extractTitle(doc *goquery.Document) string {
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}

	if ogTitle, exists := doc.Find("meta[property='og:title']").Attr("content"); exists {
		return strings.TrimSpace(ogTitle)
	}

	return ""
}

// extractDescription prefers the description meta tag, then og:description.
func extractDescription(doc *goquery.Document) string {
	if desc, exists := doc.Find("meta[name='description']").Attr("content"); exists {
		return strings.TrimSpace(desc)
	}

	if ogDesc, exists := doc.Find("meta[property='og:description']").Attr("content"); exists {
		return strings.TrimSpace(ogDesc)
	}

	return ""
}

// extractLanguage reports the page language: declared <html lang> or meta
// content-language first, statistical detection over body text as fallback.
func (e *HTMLExtractor) extractLanguage(doc *goquery.Document) string {
	if lang, exists := doc.Find("html").Attr("lang"); exists {
		if code := normalizeLangCode(lang); code != "" {
			return code
		}
	}

	if lang, exists := doc.Find("meta[http-equiv='content-language']").Attr("content"); exists {
		if code := normalizeLangCode(lang); code != "" {
			return code
		}
	}

	if e.detector == nil {
		return ""
	}

	text := bodyText(doc)
	if len(text) < minDetectableTextLen {
		return ""
	}

	if code, ok := e.detector.Detect(text); ok {
		return code
	}

	return ""
}

// normalizeLangCode reduces a BCP 47 tag like "en-US" to its primary
// subtag, lowercased.
func normalizeLangCode(tag string) string {
	tag = strings.TrimSpace(strings.ToLower(tag))
	if tag == "" {
		return ""
	}

	if idx := strings.IndexAny(tag, "-_,"); idx > 0 {
		tag = tag[:idx]
	}

	return tag
}

// nonContentSelectors lists elements stripped before text extraction.
const nonContentSelectors = "script, style, nav, header, footer"

// bodyText returns the visible text of the document body.
func bodyText(doc *goquery.Document) string {
	body := doc.Find("body").First()
	if body.Length() == 0 {
		return ""
	}

	body.Find(nonContentSelectors).Remove()

	return strings.Join(strings.Fields(body.Text()), " ")
}

// extractLinks collects a[href] targets, resolves them against the page URL,
// and classifies each as internal or external by host. Non-navigational
// schemes (mailto, javascript, tel) and pure fragments are skipped.
func extractLinks(doc *goquery.Document, base *url.URL) []Link {
	links := make([]Link, 0)

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}

		parsed, err := url.Parse(href)
		if err != nil {
			return
		}

		if parsed.Scheme != "" && parsed.Scheme != "http" && parsed.Scheme != "https" {
			return
		}

		resolved := base.ResolveReference(parsed)
		if resolved.Host == "" {
			return
		}

		linkType := domain.LinkTypeExternal
		if strings.EqualFold(resolved.Hostname(), base.Hostname()) {
			linkType = domain.LinkTypeInternal
		}

		links = append(links, Link{
			TargetURL: resolved.String(),
			Text:      truncateText(sel.Text()),
			Type:      linkType,
		})
	})

	return links
}

// truncateText trims and bounds anchor text. The bound counts runes, not
// bytes, so multibyte text is never cut mid-character.
func truncateText(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) > maxLinkTextLen {
		runes := []rune(text)
		text = string(runes[:maxLinkTextLen])
	}
	return text
}

// HashBody returns the hex-encoded SHA-256 digest of a raw response body.
// The scheduler uses the same digest to probe the dedup index before
// deciding whether extraction is needed at all.
func HashBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Package fragment interprets fetched response bodies: full-document
// detection, sub-fragment extraction, and title derivation.
package fragment

import (
	"errors"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrFragmentMissing indicates the requested fragment selector matched
// nothing in the response. The navigation must degrade to a full page load.
var ErrFragmentMissing = errors.New("fragment: selector not found in response")

var fullDocumentRe = regexp.MustCompile(`(?i)<html`)

// IsBlank reports whether the body is empty or whitespace only.
func IsBlank(body string) bool {
	return strings.TrimSpace(body) == ""
}

// IsFullDocument reports whether the body looks like a complete HTML
// document rather than pre-trimmed partial content.
func IsFullDocument(body string) bool {
	return fullDocumentRe.MatchString(body)
}

// Extracted is content ready to be spliced into a container.
type Extracted struct {
	// HTML is the markup to splice.
	HTML string

	// Title is the derived document title, empty when none was found.
	Title string
}

// Extract parses body as markup and pulls out the first match for selector.
// The result's HTML is the match's contents. The title comes from, in order:
// a <title> element in the response, the match's title attribute, or its
// data-title attribute.
func Extract(body, selector string) (*Extracted, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, err
	}

	match := doc.Find(selector).First()
	if match.Length() == 0 {
		return nil, ErrFragmentMissing
	}

	html, err := match.Html()
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(match.AttrOr("title", ""))
	}
	if title == "" {
		title = strings.TrimSpace(match.AttrOr("data-title", ""))
	}

	return &Extracted{HTML: html, Title: title}, nil
}

// Inline prepares a partial body for verbatim splicing. Any embedded
// <title> element supplies the derived title and is removed from the
// content actually rendered; a body without one is returned untouched.
func Inline(body string) (*Extracted, error) {
	if !strings.Contains(strings.ToLower(body), "<title") {
		return &Extracted{HTML: body}, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, err
	}

	titleSel := doc.Find("title").First()
	title := strings.TrimSpace(titleSel.Text())
	titleSel.Remove()

	// Partial content gets wrapped in html/head/body during parsing; the
	// splice-able markup is whatever ended up under those implicit nodes.
	var parts []string
	for _, scope := range []string{"head", "body"} {
		if html, err := doc.Find(scope).Html(); err == nil && strings.TrimSpace(html) != "" {
			parts = append(parts, html)
		}
	}

	return &Extracted{HTML: strings.Join(parts, ""), Title: title}, nil
}

// Package dom wraps a live goquery document together with the page state
// the navigation engine mutates: location, title, and scroll intent. All
// content mutation funnels through ReplaceContents so the engine never
// manipulates nodes directly.
package dom

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

// Document is a loaded page.
type Document struct {
	mu     sync.Mutex
	doc    *goquery.Document
	loc    *url.URL
	title  string
	scroll string
}

// Parse builds a Document from raw markup located at rawURL.
func Parse(rawURL, html string) (*Document, error) {
	loc, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("dom: parse location: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("dom: parse document: %w", err)
	}
	d := &Document{doc: doc, loc: loc}
	d.title = strings.TrimSpace(doc.Find("title").First().Text())
	return d, nil
}

// Load replaces the whole document in place, as a full page load does.
// Holders of the Document keep a valid handle across loads.
func (d *Document) Load(rawURL, html string) error {
	loc, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("dom: parse location: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("dom: parse document: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.doc = doc
	d.loc = loc
	d.title = strings.TrimSpace(doc.Find("title").First().Text())
	d.scroll = ""
	return nil
}

// Query exposes the underlying document for selector matching.
func (d *Document) Query() *goquery.Document {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc
}

// Location returns the document's current URL.
func (d *Document) Location() *url.URL {
	d.mu.Lock()
	defer d.mu.Unlock()
	u := *d.loc
	return &u
}

// SetLocation updates the document's URL, as the history synchronizer and
// full loads do.
func (d *Document) SetLocation(rawURL string) error {
	loc, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("dom: parse location: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loc = loc
	return nil
}

// Title returns the current document title.
func (d *Document) Title() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.title
}

// SetTitle sets the document title, trimmed.
func (d *Document) SetTitle(title string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.title = strings.TrimSpace(title)
}

// ReplaceContents swaps the inner markup of the first element matching
// selector.
func (d *Document) ReplaceContents(selector, html string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	sel := d.doc.Find(selector).First()
	if sel.Length() == 0 {
		return fmt.Errorf("dom: no element matches %q", selector)
	}
	sel.SetHtml(html)
	return nil
}

// Contents returns the inner markup of the first element matching selector.
func (d *Document) Contents(selector string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sel := d.doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", fmt.Errorf("dom: no element matches %q", selector)
	}
	return sel.Html()
}

// ScrollTo records the fragment identifier the page should scroll to.
func (d *Document) ScrollTo(fragment string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scroll = fragment
}

// ScrollTarget returns the last requested scroll fragment.
func (d *Document) ScrollTarget() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scroll
}

// HTML renders the whole document.
func (d *Document) HTML() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.Html()
}

// Package page hosts a document outside a browser: a live dom.Document
// plus the conventional-navigation behaviors the engine expects from its
// environment, full page loads and synthetic form submission.
package page

import (
	"fmt"
	"sync"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/webfold/partialnav/internal/dom"
	"github.com/webfold/partialnav/internal/fallback"
	"github.com/webfold/partialnav/internal/infrastructure/logging"
)

// Page is a headless host for one document. It satisfies the engine's
// Renderer and FullLoader contracts and the fallback Submitter contract.
type Page struct {
	doc  *dom.Document
	rest *resty.Client
	log  *logging.Logger

	mu    sync.Mutex
	loads []string
}

// Open fetches rawURL and hosts the resulting document.
func Open(rawURL string, rest *resty.Client, log *logging.Logger) (*Page, error) {
	if rest == nil {
		rest = resty.New()
	}
	resp, err := rest.R().Get(rawURL)
	if err != nil {
		return nil, fmt.Errorf("page: open %s: %w", rawURL, err)
	}
	return FromHTML(finalURL(resp, rawURL), resp.String(), rest, log)
}

// FromHTML hosts an already-fetched document located at rawURL.
func FromHTML(rawURL, html string, rest *resty.Client, log *logging.Logger) (*Page, error) {
	doc, err := dom.Parse(rawURL, html)
	if err != nil {
		return nil, err
	}
	if rest == nil {
		rest = resty.New()
	}
	return &Page{doc: doc, rest: rest, log: logging.OrNop(log)}, nil
}

// Document returns the hosted document. The handle stays valid across
// full loads.
func (p *Page) Document() *dom.Document { return p.doc }

// ReplaceContents splices markup into the hosted document.
func (p *Page) ReplaceContents(selector, html string) error {
	return p.doc.ReplaceContents(selector, html)
}

// SetTitle sets the hosted document's title.
func (p *Page) SetTitle(title string) { p.doc.SetTitle(title) }

// ScrollTo records scroll intent on the hosted document.
func (p *Page) ScrollTo(fragment string) { p.doc.ScrollTo(fragment) }

// FullLoad performs a conventional navigation: fetch the URL and replace
// the document wholesale. Fetch failures leave the old document in place.
func (p *Page) FullLoad(url string) {
	p.recordLoad(url)
	resp, err := p.rest.R().Get(url)
	if err != nil {
		p.log.Warn("full load failed", zap.String("url", url), zap.Error(err))
		return
	}
	if err := p.doc.Load(finalURL(resp, url), resp.String()); err != nil {
		p.log.Warn("full load parse failed", zap.String("url", url), zap.Error(err))
	}
}

// Submit performs a synthetic form submission and loads the response as a
// conventional navigation would.
func (p *Page) Submit(f *fallback.Form) error {
	p.recordLoad(f.Action)
	req := p.rest.R()
	var (
		resp *resty.Response
		err  error
	)
	if f.Method == "GET" {
		resp, err = req.SetQueryParamsFromValues(f.Values()).Get(f.Action)
	} else {
		resp, err = req.SetFormDataFromValues(f.Values()).Post(f.Action)
	}
	if err != nil {
		return fmt.Errorf("page: submit %s: %w", f.Action, err)
	}
	return p.doc.Load(finalURL(resp, f.Action), resp.String())
}

// FullLoads lists the URLs handed to conventional navigation, in order.
func (p *Page) FullLoads() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.loads))
	copy(out, p.loads)
	return out
}

func (p *Page) recordLoad(url string) {
	p.mu.Lock()
	p.loads = append(p.loads, url)
	p.mu.Unlock()
}

// finalURL is the response's post-redirect URL, falling back to the
// request target.
func finalURL(resp *resty.Response, fallbackURL string) string {
	if resp.RawResponse != nil && resp.RawResponse.Request != nil && resp.RawResponse.Request.URL != nil {
		return resp.RawResponse.Request.URL.String()
	}
	return fallbackURL
}

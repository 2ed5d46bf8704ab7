// Package intercept decides whether a link activation is a plain
// same-document navigation eligible for partial handling, and if so turns
// it into a navigation request.
package intercept

import (
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/webfold/partialnav/internal/container"
	"github.com/webfold/partialnav/internal/dom"
	"github.com/webfold/partialnav/internal/infrastructure/logging"
	"github.com/webfold/partialnav/internal/nav"
	"github.com/webfold/partialnav/internal/urlx"
)

// ContainerAttr is the link attribute naming the link's own target
// container, overriding the binding's default.
const ContainerAttr = "data-pjax"

// Navigator issues navigation requests. Implemented by nav.Engine and the
// history-based fallback strategy.
type Navigator interface {
	Navigate(opts nav.Options) (*nav.Pending, error)
}

// Link is the activated anchor.
type Link struct {
	Href      string
	Container string
	Element   *goquery.Selection
}

// LinkFrom reads a Link out of an anchor element.
func LinkFrom(sel *goquery.Selection) *Link {
	return &Link{
		Href:      sel.AttrOr("href", ""),
		Container: sel.AttrOr(ContainerAttr, ""),
		Element:   sel,
	}
}

// Activation models a link-activation event.
type Activation struct {
	// Button is the input button used; 0 is the primary one.
	Button int

	CtrlKey  bool
	MetaKey  bool
	ShiftKey bool
	AltKey   bool

	Link *Link
}

// modified reports whether the activation implies "open elsewhere".
func (a *Activation) modified() bool {
	return a.Button != 0 || a.CtrlKey || a.MetaKey || a.ShiftKey || a.AltKey
}

// Binding attaches interception over a scope of links sharing a default
// container and options.
type Binding struct {
	doc  *dom.Document
	nav  Navigator
	ref  container.Ref
	opts nav.Options
	log  *logging.Logger
}

// Bind creates a binding that routes intercepted activations to n,
// targeting ref unless a link declares its own container.
func Bind(doc *dom.Document, n Navigator, ref container.Ref, opts nav.Options, log *logging.Logger) *Binding {
	return &Binding{doc: doc, nav: n, ref: ref, opts: opts, log: logging.OrNop(log)}
}

// Handle inspects one activation and reports whether it was intercepted.
// False means the browser's default action should proceed.
func (b *Binding) Handle(ev *Activation) bool {
	if ev.modified() || ev.Link == nil || ev.Link.Href == "" {
		return false
	}

	loc := b.doc.Location()
	target, err := url.Parse(urlx.Resolve(loc, ev.Link.Href))
	if err != nil {
		return false
	}
	if !urlx.SameOrigin(loc, target) {
		return false
	}
	if urlx.HashOnlyChange(loc, target) {
		return false
	}

	defaults := nav.Options{
		URL:       ev.Link.Href,
		Container: b.ref,
		Source:    ev.Link.Element,
	}
	if ev.Link.Container != "" {
		defaults.Container = container.Ref{Selector: ev.Link.Container}
	}
	merged := nav.Merge(defaults, b.opts)

	if _, err := b.nav.Navigate(merged); err != nil {
		// Let the browser handle what this system cannot.
		b.log.Warn("interception abandoned", zap.String("href", ev.Link.Href), zap.Error(err))
		return false
	}
	return true
}

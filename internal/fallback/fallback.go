// Package fallback degrades partial navigation to conventional navigation
// when the host lacks a usable session-history API. Strategy selection
// happens once, from a capability probe; the chosen strategy is held as
// configuration rather than swapped into the public entry points.
package fallback

import (
	"regexp"

	"github.com/webfold/partialnav/internal/intercept"
	"github.com/webfold/partialnav/internal/nav"
)

// brokenUA matches host identification strings whose history API is known
// broken even though it is present.
var brokenUA = regexp.MustCompile(`(iPod|iPhone|iPad).+\bOS\s+[1-4]\D|WebApps/.+CFNetwork`)

// Capabilities describes what the host environment reports about its
// session-history API.
type Capabilities struct {
	PushState    bool
	ReplaceState bool
	UserAgent    string
}

// Supported reports whether history-based navigation can be trusted.
func (c Capabilities) Supported() bool {
	return c.PushState && c.ReplaceState && !brokenUA.MatchString(c.UserAgent)
}

// Strategy is the navigation capability selected at initialization time.
type Strategy interface {
	// Navigate performs a navigation. The pending handle is nil for
	// strategies that complete synchronously.
	Navigate(opts nav.Options) (*nav.Pending, error)

	// HandleActivation processes a link activation, reporting whether it
	// was intercepted.
	HandleActivation(ev *intercept.Activation) bool
}

// HistoryBased is the regular strategy: the navigation controller plus
// click interception.
type HistoryBased struct {
	Engine  *nav.Engine
	Binding *intercept.Binding
}

// Navigate delegates to the navigation controller.
func (h *HistoryBased) Navigate(opts nav.Options) (*nav.Pending, error) {
	return h.Engine.Navigate(opts)
}

// HandleActivation delegates to the interception binding.
func (h *HistoryBased) HandleActivation(ev *intercept.Activation) bool {
	return h.Binding.Handle(ev)
}

// FormSubmission replaces navigation with a synchronous synthetic form
// submission. There is no way to cancel one once initiated.
type FormSubmission struct {
	Submitter Submitter
}

// Navigate builds and submits the synthetic form.
func (f *FormSubmission) Navigate(opts nav.Options) (*nav.Pending, error) {
	form, err := BuildForm(opts.URL, opts.Method, opts.Data)
	if err != nil {
		return nil, err
	}
	return nil, f.Submitter.Submit(form)
}

// HandleActivation never intercepts: native navigation proceeds.
func (f *FormSubmission) HandleActivation(*intercept.Activation) bool {
	return false
}

// Choose resolves the strategy once from the probed capabilities.
func Choose(caps Capabilities, hb *HistoryBased, fs *FormSubmission) Strategy {
	if caps.Supported() {
		return hb
	}
	return fs
}

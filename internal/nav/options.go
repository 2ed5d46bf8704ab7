package nav

import (
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/webfold/partialnav/internal/container"
)

// HistoryMode says how a navigation mutates the history stack. The modes
// are mutually exclusive by construction; the zero value means no explicit
// intent, which the engine treats as ModePush, and which Merge treats as
// "not set" so callers can override a replace-mode base back to push.
type HistoryMode int

const (
	// ModeDefault is the zero value: no explicit intent was given. The
	// engine defaults it to ModePush.
	ModeDefault HistoryMode = iota

	// ModePush appends a new history entry.
	ModePush

	// ModeReplace overwrites the current history entry.
	ModeReplace

	// ModeNone writes nothing; used when replaying a stored record.
	ModeNone
)

func (m HistoryMode) String() string {
	switch m {
	case ModeReplace:
		return "replace"
	case ModeNone:
		return "none"
	default:
		return "push"
	}
}

// NoTimeout disables the request timer when set as Options.Timeout.
const NoTimeout = time.Duration(-1)

// Options are the parameters of one attempted navigation.
type Options struct {
	// URL is the navigation target, absolute or relative to the current
	// document location.
	URL string

	// Method is the HTTP method; empty means the configured default (GET).
	Method string

	// Data is merged into the query (GET) or request body (otherwise).
	Data url.Values

	// Container is a loose reference to the region being replaced.
	Container container.Ref

	// Fragment selects the sub-region of the response to extract. Empty
	// means the whole body is spliced verbatim.
	Fragment string

	// Mode is the history intent.
	Mode HistoryMode

	// Timeout bounds the request; zero means the configured default,
	// NoTimeout disables the timer.
	Timeout time.Duration

	// Header carries pass-through request headers.
	Header http.Header

	// Source is the activated element that triggered this navigation, when
	// one exists, retained for listeners.
	Source *goquery.Selection
}

// Merge overlays o's set fields over base and returns the result. Caller
// options win.
func Merge(base, o Options) Options {
	out := base
	if o.URL != "" {
		out.URL = o.URL
	}
	if o.Method != "" {
		out.Method = o.Method
	}
	if o.Data != nil {
		out.Data = o.Data
	}
	if o.Container.Selector != "" || o.Container.Selection != nil {
		out.Container = o.Container
	}
	if o.Fragment != "" {
		out.Fragment = o.Fragment
	}
	if o.Mode != ModeDefault {
		out.Mode = o.Mode
	}
	if o.Timeout != 0 {
		out.Timeout = o.Timeout
	}
	if o.Header != nil {
		out.Header = o.Header
	}
	if o.Source != nil {
		out.Source = o.Source
	}
	return out
}

// Package container resolves loose references to a DOM region into a stable
// selector that survives serialization into a history entry.
package container

import (
	"errors"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

var (
	// ErrNoContainer indicates the reference matched no element in the
	// document.
	ErrNoContainer = errors.New("container: no matching element")

	// ErrNoStableSelector indicates the matched element cannot be expressed
	// as a document-scoped selector and so cannot be stored in a history
	// entry.
	ErrNoStableSelector = errors.New("container: no stable selector for element")
)

// Ref is a loose reference to a container: a selector string, a live
// selection, or both.
type Ref struct {
	Selector  string
	Selection *goquery.Selection
}

// Stable pairs a document-scoped selector string with a live selection bound
// against the current document. Only the selector is serialized; the
// selection is rebound on every resolve.
type Stable struct {
	Selector  string
	Selection *goquery.Selection
}

// Resolve turns ref into a Stable selection against doc.
//
// A ref that already carries a non-empty selector is taken as
// document-scoped and returned as-is, bound fresh. Otherwise the matched
// element must carry an id attribute from which a selector is synthesized.
// Anything else fails with ErrNoStableSelector: a live selection alone does
// not survive a history round trip.
func Resolve(doc *goquery.Document, ref Ref) (Stable, error) {
	if ref.Selector != "" {
		if _, err := cascadia.Parse(ref.Selector); err != nil {
			return Stable{}, fmt.Errorf("container: invalid selector %q: %w", ref.Selector, err)
		}
		sel := doc.Find(ref.Selector)
		if sel.Length() == 0 {
			return Stable{}, fmt.Errorf("%w: %q", ErrNoContainer, ref.Selector)
		}
		return Stable{Selector: ref.Selector, Selection: sel}, nil
	}

	if ref.Selection == nil || ref.Selection.Length() == 0 {
		return Stable{}, ErrNoContainer
	}

	id, ok := ref.Selection.First().Attr("id")
	if !ok || id == "" {
		return Stable{}, ErrNoStableSelector
	}

	selector := "#" + id
	sel := doc.Find(selector)
	if sel.Length() == 0 {
		return Stable{}, fmt.Errorf("%w: %q", ErrNoContainer, selector)
	}
	return Stable{Selector: selector, Selection: sel}, nil
}

package intercept

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webfold/partialnav/internal/container"
	"github.com/webfold/partialnav/internal/dom"
	"github.com/webfold/partialnav/internal/nav"
)

const page = `<html><body>
	<div id="main"></div>
	<a id="plain" href="/posts">posts</a>
	<a id="scoped" href="/posts" data-pjax="#sidebar">posts</a>
	<a id="external" href="https://other.example/posts">away</a>
	<a id="anchor" href="#comments">jump</a>
</body></html>`

type fakeNavigator struct {
	calls []nav.Options
	err   error
}

func (f *fakeNavigator) Navigate(opts nav.Options) (*nav.Pending, error) {
	f.calls = append(f.calls, opts)
	if f.err != nil {
		return nil, f.err
	}
	return nil, nil
}

func setup(t *testing.T) (*dom.Document, *fakeNavigator, *Binding) {
	t.Helper()
	doc, err := dom.Parse("http://example.com/current", page)
	require.NoError(t, err)
	n := &fakeNavigator{}
	b := Bind(doc, n, container.Ref{Selector: "#main"}, nav.Options{}, nil)
	return doc, n, b
}

func activate(doc *dom.Document, id string) *Activation {
	return &Activation{Link: LinkFrom(doc.Query().Find("#" + id))}
}

func TestInterceptsPlainLink(t *testing.T) {
	doc, n, b := setup(t)

	assert.True(t, b.Handle(activate(doc, "plain")))
	require.Len(t, n.calls, 1)
	assert.Equal(t, "/posts", n.calls[0].URL)
	assert.Equal(t, "#main", n.calls[0].Container.Selector)
	assert.NotNil(t, n.calls[0].Source)
}

func TestLinkDeclaredContainerWins(t *testing.T) {
	doc, n, b := setup(t)

	assert.True(t, b.Handle(activate(doc, "scoped")))
	require.Len(t, n.calls, 1)
	assert.Equal(t, "#sidebar", n.calls[0].Container.Selector)
}

func TestCallerOptionsWin(t *testing.T) {
	doc, err := dom.Parse("http://example.com/current", page)
	require.NoError(t, err)
	n := &fakeNavigator{}
	b := Bind(doc, n, container.Ref{Selector: "#main"}, nav.Options{Fragment: ".post", Mode: nav.ModeReplace}, nil)

	assert.True(t, b.Handle(activate(doc, "scoped")))
	require.Len(t, n.calls, 1)
	assert.Equal(t, ".post", n.calls[0].Fragment)
	assert.Equal(t, nav.ModeReplace, n.calls[0].Mode)
	// Link-derived defaults still apply underneath caller options.
	assert.Equal(t, "#sidebar", n.calls[0].Container.Selector)
}

func TestSkipsModifiedActivations(t *testing.T) {
	doc, n, b := setup(t)

	link := activate(doc, "plain").Link
	for _, ev := range []*Activation{
		{Button: 1, Link: link},
		{CtrlKey: true, Link: link},
		{MetaKey: true, Link: link},
		{ShiftKey: true, Link: link},
		{AltKey: true, Link: link},
	} {
		assert.False(t, b.Handle(ev))
	}
	assert.Empty(t, n.calls)
}

func TestSkipsCrossOrigin(t *testing.T) {
	doc, n, b := setup(t)

	assert.False(t, b.Handle(activate(doc, "external")))
	assert.Empty(t, n.calls)
}

func TestSkipsHashOnlyChange(t *testing.T) {
	doc, n, b := setup(t)

	assert.False(t, b.Handle(activate(doc, "anchor")))
	assert.Empty(t, n.calls)
}

func TestNavigateErrorYieldsToBrowser(t *testing.T) {
	doc, err := dom.Parse("http://example.com/current", page)
	require.NoError(t, err)
	n := &fakeNavigator{err: errors.New("no container")}
	b := Bind(doc, n, container.Ref{Selector: "#main"}, nav.Options{}, nil)

	assert.False(t, b.Handle(activate(doc, "plain")))
	assert.Len(t, n.calls, 1)
}

package nav

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webfold/partialnav/internal/container"
	"github.com/webfold/partialnav/internal/dom"
	"github.com/webfold/partialnav/internal/events"
	"github.com/webfold/partialnav/internal/history"
	"github.com/webfold/partialnav/internal/transport"
)

const basePage = `<html>
<head><title>Home</title></head>
<body>
	<div id="main"><p>home</p></div>
	<div class="anonymous"></div>
</body>
</html>`

// testHost implements Renderer and FullLoader over a live document,
// recording full page loads instead of performing them.
type testHost struct {
	mu        sync.Mutex
	doc       *dom.Document
	fullLoads []string
}

func newTestHost(t *testing.T, url string) *testHost {
	t.Helper()
	doc, err := dom.Parse(url, basePage)
	require.NoError(t, err)
	return &testHost{doc: doc}
}

func (h *testHost) Document() *dom.Document { return h.doc }

func (h *testHost) ReplaceContents(selector, html string) error {
	return h.doc.ReplaceContents(selector, html)
}

func (h *testHost) SetTitle(title string) { h.doc.SetTitle(title) }
func (h *testHost) ScrollTo(frag string)  { h.doc.ScrollTo(frag) }

func (h *testHost) FullLoad(url string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fullLoads = append(h.fullLoads, url)
}

func (h *testHost) loads() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.fullLoads...)
}

type fixture struct {
	engine *Engine
	host   *testHost
	stack  *history.Stack
	srv    *httptest.Server
}

func newFixture(t *testing.T, handler http.Handler) *fixture {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	host := newTestHost(t, srv.URL+"/")
	stack := history.New(srv.URL + "/")
	engine, err := NewEngine(Params{
		Renderer: host,
		Loader:   host,
		History:  stack,
		Client:   transport.NewClient(),
	})
	require.NoError(t, err)
	return &fixture{engine: engine, host: host, stack: stack, srv: srv}
}

func wait(t *testing.T, p *Pending) Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := p.Wait(ctx)
	require.NoError(t, err)
	return res
}

func navigate(t *testing.T, f *fixture, opts Options) Result {
	t.Helper()
	p, err := f.engine.Navigate(opts)
	require.NoError(t, err)
	return wait(t, p)
}

func partialHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	})
}

func TestNavigateAppliesPartial(t *testing.T) {
	f := newFixture(t, partialHandler("<title>Posts</title><p>posts</p>"))

	res := navigate(t, f, Options{URL: "/posts", Container: container.Ref{Selector: "#main"}})
	assert.Equal(t, OutcomeApplied, res.Outcome)

	got, err := f.host.doc.Contents("#main")
	require.NoError(t, err)
	assert.Contains(t, got, "<p>posts</p>")
	assert.NotContains(t, got, "<title")
	assert.Equal(t, "Posts", f.host.doc.Title())
	assert.Equal(t, f.srv.URL+"/posts", f.stack.Location())
	assert.Equal(t, "/posts", f.host.doc.Location().Path)
	assert.Empty(t, f.host.loads())
}

func TestFirstPushPrimesHistory(t *testing.T) {
	f := newFixture(t, partialHandler("<p>next</p>"))

	navigate(t, f, Options{URL: "/a", Container: container.Ref{Selector: "#main"}})
	pushes, replaces := f.stack.Writes()
	assert.Equal(t, 1, pushes, "first push writes exactly one push")
	assert.Equal(t, 1, replaces, "first push is primed by exactly one replace")

	navigate(t, f, Options{URL: "/b", Container: container.Ref{Selector: "#main"}})
	pushes, replaces = f.stack.Writes()
	assert.Equal(t, 2, pushes, "later pushes write exactly one entry")
	assert.Equal(t, 1, replaces, "priming happens only once")

	// The primed entry carries the record with its URL cleared.
	require.True(t, f.stack.Back())
	require.True(t, f.stack.Back())
	rec, ok := f.stack.State()
	require.True(t, ok)
	assert.Equal(t, "", rec.URL)
	assert.Equal(t, "#main", rec.Container)
}

func TestReplaceModeNeverPrimes(t *testing.T) {
	f := newFixture(t, partialHandler("<p>next</p>"))

	assert.False(t, f.engine.Activated())
	navigate(t, f, Options{URL: "/a", Container: container.Ref{Selector: "#main"}, Mode: ModeReplace})
	pushes, replaces := f.stack.Writes()
	assert.Equal(t, 0, pushes)
	assert.Equal(t, 1, replaces)
	assert.True(t, f.engine.Activated(), "replace always sets the activated flag")

	// A push after a replace must not prime: the flag is already set.
	navigate(t, f, Options{URL: "/b", Container: container.Ref{Selector: "#main"}})
	pushes, replaces = f.stack.Writes()
	assert.Equal(t, 1, pushes)
	assert.Equal(t, 1, replaces)
}

func TestReplayWritesNothing(t *testing.T) {
	f := newFixture(t, partialHandler("<p>replayed</p>"))

	rec := &history.Record{URL: "/a", Container: "#main", Timeout: 650 * time.Millisecond}
	p, err := f.engine.Replay(rec, f.srv.URL+"/")
	require.NoError(t, err)
	res := wait(t, p)
	assert.Equal(t, OutcomeApplied, res.Outcome)

	pushes, replaces := f.stack.Writes()
	assert.Equal(t, 0, pushes)
	assert.Equal(t, 0, replaces)
	assert.False(t, f.engine.Activated(), "replay leaves the activated flag unchanged")

	got, err := f.host.doc.Contents("#main")
	require.NoError(t, err)
	assert.Contains(t, got, "replayed")
}

func TestSingleFlight(t *testing.T) {
	release := make(chan struct{})
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow" {
			<-release
			w.Write([]byte("<p>slow</p>"))
			return
		}
		w.Write([]byte("<p>fast</p>"))
	}))
	defer close(release)

	slow, err := f.engine.Navigate(Options{
		URL:       "/slow",
		Container: container.Ref{Selector: "#main"},
		Timeout:   NoTimeout,
	})
	require.NoError(t, err)

	fast, err := f.engine.Navigate(Options{URL: "/fast", Container: container.Ref{Selector: "#main"}})
	require.NoError(t, err)

	assert.Equal(t, OutcomeApplied, wait(t, fast).Outcome)
	assert.Equal(t, OutcomeSuperseded, wait(t, slow).Outcome)

	got, err := f.host.doc.Contents("#main")
	require.NoError(t, err)
	assert.Contains(t, got, "fast")

	// The superseded navigation must not have written history.
	pushes, _ := f.stack.Writes()
	assert.Equal(t, 1, pushes)
	assert.Empty(t, f.host.loads())
}

func TestSupersededStillCompletes(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow" {
			select {
			case <-release:
			case <-r.Context().Done():
			}
			return
		}
		w.Write([]byte("<p>fast</p>"))
	}))

	var mu sync.Mutex
	byType := map[events.Type][]string{}
	for _, typ := range []events.Type{events.Success, events.Error, events.Complete, events.End} {
		typ := typ
		f.engine.Bus().On(typ, func(ev *events.Event) events.Decision {
			mu.Lock()
			byType[typ] = append(byType[typ], ev.URL)
			mu.Unlock()
			return events.Proceed
		})
	}

	slow, err := f.engine.Navigate(Options{
		URL:       "/slow",
		Container: container.Ref{Selector: "#main"},
		Timeout:   NoTimeout,
	})
	require.NoError(t, err)
	fast, err := f.engine.Navigate(Options{URL: "/fast", Container: container.Ref{Selector: "#main"}})
	require.NoError(t, err)

	assert.Equal(t, OutcomeApplied, wait(t, fast).Outcome)
	assert.Equal(t, OutcomeSuperseded, wait(t, slow).Outcome)

	// Supersession neutralizes history and DOM writes, not the lifecycle:
	// every issued navigation finishes with Complete and End.
	slowURL := f.srv.URL + "/slow"
	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, byType[events.Complete], slowURL)
	assert.Contains(t, byType[events.End], slowURL)
	assert.NotContains(t, byType[events.Success], slowURL)
	assert.NotContains(t, byType[events.Error], slowURL)
}

// gatedHost blocks the first container swap until the test opens the gate,
// reporting when the swap has started.
type gatedHost struct {
	*testHost
	gate    chan struct{}
	swapped chan struct{}
	once    sync.Once
}

func (h *gatedHost) ReplaceContents(selector, html string) error {
	h.once.Do(func() {
		close(h.swapped)
		<-h.gate
	})
	return h.testHost.ReplaceContents(selector, html)
}

func TestApplicationAtomicUnderSupersede(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<p>page " + r.URL.Path + "</p>"))
	}))
	t.Cleanup(srv.Close)

	host := &gatedHost{
		testHost: newTestHost(t, srv.URL+"/"),
		gate:     make(chan struct{}),
		swapped:  make(chan struct{}),
	}
	stack := history.New(srv.URL + "/")
	engine, err := NewEngine(Params{
		Renderer: host,
		Loader:   host.testHost,
		History:  stack,
		Client:   transport.NewClient(),
	})
	require.NoError(t, err)

	first, err := engine.Navigate(Options{
		URL:       "/a",
		Container: container.Ref{Selector: "#main"},
		Timeout:   NoTimeout,
	})
	require.NoError(t, err)
	<-host.swapped

	// A successor issued mid-application cannot interleave: it waits for
	// the first navigation's DOM and history writes to finish, so its own
	// writes always land last.
	type settled struct {
		res Result
		err error
	}
	secondCh := make(chan settled, 1)
	go func() {
		p, err := engine.Navigate(Options{URL: "/b", Container: container.Ref{Selector: "#main"}})
		if err != nil {
			secondCh <- settled{err: err}
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		res, err := p.Wait(ctx)
		secondCh <- settled{res: res, err: err}
	}()

	time.Sleep(50 * time.Millisecond)
	close(host.gate)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := first.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)

	second := <-secondCh
	require.NoError(t, second.err)
	assert.Equal(t, OutcomeApplied, second.res.Outcome)

	got, err := host.doc.Contents("#main")
	require.NoError(t, err)
	assert.Contains(t, got, "page /b", "the newest navigation's content must end up displayed")
	assert.Equal(t, srv.URL+"/b", stack.Location())
	assert.Equal(t, "/b", host.doc.Location().Path)
	pushes, replaces := stack.Writes()
	assert.Equal(t, 2, pushes)
	assert.Equal(t, 1, replaces)
}

func TestFullDocumentSafetyValve(t *testing.T) {
	f := newFixture(t, partialHandler("<html><body><p>whole page</p></body></html>"))

	res := navigate(t, f, Options{URL: "/full", Container: container.Ref{Selector: "#main"}})
	assert.Equal(t, OutcomeFullLoad, res.Outcome)

	got, err := f.host.doc.Contents("#main")
	require.NoError(t, err)
	assert.Contains(t, got, "home", "container must never be mutated by a full-document response")

	assert.Equal(t, []string{f.srv.URL + "/full"}, f.host.loads())
	pushes, replaces := f.stack.Writes()
	assert.Zero(t, pushes)
	assert.Zero(t, replaces)
}

func TestBlankBodyFallsBack(t *testing.T) {
	f := newFixture(t, partialHandler("   \n\t"))

	res := navigate(t, f, Options{URL: "/blank", Container: container.Ref{Selector: "#main"}})
	assert.Equal(t, OutcomeFullLoad, res.Outcome)
	assert.Len(t, f.host.loads(), 1)
}

func TestFragmentExtraction(t *testing.T) {
	body := `<!DOCTYPE html><html><head><title>Post Page</title></head>
<body><div id="wrap"><article class="post"><p>the post</p></article></div></body></html>`
	f := newFixture(t, partialHandler(body))

	res := navigate(t, f, Options{
		URL:       "/post/1",
		Container: container.Ref{Selector: "#main"},
		Fragment:  ".post",
	})
	assert.Equal(t, OutcomeApplied, res.Outcome)

	got, err := f.host.doc.Contents("#main")
	require.NoError(t, err)
	assert.Contains(t, got, "the post")
	assert.Equal(t, "Post Page", f.host.doc.Title())

	rec, ok := f.stack.State()
	require.True(t, ok)
	assert.Equal(t, ".post", rec.Fragment)
}

func TestFragmentMissingFallsBack(t *testing.T) {
	// A full document that lacks the fragment is unparseable for this
	// request even though the fragment path skips the full-document check.
	f := newFixture(t, partialHandler("<html><body><p>nothing here</p></body></html>"))

	res := navigate(t, f, Options{
		URL:       "/post/1",
		Container: container.Ref{Selector: "#main"},
		Fragment:  ".post",
	})
	assert.Equal(t, OutcomeFullLoad, res.Outcome)
	assert.Len(t, f.host.loads(), 1)
}

func TestFragmentInsideFullDocumentExtracts(t *testing.T) {
	// The fragment path only checks for the match, not full-document-ness.
	f := newFixture(t, partialHandler(`<html><body><div class="post">found</div></body></html>`))

	res := navigate(t, f, Options{
		URL:       "/post/2",
		Container: container.Ref{Selector: "#main"},
		Fragment:  ".post",
	})
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Empty(t, f.host.loads())
}

func TestCanonicalURLAdoption(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(transport.HeaderCanonicalURL, "/canonical?_pjax=true&x=1")
		w.Write([]byte("<p>redirected</p>"))
	}))

	res := navigate(t, f, Options{URL: "/original", Container: container.Ref{Selector: "#main"}})
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, f.srv.URL+"/canonical?x=1", res.URL)
	assert.Equal(t, f.srv.URL+"/canonical?x=1", f.stack.Location())
}

func TestRelativeCanonicalURLKeepsOrigin(t *testing.T) {
	// Servers routinely echo the request URI, origin omitted. Adopting it
	// verbatim would strip the document's scheme and host and strand every
	// later navigation.
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(transport.HeaderCanonicalURL, r.URL.RequestURI())
		w.Write([]byte("<p>page " + r.URL.Path + "</p>"))
	}))

	res := navigate(t, f, Options{URL: "/a", Container: container.Ref{Selector: "#main"}})
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, f.srv.URL+"/a", res.URL)
	loc := f.host.doc.Location()
	assert.NotEmpty(t, loc.Scheme)
	assert.NotEmpty(t, loc.Host)

	// The next navigation resolves against the adopted URL and must still
	// reach the server.
	res = navigate(t, f, Options{URL: "/b", Container: container.Ref{Selector: "#main"}})
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, f.srv.URL+"/b", res.URL)
	assert.Equal(t, f.srv.URL+"/b", f.stack.Location())
	assert.Empty(t, f.host.loads())
}

func TestTransportErrorFallsBack(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	res := navigate(t, f, Options{URL: "/broken", Container: container.Ref{Selector: "#main"}})
	assert.Equal(t, OutcomeFullLoad, res.Outcome)
	assert.Len(t, f.host.loads(), 1)
}

func TestErrorVetoSuppressesFallback(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	f.engine.Bus().On(events.Error, func(*events.Event) events.Decision { return events.Veto })

	res := navigate(t, f, Options{URL: "/broken", Container: container.Ref{Selector: "#main"}})
	assert.Equal(t, OutcomeErrored, res.Outcome)
	assert.Error(t, res.Err)
	assert.Empty(t, f.host.loads())
}

func TestErrorAdoptsCanonicalURL(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(transport.HeaderCanonicalURL, "/moved?_pjax=true")
		w.WriteHeader(http.StatusNotFound)
	}))

	res := navigate(t, f, Options{URL: "/gone", Container: container.Ref{Selector: "#main"}})
	assert.Equal(t, OutcomeFullLoad, res.Outcome)
	assert.Equal(t, []string{f.srv.URL + "/moved"}, f.host.loads())
}

func TestTimeoutAbortsAndFallsBack(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))

	var timedOut bool
	f.engine.Bus().On(events.Timeout, func(*events.Event) events.Decision {
		timedOut = true
		return events.Proceed
	})

	res := navigate(t, f, Options{
		URL:       "/slow",
		Container: container.Ref{Selector: "#main"},
		Timeout:   30 * time.Millisecond,
	})
	assert.Equal(t, OutcomeFullLoad, res.Outcome)
	assert.True(t, timedOut)
	assert.Len(t, f.host.loads(), 1)
}

func TestTimeoutVetoKeepsRequestAlive(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(150 * time.Millisecond)
		w.Write([]byte("<p>late but fine</p>"))
	}))

	f.engine.Bus().On(events.Timeout, func(*events.Event) events.Decision { return events.Veto })

	res := navigate(t, f, Options{
		URL:       "/slow",
		Container: container.Ref{Selector: "#main"},
		Timeout:   20 * time.Millisecond,
	})
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Empty(t, f.host.loads())
}

func TestBeforeSendVeto(t *testing.T) {
	f := newFixture(t, partialHandler("<p>never</p>"))
	f.engine.Bus().On(events.BeforeSend, func(*events.Event) events.Decision { return events.Veto })

	_, err := f.engine.Navigate(Options{URL: "/x", Container: container.Ref{Selector: "#main"}})
	assert.ErrorIs(t, err, ErrVetoed)
}

func TestUnresolvableContainerFailsLoudly(t *testing.T) {
	f := newFixture(t, partialHandler("<p>never</p>"))

	_, err := f.engine.Navigate(Options{URL: "/x", Container: container.Ref{Selector: "#missing"}})
	assert.ErrorIs(t, err, container.ErrNoContainer)

	sel := f.host.doc.Query().Find(".anonymous")
	_, err = f.engine.Navigate(Options{URL: "/x", Container: container.Ref{Selection: sel}})
	assert.ErrorIs(t, err, container.ErrNoStableSelector)
}

func TestHashScrollIntent(t *testing.T) {
	f := newFixture(t, partialHandler("<p>section</p>"))

	res := navigate(t, f, Options{URL: "/page#comments", Container: container.Ref{Selector: "#main"}})
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, "comments", f.host.doc.ScrollTarget())
}

func TestLifecycleEventOrder(t *testing.T) {
	f := newFixture(t, partialHandler("<p>ok</p>"))

	var seen []events.Type
	var mu sync.Mutex
	record := func(t events.Type) events.Listener {
		return func(*events.Event) events.Decision {
			mu.Lock()
			seen = append(seen, t)
			mu.Unlock()
			return events.Proceed
		}
	}
	for _, typ := range []events.Type{events.BeforeSend, events.Send, events.Success, events.Complete, events.End} {
		f.engine.Bus().On(typ, record(typ))
	}

	navigate(t, f, Options{URL: "/ok", Container: container.Ref{Selector: "#main"}})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []events.Type{events.BeforeSend, events.Send, events.Success, events.Complete, events.End}, seen)
}

func TestEventsCarryOptionsSnapshot(t *testing.T) {
	f := newFixture(t, partialHandler("<p>ok</p>"))

	var mu sync.Mutex
	var snaps []events.Snapshot
	for _, typ := range []events.Type{events.BeforeSend, events.Success, events.End} {
		f.engine.Bus().On(typ, func(ev *events.Event) events.Decision {
			mu.Lock()
			snaps = append(snaps, ev.Options)
			mu.Unlock()
			return events.Proceed
		})
	}

	navigate(t, f, Options{
		URL:       "/ok",
		Container: container.Ref{Selector: "#main"},
		Timeout:   1200 * time.Millisecond,
	})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, snaps, 3)
	for _, snap := range snaps {
		assert.Equal(t, f.srv.URL+"/ok", snap.URL)
		assert.Equal(t, http.MethodGet, snap.Method)
		assert.Equal(t, "push", snap.Mode)
		assert.Equal(t, 1200*time.Millisecond, snap.Timeout)
	}
}

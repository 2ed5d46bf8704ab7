// Package nav implements the navigation controller and its paired history
// synchronizer.
//
// The controller owns the single in-flight request: it issues the fetch,
// races it against a timeout timer, applies the response to the target
// container, writes history-state records, and emits lifecycle events. Any
// response it cannot interpret as partial content degrades to a full page
// load; the displayed document and the history stack are never left
// inconsistent.
package nav

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/webfold/partialnav/internal/container"
	"github.com/webfold/partialnav/internal/dom"
	"github.com/webfold/partialnav/internal/events"
	"github.com/webfold/partialnav/internal/fragment"
	"github.com/webfold/partialnav/internal/history"
	"github.com/webfold/partialnav/internal/infrastructure/config"
	"github.com/webfold/partialnav/internal/infrastructure/logging"
	"github.com/webfold/partialnav/internal/infrastructure/monitoring"
	"github.com/webfold/partialnav/internal/transport"
	"github.com/webfold/partialnav/internal/urlx"
)

// ErrVetoed is returned when a BeforeSend listener cancels the navigation
// before the request is issued.
var ErrVetoed = errors.New("nav: navigation vetoed before send")

// Renderer applies rendered content to the live document. The engine never
// touches the DOM except through this interface.
type Renderer interface {
	Document() *dom.Document
	ReplaceContents(selector, html string) error
	SetTitle(title string)
	ScrollTo(fragment string)
}

// FullLoader performs a conventional full page navigation, the engine's
// only recovery strategy for responses it cannot apply.
type FullLoader interface {
	FullLoad(url string)
}

// Params collects the engine's collaborators.
type Params struct {
	Renderer Renderer
	Loader   FullLoader
	History  *history.Stack
	Client   *transport.Client
	Bus      *events.Bus
	Logger   *logging.Logger
	Metrics  *monitoring.Metrics
	Defaults config.NavConfig
}

// Engine is the navigation controller.
type Engine struct {
	renderer Renderer
	loader   FullLoader
	hist     *history.Stack
	client   *transport.Client
	bus      *events.Bus
	log      *logging.Logger
	metrics  *monitoring.Metrics
	defaults config.NavConfig

	mu sync.Mutex
	// current is the in-flight navigation slot. It is replaced, never
	// nulled; a stale settled flight is inert.
	current *flight
	// activated records whether this page has performed at least one
	// history-writing navigation. Gates the priming replace before the
	// first push. Never reset.
	activated bool
}

type flight struct {
	id      string
	opts    Options
	snap    events.Snapshot
	navURL  string
	hash    string
	stable  container.Stable
	handle  *transport.Handle
	timer   *time.Timer
	pending *Pending

	// doomed marks a flight displaced by a successor. Guarded by the
	// engine mutex; a doomed flight must not write history or touch the
	// DOM, even if its transport already settled.
	doomed bool
}

// adoptCanonical installs the server-named canonical URL. Servers
// routinely send it relative, so it is resolved against the request URL
// before adoption.
func (f *flight) adoptCanonical(canonical string) {
	if base, err := url.Parse(f.navURL); err == nil {
		canonical = urlx.Resolve(base, canonical)
	}
	f.navURL = canonical
}

func (f *flight) stopTimer() {
	if f.timer != nil {
		f.timer.Stop()
	}
}

// NewEngine builds an Engine. Renderer, Loader, History, and Client are
// required; Bus, Logger, and Metrics default to inert instances.
func NewEngine(p Params) (*Engine, error) {
	if p.Renderer == nil || p.Loader == nil || p.History == nil || p.Client == nil {
		return nil, errors.New("nav: renderer, loader, history, and client are required")
	}
	if p.Bus == nil {
		p.Bus = events.NewBus()
	}
	if p.Metrics == nil {
		p.Metrics = monitoring.New(nil)
	}
	if p.Defaults.Timeout == 0 {
		p.Defaults = config.Default().Nav
	}
	return &Engine{
		renderer: p.Renderer,
		loader:   p.Loader,
		hist:     p.History,
		client:   p.Client,
		bus:      p.Bus,
		log:      logging.OrNop(p.Logger),
		metrics:  p.Metrics,
		defaults: p.Defaults,
	}, nil
}

// Bus returns the engine's event bus for listener registration.
func (e *Engine) Bus() *events.Bus { return e.bus }

// Document returns the live document.
func (e *Engine) Document() *dom.Document { return e.renderer.Document() }

// Activated reports whether this page has performed at least one
// history-writing navigation.
func (e *Engine) Activated() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activated
}

// Navigate issues a partial navigation. Container resolution failures are
// returned synchronously; everything after the request is issued is
// reported through events and the returned Pending.
func (e *Engine) Navigate(opts Options) (*Pending, error) {
	merged := e.applyDefaults(opts)

	doc := e.renderer.Document()
	requestURL := urlx.Resolve(doc.Location(), merged.URL)
	base, hash := urlx.Split(requestURL)
	navURL := urlx.Strip(base)

	stable, err := container.Resolve(doc.Query(), merged.Container)
	if err != nil {
		return nil, err
	}

	// Single-flight: starting a new navigation cancels any prior one
	// before its request is issued.
	e.supersede(nil)

	id := uuid.NewString()
	snap := events.Snapshot{
		URL:      navURL,
		Method:   merged.Method,
		Data:     merged.Data,
		Fragment: merged.Fragment,
		Mode:     merged.Mode.String(),
		Timeout:  merged.Timeout,
	}
	ev := &events.Event{
		NavigationID: id,
		URL:          navURL,
		Container:    stable.Selector,
		Timeout:      merged.Timeout,
		Options:      snap,
	}

	ev.Type = events.BeforeSend
	if e.bus.Emit(ev) == events.Veto {
		e.log.Debug("navigation vetoed before send", zap.String("url", navURL))
		return nil, ErrVetoed
	}
	ev.Type = events.Send
	e.bus.Emit(ev)

	fl := &flight{
		id:      id,
		opts:    merged,
		snap:    snap,
		navURL:  navURL,
		hash:    hash,
		stable:  stable,
		pending: newPending(id),
	}
	fl.handle = e.client.Do(&transport.Request{
		URL:       base,
		Method:    merged.Method,
		Data:      merged.Data,
		Container: stable.Selector,
		Header:    merged.Header,
	})
	if merged.Timeout > 0 {
		fl.timer = time.AfterFunc(merged.Timeout, func() { e.onTimeout(fl) })
	}

	e.supersede(fl)

	e.log.Debug("navigation issued",
		zap.String("id", id),
		zap.String("url", navURL),
		zap.String("container", stable.Selector))

	go func() {
		res := <-fl.handle.Done()
		e.complete(fl, res)
	}()

	return fl.pending, nil
}

// Replay re-runs a stored history record without mutating history.
func (e *Engine) Replay(rec *history.Record, location string) (*Pending, error) {
	url := rec.URL
	if url == "" {
		url = location
	}
	timeout := rec.Timeout
	if timeout == 0 {
		timeout = NoTimeout
	}
	return e.Navigate(Options{
		URL:       url,
		Container: container.Ref{Selector: rec.Container},
		Fragment:  rec.Fragment,
		Mode:      ModeNone,
		Timeout:   timeout,
	})
}

// FullLoad degrades to a conventional navigation.
func (e *Engine) FullLoad(url string) {
	e.metrics.FullLoads.Inc()
	e.log.Info("falling back to full page load", zap.String("url", url))
	e.loader.FullLoad(url)
}

func (e *Engine) applyDefaults(opts Options) Options {
	if opts.Method == "" {
		opts.Method = e.defaults.Method
	}
	if opts.Method == "" {
		opts.Method = http.MethodGet
	}
	if opts.Mode == ModeDefault {
		opts.Mode = ModePush
	}
	switch {
	case opts.Timeout == 0:
		opts.Timeout = e.defaults.Timeout
	case opts.Timeout < 0:
		opts.Timeout = 0
	}
	return opts
}

// supersede installs fl (which may be nil) as the current flight, dooming
// and aborting any prior one. A doomed flight's callbacks are neutralized:
// its completion can no longer write history or touch the DOM, whether or
// not its transport had already settled.
func (e *Engine) supersede(fl *flight) {
	e.mu.Lock()
	prev := e.current
	if prev != nil && prev != fl {
		prev.doomed = true
	}
	if fl != nil {
		e.current = fl
	}
	e.mu.Unlock()
	if prev != nil && prev != fl {
		prev.stopTimer()
		prev.handle.Abort(transport.ReasonSuperseded)
	}
}

func (e *Engine) abandoned(fl *flight) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fl.doomed || e.current != fl
}

func (e *Engine) onTimeout(fl *flight) {
	if e.abandoned(fl) {
		return
	}
	ev := e.event(fl, events.Timeout)
	if e.bus.Emit(ev) == events.Veto {
		e.log.Debug("timeout vetoed, request kept alive", zap.String("url", fl.navURL))
		return
	}
	e.metrics.Timeouts.Inc()
	fl.handle.Abort(transport.ReasonTimeout)
}

// event builds the base payload for fl's lifecycle events.
func (e *Engine) event(fl *flight, t events.Type) *events.Event {
	return &events.Event{
		Type:         t,
		NavigationID: fl.id,
		URL:          fl.navURL,
		Container:    fl.stable.Selector,
		Timeout:      fl.opts.Timeout,
		Options:      fl.snap,
	}
}

func (e *Engine) complete(fl *flight, res transport.Result) {
	fl.stopTimer()

	reason, aborted := transport.Aborted(res.Err)
	if (aborted && reason == transport.ReasonSuperseded) || e.abandoned(fl) {
		// Neutralized: a superseded navigation must not write history or
		// touch the DOM. End-of-lifecycle notifications still fire.
		e.metrics.NavigationsTotal.WithLabelValues(monitoring.OutcomeSuperseded).Inc()
		e.emitCompletion(fl)
		fl.pending.settle(Result{Outcome: OutcomeSuperseded, URL: fl.navURL})
		return
	}

	var result Result
	if res.Err != nil || !res.Response.IsSuccess() {
		result = e.fail(fl, res)
	} else {
		result = e.succeed(fl, res.Response)
	}

	e.emitCompletion(fl)
	fl.pending.settle(result)
}

// emitCompletion fires the Complete and End notifications, which every
// finished navigation gets regardless of outcome.
func (e *Engine) emitCompletion(fl *flight) {
	ev := e.event(fl, events.Complete)
	e.bus.Emit(ev)
	end := *ev
	end.Type = events.End
	e.bus.Emit(&end)
}

// fallBack degrades to a full page load, unless the flight was superseded
// while completing.
func (e *Engine) fallBack(fl *flight, err error) Result {
	if e.abandoned(fl) {
		e.metrics.NavigationsTotal.WithLabelValues(monitoring.OutcomeSuperseded).Inc()
		return Result{Outcome: OutcomeSuperseded, URL: fl.navURL, Err: err}
	}
	e.metrics.NavigationsTotal.WithLabelValues(monitoring.OutcomeFallback).Inc()
	e.FullLoad(fl.navURL)
	return Result{Outcome: OutcomeFullLoad, URL: fl.navURL, Err: err}
}

// fail handles transport errors and non-success statuses: adopt the
// canonical URL when one came back, emit the error event, and unless a
// listener vetoed it, degrade to a full page load.
func (e *Engine) fail(fl *flight, res transport.Result) Result {
	status := 0
	if res.Response != nil {
		status = res.Response.Status
		if canonical := res.Response.CanonicalURL(); canonical != "" {
			fl.adoptCanonical(canonical)
		}
	}

	err := res.Err
	if err == nil {
		err = fmt.Errorf("nav: request failed with status %d", status)
	}

	ev := e.event(fl, events.Error)
	ev.Status = status
	ev.Err = err
	allowed := e.bus.Emit(ev)

	e.log.Warn("navigation failed",
		zap.String("url", fl.navURL),
		zap.Int("status", status),
		zap.Error(err))

	if allowed == events.Proceed {
		return e.fallBack(fl, err)
	}
	e.metrics.NavigationsTotal.WithLabelValues(monitoring.OutcomeError).Inc()
	return Result{Outcome: OutcomeErrored, URL: fl.navURL, Err: err}
}

func (e *Engine) succeed(fl *flight, resp *transport.Response) Result {
	if canonical := resp.CanonicalURL(); canonical != "" {
		fl.adoptCanonical(canonical)
	}

	content, ok := e.interpret(fl, resp.Body)
	if !ok {
		return e.fallBack(fl, nil)
	}

	// Application is atomic with respect to supersede: once a successor
	// claims the slot it dooms this flight, and a doomed flight writes
	// nothing.
	e.mu.Lock()
	if fl.doomed {
		e.mu.Unlock()
		e.metrics.NavigationsTotal.WithLabelValues(monitoring.OutcomeSuperseded).Inc()
		return Result{Outcome: OutcomeSuperseded, URL: fl.navURL}
	}
	if err := e.renderer.ReplaceContents(fl.stable.Selector, content.HTML); err != nil {
		e.mu.Unlock()
		e.log.Error("container vanished during navigation", zap.Error(err))
		return e.fallBack(fl, nil)
	}
	if content.Title != "" {
		e.renderer.SetTitle(content.Title)
	}
	if err := e.writeHistory(fl); err != nil {
		e.log.Error("history write failed", zap.Error(err))
	}
	if err := e.renderer.Document().SetLocation(fl.navURL); err != nil {
		e.log.Error("location update failed", zap.Error(err))
	}
	if fl.hash != "" {
		e.renderer.ScrollTo(fl.hash)
	}
	e.mu.Unlock()

	e.metrics.NavigationsTotal.WithLabelValues(monitoring.OutcomeApplied).Inc()
	ev := e.event(fl, events.Success)
	ev.Status = resp.Status
	ev.Header = resp.Header
	ev.Body = resp.Body
	e.bus.Emit(ev)
	return Result{Outcome: OutcomeApplied, URL: fl.navURL}
}

// interpret turns the response body into splice-able content, or reports
// that the navigation must bail out to a full page load.
func (e *Engine) interpret(fl *flight, body string) (*fragment.Extracted, bool) {
	if fl.opts.Fragment != "" {
		content, err := fragment.Extract(body, fl.opts.Fragment)
		if err != nil {
			e.log.Warn("fragment not found in response",
				zap.String("fragment", fl.opts.Fragment),
				zap.String("url", fl.navURL))
			return nil, false
		}
		return content, true
	}

	// A bare container swap must never be attempted with a full page's
	// markup, and an empty body has nothing to swap.
	if fragment.IsBlank(body) || fragment.IsFullDocument(body) {
		return nil, false
	}
	content, err := fragment.Inline(body)
	if err != nil {
		return nil, false
	}
	return content, true
}

// writeHistory records the navigation per its history mode. Caller holds
// e.mu.
func (e *Engine) writeHistory(fl *flight) error {
	rec := &history.Record{
		URL:       fl.navURL,
		Container: fl.stable.Selector,
		Fragment:  fl.opts.Fragment,
		Timeout:   fl.opts.Timeout,
	}

	switch fl.opts.Mode {
	case ModeReplace:
		e.activated = true
		e.metrics.HistoryWrites.WithLabelValues("replace").Inc()
		return e.hist.Replace(fl.navURL, rec)
	case ModePush:
		if !e.activated {
			// Priming replace: give the initial page its own record, URL
			// cleared, so the first back navigation restores it instead of
			// reloading.
			primed := *rec
			primed.URL = ""
			if err := e.hist.Replace(e.hist.Location(), &primed); err != nil {
				return err
			}
			e.metrics.HistoryWrites.WithLabelValues("replace").Inc()
		}
		e.activated = true
		e.metrics.HistoryWrites.WithLabelValues("push").Inc()
		return e.hist.Push(fl.navURL, rec)
	default:
		// Replay: history entries are immutable once pushed.
		return nil
	}
}

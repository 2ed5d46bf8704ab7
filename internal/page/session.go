package page

import (
	"github.com/webfold/partialnav/internal/container"
	"github.com/webfold/partialnav/internal/events"
	"github.com/webfold/partialnav/internal/fallback"
	"github.com/webfold/partialnav/internal/history"
	"github.com/webfold/partialnav/internal/infrastructure/config"
	"github.com/webfold/partialnav/internal/infrastructure/logging"
	"github.com/webfold/partialnav/internal/infrastructure/monitoring"
	"github.com/webfold/partialnav/internal/intercept"
	"github.com/webfold/partialnav/internal/nav"
	"github.com/webfold/partialnav/internal/transport"
)

// SessionParams configures a Session. Only Container is required.
type SessionParams struct {
	// Container is the region partial navigation replaces.
	Container container.Ref

	// Options are defaults merged under every navigation.
	Options nav.Options

	// Capabilities is the host capability probe. The zero value means a
	// fully capable host.
	Capabilities fallback.Capabilities

	Client  *transport.Client
	Bus     *events.Bus
	Logger  *logging.Logger
	Metrics *monitoring.Metrics
	Nav     config.NavConfig
}

// Session wires a hosted page to the navigation machinery: controller,
// history stack, popstate synchronizer, click interception, and the
// capability-selected strategy.
type Session struct {
	page     *Page
	engine   *nav.Engine
	stack    *history.Stack
	sync     *nav.Synchronizer
	strategy fallback.Strategy
	opts     nav.Options
}

// NewSession builds the full navigation stack around a hosted page.
func NewSession(p *Page, params SessionParams) (*Session, error) {
	log := logging.OrNop(params.Logger)
	if params.Client == nil {
		params.Client = transport.NewClient()
	}
	if (params.Capabilities == fallback.Capabilities{}) {
		params.Capabilities = fallback.Capabilities{PushState: true, ReplaceState: true}
	}

	stack := history.New(p.Document().Location().String())
	engine, err := nav.NewEngine(nav.Params{
		Renderer: p,
		Loader:   p,
		History:  stack,
		Client:   params.Client,
		Bus:      params.Bus,
		Logger:   params.Logger,
		Metrics:  params.Metrics,
		Defaults: params.Nav,
	})
	if err != nil {
		return nil, err
	}

	binding := intercept.Bind(p.Document(), engine, params.Container, params.Options, log)
	strategy := fallback.Choose(params.Capabilities,
		&fallback.HistoryBased{Engine: engine, Binding: binding},
		&fallback.FormSubmission{Submitter: p},
	)

	base := params.Options
	base.Container = params.Container

	return &Session{
		page:     p,
		engine:   engine,
		stack:    stack,
		sync:     nav.NewSynchronizer(engine, stack, log),
		strategy: strategy,
		opts:     base,
	}, nil
}

// Navigate issues a navigation through the selected strategy, with the
// session defaults underneath.
func (s *Session) Navigate(opts nav.Options) (*nav.Pending, error) {
	return s.strategy.Navigate(nav.Merge(s.opts, opts))
}

// Click processes a link activation, reporting whether it was handled
// partially. A false return means the host should navigate natively.
func (s *Session) Click(ev *intercept.Activation) bool {
	return s.strategy.HandleActivation(ev)
}

// Back traverses one entry back, triggering replay via the synchronizer.
func (s *Session) Back() bool { return s.stack.Back() }

// Forward traverses one entry forward.
func (s *Session) Forward() bool { return s.stack.Forward() }

// Page returns the hosted page.
func (s *Session) Page() *Page { return s.page }

// History returns the session history stack.
func (s *Session) History() *history.Stack { return s.stack }

// Bus returns the lifecycle event bus.
func (s *Session) Bus() *events.Bus { return s.engine.Bus() }

// Partial reports whether history-based partial navigation is active, as
// opposed to the form-submission fallback.
func (s *Session) Partial() bool {
	_, ok := s.strategy.(*fallback.HistoryBased)
	return ok
}

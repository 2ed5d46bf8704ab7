package nav

import "context"

// Outcome classifies how a navigation ended.
type Outcome string

const (
	// OutcomeApplied means the response was spliced into the container and
	// history updated per the requested mode.
	OutcomeApplied Outcome = "applied"

	// OutcomeFullLoad means the engine degraded to a full page load.
	OutcomeFullLoad Outcome = "fullload"

	// OutcomeSuperseded means a newer navigation cancelled this one.
	OutcomeSuperseded Outcome = "superseded"

	// OutcomeErrored means the transport failed and a listener vetoed the
	// full-page fallback.
	OutcomeErrored Outcome = "errored"
)

// Result is a navigation's terminal state.
type Result struct {
	Outcome Outcome

	// URL is the final navigation URL, after any canonical-URL adoption.
	URL string

	// Err carries the transport error for OutcomeErrored.
	Err error
}

// Pending is the handle to an issued navigation.
type Pending struct {
	id   string
	done chan Result
}

func newPending(id string) *Pending {
	return &Pending{id: id, done: make(chan Result, 1)}
}

// ID returns the navigation's identifier, as carried on its events.
func (p *Pending) ID() string { return p.id }

// Wait blocks until the navigation reaches a terminal state or ctx ends.
func (p *Pending) Wait(ctx context.Context) (Result, error) {
	select {
	case res := <-p.done:
		// Re-arm so later waiters observe the same result.
		p.done <- res
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (p *Pending) settle(res Result) {
	select {
	case p.done <- res:
	default:
	}
}

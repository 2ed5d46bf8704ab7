package nav

import (
	"sync"

	"go.uber.org/zap"

	"github.com/webfold/partialnav/internal/history"
	"github.com/webfold/partialnav/internal/infrastructure/logging"
)

// Synchronizer replays stored history records on back/forward traversal.
//
// It starts unconfirmed: some hosts deliver a spurious pop event on page
// load, recognizable because the location still equals the initial URL and
// no restorable state pre-existed. The first event settles the question
// either way; after that the synchronizer is live.
type Synchronizer struct {
	engine *Engine
	log    *logging.Logger

	mu         sync.Mutex
	initialURL string
	hadState   bool
	live       bool
}

// NewSynchronizer attaches a synchronizer to the engine's history stack.
func NewSynchronizer(engine *Engine, stack *history.Stack, log *logging.Logger) *Synchronizer {
	s := &Synchronizer{
		engine:     engine,
		log:        logging.OrNop(log),
		initialURL: stack.Location(),
		hadState:   stack.HasState(),
	}
	stack.OnPop(s.handlePop)
	return s
}

func (s *Synchronizer) handlePop(ev history.PopEvent) {
	s.mu.Lock()
	if !s.live {
		s.live = true
		if !s.hadState && ev.Location == s.initialURL {
			s.mu.Unlock()
			s.log.Debug("discarding spurious initial pop event",
				zap.String("location", ev.Location))
			return
		}
	}
	s.mu.Unlock()

	if ev.Record == nil {
		// Some other system owns this history entry.
		s.log.Debug("ignoring pop event without state", zap.String("location", ev.Location))
		return
	}

	doc := s.engine.Document()
	if doc.Query().Find(ev.Record.Container).Length() == 0 {
		// The container this entry depends on no longer exists.
		s.log.Warn("stored container missing, degrading to full load",
			zap.String("container", ev.Record.Container),
			zap.String("location", ev.Location))
		s.engine.FullLoad(ev.Location)
		return
	}

	if _, err := s.engine.Replay(ev.Record, ev.Location); err != nil {
		s.log.Error("replay failed", zap.Error(err))
	}
}

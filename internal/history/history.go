// Package history models the browser's session-history stack: an ordered
// list of entries, a cursor, and a serializable state record per entry.
//
// Entries are immutable once written. The state payload is stored in its
// serialized form and decoded on every read, so a record always survives the
// same round trip the host's persistence would put it through.
package history

import (
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
)

// Record is the payload associated with a history entry. It carries exactly
// what is needed to reproduce a partial-page render on back/forward.
type Record struct {
	// URL is the canonical navigation URL, marker stripped. Empty for the
	// priming replace written before the first push.
	URL string `json:"url"`

	// Container is the stable selector of the replaced region.
	Container string `json:"container"`

	// Fragment is the selector of the sub-region extracted from the
	// response, when one was requested.
	Fragment string `json:"fragment,omitempty"`

	// Timeout is the request timeout used, kept for faithful replay.
	Timeout time.Duration `json:"timeout"`
}

type entry struct {
	url   string
	state []byte // serialized Record, nil for entries owned by other systems
}

// PopEvent notifies listeners of a back/forward traversal. Record is nil
// when the entry holds no state owned by this system.
type PopEvent struct {
	Location string
	Record   *Record
}

// Stack is an in-memory session-history stack. All methods are safe for
// concurrent use.
type Stack struct {
	mu       sync.Mutex
	entries  []entry
	index    int
	pops     []func(PopEvent)
	pushes   int
	replaces int
}

// New creates a stack holding the initial page entry, which carries no
// state.
func New(initialURL string) *Stack {
	return &Stack{entries: []entry{{url: initialURL}}}
}

// OnPop registers a listener for back/forward traversals. Listeners run
// synchronously, in registration order, after the cursor has moved.
func (s *Stack) OnPop(fn func(PopEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pops = append(s.pops, fn)
}

// Push appends a new entry at url, discarding any forward entries.
func (s *Stack) Push(url string, rec *Record) error {
	state, err := encode(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries[:s.index+1], entry{url: url, state: state})
	s.index = len(s.entries) - 1
	s.pushes++
	return nil
}

// Replace overwrites the current entry with url and rec.
func (s *Stack) Replace(url string, rec *Record) error {
	state, err := encode(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[s.index] = entry{url: url, state: state}
	s.replaces++
	return nil
}

// Back moves the cursor one entry back and dispatches a pop event. It
// reports whether a move happened.
func (s *Stack) Back() bool {
	return s.traverse(-1)
}

// Forward moves the cursor one entry forward and dispatches a pop event. It
// reports whether a move happened.
func (s *Stack) Forward() bool {
	return s.traverse(1)
}

func (s *Stack) traverse(delta int) bool {
	s.mu.Lock()
	next := s.index + delta
	if next < 0 || next >= len(s.entries) {
		s.mu.Unlock()
		return false
	}
	s.index = next
	e := s.entries[next]
	listeners := make([]func(PopEvent), len(s.pops))
	copy(listeners, s.pops)
	s.mu.Unlock()

	ev := PopEvent{Location: e.url, Record: decode(e.state)}
	for _, fn := range listeners {
		fn(ev)
	}
	return true
}

// Location returns the current entry's URL.
func (s *Stack) Location() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[s.index].url
}

// State returns the decoded record of the current entry, if it has one.
func (s *Stack) State() (*Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := decode(s.entries[s.index].state)
	return rec, rec != nil
}

// HasState reports whether the current entry carries a restorable record.
func (s *Stack) HasState() bool {
	_, ok := s.State()
	return ok
}

// Len returns the number of entries.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Writes returns the cumulative push and replace counts.
func (s *Stack) Writes() (pushes, replaces int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushes, s.replaces
}

func encode(rec *Record) ([]byte, error) {
	if rec == nil {
		return nil, nil
	}
	b, err := sonic.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("history: encode record: %w", err)
	}
	return b, nil
}

func decode(state []byte) *Record {
	if state == nil {
		return nil
	}
	var rec Record
	if err := sonic.Unmarshal(state, &rec); err != nil {
		return nil
	}
	return &rec
}

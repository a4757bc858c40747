// Package queue implements the ordered, deduplicating worklist driven by the scanner.
package queue

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/starford/robotdb/internal/models"
)

// State is the discovery state of one identity.
type State struct {
	Status models.Status `json:"status"`
	Kind   models.Kind   `json:"kind"`
	Args   []string      `json:"args,omitempty"`
}

// Item is an identity together with its state.
type Item struct {
	Identity string
	State    State
}

// Queue tracks every identity seen during one scan in insertion order.
//
// Pending identities live in an ordered map. PopNext moves an identity to
// the seen set, so an identity referenced again after it was popped is not
// queued a second time. Queue is not safe for concurrent use.
type Queue struct {
	pending *orderedmap.OrderedMap[string, State]
	seen    map[string]State
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{
		pending: orderedmap.New[string, State](),
		seen:    make(map[string]State),
	}
}

// Add registers identity as unscanned with the given kind. It reports
// whether the identity was new; known identities keep their state.
func (q *Queue) Add(identity string, kind models.Kind) bool {
	return q.register(identity, State{Status: models.StatusUnscanned, Kind: kind})
}

// AddWithArgs is Add for assets that take import arguments.
func (q *Queue) AddWithArgs(identity string, kind models.Kind, args []string) bool {
	return q.register(identity, State{Status: models.StatusUnscanned, Kind: kind, Args: args})
}

// Merge queues every library, resource and variable file referenced by rec
// that has not been seen yet. It returns the number of identities added.
func (q *Queue) Merge(rec *models.Record) int {
	if rec == nil {
		return 0
	}
	added := 0
	for _, lib := range rec.Libraries {
		if q.register(lib.Identity(), State{Status: models.StatusQueued, Kind: models.KindLibrary, Args: lib.Arguments}) {
			added++
		}
	}
	for _, res := range rec.Resources {
		if q.register(res, State{Status: models.StatusQueued, Kind: models.KindResource}) {
			added++
		}
	}
	for _, vf := range rec.VariableFiles {
		for path, args := range vf {
			if q.register(path, State{Status: models.StatusQueued, Kind: models.KindVariable, Args: args.Arguments}) {
				added++
			}
		}
	}
	return added
}

func (q *Queue) register(identity string, st State) bool {
	if identity == "" {
		return false
	}
	if _, ok := q.seen[identity]; ok {
		return false
	}
	if _, ok := q.pending.Get(identity); ok {
		return false
	}
	q.pending.Set(identity, st)
	return true
}

// PopNext removes and returns the earliest pending identity. The second
// result is false once the queue is exhausted.
func (q *Queue) PopNext() (Item, bool) {
	oldest := q.pending.Oldest()
	if oldest == nil {
		return Item{}, false
	}
	item := Item{Identity: oldest.Key, State: oldest.Value}
	q.pending.Delete(oldest.Key)
	q.seen[item.Identity] = item.State
	return item, true
}

// Complete marks a popped identity as scanned.
func (q *Queue) Complete(identity string) {
	q.finish(identity, models.StatusScanned)
}

// Fail marks a popped identity whose parse failed. It stays in the seen
// set, so it is not queued again during the scan.
func (q *Queue) Fail(identity string) {
	q.finish(identity, models.StatusFailed)
}

func (q *Queue) finish(identity string, status models.Status) {
	if st, ok := q.seen[identity]; ok {
		st.Status = status
		q.seen[identity] = st
	}
}

// State returns the state of a pending or popped identity.
func (q *Queue) State(identity string) (State, bool) {
	if st, ok := q.pending.Get(identity); ok {
		return st, true
	}
	st, ok := q.seen[identity]
	return st, ok
}

// Len returns the number of pending identities.
func (q *Queue) Len() int {
	return q.pending.Len()
}

// Seen returns the number of identities popped so far.
func (q *Queue) Seen() int {
	return len(q.seen)
}

// Pending returns the pending identities in queue order.
func (q *Queue) Pending() []Item {
	out := make([]Item, 0, q.pending.Len())
	for p := q.pending.Oldest(); p != nil; p = p.Next() {
		out = append(out, Item{Identity: p.Key, State: p.Value})
	}
	return out
}

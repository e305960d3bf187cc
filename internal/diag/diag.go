// Package diag holds a per-surface diagnostics record. The reference
// implementation this tracker is modeled on threads a boolean
// "verbose" flag through its collision pipeline and prints ad hoc
// lines to stdout when it's set; that doesn't compose with a library
// embedded in someone else's program. Instead each Tracker owns one
// Record that accumulates structured counters as it runs, which the
// embedder can inspect, log, or ignore entirely.
package diag

import (
	"fmt"
	"runtime/debug"
)

// Record accumulates counters describing one surface's run. The zero
// value is ready to use. Apart from String and Recover, which format
// text, none of its methods allocate beyond growing the Events ring
// buffer, so a Record can be cheaply embedded per Tracker and sampled
// at any point.
type Record struct {
	ProximitiesHandled int
	CollisionsHandled  int
	CollisionPasses    int
	ImpactZoneSolves   int
	RigidFreezeCount   int
	BroadPhaseMisses   int // a feature reported as colliding by narrow phase but absent from its broad-phase cell
	SplitsApplied      int
	SplitsRejected     int
	CollapsesApplied   int
	CollapsesRejected  int
	FlipsApplied       int
	FlipsRejected      int
	SmoothsApplied     int
	MergesApplied      int
	DefragCount        int

	// Events is a bounded ring of the most recent noteworthy events,
	// newest last. It exists for post-mortem inspection, not for
	// structured logging: nothing in this package writes to stdout or
	// a logger on its own.
	Events    []Event
	maxEvents int
}

// Event is one recorded occurrence, e.g. an operator rejecting a move
// or a panic recovered from a remesh operator.
type Event struct {
	Kind    string
	Detail  string
	PanicStack string // non-empty only for Kind == "panic"
}

// NewRecord returns a Record whose Events ring holds at most
// maxEvents entries (0 means unbounded).
func NewRecord(maxEvents int) *Record {
	return &Record{maxEvents: maxEvents}
}

func (r *Record) record(kind, detail string, stack string) {
	r.Events = append(r.Events, Event{Kind: kind, Detail: detail, PanicStack: stack})
	if r.maxEvents > 0 && len(r.Events) > r.maxEvents {
		r.Events = r.Events[len(r.Events)-r.maxEvents:]
	}
}

// Note appends a free-form event, e.g. "split rejected: min edge length".
func (r *Record) Note(kind, detail string) {
	r.record(kind, detail, "")
}

// Recover, deferred at the top of a remesh operator or pipeline stage,
// turns a panic into a recorded event plus a returned error instead of
// crashing the embedder's process. A step that silently swallowed a
// panic mid-mesh-mutation would leave the mesh in an unknown state, so
// this records the event alongside converting it to an error.
func (r *Record) Recover(operation string, errp *error) {
	if a := recover(); a != nil {
		stack := string(debug.Stack())
		r.record("panic", fmt.Sprintf("%s: %v", operation, a), stack)
		*errp = fmt.Errorf("diag: recovered panic in %s: %v", operation, a)
	}
}

// String summarizes the counters, useful in test failure messages.
func (r *Record) String() string {
	return fmt.Sprintf(
		"proximities=%d collisions=%d passes=%d impactzone=%d rigidfreeze=%d "+
			"split=%d/%d collapse=%d/%d flip=%d/%d smooth=%d merge=%d defrag=%d events=%d",
		r.ProximitiesHandled, r.CollisionsHandled, r.CollisionPasses, r.ImpactZoneSolves, r.RigidFreezeCount,
		r.SplitsApplied, r.SplitsRejected, r.CollapsesApplied, r.CollapsesRejected,
		r.FlipsApplied, r.FlipsRejected, r.SmoothsApplied, r.MergesApplied, r.DefragCount,
		len(r.Events),
	)
}

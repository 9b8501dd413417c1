package compute

import (
	"fmt"
)

// ReadbackState is the per-chunk state of a staging buffer readback.
type ReadbackState int

const (
	// ReadbackSubmitted means the copy into the staging buffer was submitted.
	ReadbackSubmitted ReadbackState = iota
	// ReadbackMapRequested means an async map-for-read was issued.
	ReadbackMapRequested
	// ReadbackMapReady means the mapped bytes are readable.
	ReadbackMapReady
	// ReadbackDrained means all views into the mapped range were released.
	ReadbackDrained
	// ReadbackUnmapped means the staging buffer is free for the next chunk.
	ReadbackUnmapped
)

// String returns the string representation of ReadbackState.
func (s ReadbackState) String() string {
	switch s {
	case ReadbackSubmitted:
		return "Submitted"
	case ReadbackMapRequested:
		return "MapRequested"
	case ReadbackMapReady:
		return "MapReady"
	case ReadbackDrained:
		return "Drained"
	case ReadbackUnmapped:
		return "Unmapped"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// ReadbackTracker enforces Submitted -> MapRequested -> MapReady -> Drained
// -> Unmapped for one staging buffer. A refused map request returns from
// Submitted to Unmapped; a failed or canceled map may jump from
// MapRequested or MapReady straight to Unmapped. After Unmapped the next
// chunk starts again at Submitted.
type ReadbackTracker struct {
	chunk   int
	state   ReadbackState
	history []ReadbackState
	onStep  func(chunk int, from, to ReadbackState)
}

// NewReadbackTracker returns a tracker with an idle (Unmapped) buffer.
// onStep, if non-nil, observes every transition.
func NewReadbackTracker(onStep func(chunk int, from, to ReadbackState)) *ReadbackTracker {
	return &ReadbackTracker{chunk: -1, state: ReadbackUnmapped, onStep: onStep}
}

// State returns the current state.
func (t *ReadbackTracker) State() ReadbackState { return t.state }

// Chunk returns the chunk the tracker is following.
func (t *ReadbackTracker) Chunk() int { return t.chunk }

// History returns the states visited since the last Submit.
func (t *ReadbackTracker) History() []ReadbackState {
	return append([]ReadbackState(nil), t.history...)
}

// Submit starts tracking chunk. The buffer must be Unmapped.
func (t *ReadbackTracker) Submit(chunk int) error {
	if t.state != ReadbackUnmapped {
		return fmt.Errorf("%w: submit chunk %d while chunk %d is %s", ErrInvalidTransition, chunk, t.chunk, t.state)
	}
	t.chunk = chunk
	t.history = t.history[:0]
	t.step(ReadbackSubmitted)
	return nil
}

// Advance moves to the next state.
func (t *ReadbackTracker) Advance(to ReadbackState) error {
	ok := to == t.state+1 && to != ReadbackSubmitted
	if to == ReadbackUnmapped && t.state <= ReadbackMapReady {
		ok = true
	}
	if !ok {
		return fmt.Errorf("%w: chunk %d %s -> %s", ErrInvalidTransition, t.chunk, t.state, to)
	}
	t.step(to)
	return nil
}

// Fail wraps err as a ReadbackFailure in the current state.
func (t *ReadbackTracker) Fail(err error) *ReadbackFailure {
	return &ReadbackFailure{Chunk: t.chunk, State: t.state, Err: err}
}

func (t *ReadbackTracker) step(to ReadbackState) {
	from := t.state
	t.state = to
	t.history = append(t.history, to)
	if t.onStep != nil {
		t.onStep(t.chunk, from, to)
	}
}

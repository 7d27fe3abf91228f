// Public domain.

package mcmatch

import "fmt"

// State is the progress of one reference record through one matching pass.
//
// A record starts Unsearched.  CandidatesFound means at least one record
// passed the thresholds; it ends Matched when a candidate is verified by
// relocation or Exhausted when none is.  A record with no candidates goes
// straight to Exhausted.  A record already matched in an earlier pass whose
// match is present in the pass's comparison series goes to LookedUp without
// a search.
type State uint8

const (
	Unsearched State = iota
	CandidatesFound
	Matched
	Exhausted
	LookedUp
)

var stateNames = [...]string{"unsearched", "candidates_found", "matched", "exhausted", "looked_up"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", s)
}

// legal transitions.  Matched, Exhausted and LookedUp are terminal.
var next = map[State][]State{
	Unsearched:      {CandidatesFound, Exhausted, LookedUp},
	CandidatesFound: {Matched, Exhausted},
}

// search tracks the state of one record in one pass.
type search struct {
	state State
}

// advance moves to state to.  An illegal transition is a bug in the
// matcher and panics.
func (s *search) advance(to State) {
	for _, ok := range next[s.state] {
		if ok == to {
			s.state = to
			return
		}
	}
	panic(fmt.Sprintf("mcmatch: illegal transition %s -> %s", s.state, to))
}

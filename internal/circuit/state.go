package circuit

import (
	"fmt"

	"github.com/mikelxc/zkredit/internal/publicvalues"
)

// State is a step of a proof run.
type State uint8

const (
	ReadingInputs State = iota
	Verifying
	Committing
	Encoding
	Done
	Aborted
)

var stateNames = [...]string{
	ReadingInputs: "ReadingInputs",
	Verifying:     "Verifying",
	Committing:    "Committing",
	Encoding:      "Encoding",
	Done:          "Done",
	Aborted:       "Aborted",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == Done || s == Aborted }

// Check names the step that rejected a run.
type Check string

const (
	CheckInput     Check = "input"
	CheckThreshold Check = "threshold"
	CheckExpiry    Check = "expiry"
	CheckSignature Check = "signature"
	CheckEncoding  Check = "encoding"
)

// AbortError is returned for every run that ends in Aborted. Reason is a
// diagnostic only; it never carries private quantities.
type AbortError struct {
	Variant publicvalues.Variant
	State   State // state the run was in when it aborted
	Check   Check
	Reason  string
	Err     error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("%s aborted in %s: %s", e.Variant, e.State, e.Reason)
}

func (e *AbortError) Unwrap() error { return e.Err }

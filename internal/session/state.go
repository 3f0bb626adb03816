package session

import (
	"fmt"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/query"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/symbol"
	apperrors "github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/errors"
)

// State is the position of a session in its query lifecycle:
// Idle -> Typing -> (ResultsShown | NoResults) -> Navigated | Closed.
type State int

const (
	Idle State = iota
	Typing
	ResultsShown
	NoResults
	Navigated
	Closed
)

var stateNames = [...]string{
	Idle:         "idle",
	Typing:       "typing",
	ResultsShown: "results",
	NoResults:    "no_results",
	Navigated:    "navigated",
	Closed:       "closed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", text)
}

// Key is a keyboard event understood by Press.
type Key string

const (
	KeyDown   Key = "down"
	KeyUp     Key = "up"
	KeyRight  Key = "right"
	KeyLeft   Key = "left"
	KeyEnter  Key = "enter"
	KeyEscape Key = "escape"
)

// ParseKey validates a key name.
func ParseKey(s string) (Key, error) {
	switch k := Key(s); k {
	case KeyDown, KeyUp, KeyRight, KeyLeft, KeyEnter, KeyEscape:
		return k, nil
	}
	return "", apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "unknown key %q", s)
}

// Navigation is the outcome of a successful commit.
type Navigation struct {
	URL   string       `json:"url"`
	Entry symbol.Entry `json:"entry"`
}

// Snapshot is the visible state of a session. Groups is shared with the
// engine's result cache and must not be modified.
type Snapshot struct {
	ID          string        `json:"id"`
	State       State         `json:"state"`
	Query       string        `json:"query"`
	Groups      []query.Group `json:"groups"`
	Truncated   bool          `json:"truncated"`
	TotalGroups int           `json:"total_groups"`
	Generation  uint64        `json:"generation"`
	// Selected and Member index the highlighted group and its member; both
	// are -1 when nothing is shown.
	Selected   int         `json:"selected"`
	Member     int         `json:"member"`
	Navigation *Navigation `json:"navigation,omitempty"`
	Seq        uint64      `json:"seq"`
}

// SelectedEntry returns the highlighted entry, if any.
func (s Snapshot) SelectedEntry() (symbol.Entry, bool) {
	if s.Selected < 0 || s.Selected >= len(s.Groups) {
		return symbol.Entry{}, false
	}
	members := s.Groups[s.Selected].Entries
	if s.Member < 0 || s.Member >= len(members) {
		return symbol.Entry{}, false
	}
	return members[s.Member], true
}

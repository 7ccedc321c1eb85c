package driver

import (
	"fmt"
	"strings"
)

type State int

const (
	StateDown State = iota
	StateUp
	StateToggle
)

func ParseState(s string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "down":
		return StateDown, nil
	case "up":
		return StateUp, nil
	case "toggle":
		return StateToggle, nil
	default:
		return StateDown, fmt.Errorf("%w: %q", ErrInvalidState, s)
	}
}

// Resolve turns StateToggle into the opposite of current.
func (s State) Resolve(current State) State {
	if s != StateToggle {
		return s
	}
	if current == StateUp {
		return StateDown
	}
	return StateUp
}

func (s State) String() string {
	switch s {
	case StateDown:
		return "down"
	case StateUp:
		return "up"
	case StateToggle:
		return "toggle"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	state, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = state
	return nil
}

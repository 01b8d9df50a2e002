package order

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidAction = errors.New("invalid line action")

// Action changes one cart line. The zero value is not a valid action.
type Action uint8

const (
	Increment Action = iota + 1
	Decrement
	Remove
)

func ParseAction(s string) (Action, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INCREMENT", "PLUS":
		return Increment, nil
	case "DECREMENT", "MINUS":
		return Decrement, nil
	case "REMOVE", "DELETE":
		return Remove, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidAction, s)
}

func (a Action) String() string {
	switch a {
	case Increment:
		return "INCREMENT"
	case Decrement:
		return "DECREMENT"
	case Remove:
		return "REMOVE"
	}
	return fmt.Sprintf("Action(%d)", uint8(a))
}

// apply returns the quantity after a, and false when the line goes away.
func (a Action) apply(qty int) (int, bool, error) {
	switch a {
	case Increment:
		return qty + 1, true, nil
	case Decrement:
		return max(qty-1, 0), true, nil
	case Remove:
		return 0, false, nil
	}
	return 0, false, fmt.Errorf("%w: %s", ErrInvalidAction, a)
}

package domain

import "github.com/pkg/errors"

// Action represents the side of an intended trade.
type Action int

const (
	ActionBuy Action = iota
	ActionSell
)

// action string constants to avoid magic strings
const (
	actionStringBuy  = "BUY"
	actionStringSell = "SELL"
)

// ParseAction converts BUY/SELL into an Action.
func ParseAction(s string) (Action, error) {
	switch s {
	case actionStringBuy:
		return ActionBuy, nil
	case actionStringSell:
		return ActionSell, nil
	}
	return 0, errors.Errorf("unknown action %q", s)
}

// Opposite returns the contrary side.
func (a Action) Opposite() Action {
	if a == ActionBuy {
		return ActionSell
	}
	return ActionBuy
}

// String returns the string representation of the action
func (a Action) String() string {
	switch a {
	case ActionBuy:
		return actionStringBuy
	case ActionSell:
		return actionStringSell
	default:
		return "unknown"
	}
}

// MarshalText encodes the action for JSON payloads.
func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText decodes BUY/SELL.
func (a *Action) UnmarshalText(b []byte) error {
	parsed, err := ParseAction(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

package app

import (
	"fmt"

	"github.com/dkeye/Tandem/internal/core"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickConnection
)

// Policy decides what happens to a recipient whose send queue is full.
type Policy interface {
	OnBackPressure(conn core.SignalConnection) BackpressureAction
}

// SimplePolicy applies the same action to every slow connection.
type SimplePolicy struct {
	Action BackpressureAction
}

func (p SimplePolicy) OnBackPressure(core.SignalConnection) BackpressureAction {
	return p.Action
}

// ParsePolicy maps the config value to a policy.
func ParsePolicy(name string) (Policy, error) {
	switch name {
	case "", "kick":
		return SimplePolicy{Action: KickConnection}, nil
	case "drop":
		return SimplePolicy{Action: DropFrame}, nil
	default:
		return nil, fmt.Errorf("unknown backpressure policy %q", name)
	}
}

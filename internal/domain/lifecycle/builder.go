package lifecycle

import (
	"context"
	"fmt"
)

// GuardFunc decides whether a guarded transition may be taken.
type GuardFunc func(ctx context.Context) bool

// Builder assembles the transition table for a state machine.
type Builder interface {
	// Configure returns the transition set leaving the given state
	Configure(state State) Configuration

	// Build creates an independent machine positioned at initial
	Build(initial State) StateMachine
}

// Configuration declares transitions leaving one state.
type Configuration interface {
	Permit(trigger Trigger, to State) Configuration
	PermitIf(trigger Trigger, to State, guard GuardFunc) Configuration
}

type transition struct {
	to    State
	guard GuardFunc
}

type stateConfig struct {
	from        State
	transitions map[Trigger][]transition
}

type builder struct {
	configs map[State]*stateConfig
}

type machine struct {
	current State
	configs map[State]*stateConfig
}

// NewBuilder creates an empty builder.
func NewBuilder() Builder {
	return &builder{configs: make(map[State]*stateConfig)}
}

func (b *builder) Configure(state State) Configuration {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}
	if state.IsTerminal() {
		panic(fmt.Sprintf("terminal state cannot have transitions: %s", state))
	}

	cfg, ok := b.configs[state]
	if !ok {
		cfg = &stateConfig{from: state, transitions: make(map[Trigger][]transition)}
		b.configs[state] = cfg
	}
	return cfg
}

// Build copies the transition table so later Configure calls do not leak
// into machines that were already built.
func (b *builder) Build(initial State) StateMachine {
	if !initial.IsValid() {
		panic(fmt.Sprintf("invalid initial state: %s", initial))
	}

	configs := make(map[State]*stateConfig, len(b.configs))
	for state, cfg := range b.configs {
		transitions := make(map[Trigger][]transition, len(cfg.transitions))
		for trigger, ts := range cfg.transitions {
			transitions[trigger] = append([]transition(nil), ts...)
		}
		configs[state] = &stateConfig{from: state, transitions: transitions}
	}

	return &machine{current: initial, configs: configs}
}

func (c *stateConfig) Permit(trigger Trigger, to State) Configuration {
	return c.PermitIf(trigger, to, nil)
}

func (c *stateConfig) PermitIf(trigger Trigger, to State, guard GuardFunc) Configuration {
	if !to.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", to))
	}
	c.transitions[trigger] = append(c.transitions[trigger], transition{to: to, guard: guard})
	return c
}

func (m *machine) State() State {
	return m.current
}

func (m *machine) CanFire(trigger Trigger) bool {
	cfg, ok := m.configs[m.current]
	if !ok {
		return false
	}
	return len(cfg.transitions[trigger]) > 0
}

// Fire tries the configured transitions in declaration order and takes the
// first one whose guard passes.
func (m *machine) Fire(ctx context.Context, trigger Trigger) error {
	if m.current.IsTerminal() {
		return fmt.Errorf("%w: cannot fire %s from %s", ErrTerminalState, trigger, m.current)
	}

	cfg, ok := m.configs[m.current]
	if !ok || len(cfg.transitions[trigger]) == 0 {
		return fmt.Errorf("%w: cannot fire %s from %s", ErrInvalidTransition, trigger, m.current)
	}

	for _, t := range cfg.transitions[trigger] {
		if t.guard == nil || t.guard(ctx) {
			m.current = t.to
			return nil
		}
	}

	return fmt.Errorf("%w: trigger %s from %s", ErrGuardFailed, trigger, m.current)
}

func (m *machine) PermittedTriggers() []Trigger {
	cfg, ok := m.configs[m.current]
	if !ok {
		return []Trigger{}
	}

	triggers := make([]Trigger, 0, len(cfg.transitions))
	for trigger := range cfg.transitions {
		triggers = append(triggers, trigger)
	}
	return triggers
}

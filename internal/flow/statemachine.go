package flow

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"

	"github.com/yungbote/lessonflow-backend/internal/logger"
	apperrors "github.com/yungbote/lessonflow-backend/internal/pkg/errors"
)

// Rule is one row of the transition table. Either To or ToFunc names the
// target state; ToFunc wins when both are set. Guard and Action are
// optional. Rules are evaluated in declaration order and the first match
// wins, so the table is unambiguous by construction.
type Rule struct {
	From   []State
	Event  string
	To     State
	ToFunc func(f *Flow, ev Event) State
	Guard  func(f *Flow, ev Event) bool
	Action func(ctx context.Context, f *Flow, ev Event) error
}

func (r Rule) accepts(f *Flow, ev Event) bool {
	if r.Event != ev.Name {
		return false
	}
	found := false
	for _, s := range r.From {
		if s == f.CurrentState {
			found = true
			break
		}
	}
	if !found {
		return false
	}
	if r.Guard != nil && !r.Guard(f, ev) {
		return false
	}
	return true
}

// Machine is the table-driven transition engine. Transition calls for one
// flow must be serialized by the caller (the session goroutine); calls for
// different flows may run concurrently against separate Machine instances.
type Machine struct {
	rules []Rule
	clk   clock.Clock
	log   *logger.Logger

	// onChanged publishes the state-changed notification after a rule has
	// been applied and its action has run.
	onChanged func(f *Flow, ev Event, from, to State)
}

func newMachine(rules []Rule, clk clock.Clock, log *logger.Logger, onChanged func(f *Flow, ev Event, from, to State)) *Machine {
	return &Machine{rules: rules, clk: clk, log: log, onChanged: onChanged}
}

// Transition applies the first matching rule for the event. No match is a
// complete no-op apart from the returned ErrInvalidTransition. An action
// failure synthesizes one "error" event; the synthesized transition never
// recurses further.
func (m *Machine) Transition(ctx context.Context, f *Flow, ev Event) error {
	return m.apply(ctx, f, ev, 0)
}

func (m *Machine) apply(ctx context.Context, f *Flow, ev Event, depth int) error {
	var rule *Rule
	for i := range m.rules {
		if m.rules[i].accepts(f, ev) {
			rule = &m.rules[i]
			break
		}
	}
	if rule == nil {
		return fmt.Errorf("%w: event %q in state %q", apperrors.ErrInvalidTransition, ev.Name, f.CurrentState)
	}

	target := rule.To
	if rule.ToFunc != nil {
		target = rule.ToFunc(f, ev)
	}

	from := f.CurrentState
	f.PreviousState = from
	f.CurrentState = target
	f.recordHistory(target, ev.Name, m.clk.Now())
	f.Metrics.StateChanges++

	var actionErr error
	if rule.Action != nil {
		actionErr = rule.Action(ctx, f, ev)
	}

	if m.onChanged != nil {
		m.onChanged(f, ev, from, target)
	}

	if actionErr != nil {
		m.log.Error("transition action failed", "event", ev.Name, "from", from, "to", target, "error", actionErr)
		if depth == 0 && ev.Name != EventError {
			if err := m.apply(ctx, f, Event{Name: EventError, Payload: ErrorPayload{Cause: actionErr.Error()}, internal: true}, depth+1); err != nil {
				m.log.Error("error transition failed", "error", err)
			}
		}
		return actionErr
	}
	return nil
}

package seer

import (
	"fmt"
	"log/slog"

	"tools.zach/dev/seer/internal/wisdom"
)

// ///////////////////////////////////////////////
// States and Events
// ///////////////////////////////////////////////

// State is a lifecycle state.
type State int

const (
	Waking State = iota
	Available
	Napping
	Sleeping
)

// States lists every state in declaration order.
var States = []State{Waking, Available, Napping, Sleeping}

var stateNames = [...]string{
	Waking:    "Waking",
	Available: "Available",
	Napping:   "Napping",
	Sleeping:  "Sleeping",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// StateNames returns the names of [States].
func StateNames() []string {
	names := make([]string, len(States))
	for i, s := range States {
		names[i] = s.String()
	}
	return names
}

// Event drives the state machine.
type Event int

const (
	Awaken Event = iota
	Overexert
	Rally
	Reflect
	Sleep
)

var eventNames = [...]string{
	Awaken:    "awaken",
	Overexert: "overexert",
	Rally:     "rally",
	Reflect:   "reflect",
	Sleep:     "sleep",
}

func (e Event) String() string {
	if e < 0 || int(e) >= len(eventNames) {
		return fmt.Sprintf("Event(%d)", int(e))
	}
	return eventNames[e]
}

// ParseEvent returns the event with the given lower-case name.
func ParseEvent(name string) (Event, error) {
	for i, n := range eventNames {
		if n == name {
			return Event(i), nil
		}
	}
	return 0, fmt.Errorf("unknown event %q", name)
}

// ///////////////////////////////////////////////
// Collaborators
// ///////////////////////////////////////////////

// Notifier delivers readiness updates to the sidecar.
type Notifier interface {
	SendReadyUpdate(ready bool, pid int) bool
	HasPendingInjections() bool
	SendInjectedMessages() (ready bool, pid int, err error)
}

// Knowledge is the perspective table consulted by the state machine.
type Knowledge interface {
	AcquireKnowledge() error
	IsMeager() bool
	Answer() string
	PerspectiveIndex() int
	Snapshot() wisdom.Snapshot
	Restore(wisdom.Snapshot) error
}

// Context is shared by every state: the collaborators plus the process id
// reported in readiness updates.
type Context struct {
	Notifier  Notifier
	Knowledge Knowledge
	PID       int
}

// ///////////////////////////////////////////////
// Transition Table
// ///////////////////////////////////////////////

// transitions maps (state, event) to the next state. Pairs not listed are
// no-ops. Sleeping has no entries.
var transitions = map[State]map[Event]State{
	Waking: {
		Rally: Available,
		Sleep: Sleeping,
	},
	Available: {
		Overexert: Napping,
		Sleep:     Sleeping,
	},
	Napping: {
		Awaken: Waking,
		Sleep:  Sleeping,
	},
}

// reflective lists the states where Reflect changes perspective in place.
var reflective = map[State]bool{
	Available: true,
	Napping:   true,
}

// entryEffects run when a state is entered.
var entryEffects = map[State]func(*Context){
	Waking:    enterWaking,
	Available: enterAvailable,
	Napping:   enterNapping,
	Sleeping:  enterSleeping,
}

// Next returns the state that follows s on e and whether that is a change of
// state. Reflect never changes state.
func Next(s State, e Event) (State, bool) {
	if to, ok := transitions[s][e]; ok {
		return to, true
	}
	return s, false
}

// Apply runs one event against s: it either enters the next state, changes
// perspective in place, or does nothing. It returns the resulting state.
func Apply(s State, e Event, c *Context) State {
	if e == Reflect && reflective[s] {
		slog.Debug("reflecting", "state", s)
		if err := c.Knowledge.AcquireKnowledge(); err != nil {
			slog.Error("failed to acquire new perspective", "state", s, "error", err)
		}
		return s
	}

	to, changed := Next(s, e)
	if !changed {
		slog.Debug("event ignored", "state", s, "event", e)
		return s
	}
	slog.Debug("transition", "from", s, "to", to, "event", e)
	Enter(to, c)
	return to
}

// Enter runs the entry effect of s.
func Enter(s State, c *Context) {
	if effect := entryEffects[s]; effect != nil {
		effect(c)
	}
}

// ///////////////////////////////////////////////
// Entry Effects
// ///////////////////////////////////////////////

// enterWaking learns if nothing is known yet and announces an unidentified,
// not yet ready seer.
func enterWaking(c *Context) {
	if c.Knowledge.IsMeager() {
		if err := c.Knowledge.AcquireKnowledge(); err != nil {
			slog.Error("failed to acquire knowledge", "error", err)
		}
	}
	notifyReady(c, false, 0)
}

// enterAvailable flushes any injected batch, adopting the last PID it
// reported, then announces readiness.
func enterAvailable(c *Context) {
	if c.Notifier.HasPendingInjections() {
		_, pid, err := c.Notifier.SendInjectedMessages()
		switch {
		case err != nil:
			slog.Error("failed to send injected messages", "error", err)
		case pid != 0:
			slog.Debug("adopting injected pid", "pid", pid)
			c.PID = pid
		}
	}
	notifyReady(c, true, c.PID)
}

func enterNapping(c *Context) {
	notifyReady(c, false, c.PID)
}

func enterSleeping(c *Context) {
	notifyReady(c, false, c.PID)
}

func notifyReady(c *Context, ready bool, pid int) {
	if !c.Notifier.SendReadyUpdate(ready, pid) {
		slog.Warn("readiness notification not delivered", "ready", ready, "pid", pid)
		return
	}
	slog.Debug("notification sent to sidecar", "ready", ready, "pid", pid)
}

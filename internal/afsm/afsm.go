// Package afsm is the auto-focus state machine: a static transition table
// indexed by focus mode, current state and algorithm event.
package afsm

// Mode is the internal focus mode the table is indexed by.
type Mode int

// Focus modes.
const (
	NonContinuous Mode = iota
	ContinuousPicture
	ContinuousVideo
	ManualOrInfinity
	modeCount
)

var modeNames = [...]string{"auto", "continuous-picture", "continuous-video", "manual"}

func (m Mode) String() string {
	if m < 0 || m >= modeCount {
		return "invalid"
	}
	return modeNames[m]
}

// ParseMode converts a control value to a Mode.
func ParseMode(s string) (Mode, bool) {
	for i, n := range modeNames {
		if n == s {
			return Mode(i), true
		}
	}
	return 0, false
}

// Event is an input to the machine.
type Event int

// Events, in table column order.
const (
	Trigger Event = iota
	Cancel
	ModeChange
	CAFModeChange
	FocusDoneSuccess
	FocusDoneFailure
	StartScan
	Idle
	eventCount
)

var eventNames = [...]string{
	"trigger", "cancel", "mode-change", "caf-mode-change",
	"focus-done-success", "focus-done-failure", "start-scan", "idle",
}

func (e Event) String() string {
	if e < 0 || e >= eventCount {
		return "invalid"
	}
	return eventNames[e]
}

// ParseEvent converts a control value to an Event.
func ParseEvent(s string) (Event, bool) {
	for i, n := range eventNames {
		if n == s {
			return Event(i), true
		}
	}
	return 0, false
}

// State is the published focus state.
type State int

// States, in table row order. Invalid marks transitions that do not exist.
const (
	Inactive State = iota
	PassiveScan
	PassiveFocused
	ActiveScan
	FocusedLocked
	NotFocusedLocked
	PassiveUnfocused
	PassiveScanWithTrigger
	stateCount
	Invalid State = -1
)

var stateNames = [...]string{
	"inactive", "passive-scan", "passive-focused", "active-scan",
	"focused-locked", "not-focused-locked", "passive-unfocused", "passive-scan-with-trigger",
}

func (s State) String() string {
	if s < 0 || s >= stateCount {
		return "invalid"
	}
	return stateNames[s]
}

// Transition returns the next state for (mode, state, event). It is a pure
// table lookup; out-of-range inputs yield Invalid.
func Transition(m Mode, s State, e Event) State {
	if m < 0 || m >= modeCount || s < 0 || s >= stateCount || e < 0 || e >= eventCount {
		return Invalid
	}
	return table[m][s][e]
}

// Machine applies transitions and ignores those that yield Invalid.
type Machine struct {
	mode  Mode
	state State
}

// NewMachine starts in Inactive for mode m.
func NewMachine(m Mode) *Machine {
	return &Machine{mode: m, state: Inactive}
}

// Mode returns the current mode.
func (m *Machine) Mode() Mode { return m.mode }

// State returns the current state.
func (m *Machine) State() State { return m.state }

// SetMode switches mode and feeds the ModeChange event, as a mode change
// from the application does.
func (m *Machine) SetMode(mode Mode) State {
	if mode == m.mode {
		return m.state
	}
	m.mode = mode
	return m.Apply(ModeChange)
}

// Apply feeds e and returns the resulting state. The state is unchanged when
// the transition is Invalid.
func (m *Machine) Apply(e Event) State {
	if next := Transition(m.mode, m.state, e); next != Invalid {
		m.state = next
	}
	return m.state
}

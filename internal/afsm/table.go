package afsm

// Shorthands keep the table readable.
const (
	xx = Invalid
	in = Inactive
	ps = PassiveScan
	pf = PassiveFocused
	as = ActiveScan
	fl = FocusedLocked
	nf = NotFocusedLocked
	pu = PassiveUnfocused
	pt = PassiveScanWithTrigger
)

// table[mode][state][event]. Event columns: Trigger, Cancel, ModeChange,
// CAFModeChange, FocusDoneSuccess, FocusDoneFailure, StartScan, Idle.
var table = [modeCount][stateCount][eventCount]State{
	NonContinuous: {
		Inactive:               {as, in, in, xx, in, in, in, in},
		PassiveScan:            {xx, xx, in, xx, xx, xx, xx, ps},
		PassiveFocused:         {as, xx, in, xx, xx, xx, xx, pf},
		ActiveScan:             {as, in, in, xx, fl, nf, as, as},
		FocusedLocked:          {as, in, in, xx, fl, fl, fl, fl},
		NotFocusedLocked:       {as, in, in, xx, nf, nf, nf, nf},
		PassiveUnfocused:       {xx, xx, in, xx, xx, xx, xx, pu},
		PassiveScanWithTrigger: {xx, xx, in, xx, xx, xx, xx, pt},
	},
	ContinuousPicture: {
		Inactive:               {nf, in, in, in, pf, pu, ps, in},
		PassiveScan:            {pt, in, in, ps, pf, pu, ps, ps},
		PassiveFocused:         {fl, pf, in, pf, pf, pf, ps, pf},
		ActiveScan:             {as, as, in, as, as, as, as, as},
		FocusedLocked:          {fl, pf, in, pf, fl, fl, fl, fl},
		NotFocusedLocked:       {nf, pu, in, pu, nf, nf, nf, nf},
		PassiveUnfocused:       {nf, pu, in, pu, pu, pu, ps, pu},
		PassiveScanWithTrigger: {pt, in, in, pt, fl, nf, pt, pt},
	},
	ContinuousVideo: {
		Inactive:               {nf, in, in, in, pf, pu, ps, in},
		PassiveScan:            {nf, in, in, ps, pf, pu, ps, ps},
		PassiveFocused:         {fl, pf, in, pf, pf, pf, ps, pf},
		ActiveScan:             {as, as, in, as, as, as, as, as},
		FocusedLocked:          {fl, pf, in, pf, fl, fl, fl, fl},
		NotFocusedLocked:       {nf, pu, in, pu, nf, nf, nf, nf},
		PassiveUnfocused:       {nf, pu, in, pu, pu, pu, ps, pu},
		PassiveScanWithTrigger: {pt, in, in, pt, fl, nf, ps, pt},
	},
	ManualOrInfinity: {
		Inactive:               {in, in, in, in, in, in, in, in},
		PassiveScan:            {in, in, in, in, in, in, in, in},
		PassiveFocused:         {in, in, in, in, in, in, in, in},
		ActiveScan:             {in, in, in, in, in, in, in, in},
		FocusedLocked:          {in, in, in, in, in, in, in, in},
		NotFocusedLocked:       {in, in, in, in, in, in, in, in},
		PassiveUnfocused:       {in, in, in, in, in, in, in, in},
		PassiveScanWithTrigger: {in, in, in, in, in, in, in, in},
	},
}

package challenge

// Terminal reports whether a state admits no further transitions.
func (s State) Terminal() bool { return s == StateCompleted || s == StateCancelled }

// CanTransition reports whether the lifecycle allows moving from one state
// to another. Self-transitions are allowed (duplicate delivery is expected).
//
//	waiting -> active -> completed
//	waiting -> cancelled, active -> cancelled
func CanTransition(from, to State) bool {
	if from == to {
		return true
	}
	switch from {
	case StateWaiting:
		return to == StateActive || to == StateCancelled
	case StateActive:
		return to == StateCompleted || to == StateCancelled
	default:
		return false
	}
}

// NextState applies the guard: the result is to when the transition is
// legal, otherwise from is kept.
func NextState(from, to State) State {
	if CanTransition(from, to) {
		return to
	}
	return from
}

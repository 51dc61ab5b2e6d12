package reward

// validTransitions contains the permitted forward transitions of the
// rewarded-ad flow. AdLoaded can fall back to AdRequested when the SDK
// reports not-ready at show time.
var validTransitions = map[State][]State{
	StateIdle: {
		StateAdRequested,
	},
	StateAdRequested: {
		StateAdLoaded,
	},
	StateAdLoaded: {
		StateAdShown,
		StateAdRequested,
	},
	StateAdShown: {
		StateRewardEarned,
	},
	StateRewardEarned: {
		StateGranting,
	},
	StateGranting: {
		StateIdle,
	},
}

// IsTransitionAllowed reports whether moving from one state to another is valid.
func IsTransitionAllowed(from, to State) bool {
	if to == StateError || to == StateIdle {
		return true
	}

	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}

	for _, state := range allowed {
		if state == to {
			return true
		}
	}

	return false
}

package booking

// The appointment lifecycle:
//
//	pending   -> confirmed  (business confirms)
//	pending   -> cancelled  (customer or business cancels)
//	confirmed -> cancelled  (customer or business cancels)
//	confirmed -> completed  (time elapsed / business marks done)
//
// Completed and cancelled are terminal. Reschedules are never in-place
// time mutations; they are modeled as cancel-old + create-new so every
// new time goes through the same overlap-checked insert path.
var allowedTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusConfirmed: true,
		StatusCancelled: true,
	},
	StatusConfirmed: {
		StatusCompleted: true,
		StatusCancelled: true,
	},
}

// IsTerminal reports whether a status has no outgoing transitions.
func IsTerminal(s Status) bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether the state machine permits the move.
func CanTransition(from, to Status) bool {
	return allowedTransitions[from][to]
}

// CheckTransition returns InvalidTransitionError when the move is not
// permitted, signaling the caller must not apply it.
func CheckTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return invalidTransitionError(from, to)
	}
	return nil
}

// InitialStatus is the status a fresh booking starts in: confirmed for
// instant-book services, pending when the business must confirm first.
func InitialStatus(instantBook bool) Status {
	if instantBook {
		return StatusConfirmed
	}
	return StatusPending
}

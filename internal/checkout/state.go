package checkout

// State is where a checkout session is in the sale flow.
type State string

const (
	StateStarted                 State = "started"
	StateItemsAdded              State = "items_added"
	StateAgeVerified             State = "age_verified"
	StateNoAgeNeeded             State = "no_age_needed"
	StatePaymentSelected         State = "payment_selected"
	StateCashCompleted           State = "cash_completed"
	StateCardPendingConfirmation State = "card_pending_confirmation"
	StateCardCompleted           State = "card_completed"
	StateFailed                  State = "failed"
)

var transitions = map[State][]State{
	StateStarted:                 {StateItemsAdded, StateFailed},
	StateItemsAdded:              {StateItemsAdded, StateAgeVerified, StateNoAgeNeeded, StateFailed},
	StateAgeVerified:             {StateItemsAdded, StatePaymentSelected, StateFailed},
	StateNoAgeNeeded:             {StateItemsAdded, StateAgeVerified, StatePaymentSelected, StateFailed},
	StatePaymentSelected:         {StateCashCompleted, StateCardPendingConfirmation, StateFailed},
	StateCardPendingConfirmation: {StateCardCompleted, StateFailed},
}

func (s State) IsTerminal() bool {
	switch s {
	case StateCashCompleted, StateCardCompleted, StateFailed:
		return true
	default:
		return false
	}
}

func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s State) Valid() bool {
	if s.IsTerminal() {
		return true
	}
	_, ok := transitions[s]
	return ok
}

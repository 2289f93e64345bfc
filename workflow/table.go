package workflow

// TransitionRule is one row of the transition table. The table is the single
// source of truth for legal state changes; no code outside this package may
// assign an expense state.
type TransitionRule struct {
	Action  TransitionAction
	Sources []ExpenseState
	Target  ExpenseState

	// OwnerOnly restricts the transition to the expense's employee.
	OwnerOnly bool

	// Roles lists the roles allowed to invoke the transition. Empty means
	// ownership alone governs.
	Roles []UserRole

	// RequiresActiveApprover requires the actor's active approver flag.
	RequiresActiveApprover bool

	// RequiresReason requires a non-empty reason parameter.
	RequiresReason bool

	// ChecksApprovalLimit compares the expense amount against the actor's
	// approval limit.
	ChecksApprovalLimit bool

	// AssignedManagerOnly restricts manager-role actors to the expense's
	// assigned manager. Other allowed roles are unaffected.
	AssignedManagerOnly bool
}

// anyStateExcept lists every non-terminal state other than the transition's
// own target, for the two transitions that fire from "any" state.
func anyStateExcept(target ExpenseState) []ExpenseState {
	states := make([]ExpenseState, 0, len(AllExpenseStates))
	for _, state := range AllExpenseStates {
		if state.IsTerminal() || state == target {
			continue
		}
		states = append(states, state)
	}
	return states
}

var transitionTable = map[TransitionAction]TransitionRule{
	ActionSubmit: {
		Action:    ActionSubmit,
		Sources:   []ExpenseState{StateDraft},
		Target:    StateSubmitted,
		OwnerOnly: true,
	},
	ActionApprove: {
		Action:                 ActionApprove,
		Sources:                []ExpenseState{StateSubmitted},
		Target:                 StateApproved,
		Roles:                  []UserRole{RoleManager, RoleVP, RoleCFO},
		RequiresActiveApprover: true,
		ChecksApprovalLimit:    true,
		AssignedManagerOnly:    true,
	},
	ActionReject: {
		Action:                 ActionReject,
		Sources:                []ExpenseState{StateSubmitted, StateComplianceHold},
		Target:                 StateRejected,
		Roles:                  []UserRole{RoleManager, RoleVP, RoleCFO},
		RequiresActiveApprover: true,
		RequiresReason:         true,
	},
	ActionWithdraw: {
		Action:    ActionWithdraw,
		Sources:   []ExpenseState{StateSubmitted},
		Target:    StateDraft,
		OwnerOnly: true,
	},
	ActionProcessPayment: {
		Action:                 ActionProcessPayment,
		Sources:                []ExpenseState{StateApproved},
		Target:                 StatePaid,
		Roles:                  []UserRole{RoleFinance},
		RequiresActiveApprover: true,
	},
	ActionFlagSuspicious: {
		Action:                 ActionFlagSuspicious,
		Sources:                anyStateExcept(StateComplianceHold),
		Target:                 StateComplianceHold,
		Roles:                  []UserRole{RoleCompliance},
		RequiresActiveApprover: true,
		RequiresReason:         true,
	},
	ActionExecutiveOverride: {
		Action:                 ActionExecutiveOverride,
		Sources:                anyStateExcept(StateApproved),
		Target:                 StateApproved,
		Roles:                  []UserRole{RoleVP, RoleCFO},
		RequiresActiveApprover: true,
		RequiresReason:         true,
	},
}

// LookupTransition returns the table row for the action, or
// ErrUnknownTransition when no row exists.
func LookupTransition(action TransitionAction) (TransitionRule, error) {
	rule, ok := transitionTable[action]
	if !ok {
		return TransitionRule{}, ErrUnknownTransition
	}
	return rule, nil
}

// AllowsSource reports whether the rule may fire from the given state.
func (r TransitionRule) AllowsSource(state ExpenseState) bool {
	for _, source := range r.Sources {
		if source == state {
			return true
		}
	}
	return false
}

// AllowsRole reports whether the rule permits the given role. An empty role
// list permits every role.
func (r TransitionRule) AllowsRole(role UserRole) bool {
	if len(r.Roles) == 0 {
		return true
	}
	for _, allowed := range r.Roles {
		if allowed == role {
			return true
		}
	}
	return false
}

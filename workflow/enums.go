package workflow

import "fmt"

// ExpenseState is the lifecycle state of an expense. It only changes through
// the transition table in this package; nothing else may assign it.
type ExpenseState string

const (
	StateDraft          ExpenseState = "draft"
	StateSubmitted      ExpenseState = "submitted"
	StateApproved       ExpenseState = "approved"
	StateRejected       ExpenseState = "rejected"
	StatePaid           ExpenseState = "paid"
	StateComplianceHold ExpenseState = "compliance_hold"
)

var AllExpenseStates = []ExpenseState{
	StateDraft,
	StateSubmitted,
	StateApproved,
	StateRejected,
	StatePaid,
	StateComplianceHold,
}

func (s ExpenseState) IsValid() bool {
	switch s {
	case StateDraft, StateSubmitted, StateApproved, StateRejected, StatePaid, StateComplianceHold:
		return true
	}
	return false
}

// IsTerminal reports whether no transition may leave the state.
func (s ExpenseState) IsTerminal() bool {
	return s == StateRejected || s == StatePaid
}

func (s ExpenseState) String() string { return string(s) }

func ParseExpenseState(v string) (ExpenseState, error) {
	s := ExpenseState(v)
	if !s.IsValid() {
		return "", fmt.Errorf("%q is not a valid expense state", v)
	}
	return s, nil
}

// TransitionAction names an operation that may move an expense between states.
type TransitionAction string

const (
	ActionSubmit            TransitionAction = "submit"
	ActionApprove           TransitionAction = "approve"
	ActionReject            TransitionAction = "reject"
	ActionWithdraw          TransitionAction = "withdraw"
	ActionProcessPayment    TransitionAction = "process_payment"
	ActionFlagSuspicious    TransitionAction = "flag_suspicious"
	ActionExecutiveOverride TransitionAction = "executive_override"
)

var AllTransitionActions = []TransitionAction{
	ActionSubmit,
	ActionApprove,
	ActionReject,
	ActionWithdraw,
	ActionProcessPayment,
	ActionFlagSuspicious,
	ActionExecutiveOverride,
}

func (a TransitionAction) IsValid() bool {
	switch a {
	case ActionSubmit, ActionApprove, ActionReject, ActionWithdraw,
		ActionProcessPayment, ActionFlagSuspicious, ActionExecutiveOverride:
		return true
	}
	return false
}

func (a TransitionAction) String() string { return string(a) }

func ParseTransitionAction(v string) (TransitionAction, error) {
	a := TransitionAction(v)
	if !a.IsValid() {
		return "", fmt.Errorf("%q is not a valid transition action", v)
	}
	return a, nil
}

// UserRole is the closed role set. The authorization evaluator switches over
// it exhaustively; adding a role means revisiting every switch.
type UserRole string

const (
	RoleEmployee   UserRole = "employee"
	RoleManager    UserRole = "manager"
	RoleFinance    UserRole = "finance"
	RoleCompliance UserRole = "compliance"
	RoleVP         UserRole = "vp"
	RoleCFO        UserRole = "cfo"
)

var AllUserRoles = []UserRole{
	RoleEmployee,
	RoleManager,
	RoleFinance,
	RoleCompliance,
	RoleVP,
	RoleCFO,
}

func (r UserRole) IsValid() bool {
	switch r {
	case RoleEmployee, RoleManager, RoleFinance, RoleCompliance, RoleVP, RoleCFO:
		return true
	}
	return false
}

func (r UserRole) String() string { return string(r) }

func ParseUserRole(v string) (UserRole, error) {
	r := UserRole(v)
	if !r.IsValid() {
		return "", fmt.Errorf("%q is not a valid user role", v)
	}
	return r, nil
}

// ExpenseCategory classifies what the money was spent on.
type ExpenseCategory string

const (
	CategoryTravel        ExpenseCategory = "travel"
	CategoryMeals         ExpenseCategory = "meals"
	CategoryAccommodation ExpenseCategory = "accommodation"
	CategoryEntertainment ExpenseCategory = "entertainment"
	CategorySupplies      ExpenseCategory = "supplies"
	CategoryCapital       ExpenseCategory = "capital"
	CategoryOther         ExpenseCategory = "other"
)

var AllExpenseCategories = []ExpenseCategory{
	CategoryTravel,
	CategoryMeals,
	CategoryAccommodation,
	CategoryEntertainment,
	CategorySupplies,
	CategoryCapital,
	CategoryOther,
}

func (c ExpenseCategory) IsValid() bool {
	switch c {
	case CategoryTravel, CategoryMeals, CategoryAccommodation, CategoryEntertainment,
		CategorySupplies, CategoryCapital, CategoryOther:
		return true
	}
	return false
}

func (c ExpenseCategory) String() string { return string(c) }

func ParseExpenseCategory(v string) (ExpenseCategory, error) {
	c := ExpenseCategory(v)
	if !c.IsValid() {
		return "", fmt.Errorf("%q is not a valid expense category", v)
	}
	return c, nil
}

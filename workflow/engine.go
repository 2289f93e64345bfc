package workflow

import (
	"context"
	"time"
)

// Capability names an object-level permission granted to a party as part of
// a transition. Grants travel alongside the field mutations so the
// persistence layer can apply them in the same transaction as the state
// change.
type Capability string

const (
	CapabilityViewExpense    Capability = "view_expense"
	CapabilityChangeExpense  Capability = "change_expense"
	CapabilityApproveExpense Capability = "approve_expense"
)

// CapabilityGrant grants one capability on the expense to one user.
type CapabilityGrant struct {
	UserId     int
	Capability Capability
}

// Mutations lists every field write a transition produced. Nil means leave
// the field unchanged.
type Mutations struct {
	SubmittedAt      *time.Time
	ManagerId        *int
	FinanceUserId    *int
	ComplianceUserId *int

	// ClearSubmission resets SubmittedAt, ManagerId, FinanceUserId and
	// ComplianceUserId to unset as a group.
	ClearSubmission bool

	ApprovedAt     *time.Time
	ApprovedById   *int
	OverrideReason *string

	RejectedAt      *time.Time
	RejectionReason *string

	ProcessedAt   *time.Time
	ProcessedById *int
	Payment       *PaymentDetails

	FlaggedAt   *time.Time
	FlaggedById *int
	FlagReason  *string
}

// TransitionResult is the effect of an allowed transition. The engine never
// persists anything itself; the caller applies NewState, Mutations and
// Grants atomically under the optimistic version check.
type TransitionResult struct {
	Action    TransitionAction
	NewState  ExpenseState
	Mutations Mutations
	Grants    []CapabilityGrant
}

// Engine evaluates transition requests against the transition table, the
// authorization rules and the business rules. It holds no mutable state and
// is safe for concurrent use.
type Engine struct {
	Reader    ExpenseReader
	Directory PartyDirectory

	// RequireManager blocks submission when the employee has no assigned
	// manager instead of leaving the manager party unset.
	RequireManager bool

	// Now supplies the clock. Defaults to time.Now in UTC.
	Now func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

// RequestTransition evaluates the action against the snapshot and, when
// every guard passes, returns the target state plus the field mutations and
// capability grants to persist. Authorization is evaluated before business
// rules; either failing aborts with zero mutation. The error is
// ErrUnknownTransition for actions not in the table, *AuthorizationDenied or
// *RuleViolations for domain rejections, or a plain error for collaborator
// failures.
func (e *Engine) RequestTransition(ctx context.Context, snapshot *ExpenseSnapshot, actor *Actor, action TransitionAction, params TransitionParams) (*TransitionResult, error) {
	rule, err := LookupTransition(action)
	if err != nil {
		return nil, err
	}
	if err := EvaluateAuthorization(actor, snapshot, action); err != nil {
		return nil, err
	}

	now := e.now()
	if err := EvaluateBusinessRules(ctx, e.Reader, snapshot, actor, action, params, now); err != nil {
		return nil, err
	}

	result := &TransitionResult{Action: action, NewState: rule.Target}

	switch action {
	case ActionSubmit:
		parties, err := ResolveParties(ctx, e.Directory, snapshot.EmployeeId, e.RequireManager)
		if err != nil {
			return nil, err
		}
		result.Mutations.SubmittedAt = timePtr(now)
		if parties.Manager != nil {
			result.Mutations.ManagerId = intPtr(parties.Manager.ID)
			result.Grants = append(result.Grants,
				CapabilityGrant{UserId: parties.Manager.ID, Capability: CapabilityViewExpense},
				CapabilityGrant{UserId: parties.Manager.ID, Capability: CapabilityApproveExpense},
			)
		}
		if parties.Finance != nil {
			result.Mutations.FinanceUserId = intPtr(parties.Finance.ID)
			result.Grants = append(result.Grants,
				CapabilityGrant{UserId: parties.Finance.ID, Capability: CapabilityViewExpense})
		}
		if parties.Compliance != nil {
			result.Mutations.ComplianceUserId = intPtr(parties.Compliance.ID)
		}
	case ActionApprove:
		result.Mutations.ApprovedAt = timePtr(now)
		result.Mutations.ApprovedById = intPtr(actor.ID)
	case ActionReject:
		result.Mutations.RejectedAt = timePtr(now)
		result.Mutations.RejectionReason = strPtr(params.Reason)
	case ActionWithdraw:
		result.Mutations.ClearSubmission = true
	case ActionProcessPayment:
		result.Mutations.ProcessedAt = timePtr(now)
		result.Mutations.ProcessedById = intPtr(actor.ID)
		result.Mutations.Payment = BuildPaymentDetails(snapshot, now)
	case ActionFlagSuspicious:
		result.Mutations.FlaggedAt = timePtr(now)
		result.Mutations.FlaggedById = intPtr(actor.ID)
		result.Mutations.FlagReason = strPtr(params.Reason)
	case ActionExecutiveOverride:
		result.Mutations.ApprovedAt = timePtr(now)
		result.Mutations.ApprovedById = intPtr(actor.ID)
		result.Mutations.OverrideReason = strPtr(params.Reason)
	}

	return result, nil
}

func intPtr(v int) *int              { return &v }
func strPtr(v string) *string        { return &v }
func timePtr(v time.Time) *time.Time { return &v }

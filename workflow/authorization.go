package workflow

import "fmt"

// EvaluateAuthorization decides whether the actor may invoke the action on
// the expense, independent of business rules. A nil return means allow; a
// domain refusal comes back as *AuthorizationDenied. Evaluation order is
// state, role, ownership, amount limit, so the caller always learns the
// earliest gate that failed.
func EvaluateAuthorization(actor *Actor, snapshot *ExpenseSnapshot, action TransitionAction) error {
	rule, err := LookupTransition(action)
	if err != nil {
		return err
	}
	if !actor.Role.IsValid() {
		return fmt.Errorf("unknown user role %q", actor.Role)
	}

	if !rule.AllowsSource(snapshot.State) {
		return &AuthorizationDenied{
			Action: action,
			Reason: DenyWrongState,
			Detail: fmt.Sprintf("cannot %s an expense in state %s", action, snapshot.State),
		}
	}

	if !rule.AllowsRole(actor.Role) {
		return &AuthorizationDenied{
			Action: action,
			Reason: DenyWrongRole,
			Detail: fmt.Sprintf("role %s may not %s expenses", actor.Role, action),
		}
	}
	if rule.RequiresActiveApprover && !actor.IsActiveApprover {
		return &AuthorizationDenied{
			Action: action,
			Reason: DenyWrongRole,
			Detail: "actor is not an active approver",
		}
	}

	if rule.OwnerOnly && actor.ID != snapshot.EmployeeId {
		return &AuthorizationDenied{
			Action: action,
			Reason: DenyNotOwner,
			Detail: "only the expense owner may " + string(action),
		}
	}
	if rule.AssignedManagerOnly && actor.Role == RoleManager && actor.ID != snapshot.ManagerId {
		return &AuthorizationDenied{
			Action: action,
			Reason: DenyNotOwner,
			Detail: "only the assigned manager may approve this expense",
		}
	}

	if rule.ChecksApprovalLimit && actor.ApprovalLimit.LessThan(snapshot.Amount) {
		return &AuthorizationDenied{
			Action: action,
			Reason: DenyLimitExceeded,
			Detail: fmt.Sprintf("amount %s exceeds approval limit %s",
				snapshot.Amount.StringFixed(2), actor.ApprovalLimit.StringFixed(2)),
		}
	}

	return nil
}

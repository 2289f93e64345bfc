package workflow

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ExpenseSnapshot is the engine's read-only view of one expense. The
// persistence layer builds it from the stored row inside the transaction that
// will also commit the transition, so the Version here is the version the
// optimistic check runs against.
type ExpenseSnapshot struct {
	ID          int
	EmployeeId  int
	State       ExpenseState
	Amount      decimal.Decimal
	Currency    string
	Category    ExpenseCategory
	Vendor      string
	Description string
	ExpenseDate time.Time
	CreatedAt   time.Time
	SubmittedAt *time.Time
	Version     int

	// Assigned parties, zero when unassigned.
	ManagerId        int
	FinanceUserId    int
	ComplianceUserId int

	// Department of the owning employee, used for budget lookups.
	Department string
}

// Actor is the engine's view of the user requesting a transition.
type Actor struct {
	ID                  int
	Username            string
	Name                string
	Role                UserRole
	Department          string
	IsActiveApprover    bool
	ApprovalLimit       decimal.Decimal
	MonthlyExpenseLimit decimal.Decimal
}

// CanApproveExpenses reports whether the actor's role sits in the approval
// chain at all. The per-amount limit is checked separately.
func (a *Actor) CanApproveExpenses() bool {
	switch a.Role {
	case RoleManager, RoleVP, RoleCFO:
		return true
	}
	return false
}

// CanProcessPayments reports whether the actor may move approved expenses to
// paid.
func (a *Actor) CanProcessPayments() bool {
	return a.Role == RoleFinance
}

// CanAudit reports whether the actor may flag expenses for review.
func (a *Actor) CanAudit() bool {
	return a.Role == RoleCompliance
}

// CanOverride reports whether the actor may execute an executive override.
func (a *Actor) CanOverride() bool {
	return a.Role == RoleVP || a.Role == RoleCFO
}

// TransitionParams carries the per-request inputs of a transition.
type TransitionParams struct {
	Reason string
}

// Party identifies a user resolved into an approval role for an expense.
type Party struct {
	ID       int
	Username string
	Name     string
	Role     UserRole
}

// ExpenseReader supplies the aggregate facts the rule evaluators need but a
// single snapshot cannot carry. The persistence layer implements it against
// the same transaction as the commit.
type ExpenseReader interface {
	// MonthlySubmitted returns the total amount of every expense the
	// employee created on or after the start of the calendar month of asOf,
	// regardless of state, excluding the expense identified by exceptId.
	MonthlySubmitted(ctx context.Context, employeeId int, asOf time.Time, exceptId int) (decimal.Decimal, error)

	// HasDuplicate reports whether another expense by the same employee has
	// the same amount, vendor and expense date.
	HasDuplicate(ctx context.Context, snapshot *ExpenseSnapshot) (bool, error)

	// ReceiptCount returns the number of receipts attached to the expense.
	ReceiptCount(ctx context.Context, expenseId int) (int64, error)

	// HasPayment reports whether the expense already carries payment details
	// or has a payment event queued for it.
	HasPayment(ctx context.Context, expenseId int) (bool, error)
}

// PartyDirectory resolves users into approval parties.
type PartyDirectory interface {
	// ManagerOf returns the employee's assigned manager, or nil when none is
	// assigned.
	ManagerOf(ctx context.Context, employeeId int) (*Party, error)

	// FindActiveByRole returns the first active user with the given role,
	// ordered by id, optionally restricted to a department. An empty
	// department matches any. Returns nil when nobody qualifies.
	FindActiveByRole(ctx context.Context, role UserRole, department string) (*Party, error)
}

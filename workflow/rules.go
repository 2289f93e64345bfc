package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	MinDescriptionLength = 10
	MaxExpenseAgeDays    = 90
)

var (
	// ReceiptRequiredThreshold is the amount above which at least one
	// receipt must be attached before submission.
	ReceiptRequiredThreshold = decimal.NewFromFloat(25.00)

	// EntertainmentExecutiveThreshold is the amount above which an
	// entertainment expense needs vp or cfo approval.
	EntertainmentExecutiveThreshold = decimal.NewFromFloat(200.00)

	// DefaultDepartmentBudget applies to departments without an explicit
	// budget row.
	DefaultDepartmentBudget = decimal.NewFromInt(30000)

	departmentBudgets = map[string]decimal.Decimal{
		"Engineering": decimal.NewFromInt(75000),
		"Marketing":   decimal.NewFromInt(45000),
		"Sales":       decimal.NewFromInt(60000),
		"Finance":     decimal.NewFromInt(25000),
		"HR":          decimal.NewFromInt(15000),
	}

	blacklistedVendors = map[string]bool{
		"VENDOR_BLACKLISTED": true,
		"SUSPICIOUS_CORP":    true,
		"FRAUD_COMPANY":      true,
	}
)

const blockedVendorMarker = "_BLOCKED"

// RequiresReceipt reports whether the amount is above the receipt threshold.
func RequiresReceipt(amount decimal.Decimal) bool {
	return amount.GreaterThan(ReceiptRequiredThreshold)
}

// IsVendorBlacklisted reports whether the vendor is on the denylist or
// carries the blocked marker.
func IsVendorBlacklisted(vendorId string) bool {
	if blacklistedVendors[vendorId] {
		return true
	}
	return strings.Contains(vendorId, blockedVendorMarker)
}

// RemainingDepartmentBudget returns the configured ceiling for the
// department. This is a static lookup, not a running balance net of already
// approved spend.
func RemainingDepartmentBudget(department string) decimal.Decimal {
	if budget, ok := departmentBudgets[department]; ok {
		return budget
	}
	return DefaultDepartmentBudget
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// EvaluateBusinessRules checks the domain invariants of the action against
// the snapshot. A nil return means every rule passed. Rule failures come back
// as *RuleViolations carrying every rule that failed, not just the first, so
// the caller can report the full list in one round trip. Reader failures are
// returned as plain errors.
func EvaluateBusinessRules(ctx context.Context, reader ExpenseReader, snapshot *ExpenseSnapshot, actor *Actor, action TransitionAction, params TransitionParams, now time.Time) error {
	rule, err := LookupTransition(action)
	if err != nil {
		return err
	}

	var violations []Violation
	if rule.RequiresReason && strings.TrimSpace(params.Reason) == "" {
		violations = append(violations, Violation{
			Code:    ViolationMissingReason,
			Message: "a non-empty reason is required for " + string(action),
		})
	}

	switch action {
	case ActionSubmit:
		submitViolations, err := evaluateSubmitRules(ctx, reader, snapshot, actor, now)
		if err != nil {
			return err
		}
		violations = append(violations, submitViolations...)
	case ActionApprove:
		violations = append(violations, evaluateApproveRules(snapshot, actor)...)
	case ActionProcessPayment:
		alreadyPaid, err := reader.HasPayment(ctx, snapshot.ID)
		if err != nil {
			return err
		}
		if alreadyPaid {
			violations = append(violations, Violation{
				Code:    ViolationDuplicatePayment,
				Message: "a payment has already been recorded for this expense",
			})
		}
	}

	if len(violations) > 0 {
		return &RuleViolations{Action: action, Violations: violations}
	}
	return nil
}

func evaluateSubmitRules(ctx context.Context, reader ExpenseReader, snapshot *ExpenseSnapshot, actor *Actor, now time.Time) ([]Violation, error) {
	var violations []Violation

	if !snapshot.Amount.IsPositive() {
		violations = append(violations, Violation{
			Code:    ViolationNonPositiveAmount,
			Message: "amount must be greater than zero",
		})
	}
	if len(strings.TrimSpace(snapshot.Description)) < MinDescriptionLength {
		violations = append(violations, Violation{
			Code:    ViolationInvalidDescription,
			Message: fmt.Sprintf("description must be at least %d characters", MinDescriptionLength),
		})
	}

	expenseDate := dateOnly(snapshot.ExpenseDate)
	today := dateOnly(now)
	if expenseDate.After(today) {
		violations = append(violations, Violation{
			Code:    ViolationFutureDated,
			Message: "expense date cannot be in the future",
		})
	} else if expenseDate.Before(today.AddDate(0, 0, -MaxExpenseAgeDays)) {
		violations = append(violations, Violation{
			Code:    ViolationExpenseTooOld,
			Message: fmt.Sprintf("expense date is more than %d days old", MaxExpenseAgeDays),
		})
	}

	if RequiresReceipt(snapshot.Amount) {
		receiptCount, err := reader.ReceiptCount(ctx, snapshot.ID)
		if err != nil {
			return nil, err
		}
		if receiptCount == 0 {
			violations = append(violations, Violation{
				Code:    ViolationMissingReceipt,
				Message: fmt.Sprintf("a receipt is required for expenses over %s", ReceiptRequiredThreshold.StringFixed(2)),
			})
		}
	}

	alreadySubmitted, err := reader.MonthlySubmitted(ctx, snapshot.EmployeeId, now, snapshot.ID)
	if err != nil {
		return nil, err
	}
	if alreadySubmitted.Add(snapshot.Amount).GreaterThan(actor.MonthlyExpenseLimit) {
		violations = append(violations, Violation{
			Code: ViolationMonthlyLimitExceeded,
			Message: fmt.Sprintf("monthly total %s would exceed the limit of %s",
				alreadySubmitted.Add(snapshot.Amount).StringFixed(2), actor.MonthlyExpenseLimit.StringFixed(2)),
		})
	}

	if IsVendorBlacklisted(snapshot.Vendor) {
		violations = append(violations, Violation{
			Code:    ViolationBlacklistedVendor,
			Message: "vendor " + snapshot.Vendor + " is blacklisted",
		})
	}

	duplicate, err := reader.HasDuplicate(ctx, snapshot)
	if err != nil {
		return nil, err
	}
	if duplicate {
		violations = append(violations, Violation{
			Code:    ViolationDuplicateExpense,
			Message: "an identical expense already exists for this employee",
		})
	}

	return violations, nil
}

func evaluateApproveRules(snapshot *ExpenseSnapshot, actor *Actor) []Violation {
	var violations []Violation

	budget := RemainingDepartmentBudget(snapshot.Department)
	if snapshot.Amount.GreaterThan(budget) {
		violations = append(violations, Violation{
			Code: ViolationBudgetExceeded,
			Message: fmt.Sprintf("amount %s exceeds the %s budget of %s",
				snapshot.Amount.StringFixed(2), budgetLabel(snapshot.Department), budget.StringFixed(2)),
		})
	}

	if snapshot.Category == CategoryEntertainment &&
		snapshot.Amount.GreaterThan(EntertainmentExecutiveThreshold) &&
		actor.Role != RoleVP && actor.Role != RoleCFO {
		violations = append(violations, Violation{
			Code: ViolationEntertainmentRequiresExecutive,
			Message: fmt.Sprintf("entertainment expenses over %s require vp or cfo approval",
				EntertainmentExecutiveThreshold.StringFixed(2)),
		})
	}

	return violations
}

func budgetLabel(department string) string {
	if department == "" {
		return "default department"
	}
	return department + " department"
}

package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func evaluateSubmit(t *testing.T, reader *fakeReader, snapshot *ExpenseSnapshot, actor *Actor) error {
	t.Helper()
	return EvaluateBusinessRules(context.Background(), reader, snapshot, actor, ActionSubmit, TransitionParams{}, testClock)
}

func assertSingleViolation(t *testing.T, err error, code ViolationCode) {
	t.Helper()
	violations, ok := AsRuleViolations(err)
	if !ok {
		t.Fatalf("expected rule violations, got %v", err)
	}
	if len(violations.Violations) != 1 || !violations.Has(code) {
		t.Fatalf("expected exactly one %s violation, got %+v", code, violations.Violations)
	}
}

func TestBusinessRules_ReceiptRequiredOverThreshold(t *testing.T) {
	snapshot := draftSnapshot()
	snapshot.Amount = decimal.NewFromFloat(30.00)

	reader := permissiveReader()
	reader.receipts = 0
	assertSingleViolation(t, evaluateSubmit(t, reader, snapshot, employeeActor()), ViolationMissingReceipt)

	reader.receipts = 1
	if err := evaluateSubmit(t, reader, snapshot, employeeActor()); err != nil {
		t.Fatalf("expected submission to pass with a receipt: %v", err)
	}

	// the threshold itself needs no receipt
	snapshot.Amount = decimal.NewFromFloat(25.00)
	reader.receipts = 0
	if err := evaluateSubmit(t, reader, snapshot, employeeActor()); err != nil {
		t.Fatalf("expected 25.00 to pass without a receipt: %v", err)
	}
}

func TestBusinessRules_MonthlyLimitBoundary(t *testing.T) {
	reader := permissiveReader()
	reader.monthly = decimal.NewFromFloat(1995.00)

	snapshot := draftSnapshot()
	snapshot.Amount = decimal.NewFromFloat(10.00)
	assertSingleViolation(t, evaluateSubmit(t, reader, snapshot, employeeActor()), ViolationMonthlyLimitExceeded)

	snapshot.Amount = decimal.NewFromFloat(5.00)
	if err := evaluateSubmit(t, reader, snapshot, employeeActor()); err != nil {
		t.Fatalf("expected submission at exactly the monthly limit to pass: %v", err)
	}
}

func TestBusinessRules_VendorBlacklist(t *testing.T) {
	blocked := []string{"VENDOR_BLACKLISTED", "SUSPICIOUS_CORP", "FRAUD_COMPANY", "ACME_BLOCKED_LLC"}
	for _, vendor := range blocked {
		snapshot := draftSnapshot()
		snapshot.Vendor = vendor
		assertSingleViolation(t, evaluateSubmit(t, permissiveReader(), snapshot, employeeActor()), ViolationBlacklistedVendor)
	}

	snapshot := draftSnapshot()
	snapshot.Vendor = "ACME_SUPPLIES"
	if err := evaluateSubmit(t, permissiveReader(), snapshot, employeeActor()); err != nil {
		t.Fatalf("expected clean vendor to pass: %v", err)
	}
}

func TestBusinessRules_DuplicateExpense(t *testing.T) {
	reader := permissiveReader()
	reader.duplicate = true

	assertSingleViolation(t, evaluateSubmit(t, reader, draftSnapshot(), employeeActor()), ViolationDuplicateExpense)
}

func TestBusinessRules_ExpenseDateWindow(t *testing.T) {
	reader := permissiveReader()

	snapshot := draftSnapshot()
	snapshot.ExpenseDate = testClock.AddDate(0, 0, 1)
	assertSingleViolation(t, evaluateSubmit(t, reader, snapshot, employeeActor()), ViolationFutureDated)

	snapshot.ExpenseDate = testClock.AddDate(0, 0, -91)
	assertSingleViolation(t, evaluateSubmit(t, reader, snapshot, employeeActor()), ViolationExpenseTooOld)

	snapshot.ExpenseDate = testClock.AddDate(0, 0, -90)
	if err := evaluateSubmit(t, reader, snapshot, employeeActor()); err != nil {
		t.Fatalf("expected 90 day old expense to pass: %v", err)
	}

	snapshot.ExpenseDate = testClock
	if err := evaluateSubmit(t, reader, snapshot, employeeActor()); err != nil {
		t.Fatalf("expected same-day expense to pass: %v", err)
	}
}

func TestBusinessRules_DescriptionAndAmount(t *testing.T) {
	snapshot := draftSnapshot()
	snapshot.Description = "Taxi     \t "
	assertSingleViolation(t, evaluateSubmit(t, permissiveReader(), snapshot, employeeActor()), ViolationInvalidDescription)

	snapshot = draftSnapshot()
	snapshot.Amount = decimal.Zero
	assertSingleViolation(t, evaluateSubmit(t, permissiveReader(), snapshot, employeeActor()), ViolationNonPositiveAmount)
}

func TestBusinessRules_SubmitCollectsEveryViolation(t *testing.T) {
	reader := permissiveReader()
	reader.receipts = 0
	reader.duplicate = true
	reader.monthly = decimal.Zero

	snapshot := draftSnapshot()
	snapshot.Amount = decimal.NewFromInt(5000)
	snapshot.Description = "short"
	snapshot.Vendor = "FRAUD_COMPANY"
	snapshot.ExpenseDate = testClock.AddDate(0, 0, 2)

	err := EvaluateBusinessRules(context.Background(), reader, snapshot, employeeActor(), ActionSubmit, TransitionParams{}, testClock)
	violations, ok := AsRuleViolations(err)
	if !ok {
		t.Fatalf("expected rule violations, got %v", err)
	}
	expected := []ViolationCode{
		ViolationInvalidDescription,
		ViolationFutureDated,
		ViolationMissingReceipt,
		ViolationMonthlyLimitExceeded,
		ViolationBlacklistedVendor,
		ViolationDuplicateExpense,
	}
	if len(violations.Violations) != len(expected) {
		t.Fatalf("expected %d violations, got %+v", len(expected), violations.Violations)
	}
	for _, code := range expected {
		if !violations.Has(code) {
			t.Fatalf("expected %s among violations: %+v", code, violations.Violations)
		}
	}
}

func TestBusinessRules_EntertainmentNeedsExecutive(t *testing.T) {
	snapshot := submittedSnapshot()
	snapshot.Category = CategoryEntertainment
	snapshot.Amount = decimal.NewFromFloat(250.00)

	err := EvaluateBusinessRules(context.Background(), permissiveReader(), snapshot, managerActor(), ActionApprove, TransitionParams{}, testClock)
	assertSingleViolation(t, err, ViolationEntertainmentRequiresExecutive)

	if err := EvaluateBusinessRules(context.Background(), permissiveReader(), snapshot, vpActor(), ActionApprove, TransitionParams{}, testClock); err != nil {
		t.Fatalf("expected vp approval of entertainment to pass: %v", err)
	}

	// at the threshold a manager may still approve
	snapshot.Amount = decimal.NewFromFloat(200.00)
	if err := EvaluateBusinessRules(context.Background(), permissiveReader(), snapshot, managerActor(), ActionApprove, TransitionParams{}, testClock); err != nil {
		t.Fatalf("expected manager approval at 200.00 to pass: %v", err)
	}
}

func TestBusinessRules_DepartmentBudgetCeiling(t *testing.T) {
	snapshot := submittedSnapshot()
	snapshot.Department = "HR"
	snapshot.Amount = decimal.NewFromInt(15001)

	err := EvaluateBusinessRules(context.Background(), permissiveReader(), snapshot, vpActor(), ActionApprove, TransitionParams{}, testClock)
	assertSingleViolation(t, err, ViolationBudgetExceeded)

	snapshot.Amount = decimal.NewFromInt(15000)
	if err := EvaluateBusinessRules(context.Background(), permissiveReader(), snapshot, vpActor(), ActionApprove, TransitionParams{}, testClock); err != nil {
		t.Fatalf("expected amount at the budget ceiling to pass: %v", err)
	}

	// unknown departments fall back to the default ceiling
	snapshot.Department = "Field Ops"
	snapshot.Amount = decimal.NewFromInt(30001)
	err = EvaluateBusinessRules(context.Background(), permissiveReader(), snapshot, vpActor(), ActionApprove, TransitionParams{}, testClock)
	assertSingleViolation(t, err, ViolationBudgetExceeded)
}

func TestBusinessRules_DuplicatePaymentBlocked(t *testing.T) {
	reader := permissiveReader()
	reader.hasPayment = true

	snapshot := submittedSnapshot()
	snapshot.State = StateApproved

	err := EvaluateBusinessRules(context.Background(), reader, snapshot, financeActor(), ActionProcessPayment, TransitionParams{}, testClock)
	assertSingleViolation(t, err, ViolationDuplicatePayment)

	reader.hasPayment = false
	if err := EvaluateBusinessRules(context.Background(), reader, snapshot, financeActor(), ActionProcessPayment, TransitionParams{}, testClock); err != nil {
		t.Fatalf("expected payment processing to pass: %v", err)
	}
}

func TestBusinessRules_ReasonRequired(t *testing.T) {
	for _, action := range []TransitionAction{ActionReject, ActionFlagSuspicious, ActionExecutiveOverride} {
		err := EvaluateBusinessRules(context.Background(), permissiveReader(), submittedSnapshot(), vpActor(), action, TransitionParams{}, testClock)
		violations, ok := AsRuleViolations(err)
		if !ok {
			t.Fatalf("%s: expected rule violations, got %v", action, err)
		}
		if !violations.Has(ViolationMissingReason) {
			t.Fatalf("%s: expected MissingReason, got %+v", action, violations.Violations)
		}

		err = EvaluateBusinessRules(context.Background(), permissiveReader(), submittedSnapshot(), vpActor(), action, TransitionParams{Reason: "Documented policy concern"}, testClock)
		if err != nil {
			t.Fatalf("%s: expected pass with a reason, got %v", action, err)
		}
	}
}

// The monthly aggregation window is anchored at evaluation time and the
// expense under evaluation is excluded from it.
func TestBusinessRules_MonthlyWindowAnchor(t *testing.T) {
	reader := &recordingReader{fakeReader: *permissiveReader()}

	err := EvaluateBusinessRules(context.Background(), reader, draftSnapshot(), employeeActor(), ActionSubmit, TransitionParams{}, testClock)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !reader.gotAsOf.Equal(testClock) {
		t.Fatalf("expected monthly window anchored at %v, got %v", testClock, reader.gotAsOf)
	}
	if reader.gotExceptId != 7 {
		t.Fatalf("expected the expense itself (id 7) excluded from the sum, got %d", reader.gotExceptId)
	}
}

type recordingReader struct {
	fakeReader
	gotAsOf     time.Time
	gotExceptId int
}

func (r *recordingReader) MonthlySubmitted(ctx context.Context, employeeId int, asOf time.Time, exceptId int) (decimal.Decimal, error) {
	r.gotAsOf = asOf
	r.gotExceptId = exceptId
	return r.monthly, nil
}

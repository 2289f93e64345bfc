package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NOTE: These tests are intentionally DB-free. The Reader and Directory
// collaborators are faked; DB-backed behavior (optimistic version check,
// monthly aggregation SQL) is covered by the models integration tests.

type fakeReader struct {
	monthly    decimal.Decimal
	duplicate  bool
	receipts   int64
	hasPayment bool
}

func (r *fakeReader) MonthlySubmitted(ctx context.Context, employeeId int, asOf time.Time, exceptId int) (decimal.Decimal, error) {
	return r.monthly, nil
}

func (r *fakeReader) HasDuplicate(ctx context.Context, snapshot *ExpenseSnapshot) (bool, error) {
	return r.duplicate, nil
}

func (r *fakeReader) ReceiptCount(ctx context.Context, expenseId int) (int64, error) {
	return r.receipts, nil
}

func (r *fakeReader) HasPayment(ctx context.Context, expenseId int) (bool, error) {
	return r.hasPayment, nil
}

type fakeDirectory struct {
	manager    *Party
	finance    *Party
	compliance *Party
}

func (d *fakeDirectory) ManagerOf(ctx context.Context, employeeId int) (*Party, error) {
	return d.manager, nil
}

func (d *fakeDirectory) FindActiveByRole(ctx context.Context, role UserRole, department string) (*Party, error) {
	switch role {
	case RoleFinance:
		return d.finance, nil
	case RoleCompliance:
		return d.compliance, nil
	}
	return nil, nil
}

var testClock = time.Date(2025, 3, 15, 10, 30, 0, 0, time.UTC)

func newTestEngine(reader *fakeReader, directory *fakeDirectory) *Engine {
	return &Engine{
		Reader:    reader,
		Directory: directory,
		Now:       func() time.Time { return testClock },
	}
}

func permissiveReader() *fakeReader {
	return &fakeReader{monthly: decimal.Zero, receipts: 1}
}

func stdDirectory() *fakeDirectory {
	return &fakeDirectory{
		manager:    &Party{ID: 2, Username: "manager1", Role: RoleManager},
		finance:    &Party{ID: 4, Username: "finance1", Role: RoleFinance},
		compliance: &Party{ID: 5, Username: "compliance1", Role: RoleCompliance},
	}
}

func draftSnapshot() *ExpenseSnapshot {
	return &ExpenseSnapshot{
		ID:          7,
		EmployeeId:  1,
		State:       StateDraft,
		Amount:      decimal.NewFromFloat(120.50),
		Currency:    "USD",
		Category:    CategoryTravel,
		Vendor:      "ACME_TRAVEL",
		Description: "Quarterly client visit flights",
		ExpenseDate: time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC),
		CreatedAt:   time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
		Version:     1,
		Department:  "Engineering",
	}
}

func submittedSnapshot() *ExpenseSnapshot {
	s := draftSnapshot()
	s.State = StateSubmitted
	submittedAt := time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)
	s.SubmittedAt = &submittedAt
	s.ManagerId = 2
	s.FinanceUserId = 4
	s.ComplianceUserId = 5
	return s
}

func employeeActor() *Actor {
	return &Actor{
		ID: 1, Username: "employee1", Role: RoleEmployee, Department: "Engineering",
		IsActiveApprover:    true,
		ApprovalLimit:       decimal.Zero,
		MonthlyExpenseLimit: decimal.NewFromInt(2000),
	}
}

func managerActor() *Actor {
	return &Actor{
		ID: 2, Username: "manager1", Role: RoleManager, Department: "Engineering",
		IsActiveApprover:    true,
		ApprovalLimit:       decimal.NewFromInt(5000),
		MonthlyExpenseLimit: decimal.NewFromInt(5000),
	}
}

func financeActor() *Actor {
	return &Actor{
		ID: 4, Username: "finance1", Role: RoleFinance, Department: "Finance",
		IsActiveApprover:    true,
		ApprovalLimit:       decimal.NewFromInt(5000),
		MonthlyExpenseLimit: decimal.NewFromInt(10000),
	}
}

func complianceActor() *Actor {
	return &Actor{
		ID: 5, Username: "compliance1", Role: RoleCompliance, Department: "Compliance",
		IsActiveApprover:    true,
		ApprovalLimit:       decimal.NewFromInt(5000),
		MonthlyExpenseLimit: decimal.NewFromInt(5000),
	}
}

func vpActor() *Actor {
	return &Actor{
		ID: 3, Username: "vp1", Role: RoleVP, Department: "Executive",
		IsActiveApprover:    true,
		ApprovalLimit:       decimal.NewFromInt(50000),
		MonthlyExpenseLimit: decimal.NewFromInt(15000),
	}
}

// Every (state, action) pair outside the transition table must be refused
// with a WrongState denial; every pair inside it must succeed for the right
// actor.
func TestRequestTransition_OnlyTableEdgesSucceed(t *testing.T) {
	actorFor := map[TransitionAction]*Actor{
		ActionSubmit:            employeeActor(),
		ActionApprove:           managerActor(),
		ActionReject:            managerActor(),
		ActionWithdraw:          employeeActor(),
		ActionProcessPayment:    financeActor(),
		ActionFlagSuspicious:    complianceActor(),
		ActionExecutiveOverride: vpActor(),
	}
	allowedFrom := map[TransitionAction][]ExpenseState{
		ActionSubmit:            {StateDraft},
		ActionApprove:           {StateSubmitted},
		ActionReject:            {StateSubmitted, StateComplianceHold},
		ActionWithdraw:          {StateSubmitted},
		ActionProcessPayment:    {StateApproved},
		ActionFlagSuspicious:    {StateDraft, StateSubmitted, StateApproved},
		ActionExecutiveOverride: {StateDraft, StateSubmitted, StateComplianceHold},
	}
	targetFor := map[TransitionAction]ExpenseState{
		ActionSubmit:            StateSubmitted,
		ActionApprove:           StateApproved,
		ActionReject:            StateRejected,
		ActionWithdraw:          StateDraft,
		ActionProcessPayment:    StatePaid,
		ActionFlagSuspicious:    StateComplianceHold,
		ActionExecutiveOverride: StateApproved,
	}

	engine := newTestEngine(permissiveReader(), stdDirectory())
	params := TransitionParams{Reason: "Routine policy review"}

	for _, action := range AllTransitionActions {
		allowed := map[ExpenseState]bool{}
		for _, state := range allowedFrom[action] {
			allowed[state] = true
		}
		for _, state := range AllExpenseStates {
			snapshot := draftSnapshot()
			snapshot.State = state
			snapshot.ManagerId = 2

			result, err := engine.RequestTransition(context.Background(), snapshot, actorFor[action], action, params)
			if allowed[state] {
				if err != nil {
					t.Fatalf("%s from %s: expected success, got %v", action, state, err)
				}
				if result.NewState != targetFor[action] {
					t.Fatalf("%s from %s: expected new state %s, got %s", action, state, targetFor[action], result.NewState)
				}
				continue
			}
			denied, ok := AsAuthorizationDenied(err)
			if !ok {
				t.Fatalf("%s from %s: expected authorization denial, got %v", action, state, err)
			}
			if denied.Reason != DenyWrongState {
				t.Fatalf("%s from %s: expected WrongState denial, got %s", action, state, denied.Reason)
			}
		}
	}
}

func TestRequestTransition_SubmitResolvesPartiesAndGrants(t *testing.T) {
	engine := newTestEngine(permissiveReader(), stdDirectory())

	result, err := engine.RequestTransition(context.Background(), draftSnapshot(), employeeActor(), ActionSubmit, TransitionParams{})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.NewState != StateSubmitted {
		t.Fatalf("expected state submitted, got %s", result.NewState)
	}
	if result.Mutations.SubmittedAt == nil || !result.Mutations.SubmittedAt.Equal(testClock) {
		t.Fatalf("expected submitted_at %v, got %v", testClock, result.Mutations.SubmittedAt)
	}
	if result.Mutations.ManagerId == nil || *result.Mutations.ManagerId != 2 {
		t.Fatalf("expected manager id 2, got %v", result.Mutations.ManagerId)
	}
	if result.Mutations.FinanceUserId == nil || *result.Mutations.FinanceUserId != 4 {
		t.Fatalf("expected finance user id 4, got %v", result.Mutations.FinanceUserId)
	}
	if result.Mutations.ComplianceUserId == nil || *result.Mutations.ComplianceUserId != 5 {
		t.Fatalf("expected compliance user id 5, got %v", result.Mutations.ComplianceUserId)
	}

	wantGrants := []CapabilityGrant{
		{UserId: 2, Capability: CapabilityViewExpense},
		{UserId: 2, Capability: CapabilityApproveExpense},
		{UserId: 4, Capability: CapabilityViewExpense},
	}
	if len(result.Grants) != len(wantGrants) {
		t.Fatalf("expected %d grants, got %d: %+v", len(wantGrants), len(result.Grants), result.Grants)
	}
	for i, want := range wantGrants {
		if result.Grants[i] != want {
			t.Fatalf("grant %d: expected %+v, got %+v", i, want, result.Grants[i])
		}
	}
}

func TestRequestTransition_SubmitWithoutManager(t *testing.T) {
	directory := stdDirectory()
	directory.manager = nil

	engine := newTestEngine(permissiveReader(), directory)
	result, err := engine.RequestTransition(context.Background(), draftSnapshot(), employeeActor(), ActionSubmit, TransitionParams{})
	if err != nil {
		t.Fatalf("submit without manager should pass by default: %v", err)
	}
	if result.Mutations.ManagerId != nil {
		t.Fatalf("expected no manager assignment, got %v", *result.Mutations.ManagerId)
	}
	for _, grant := range result.Grants {
		if grant.Capability == CapabilityApproveExpense {
			t.Fatalf("no approve grant expected without a manager, got %+v", result.Grants)
		}
	}

	engine.RequireManager = true
	_, err = engine.RequestTransition(context.Background(), draftSnapshot(), employeeActor(), ActionSubmit, TransitionParams{})
	if !errors.Is(err, ErrNoManagerAssigned) {
		t.Fatalf("expected ErrNoManagerAssigned, got %v", err)
	}
}

func TestRequestTransition_WithdrawClearsSubmission(t *testing.T) {
	engine := newTestEngine(permissiveReader(), stdDirectory())

	result, err := engine.RequestTransition(context.Background(), submittedSnapshot(), employeeActor(), ActionWithdraw, TransitionParams{})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if result.NewState != StateDraft {
		t.Fatalf("expected state draft, got %s", result.NewState)
	}
	if !result.Mutations.ClearSubmission {
		t.Fatal("expected ClearSubmission to be set")
	}
	if result.Mutations.SubmittedAt != nil || result.Mutations.ManagerId != nil {
		t.Fatalf("withdraw must not set submission fields: %+v", result.Mutations)
	}
}

func TestRequestTransition_ProcessPaymentBuildsDetails(t *testing.T) {
	engine := newTestEngine(permissiveReader(), stdDirectory())
	snapshot := submittedSnapshot()
	snapshot.State = StateApproved

	result, err := engine.RequestTransition(context.Background(), snapshot, financeActor(), ActionProcessPayment, TransitionParams{})
	if err != nil {
		t.Fatalf("process payment: %v", err)
	}
	if result.NewState != StatePaid {
		t.Fatalf("expected state paid, got %s", result.NewState)
	}
	if result.Mutations.ProcessedById == nil || *result.Mutations.ProcessedById != 4 {
		t.Fatalf("expected processed_by 4, got %v", result.Mutations.ProcessedById)
	}
	payment := result.Mutations.Payment
	if payment == nil {
		t.Fatal("expected payment details")
	}
	if payment.PaymentMethod != PaymentMethodACH {
		t.Fatalf("expected payment method %s, got %s", PaymentMethodACH, payment.PaymentMethod)
	}
	if !payment.Amount.Equal(snapshot.Amount) || payment.Currency != snapshot.Currency || payment.VendorId != snapshot.Vendor {
		t.Fatalf("payment details do not match the expense: %+v", payment)
	}
	if _, err := uuid.Parse(payment.PaymentId); err != nil {
		t.Fatalf("payment id is not a uuid: %q", payment.PaymentId)
	}
	if !payment.ProcessedAt.Equal(testClock) {
		t.Fatalf("expected processed_at %v, got %v", testClock, payment.ProcessedAt)
	}
}

func TestRequestTransition_OverrideFromComplianceHold(t *testing.T) {
	engine := newTestEngine(permissiveReader(), stdDirectory())
	snapshot := submittedSnapshot()
	snapshot.State = StateComplianceHold

	result, err := engine.RequestTransition(context.Background(), snapshot, vpActor(), ActionExecutiveOverride, TransitionParams{Reason: "Urgent vendor deadline"})
	if err != nil {
		t.Fatalf("override: %v", err)
	}
	if result.NewState != StateApproved {
		t.Fatalf("expected state approved, got %s", result.NewState)
	}
	if result.Mutations.OverrideReason == nil || *result.Mutations.OverrideReason != "Urgent vendor deadline" {
		t.Fatalf("expected override reason, got %v", result.Mutations.OverrideReason)
	}
	if result.Mutations.ApprovedById == nil || *result.Mutations.ApprovedById != 3 {
		t.Fatalf("expected approved_by 3, got %v", result.Mutations.ApprovedById)
	}
}

func TestRequestTransition_UnknownAction(t *testing.T) {
	engine := newTestEngine(permissiveReader(), stdDirectory())

	_, err := engine.RequestTransition(context.Background(), draftSnapshot(), employeeActor(), TransitionAction("escalate"), TransitionParams{})
	if !errors.Is(err, ErrUnknownTransition) {
		t.Fatalf("expected ErrUnknownTransition, got %v", err)
	}
}

func TestRequestTransition_RejectRequiresReason(t *testing.T) {
	engine := newTestEngine(permissiveReader(), stdDirectory())

	_, err := engine.RequestTransition(context.Background(), submittedSnapshot(), managerActor(), ActionReject, TransitionParams{Reason: "   "})
	violations, ok := AsRuleViolations(err)
	if !ok {
		t.Fatalf("expected rule violations, got %v", err)
	}
	if !violations.Has(ViolationMissingReason) {
		t.Fatalf("expected MissingReason, got %+v", violations.Violations)
	}
}

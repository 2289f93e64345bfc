package models_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/expenses_backend/config"
	"bitbucket.org/mmdatafocus/expenses_backend/models"
	"bitbucket.org/mmdatafocus/expenses_backend/utils"
	"bitbucket.org/mmdatafocus/expenses_backend/workflow"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func TestExpenseLifecycleSubmitApprovePayment(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "expenses_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	seedCtx := context.Background()

	// 1) Seed the approval chain: a manager, an employee reporting to them
	// and a finance user who will process the payment.
	manager := createTestUser(t, seedCtx, &models.NewUser{
		Username:       "mgr.aung",
		Name:           "Aung Kyaw",
		Email:          "mgr.aung@test.local",
		EmployeeNumber: "EMP-0001",
		Password:       "secret-password",
		Role:           workflow.RoleManager,
		Department:     "Engineering",
	})
	employee := createTestUser(t, seedCtx, &models.NewUser{
		Username:       "emp.thiri",
		Name:           "Thiri Win",
		Email:          "emp.thiri@test.local",
		EmployeeNumber: "EMP-0002",
		Password:       "secret-password",
		Role:           workflow.RoleEmployee,
		Department:     "Engineering",
		ManagerId:      &manager.ID,
	})
	finance := createTestUser(t, seedCtx, &models.NewUser{
		Username:       "fin.hla",
		Name:           "Hla Moe",
		Email:          "fin.hla@test.local",
		EmployeeNumber: "EMP-0003",
		Password:       "secret-password",
		Role:           workflow.RoleFinance,
		Department:     "Finance",
	})

	// 2) Employee drafts a small expense, below the receipt threshold.
	empCtx := actorContext(employee)
	exp, err := models.CreateExpense(empCtx, &models.NewExpense{
		Amount:      decimal.NewFromInt(20),
		Category:    workflow.CategoryMeals,
		VendorId:    "V-1001",
		VendorName:  "Golden Duck",
		Description: "Client lunch after the quarterly review",
		ExpenseDate: models.DateOnly(time.Now().UTC().AddDate(0, 0, -1)),
	})
	if err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}
	if exp.State != workflow.StateDraft {
		t.Fatalf("expected draft after create; got %s", exp.State)
	}
	if exp.Version != 1 {
		t.Fatalf("expected version 1 after create; got %d", exp.Version)
	}
	if exp.Currency != "USD" {
		t.Fatalf("expected USD default currency; got %q", exp.Currency)
	}
	if exp.Department != "Engineering" {
		t.Fatalf("expected department inherited from employee; got %q", exp.Department)
	}

	// 3) Submit resolves the approval parties and bumps the version.
	submitted, err := models.ApplyTransition(empCtx, employee, exp.ID, workflow.ActionSubmit, workflow.TransitionParams{}, "sub-1")
	if err != nil {
		t.Fatalf("ApplyTransition(submit): %v", err)
	}
	if submitted.State != workflow.StateSubmitted {
		t.Fatalf("expected submitted; got %s", submitted.State)
	}
	if submitted.Version != 2 {
		t.Fatalf("expected version 2 after submit; got %d", submitted.Version)
	}
	if submitted.SubmittedAt == nil {
		t.Fatalf("expected submitted_at to be set")
	}
	if submitted.ManagerId == nil || *submitted.ManagerId != manager.ID {
		t.Fatalf("expected manager %d assigned; got %v", manager.ID, submitted.ManagerId)
	}
	if submitted.FinanceUserId == nil || *submitted.FinanceUserId != finance.ID {
		t.Fatalf("expected finance user %d assigned; got %v", finance.ID, submitted.FinanceUserId)
	}

	// 4) Replaying the same idempotency key is a no-op for the same caller,
	// and a conflict for anyone else reusing the key.
	replayed, err := models.ApplyTransition(empCtx, employee, exp.ID, workflow.ActionSubmit, workflow.TransitionParams{}, "sub-1")
	if err != nil {
		t.Fatalf("ApplyTransition(submit replay): %v", err)
	}
	if replayed.State != workflow.StateSubmitted || replayed.Version != 2 {
		t.Fatalf("replay must not re-run the transition; got state=%s version=%d", replayed.State, replayed.Version)
	}
	mgrCtx := actorContext(manager)
	if _, err := models.ApplyTransition(mgrCtx, manager, exp.ID, workflow.ActionSubmit, workflow.TransitionParams{}, "sub-1"); !errors.Is(err, models.ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest for a foreign key reuse; got %v", err)
	}

	// 5) The assigned manager approves within their limit.
	approved, err := models.ApplyTransition(mgrCtx, manager, exp.ID, workflow.ActionApprove, workflow.TransitionParams{}, "")
	if err != nil {
		t.Fatalf("ApplyTransition(approve): %v", err)
	}
	if approved.State != workflow.StateApproved {
		t.Fatalf("expected approved; got %s", approved.State)
	}
	if approved.Version != 3 {
		t.Fatalf("expected version 3 after approve; got %d", approved.Version)
	}
	if approved.ApprovedById == nil || *approved.ApprovedById != manager.ID {
		t.Fatalf("expected approved_by %d; got %v", manager.ID, approved.ApprovedById)
	}

	// 6) Approved expenses can no longer be withdrawn by the owner.
	_, err = models.ApplyTransition(empCtx, employee, exp.ID, workflow.ActionWithdraw, workflow.TransitionParams{}, "")
	denied, ok := workflow.AsAuthorizationDenied(err)
	if !ok {
		t.Fatalf("expected authorization denial for withdraw after approval; got %v", err)
	}
	if denied.Reason != workflow.DenyWrongState {
		t.Fatalf("expected WRONG_STATE denial; got %s", denied.Reason)
	}

	// 7) Finance processes the payment; details and outbox row commit together.
	finCtx := actorContext(finance)
	paid, err := models.ApplyTransition(finCtx, finance, exp.ID, workflow.ActionProcessPayment, workflow.TransitionParams{}, "pay-1")
	if err != nil {
		t.Fatalf("ApplyTransition(process_payment): %v", err)
	}
	if paid.State != workflow.StatePaid {
		t.Fatalf("expected paid; got %s", paid.State)
	}
	if paid.Version != 4 {
		t.Fatalf("expected version 4 after payment; got %d", paid.Version)
	}
	if paid.PaymentDetails == nil {
		t.Fatalf("expected payment details on the paid expense")
	}
	if paid.PaymentDetails.PaymentId == "" {
		t.Fatalf("expected a generated payment id")
	}
	if paid.PaymentDetails.PaymentMethod != workflow.PaymentMethodACH {
		t.Fatalf("expected %s payment method; got %s", workflow.PaymentMethodACH, paid.PaymentDetails.PaymentMethod)
	}
	if paid.PaymentDetails.Amount.Cmp(decimal.NewFromInt(20)) != 0 {
		t.Fatalf("expected payment amount 20; got %s", paid.PaymentDetails.Amount.String())
	}
	if paid.PaymentDetails.Currency != "USD" {
		t.Fatalf("expected payment currency USD; got %s", paid.PaymentDetails.Currency)
	}

	paidAgain, err := models.ApplyTransition(finCtx, finance, exp.ID, workflow.ActionProcessPayment, workflow.TransitionParams{}, "pay-1")
	if err != nil {
		t.Fatalf("ApplyTransition(process_payment replay): %v", err)
	}
	if paidAgain.Version != 4 {
		t.Fatalf("payment replay must not advance the version; got %d", paidAgain.Version)
	}

	// 8) The outbox row waits for the dispatcher, not the request path.
	status, err := models.GetPaymentOutboxStatus(seedCtx, exp.ID)
	if err != nil {
		t.Fatalf("GetPaymentOutboxStatus: %v", err)
	}
	if status.PublishStatus != models.OutboxPublishStatusPending {
		t.Fatalf("expected PENDING outbox row; got %s", status.PublishStatus)
	}
	if status.EventType != models.OutboxEventPaymentProcessed {
		t.Fatalf("expected %s event; got %s", models.OutboxEventPaymentProcessed, status.EventType)
	}
	if status.PublishAttempts != 0 {
		t.Fatalf("expected no publish attempts yet; got %d", status.PublishAttempts)
	}

	// 9) The audit trail recorded every attempt, including the refused withdraw.
	trail, err := models.ListExpenseHistory(empCtx, employee, exp.ID)
	if err != nil {
		t.Fatalf("ListExpenseHistory: %v", err)
	}
	if len(trail) != 5 {
		t.Fatalf("expected 5 history rows (create, submit, approve, denied withdraw, payment); got %d", len(trail))
	}
	if trail[0].ActionType != string(workflow.ActionProcessPayment) || trail[0].Outcome != models.HistoryOutcomeSuccess {
		t.Fatalf("expected newest row to be the successful payment; got %s/%s", trail[0].ActionType, trail[0].Outcome)
	}
	var deniedWithdraws int
	for _, h := range trail {
		if h.ActionType == string(workflow.ActionWithdraw) && h.Outcome == models.HistoryOutcomeDenied {
			deniedWithdraws++
		}
	}
	if deniedWithdraws != 1 {
		t.Fatalf("expected exactly one denied withdraw in the trail; got %d", deniedWithdraws)
	}

	// 10) Ops paths: nothing is stuck, and redrive only touches DEAD rows.
	released, err := models.ReleaseStuckPaymentOutbox(seedCtx, time.Minute)
	if err != nil {
		t.Fatalf("ReleaseStuckPaymentOutbox: %v", err)
	}
	if released != 0 {
		t.Fatalf("expected no stuck rows; released %d", released)
	}

	db := config.GetDB()
	if err := db.Model(&models.PaymentOutboxRecord{}).
		Where("expense_id = ?", exp.ID).
		Updates(map[string]interface{}{
			"publish_status":     models.OutboxPublishStatusDead,
			"publish_attempts":   5,
			"last_publish_error": "publish timeout",
		}).Error; err != nil {
		t.Fatalf("force outbox row to DEAD: %v", err)
	}
	redriven, err := models.RedriveDeadPaymentOutbox(seedCtx)
	if err != nil {
		t.Fatalf("RedriveDeadPaymentOutbox: %v", err)
	}
	if redriven != 1 {
		t.Fatalf("expected 1 redriven row; got %d", redriven)
	}
	status, err = models.GetPaymentOutboxStatus(seedCtx, exp.ID)
	if err != nil {
		t.Fatalf("GetPaymentOutboxStatus after redrive: %v", err)
	}
	if status.PublishStatus != models.OutboxPublishStatusPending || status.PublishAttempts != 0 {
		t.Fatalf("expected redriven row PENDING with attempts reset; got %s attempts=%d", status.PublishStatus, status.PublishAttempts)
	}
	if _, err := models.RetryPaymentOutbox(seedCtx, 999999); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected record-not-found retrying an unknown expense; got %v", err)
	}

	// 11) Visibility: an unrelated employee reads not-found, the manager sees it.
	outsider := createTestUser(t, seedCtx, &models.NewUser{
		Username:       "emp.nanda",
		Name:           "Nanda Oo",
		Email:          "emp.nanda@test.local",
		EmployeeNumber: "EMP-0004",
		Password:       "secret-password",
		Role:           workflow.RoleEmployee,
		Department:     "Sales",
	})
	if _, err := models.GetScopedExpense(seedCtx, outsider, exp.ID); !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("expected not-found for an out-of-scope viewer; got %v", err)
	}
	visible, err := models.GetScopedExpense(seedCtx, manager, exp.ID)
	if err != nil {
		t.Fatalf("GetScopedExpense(manager): %v", err)
	}
	if visible.ID != exp.ID {
		t.Fatalf("expected expense %d; got %d", exp.ID, visible.ID)
	}
}

func TestComplianceHoldAndExecutiveOverride(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "expenses_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	seedCtx := context.Background()

	// The monthly limit is raised explicitly so the amount exercises the
	// manager's approval limit, not the submission cap.
	monthlyLimit := decimal.NewFromInt(20000)
	manager := createTestUser(t, seedCtx, &models.NewUser{
		Username:       "mgr.su",
		Name:           "Su Myat",
		Email:          "mgr.su@test.local",
		EmployeeNumber: "EMP-1001",
		Password:       "secret-password",
		Role:           workflow.RoleManager,
		Department:     "Engineering",
	})
	employee := createTestUser(t, seedCtx, &models.NewUser{
		Username:            "emp.kaung",
		Name:                "Kaung Htet",
		Email:               "emp.kaung@test.local",
		EmployeeNumber:      "EMP-1002",
		Password:            "secret-password",
		Role:                workflow.RoleEmployee,
		Department:          "Engineering",
		ManagerId:           &manager.ID,
		MonthlyExpenseLimit: &monthlyLimit,
	})
	finance := createTestUser(t, seedCtx, &models.NewUser{
		Username:       "fin.zaw",
		Name:           "Zaw Lin",
		Email:          "fin.zaw@test.local",
		EmployeeNumber: "EMP-1003",
		Password:       "secret-password",
		Role:           workflow.RoleFinance,
		Department:     "Finance",
	})
	compliance := createTestUser(t, seedCtx, &models.NewUser{
		Username:       "cmp.ei",
		Name:           "Ei Phyu",
		Email:          "cmp.ei@test.local",
		EmployeeNumber: "EMP-1004",
		Password:       "secret-password",
		Role:           workflow.RoleCompliance,
		Department:     "Compliance",
	})
	cfo := createTestUser(t, seedCtx, &models.NewUser{
		Username:       "cfo.min",
		Name:           "Min Thu",
		Email:          "cfo.min@test.local",
		EmployeeNumber: "EMP-1005",
		Password:       "secret-password",
		Role:           workflow.RoleCFO,
		Department:     "Executive",
	})

	// 1) A large expense cannot be submitted without a receipt.
	empCtx := actorContext(employee)
	exp, err := models.CreateExpense(empCtx, &models.NewExpense{
		Amount:      decimal.NewFromInt(6000),
		Category:    workflow.CategorySupplies,
		VendorId:    "V-2001",
		VendorName:  "OfficeMart",
		Description: "Replacement workstations for the platform team",
		ExpenseDate: models.DateOnly(time.Now().UTC().AddDate(0, 0, -3)),
	})
	if err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}

	_, err = models.ApplyTransition(empCtx, employee, exp.ID, workflow.ActionSubmit, workflow.TransitionParams{}, "")
	violations, ok := workflow.AsRuleViolations(err)
	if !ok {
		t.Fatalf("expected rule violations for a receiptless submit; got %v", err)
	}
	if !violations.Has(workflow.ViolationMissingReceipt) {
		t.Fatalf("expected MISSING_RECEIPT violation; got %v", violations.Violations)
	}

	// 2) Attach a stored receipt row and resubmit.
	db := config.GetDB()
	receipt := models.Receipt{
		ExpenseId:    exp.ID,
		FileName:     "invoice-scan.pdf",
		FileSize:     48213,
		MimeType:     "application/pdf",
		StorageKey:   fmt.Sprintf("receipts/%d/invoice-scan.pdf", exp.ID),
		UploadedById: employee.ID,
	}
	if err := db.Create(&receipt).Error; err != nil {
		t.Fatalf("insert receipt fixture: %v", err)
	}

	submitted, err := models.ApplyTransition(empCtx, employee, exp.ID, workflow.ActionSubmit, workflow.TransitionParams{}, "")
	if err != nil {
		t.Fatalf("ApplyTransition(submit): %v", err)
	}
	if submitted.State != workflow.StateSubmitted {
		t.Fatalf("expected submitted; got %s", submitted.State)
	}
	if submitted.ComplianceUserId == nil || *submitted.ComplianceUserId != compliance.ID {
		t.Fatalf("expected compliance user %d assigned; got %v", compliance.ID, submitted.ComplianceUserId)
	}

	// 3) The manager's approval limit is too small for this amount.
	mgrCtx := actorContext(manager)
	_, err = models.ApplyTransition(mgrCtx, manager, exp.ID, workflow.ActionApprove, workflow.TransitionParams{}, "")
	denied, ok := workflow.AsAuthorizationDenied(err)
	if !ok {
		t.Fatalf("expected authorization denial above the manager limit; got %v", err)
	}
	if denied.Reason != workflow.DenyLimitExceeded {
		t.Fatalf("expected LIMIT_EXCEEDED denial; got %s", denied.Reason)
	}

	// 4) Compliance pulls the expense onto hold.
	compCtx := actorContext(compliance)
	held, err := models.ApplyTransition(compCtx, compliance, exp.ID, workflow.ActionFlagSuspicious, workflow.TransitionParams{Reason: "Vendor invoice needs a second look"}, "")
	if err != nil {
		t.Fatalf("ApplyTransition(flag_suspicious): %v", err)
	}
	if held.State != workflow.StateComplianceHold {
		t.Fatalf("expected compliance_hold; got %s", held.State)
	}
	if held.FlaggedById == nil || *held.FlaggedById != compliance.ID {
		t.Fatalf("expected flagged_by %d; got %v", compliance.ID, held.FlaggedById)
	}

	// 5) On hold the owner cannot withdraw.
	_, err = models.ApplyTransition(empCtx, employee, exp.ID, workflow.ActionWithdraw, workflow.TransitionParams{}, "")
	denied, ok = workflow.AsAuthorizationDenied(err)
	if !ok || denied.Reason != workflow.DenyWrongState {
		t.Fatalf("expected WRONG_STATE for withdraw on hold; got %v", err)
	}

	// 6) The cfo override clears the hold with a recorded reason.
	cfoCtx := actorContext(cfo)
	overridden, err := models.ApplyTransition(cfoCtx, cfo, exp.ID, workflow.ActionExecutiveOverride, workflow.TransitionParams{Reason: "Cleared with the vendor directly"}, "")
	if err != nil {
		t.Fatalf("ApplyTransition(executive_override): %v", err)
	}
	if overridden.State != workflow.StateApproved {
		t.Fatalf("expected approved after override; got %s", overridden.State)
	}
	if overridden.OverrideReason == nil || *overridden.OverrideReason == "" {
		t.Fatalf("expected the override reason to be recorded")
	}
	if overridden.ApprovedById == nil || *overridden.ApprovedById != cfo.ID {
		t.Fatalf("expected approved_by %d; got %v", cfo.ID, overridden.ApprovedById)
	}

	// 7) Finance pays out and the outbox row follows.
	finCtx := actorContext(finance)
	paid, err := models.ApplyTransition(finCtx, finance, exp.ID, workflow.ActionProcessPayment, workflow.TransitionParams{}, "")
	if err != nil {
		t.Fatalf("ApplyTransition(process_payment): %v", err)
	}
	if paid.State != workflow.StatePaid {
		t.Fatalf("expected paid; got %s", paid.State)
	}
	status, err := models.GetPaymentOutboxStatus(seedCtx, exp.ID)
	if err != nil {
		t.Fatalf("GetPaymentOutboxStatus: %v", err)
	}
	if status.PublishStatus != models.OutboxPublishStatusPending {
		t.Fatalf("expected PENDING outbox row; got %s", status.PublishStatus)
	}

	// 8) The trail keeps the blocked submit and both denials.
	trail, err := models.ListExpenseHistory(empCtx, employee, exp.ID)
	if err != nil {
		t.Fatalf("ListExpenseHistory: %v", err)
	}
	if len(trail) != 8 {
		t.Fatalf("expected 8 history rows; got %d", len(trail))
	}
	var blockedSubmits int
	for _, h := range trail {
		if h.ActionType == string(workflow.ActionSubmit) && h.Outcome == models.HistoryOutcomeBlocked {
			blockedSubmits++
			if !strings.Contains(h.Violations, string(workflow.ViolationMissingReceipt)) {
				t.Fatalf("expected the blocked submit to record MISSING_RECEIPT; got %q", h.Violations)
			}
		}
	}
	if blockedSubmits != 1 {
		t.Fatalf("expected exactly one blocked submit; got %d", blockedSubmits)
	}
}

func actorContext(user *models.User) context.Context {
	ctx := utils.SetUserIdInContext(context.Background(), user.ID)
	ctx = utils.SetUserNameInContext(ctx, user.Name)
	ctx = utils.SetUsernameInContext(ctx, user.Username)
	return ctx
}

func createTestUser(t *testing.T, ctx context.Context, input *models.NewUser) *models.User {
	t.Helper()
	user, err := models.CreateUser(ctx, input)
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", input.Username, err)
	}
	return user
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("expenses-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("expenses-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=expenses_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}

package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/expenses_backend/config"
	"bitbucket.org/mmdatafocus/expenses_backend/utils"
	"bitbucket.org/mmdatafocus/expenses_backend/workflow"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// gormExpenseReader answers the engine's aggregate queries against the same
// transaction that will commit the transition.
type gormExpenseReader struct {
	tx *gorm.DB
}

func (r *gormExpenseReader) MonthlySubmitted(ctx context.Context, employeeId int, asOf time.Time, exceptId int) (decimal.Decimal, error) {
	monthStart, _ := utils.GetMonthRange(asOf)

	var result struct {
		Total decimal.Decimal
	}
	err := r.tx.WithContext(ctx).Model(&Expense{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("employee_id = ? AND created_at >= ? AND id != ?", employeeId, monthStart, exceptId).
		Scan(&result).Error
	if err != nil {
		return decimal.Zero, err
	}
	return result.Total, nil
}

func (r *gormExpenseReader) HasDuplicate(ctx context.Context, snapshot *workflow.ExpenseSnapshot) (bool, error) {
	var count int64
	err := r.tx.WithContext(ctx).Model(&Expense{}).
		Where("employee_id = ? AND vendor_id = ? AND amount = ? AND expense_date = ? AND id != ?",
			snapshot.EmployeeId, snapshot.Vendor, snapshot.Amount,
			snapshot.ExpenseDate.Format("2006-01-02"), snapshot.ID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *gormExpenseReader) ReceiptCount(ctx context.Context, expenseId int) (int64, error) {
	var count int64
	err := r.tx.WithContext(ctx).Model(&Receipt{}).
		Where("expense_id = ?", expenseId).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *gormExpenseReader) HasPayment(ctx context.Context, expenseId int) (bool, error) {
	var count int64
	err := r.tx.WithContext(ctx).Model(&Expense{}).
		Where("id = ? AND payment_details IS NOT NULL", expenseId).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	if count > 0 {
		return true, nil
	}
	return HasPaymentEvent(ctx, r.tx, expenseId)
}

// gormPartyDirectory resolves approval parties from the users table.
type gormPartyDirectory struct {
	tx *gorm.DB
}

func (d *gormPartyDirectory) ManagerOf(ctx context.Context, employeeId int) (*workflow.Party, error) {
	var employee User
	if err := d.tx.WithContext(ctx).First(&employee, employeeId).Error; err != nil {
		return nil, err
	}
	if employee.ManagerId == nil {
		return nil, nil
	}

	var manager User
	err := d.tx.WithContext(ctx).First(&manager, *employee.ManagerId).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return manager.AsParty(), nil
}

func (d *gormPartyDirectory) FindActiveByRole(ctx context.Context, role workflow.UserRole, department string) (*workflow.Party, error) {
	dbCtx := d.tx.WithContext(ctx).
		Where("role = ? AND is_active = ?", role, true)
	if department != "" {
		dbCtx = dbCtx.Where("department = ?", department)
	}

	var user User
	err := dbCtx.Order("id").First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user.AsParty(), nil
}

// ApplyTransition runs one workflow action end to end: evaluate it against
// the current row, persist the mutations under the optimistic version check,
// record the audit entry and queue the payment event when one was produced.
// Everything commits in one transaction; a lost version race returns
// workflow.ErrConcurrentModification with nothing written.
//
// A non-empty idempotencyKey makes the call replay-safe: a key already
// claimed by the same actor for the same action returns the current row as a
// success without re-running the transition, and a key claimed by someone
// else returns ErrDuplicateRequest.
func ApplyTransition(ctx context.Context, actor *User, expenseId int, action workflow.TransitionAction, params workflow.TransitionParams, idempotencyKey string) (*Expense, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	// Best effort serialization. The version check stays authoritative.
	lock := utils.ObtainExpenseLock(ctx, expenseId, "expense", "ApplyTransition")
	if lock != nil {
		defer lock.Release(ctx)
	}

	tx := db.WithContext(ctx).Begin()
	if err := tx.Error; err != nil {
		return nil, err
	}

	var before Expense
	if err := tx.First(&before, expenseId).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}

	if idempotencyKey != "" {
		replayed, err := FindClaimedTransitionKey(ctx, tx, idempotencyKey, expenseId, action, actor.ID)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if replayed {
			tx.Rollback()
			before.PrepareGive()
			return &before, nil
		}
	}

	engine := workflow.Engine{
		Reader:         &gormExpenseReader{tx: tx},
		Directory:      &gormPartyDirectory{tx: tx},
		RequireManager: config.RequireManagerOnSubmit(),
	}

	result, err := engine.RequestTransition(ctx, before.AsSnapshot(), actor.AsActor(), action, params)
	if err != nil {
		return nil, finishRejectedTransition(ctx, tx, &before, actor, action, err)
	}

	res := tx.Model(&Expense{}).
		Where("id = ? AND version = ?", before.ID, before.Version).
		Updates(buildTransitionUpdates(result))
	if res.Error != nil {
		tx.Rollback()
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		tx.Rollback()
		return nil, workflow.ErrConcurrentModification
	}

	if idempotencyKey != "" {
		if err := ClaimTransitionKey(ctx, tx, idempotencyKey, expenseId, action, actor.ID); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	var after Expense
	if err := tx.First(&after, before.ID).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	description := transitionDescription(action, actor, params)
	if err := SaveHistoryTransition(ctx, tx, &before, &after, actor.AsActor(), result, description); err != nil {
		tx.Rollback()
		return nil, err
	}

	if result.Mutations.Payment != nil {
		if err := EnqueuePaymentEvent(ctx, tx, &after, result.Mutations.Payment); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		config.LogError(logger, "expense", "ApplyTransition", "Error committing transition", expenseId, err)
		return nil, err
	}

	after.PrepareGive()
	return &after, nil
}

// finishRejectedTransition commits an audit row for domain refusals so denied
// and blocked attempts stay visible in the trail. Collaborator failures roll
// back silently.
func finishRejectedTransition(ctx context.Context, tx *gorm.DB, expense *Expense, actor *User, action workflow.TransitionAction, rejection error) error {
	logger := config.GetLogger()

	_, denied := workflow.AsAuthorizationDenied(rejection)
	_, blocked := workflow.AsRuleViolations(rejection)
	if !denied && !blocked && !errors.Is(rejection, workflow.ErrNoManagerAssigned) {
		tx.Rollback()
		return rejection
	}

	if err := SaveHistoryRejectedAttempt(ctx, tx, expense, actor.AsActor(), action, rejection); err != nil {
		tx.Rollback()
		config.LogError(logger, "expense", "ApplyTransition", "Error recording rejected attempt", expense.ID, err)
		return rejection
	}
	if err := tx.Commit().Error; err != nil {
		config.LogError(logger, "expense", "ApplyTransition", "Error committing rejected attempt", expense.ID, err)
	}
	return rejection
}

func buildTransitionUpdates(result *workflow.TransitionResult) map[string]interface{} {
	updates := map[string]interface{}{
		"State":   string(result.NewState),
		"Version": gorm.Expr("version + 1"),
	}

	m := result.Mutations
	if m.SubmittedAt != nil {
		updates["SubmittedAt"] = *m.SubmittedAt
	}
	if m.ManagerId != nil {
		updates["ManagerId"] = *m.ManagerId
	}
	if m.FinanceUserId != nil {
		updates["FinanceUserId"] = *m.FinanceUserId
	}
	if m.ComplianceUserId != nil {
		updates["ComplianceUserId"] = *m.ComplianceUserId
	}
	if m.ClearSubmission {
		updates["SubmittedAt"] = nil
		updates["ManagerId"] = nil
		updates["FinanceUserId"] = nil
		updates["ComplianceUserId"] = nil
	}
	if m.ApprovedAt != nil {
		updates["ApprovedAt"] = *m.ApprovedAt
	}
	if m.ApprovedById != nil {
		updates["ApprovedById"] = *m.ApprovedById
	}
	if m.OverrideReason != nil {
		updates["OverrideReason"] = *m.OverrideReason
	}
	if m.RejectedAt != nil {
		updates["RejectedAt"] = *m.RejectedAt
	}
	if m.RejectionReason != nil {
		updates["RejectionReason"] = *m.RejectionReason
	}
	if m.ProcessedAt != nil {
		updates["ProcessedAt"] = *m.ProcessedAt
	}
	if m.ProcessedById != nil {
		updates["ProcessedById"] = *m.ProcessedById
	}
	if m.Payment != nil {
		updates["PaymentDetails"] = PaymentDetailsJSON(*m.Payment)
	}
	if m.FlaggedAt != nil {
		updates["FlaggedAt"] = *m.FlaggedAt
	}
	if m.FlaggedById != nil {
		updates["FlaggedById"] = *m.FlaggedById
	}
	if m.FlagReason != nil {
		updates["FlagReason"] = *m.FlagReason
	}
	return updates
}

func transitionDescription(action workflow.TransitionAction, actor *User, params workflow.TransitionParams) string {
	switch action {
	case workflow.ActionSubmit:
		return "Expense submitted for approval"
	case workflow.ActionApprove:
		return "Expense approved by " + actor.Name
	case workflow.ActionReject:
		return "Expense rejected: " + params.Reason
	case workflow.ActionWithdraw:
		return "Expense withdrawn to draft"
	case workflow.ActionProcessPayment:
		return "Payment processed by " + actor.Name
	case workflow.ActionFlagSuspicious:
		return "Flagged for compliance review: " + params.Reason
	case workflow.ActionExecutiveOverride:
		return "Executive override by " + actor.Name + ": " + params.Reason
	}
	return string(action)
}

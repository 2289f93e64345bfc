package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/expenses_backend/config"
	"bitbucket.org/mmdatafocus/expenses_backend/utils"
	"bitbucket.org/mmdatafocus/expenses_backend/workflow"
	"gorm.io/gorm"
)

const (
	HistoryActionCreate = "CREATE"
	HistoryActionUpdate = "UPDATE"
)

// History outcomes. DENIED marks an authorization refusal, BLOCKED a business
// rule refusal; both are recorded, not just committed transitions.
const (
	HistoryOutcomeSuccess = "SUCCESS"
	HistoryOutcomeDenied  = "DENIED"
	HistoryOutcomeBlocked = "BLOCKED"
)

// History is the append-only audit trail of an expense. One row per create,
// draft edit and transition attempt. Before/After/Violations/Grants hold JSON
// as text, the way the caller serialized them.
type History struct {
	ID            int       `gorm:"primary_key" json:"id"`
	ExpenseId     int       `gorm:"not null;index;index:idx_history_expense_created,priority:1" json:"expense_id"`
	ActionType    string    `gorm:"size:30;not null" json:"action_type"`
	Outcome       string    `gorm:"size:10;not null" json:"outcome"`
	FromState     string    `gorm:"size:20" json:"from_state"`
	ToState       string    `gorm:"size:20" json:"to_state"`
	Before        string    `gorm:"type:text" json:"before"`
	After         string    `gorm:"type:text" json:"after"`
	Description   string    `gorm:"type:text" json:"description"`
	Violations    string    `gorm:"type:text" json:"violations"`
	Grants        string    `gorm:"type:text" json:"grants"`
	UserId        int       `gorm:"index;not null" json:"user_id"`
	UserName      string    `gorm:"size:100" json:"user_name"`
	CorrelationId string    `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index:idx_history_expense_created,priority:2" json:"created_at"`
}

// createHistory fills actor and correlation id from the context when the
// caller did not set them, then inserts within the caller's transaction.
func createHistory(ctx context.Context, tx *gorm.DB, entry *History) error {
	if entry.UserId == 0 {
		userId, ok := utils.GetUserIdFromContext(ctx)
		if !ok {
			return errors.New("user id is required")
		}
		entry.UserId = userId
		if userName, ok := utils.GetUserNameFromContext(ctx); ok {
			entry.UserName = userName
		}
	}
	if entry.CorrelationId == "" {
		entry.CorrelationId = correlationIdFromContextOrNew(ctx)
	}
	return tx.Create(entry).Error
}

func marshalGrants(grants []workflow.CapabilityGrant) string {
	if len(grants) == 0 {
		return ""
	}
	b, _ := json.Marshal(grants)
	return string(b)
}

func marshalViolations(violations []workflow.Violation) string {
	if len(violations) == 0 {
		return ""
	}
	b, _ := json.Marshal(violations)
	return string(b)
}

func SaveHistoryCreate(ctx context.Context, tx *gorm.DB, expense *Expense, description string, grants []workflow.CapabilityGrant) error {
	after, _ := json.Marshal(expense)

	return createHistory(ctx, tx, &History{
		ExpenseId:   expense.ID,
		ActionType:  HistoryActionCreate,
		Outcome:     HistoryOutcomeSuccess,
		ToState:     string(expense.State),
		After:       string(after),
		Description: description,
		Grants:      marshalGrants(grants),
	})
}

func SaveHistoryUpdate(ctx context.Context, tx *gorm.DB, expenseId int, before interface{}, after interface{}, description string) error {
	b, _ := json.Marshal(before)
	a, _ := json.Marshal(after)

	return createHistory(ctx, tx, &History{
		ExpenseId:   expenseId,
		ActionType:  HistoryActionUpdate,
		Outcome:     HistoryOutcomeSuccess,
		Before:      string(b),
		After:       string(a),
		Description: description,
	})
}

// SaveHistoryTransition records a committed transition, including the
// capability grants it produced.
func SaveHistoryTransition(ctx context.Context, tx *gorm.DB, before *Expense, after *Expense, actor *workflow.Actor, result *workflow.TransitionResult, description string) error {
	b, _ := json.Marshal(before)
	a, _ := json.Marshal(after)

	return createHistory(ctx, tx, &History{
		ExpenseId:   before.ID,
		ActionType:  string(result.Action),
		Outcome:     HistoryOutcomeSuccess,
		FromState:   string(before.State),
		ToState:     string(result.NewState),
		Before:      string(b),
		After:       string(a),
		Description: description,
		Grants:      marshalGrants(result.Grants),
		UserId:      actor.ID,
		UserName:    actor.Name,
	})
}

// SaveHistoryRejectedAttempt records a transition attempt the engine refused,
// with the violation list when business rules blocked it.
func SaveHistoryRejectedAttempt(ctx context.Context, tx *gorm.DB, expense *Expense, actor *workflow.Actor, action workflow.TransitionAction, rejection error) error {
	outcome := HistoryOutcomeBlocked
	violations := ""
	if _, ok := workflow.AsAuthorizationDenied(rejection); ok {
		outcome = HistoryOutcomeDenied
	}
	if ruleErr, ok := workflow.AsRuleViolations(rejection); ok {
		violations = marshalViolations(ruleErr.Violations)
	}

	return createHistory(ctx, tx, &History{
		ExpenseId:   expense.ID,
		ActionType:  string(action),
		Outcome:     outcome,
		FromState:   string(expense.State),
		Description: rejection.Error(),
		Violations:  violations,
		UserId:      actor.ID,
		UserName:    actor.Name,
	})
}

// ListExpenseHistory returns the audit trail of one expense, newest first.
// The viewer must be able to see the expense itself.
func ListExpenseHistory(ctx context.Context, viewer *User, expenseId int) ([]*History, error) {
	if _, err := GetScopedExpense(ctx, viewer, expenseId); err != nil {
		return nil, err
	}

	db := config.GetDB()
	var results []*History
	err := db.WithContext(ctx).
		Where("expense_id = ?", expenseId).
		Order("created_at DESC, id DESC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

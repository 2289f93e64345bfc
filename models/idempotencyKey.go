package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/expenses_backend/workflow"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// ErrDuplicateRequest is returned when an idempotency key was already claimed
// for the same expense and action by a different caller.
var ErrDuplicateRequest = errors.New("duplicate request")

// IdempotencyKey makes transition requests replay-safe. A row is claimed in
// the same transaction that commits the transition, so the unique constraint
// on (idempotency_key, expense_id, action_type) guarantees at most one commit
// per key.
type IdempotencyKey struct {
	ID             int       `gorm:"primary_key" json:"id"`
	IdempotencyKey string    `gorm:"size:100;not null;index:uniq_idem,unique" json:"idempotency_key"`
	ExpenseId      int       `gorm:"not null;index:uniq_idem,unique" json:"expense_id"`
	ActionType     string    `gorm:"size:30;not null;index:uniq_idem,unique" json:"action_type"`
	UserId         int       `gorm:"not null" json:"user_id"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// FindClaimedTransitionKey reports whether the key was already claimed for
// this expense and action by the same user, meaning the request is a replay
// of a transition that committed earlier.
func FindClaimedTransitionKey(ctx context.Context, tx *gorm.DB, key string, expenseId int, action workflow.TransitionAction, userId int) (bool, error) {
	var existing IdempotencyKey
	err := tx.WithContext(ctx).
		Where("idempotency_key = ? AND expense_id = ? AND action_type = ?", key, expenseId, string(action)).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if existing.UserId != userId {
		return false, ErrDuplicateRequest
	}
	return true, nil
}

// ClaimTransitionKey inserts the claim row. A duplicate key error means a
// concurrent request with the same key won the race.
func ClaimTransitionKey(ctx context.Context, tx *gorm.DB, key string, expenseId int, action workflow.TransitionAction, userId int) error {
	claim := IdempotencyKey{
		IdempotencyKey: key,
		ExpenseId:      expenseId,
		ActionType:     string(action),
		UserId:         userId,
	}
	if err := tx.WithContext(ctx).Create(&claim).Error; err != nil {
		if isDuplicateKeyErr(err) {
			return ErrDuplicateRequest
		}
		return err
	}
	return nil
}

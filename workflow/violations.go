package workflow

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownTransition is returned when a caller asks for an action that is
// not in the transition table. This is a programming error in the caller, not
// a domain rejection, and is deliberately distinct from AuthorizationDenied
// and RuleViolations.
var ErrUnknownTransition = errors.New("unknown transition action")

// ErrConcurrentModification is returned by the persistence layer when the
// optimistic version check fails at commit time. Callers should re-fetch the
// expense and retry.
var ErrConcurrentModification = errors.New("expense was modified concurrently")

// DenyReason classifies why authorization refused a transition.
type DenyReason string

const (
	DenyWrongRole     DenyReason = "WRONG_ROLE"
	DenyNotOwner      DenyReason = "NOT_OWNER"
	DenyWrongState    DenyReason = "WRONG_STATE"
	DenyLimitExceeded DenyReason = "LIMIT_EXCEEDED"
)

// AuthorizationDenied is the typed rejection from the authorization
// evaluator. It carries enough for callers to render a precise error without
// string matching.
type AuthorizationDenied struct {
	Action TransitionAction
	Reason DenyReason
	Detail string
}

func (e *AuthorizationDenied) Error() string {
	return fmt.Sprintf("%s denied (%s): %s", e.Action, e.Reason, e.Detail)
}

// ViolationCode names a single business rule failure.
type ViolationCode string

const (
	ViolationMissingReceipt                 ViolationCode = "MISSING_RECEIPT"
	ViolationMonthlyLimitExceeded           ViolationCode = "MONTHLY_LIMIT_EXCEEDED"
	ViolationBlacklistedVendor              ViolationCode = "BLACKLISTED_VENDOR"
	ViolationDuplicateExpense               ViolationCode = "DUPLICATE_EXPENSE"
	ViolationBudgetExceeded                 ViolationCode = "BUDGET_EXCEEDED"
	ViolationEntertainmentRequiresExecutive ViolationCode = "ENTERTAINMENT_REQUIRES_EXECUTIVE"
	ViolationInvalidDescription             ViolationCode = "INVALID_DESCRIPTION"
	ViolationExpenseTooOld                  ViolationCode = "EXPENSE_TOO_OLD"
	ViolationFutureDated                    ViolationCode = "FUTURE_DATED"
	ViolationNonPositiveAmount              ViolationCode = "NON_POSITIVE_AMOUNT"
	ViolationMissingReason                  ViolationCode = "MISSING_REASON"
	ViolationDuplicatePayment               ViolationCode = "DUPLICATE_PAYMENT"
)

// Violation is one named business rule failure with a human-readable message.
type Violation struct {
	Code    ViolationCode `json:"code"`
	Message string        `json:"message"`
}

// RuleViolations is the typed rejection from the business rule validator.
// It carries every rule that failed for the transition, not just the first.
type RuleViolations struct {
	Action     TransitionAction
	Violations []Violation
}

func (e *RuleViolations) Error() string {
	codes := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		codes[i] = string(v.Code)
	}
	return fmt.Sprintf("%s rejected: %s", e.Action, strings.Join(codes, ", "))
}

// Has reports whether the given code is among the violations.
func (e *RuleViolations) Has(code ViolationCode) bool {
	for _, v := range e.Violations {
		if v.Code == code {
			return true
		}
	}
	return false
}

// AsAuthorizationDenied unwraps err into *AuthorizationDenied if possible.
func AsAuthorizationDenied(err error) (*AuthorizationDenied, bool) {
	var denied *AuthorizationDenied
	if errors.As(err, &denied) {
		return denied, true
	}
	return nil, false
}

// AsRuleViolations unwraps err into *RuleViolations if possible.
func AsRuleViolations(err error) (*RuleViolations, bool) {
	var violations *RuleViolations
	if errors.As(err, &violations) {
		return violations, true
	}
	return nil, false
}

package service

import (
	"errors"
	"fmt"
)

// Отказы по бизнес-правилам. Возвращаются вызывающему как есть и не повторяются.
var (
	ErrEntitlementDenied     = errors.New("package does not grant access to this action")
	ErrSubjectNotActive      = errors.New("item is not active")
	ErrDailyCapReached       = errors.New("daily ad reward already claimed")
	ErrAlreadyAttempted      = errors.New("brain teaser already attempted")
	ErrAlreadyEnrolled       = errors.New("already enrolled in this course")
	ErrInvalidState          = errors.New("operation not allowed in current state")
	ErrItemNotFound          = errors.New("item not found")
	ErrSelfPurchaseForbidden = errors.New("cannot purchase own item")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrWithdrawalsDisabled   = errors.New("withdrawals are currently disabled")
	ErrBankAccountMissing    = errors.New("bank account details are not set")
	ErrWithdrawalNotFound    = errors.New("withdrawal request not found")
	ErrPurchaseNotFound      = errors.New("purchase not found")
	ErrEntryNotFound         = errors.New("ledger entry not found")
	ErrUserNotFound          = errors.New("user not found")
	ErrUserExists            = errors.New("user already exists")
)

var ruleErrors = []error{
	ErrEntitlementDenied, ErrSubjectNotActive, ErrDailyCapReached, ErrAlreadyAttempted,
	ErrAlreadyEnrolled, ErrInvalidState, ErrItemNotFound, ErrSelfPurchaseForbidden,
	ErrInsufficientFunds, ErrInsufficientStock, ErrWithdrawalsDisabled, ErrBankAccountMissing,
	ErrWithdrawalNotFound, ErrPurchaseNotFound, ErrEntryNotFound, ErrUserNotFound, ErrUserExists,
}

// IsRuleViolation сообщает, является ли err отказом по бизнес-правилу или ошибкой валидации.
func IsRuleViolation(err error) bool {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return true
	}
	for _, target := range ruleErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ValidationError описывает некорректные входные данные.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// PersistenceError описывает сбой хранилища. Операция при этом откатывается целиком.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// classify оставляет отказы по правилам как есть, а прочие ошибки заворачивает в PersistenceError.
func classify(op string, err error) error {
	if err == nil || IsRuleViolation(err) {
		return err
	}
	var perr *PersistenceError
	if errors.As(err, &perr) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

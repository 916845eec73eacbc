package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound        = errors.New("expense not found")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidCategory = errors.New("invalid category")
	ErrInvalidDate     = errors.New("invalid date")
)

// ValidationError describes one rejected input field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationErrors collects every field problem found in one input.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.Error()
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// StoreCode classifies a failure reported by the relational store.
type StoreCode string

const (
	CodeUniqueViolation     StoreCode = "unique_violation"
	CodeForeignKeyViolation StoreCode = "foreign_key_violation"
	CodeNotNullViolation    StoreCode = "not_null_violation"
	CodeInvalidFormat       StoreCode = "invalid_format"
	CodeUnavailable         StoreCode = "unavailable"
	CodeOther               StoreCode = "other"
)

// StoreError wraps a driver error with its classification. The original
// driver error stays reachable through errors.As / errors.Unwrap.
type StoreError struct {
	Code StoreCode
	Op   string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// StoreCodeOf returns the classification of err, or "" if err is not a StoreError.
func StoreCodeOf(err error) StoreCode {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// CheckStorable rejects an amount a store cannot hold exactly. Stores call it
// before writing so an out-of-range amount fails the same way on every backend.
func CheckStorable(op string, m Money) error {
	if err := m.Validate(); err != nil {
		return &StoreError{Code: CodeInvalidFormat, Op: op, Err: err}
	}
	return nil
}

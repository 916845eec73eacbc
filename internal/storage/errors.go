package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"expenses/internal/core"
)

// SQLSTATE codes reported by PostgreSQL.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgNotNullViolation    = "23502"
	pgCheckViolation      = "23514"
	pgInvalidText         = "22P02"
	pgInvalidDatetime     = "22007"
	pgDatetimeOverflow    = "22008"
	pgStringTooLong       = "22001"
)

// classify wraps a driver failure in a *core.StoreError. Context
// cancellation passes through unchanged.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &core.StoreError{Code: storeCode(err), Op: op, Err: err}
}

func storeCode(err error) core.StoreCode {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgCode(pgErr.Code)
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return sqliteCode(liteErr.Code(), liteErr.Error())
	}

	var connectErr *pgconn.ConnectError
	var netErr net.Error
	switch {
	case errors.As(err, &connectErr),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, driver.ErrBadConn),
		errors.As(err, &netErr):
		return core.CodeUnavailable
	}
	return core.CodeOther
}

func pgCode(code string) core.StoreCode {
	switch code {
	case pgUniqueViolation:
		return core.CodeUniqueViolation
	case pgForeignKeyViolation:
		return core.CodeForeignKeyViolation
	case pgNotNullViolation:
		return core.CodeNotNullViolation
	case pgInvalidText, pgInvalidDatetime, pgDatetimeOverflow, pgCheckViolation, pgStringTooLong:
		return core.CodeInvalidFormat
	}
	// Class 08 is connection exception, 57P0x is operator intervention.
	if len(code) == 5 && (code[:2] == "08" || code[:4] == "57P0") {
		return core.CodeUnavailable
	}
	return core.CodeOther
}

func sqliteCode(code int, msg string) core.StoreCode {
	switch code {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return core.CodeUniqueViolation
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return core.CodeForeignKeyViolation
	case sqlite3.SQLITE_CONSTRAINT_NOTNULL:
		return core.CodeNotNullViolation
	case sqlite3.SQLITE_CONSTRAINT_CHECK, sqlite3.SQLITE_MISMATCH, sqlite3.SQLITE_TOOBIG:
		return core.CodeInvalidFormat
	}
	// Primary result code is the low byte of an extended code.
	switch code & 0xff {
	case sqlite3.SQLITE_CONSTRAINT:
		return constraintFromMessage(msg)
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_IOERR:
		return core.CodeUnavailable
	}
	return core.CodeOther
}

// constraintFromMessage classifies a constraint failure reported without an
// extended result code.
func constraintFromMessage(msg string) core.StoreCode {
	switch {
	case strings.Contains(msg, "UNIQUE"), strings.Contains(msg, "PRIMARY KEY"):
		return core.CodeUniqueViolation
	case strings.Contains(msg, "FOREIGN KEY"):
		return core.CodeForeignKeyViolation
	case strings.Contains(msg, "NOT NULL"):
		return core.CodeNotNullViolation
	default:
		return core.CodeInvalidFormat
	}
}

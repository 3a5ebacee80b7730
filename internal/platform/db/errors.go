package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// UniqueViolation reports the violated constraint when err is a unique violation.
func UniqueViolation(err error) (string, bool) {
	return constraintError(err, codeUniqueViolation)
}

// ForeignKeyViolation reports the violated constraint when err is a foreign key violation.
func ForeignKeyViolation(err error) (string, bool) {
	return constraintError(err, codeForeignKeyViolation)
}

func constraintError(err error, code string) (string, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != code {
		return "", false
	}
	return pgErr.ConstraintName, true
}

// NewUniqueViolation builds the error Postgres returns for a duplicate key.
// In-memory stores use it to reproduce database behaviour.
func NewUniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: codeUniqueViolation, ConstraintName: constraint, Message: "duplicate key value violates unique constraint \"" + constraint + "\""}
}

// NewForeignKeyViolation builds the error Postgres returns for a dangling reference.
func NewForeignKeyViolation(constraint string) error {
	return &pgconn.PgError{Code: codeForeignKeyViolation, ConstraintName: constraint, Message: "violates foreign key constraint \"" + constraint + "\""}
}

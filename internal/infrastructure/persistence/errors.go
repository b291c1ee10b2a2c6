package persistence

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/erp/settlement/internal/domain/shared"
)

// PostgreSQL SQLSTATE codes the repositories react to
const (
	pgUniqueViolation    = "23505"
	pgExclusionViolation = "23P01"
	pgSerialization      = "40001"
)

// translateWriteError maps constraint violations to domain errors.
// A duplicate key or an exclusion violation means another writer got there
// first. Callers re-read to tell an identical window from an overlapping one.
func translateWriteError(err error, what string) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation, pgExclusionViolation, pgSerialization:
			return shared.WrapDomainError(shared.CodeConcurrency, what+" was written concurrently", err)
		}
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return shared.WrapDomainError(shared.CodeConcurrency, what+" was written concurrently", err)
	}
	return err
}

// translateNotFound maps gorm.ErrRecordNotFound to shared.ErrNotFound
func translateNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return shared.ErrNotFound
	}
	return err
}

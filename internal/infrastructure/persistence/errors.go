package persistence

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mxi/presale/internal/domain/shared"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// uniqueRule maps one unique index to the domain error reported when a write violates it.
// columns is the "table.column" list SQLite reports for the same index.
type uniqueRule struct {
	index   string
	columns string
	target  *shared.DomainError
}

// translateWriteError converts unique violations listed in rules into domain
// errors. Unlisted violations become ErrAlreadyExists; other errors pass through.
func translateWriteError(err error, rules ...uniqueRule) error {
	if err == nil {
		return nil
	}
	index, columns, ok := uniqueViolation(err)
	if !ok {
		return err
	}
	for _, r := range rules {
		if (index != "" && index == r.index) || (columns != "" && columns == r.columns) {
			return r.target
		}
	}
	return shared.ErrAlreadyExists
}

// uniqueViolation reports whether err is a unique constraint failure and which
// index (PostgreSQL) or column list (SQLite) it names.
func uniqueViolation(err error) (index, columns string, ok bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != pgUniqueViolation {
			return "", "", false
		}
		return pgErr.ConstraintName, "", true
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return "", "", true
	}
	const sqlitePrefix = "UNIQUE constraint failed: "
	msg := err.Error()
	if i := strings.Index(msg, sqlitePrefix); i >= 0 {
		return "", strings.TrimSpace(msg[i+len(sqlitePrefix):]), true
	}
	return "", "", false
}

// notFound maps gorm.ErrRecordNotFound to shared.ErrNotFound
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return shared.ErrNotFound
	}
	return err
}

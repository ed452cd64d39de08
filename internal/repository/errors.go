package repository

import (
	"errors"
	"strings"

	"github.com/uptrace/bun/driver/pgdriver"
)

// isUniqueViolation reports whether err is a uniqueness-constraint failure
// from either supported store. Postgres reports SQLSTATE 23505; the sqlite
// driver only exposes the constraint message.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505"
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}

package persistence

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Common persistence errors
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

// uniqueViolationCode는 PostgreSQL의 unique_violation 에러 코드
const uniqueViolationCode = "23505"

// isUniqueViolation reports whether err is a unique-constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

package repository

import (
	"errors"

	"github.com/lib/pq"
)

// ErrDuplicateUsername はユーザー名の一意制約違反を表す。
var ErrDuplicateUsername = errors.New("username already exists")

// uniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const uniqueViolation = "23505"

// isUniqueViolation はエラーがPostgreSQLの一意制約違反かを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}

package repository

import (
	"errors"

	"github.com/lib/pq"
)

// uniqueViolationCode はPostgreSQLのunique_violationエラーコード。
const uniqueViolationCode = "23505"

// IsUniqueViolation はエラーがPostgreSQLの一意性制約違反かどうかを判定する。
// スラッグやメールアドレスの重複をアプリケーションレベルのロックではなく
// データストアの制約で解決するため、競合した書き込みはこのエラーで検出される。
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolationCode
	}
	return false
}

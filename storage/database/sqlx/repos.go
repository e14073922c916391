// Package sqlxrepos implements the core repositories on PostgreSQL
// via sqlx and squirrel.
package sqlxrepos

import (
	sq "github.com/Masterminds/squirrel"

	"github.com/trezcool/elimu/core"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// getExec returns the executor the query must run on: the optional transaction
// if one is passed, the repository's DB otherwise.
func getExec(db core.DB, exec []core.DBExecutor) core.DBExecutor {
	if len(exec) > 0 && exec[0] != nil {
		return exec[0]
	}
	return db
}

func orderByClauses(ordering []core.DBOrdering, fallback string) []string {
	if len(ordering) == 0 {
		return []string{fallback}
	}
	clauses := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		clauses = append(clauses, ord.String())
	}
	return clauses
}

package db

import "github.com/jackc/pgx/v5"

// isNoRows reports whether err is pgx's no-rows sentinel, the one case
// query helpers in this package treat as "absent", not failure.
func isNoRows(err error) bool {
	return err == pgx.ErrNoRows
}

package database

import (
	"errors"

	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned by repositories when no live row matches.
var ErrNotFound = errors.New("record not found")

// NotFound translates pgx.ErrNoRows into ErrNotFound and passes other errors through.
func NotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// Offset converts a 1-based page into a row offset.
func Offset(page, limit int) int {
	if page < 1 {
		return 0
	}
	return (page - 1) * limit
}

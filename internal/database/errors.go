package database

import "errors"

// ErrDatabaseNotFound is returned when opening a missing database without
// CreateIfNotExists.
var ErrDatabaseNotFound = errors.New("database not found")

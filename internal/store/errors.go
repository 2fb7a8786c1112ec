package store

import "errors"

// ErrNoRows reports an update that matched nothing.
var ErrNoRows = errors.New("no matching row")

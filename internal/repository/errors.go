package repository

import "errors"

// ErrConcurrentModification indicates the stored row no longer matches the
// precondition the caller read (log status or aggregate version).
var ErrConcurrentModification = errors.New("concurrent modification detected")

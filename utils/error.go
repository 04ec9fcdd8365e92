package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

// ErrDryRun is returned from inside a transaction to force a rollback
// after a dry-run has computed its result.
var ErrDryRun = errors.New("dry run: rolled back")

package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

// ErrSyncInProgress is returned when another worker already holds the
// sync lock for the same POS connection.
var ErrSyncInProgress = errors.New("sync already in progress for this connection")

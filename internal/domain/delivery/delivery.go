package delivery

import "errors"

// Sentinels for the exactly-once send ledger. A worker that loses the race
// for a delivery row sees one of these instead of sending a duplicate email.
var (
	ErrAlreadySent = errors.New("notification already sent")
	ErrInProgress  = errors.New("notification send in progress")
)

package jobs

// JobType names the kinds of deferred work the worker knows how to run.
type JobType string

const (
	TypeReservationConfirmation JobType = "reservation.confirmation"
	TypeReservationCancellation JobType = "reservation.cancellation"
	TypeResetCodeEmail          JobType = "auth.reset_code"
	TypeSupplyReceipt           JobType = "supply.receipt"
)

func (t JobType) IsValid() bool {
	switch t {
	case TypeReservationConfirmation, TypeReservationCancellation,
		TypeResetCodeEmail, TypeSupplyReceipt:
		return true
	default:
		return false
	}
}

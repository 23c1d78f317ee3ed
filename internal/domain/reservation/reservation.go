package reservation

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound         = errors.New("reservation not found")
	ErrAlreadyCancelled = errors.New("reservation already cancelled")
	ErrConflict         = errors.New("reservation conflict")
)

// ConflictError reports which existing reservation blocks a proposed booking.
// errors.Is(err, ErrConflict) matches it.
type ConflictError struct {
	Existing Reservation
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("room %s already reserved %s %s-%s",
		e.Existing.RoomID, e.Existing.Date.Format(DateLayout), e.Existing.StartTime, e.Existing.EndTime)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

type Reservation struct {
	ID     string `json:"id"`
	RoomID string `json:"roomId"`

	// Date is the calendar day the reservation starts on; a booking whose
	// end time is not after its start time runs into the following day.
	Date      time.Time `json:"date"`
	StartTime string    `json:"startTime"`
	EndTime   string    `json:"endTime"`

	UserID   string `json:"userId"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`

	Cancelled    bool    `json:"cancelled"`
	CancelReason *string `json:"cancelReason,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

type CreateRequest struct {
	RoomID    string `json:"roomId" binding:"required,uuid4"`
	Date      string `json:"date" binding:"required,datetime=2006-01-02"`
	StartTime string `json:"startTime" binding:"required"`
	EndTime   string `json:"endTime" binding:"required"`

	// filled from the authenticated session, never from the body
	UserID   string `json:"-"`
	FullName string `json:"-"`
	Email    string `json:"-"`
}

type CancelRequest struct {
	Reason string `json:"reason" binding:"omitempty,max=500"`
}

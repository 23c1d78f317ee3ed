package jobs

import "time"

// Payloads stay small and ID-based where possible; the worker loads
// anything heavier from the database at run time. The reset code is the
// exception: it exists only hashed against the database clock, so the
// plaintext must travel in the payload to reach the email.

type ReservationConfirmationPayload struct {
	ReservationID string    `json:"reservationId"`
	RoomName      string    `json:"roomName"`
	Date          string    `json:"date"`
	StartTime     string    `json:"startTime"`
	EndTime       string    `json:"endTime"`
	Email         string    `json:"email"`
	FullName      string    `json:"fullName"`
	RequestedAt   time.Time `json:"requestedAt"`
}

type ReservationCancellationPayload struct {
	ReservationID string `json:"reservationId"`
	RoomName      string `json:"roomName"`
	Date          string `json:"date"`
	StartTime     string `json:"startTime"`
	EndTime       string `json:"endTime"`
	Email         string `json:"email"`
	FullName      string `json:"fullName"`
	Reason        string `json:"reason,omitempty"`
}

type ResetCodeEmailPayload struct {
	CodeID   string `json:"codeId"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Code     string `json:"code"`
}

type SupplyReceiptPayload struct {
	RequestID string   `json:"requestId"`
	Email     string   `json:"email"`
	FullName  string   `json:"fullName"`
	Items     []string `json:"items"`
}
